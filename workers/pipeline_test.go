package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorealisbridge/journal"
	"gorealisbridge/types"
)

func testPipeline(j *journal.Journal, source *fakeSource, executor *fakeExecutor) *Pipeline {
	return &Pipeline{
		Name: "bsc-realis",
		NewSource: func(context.Context) (types.ChainSource, error) {
			return source, nil
		},
		NewExecutor: func(context.Context) (types.Executor, error) {
			return executor, nil
		},
		Journal:     j,
		Notifier:    &recordingNotifier{},
		ChannelSize: 4,
		StartBlock:  1,
		Logger:      zerolog.Nop(),
	}
}

func TestPipelineRelaysEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := newFakeSource(map[uint64][]types.RawEvent{1: {tokenRaw("0xe", 1)}})
	executor := newFakeExecutor()
	j := newTestJournal(t, nil)
	p := testPipeline(j, source, executor)

	var instance string
	errs := make(chan error, 1)
	go func() {
		errs <- p.RunOnce(ctx, func(id string) { instance = id })
	}()
	source.sub.heads <- 1

	require.Eventually(t, func() bool {
		return statusOf(j, "0xe") == types.StatusSuccess
	}, waitFor, tick)

	cancel()
	select {
	case err := <-errs:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitFor):
		t.Fatal("pipeline did not stop")
	}
	assert.NotEmpty(t, instance)
	assert.True(t, source.closed)
}

func TestPipelineStopsOnFatalStorage(t *testing.T) {
	source := newFakeSource(map[uint64][]types.RawEvent{1: {tokenRaw("0xf", 1)}})
	source.sub.heads <- 1
	p := testPipeline(fatalJournal(t), source, newFakeExecutor())

	errs := make(chan error, 1)
	go func() {
		errs <- p.RunOnce(context.Background(), nil)
	}()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrPipelineUnhealthy)
	case <-time.After(waitFor):
		t.Fatal("pipeline did not stop")
	}
}

func TestPipelineRejectsMismatchedChains(t *testing.T) {
	executor := newFakeExecutor()
	executor.chain = types.BSC
	p := testPipeline(newTestJournal(t, nil), newFakeSource(nil), executor)

	err := p.RunOnce(context.Background(), nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrPipelineUnhealthy)
}

func TestOrchestratorRestartsPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := newTestJournal(t, nil)
	source := newFakeSource(nil)
	p := testPipeline(j, source, newFakeExecutor())

	var dials atomic.Int32
	p.NewSource = func(context.Context) (types.ChainSource, error) {
		if dials.Add(1) == 1 {
			return nil, errors.New("dial tcp 127.0.0.1:9944: connection refused")
		}
		return source, nil
	}

	o := NewOrchestrator(10*time.Millisecond, zerolog.Nop(), p)
	errs := make(chan error, 1)
	go func() {
		errs <- o.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		state := o.State()
		return len(state) == 1 && state[0].Running
	}, waitFor, tick)

	state := o.State()[0]
	assert.Equal(t, "bsc-realis", state.Name)
	assert.Equal(t, 1, state.Restarts)
	assert.Contains(t, state.LastError, "connection refused")
	assert.NotEmpty(t, state.Instance)
	assert.Equal(t, 1, o.Running())

	cancel()
	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("orchestrator did not stop")
	}
	assert.False(t, o.State()[0].Running)
	assert.Zero(t, o.Running())
}
