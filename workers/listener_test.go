package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorealisbridge/decoder"
	"gorealisbridge/health"
	"gorealisbridge/journal/sqlstore"
	"gorealisbridge/metrics"
	"gorealisbridge/types"
)

var errNoSuchTable = errors.New("no such table: extrinsics_bsc")

func runListener(ctx context.Context, l *Listener) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()
	return done
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("loop did not return")
	}
}

func receive(t *testing.T, out <-chan types.CrossChainEvent) types.CrossChainEvent {
	t.Helper()
	select {
	case ev := <-out:
		return ev
	case <-time.After(waitFor):
		t.Fatal("no event forwarded")
	}
	return nil
}

func assertNothingForwarded(t *testing.T, out <-chan types.CrossChainEvent) {
	t.Helper()
	select {
	case ev := <-out:
		t.Fatalf("unexpected event %s", ev.Meta().TxHash)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestListenerJournalsAndForwards(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	undecodable := tokenRaw("0xbroken", 11)
	undecodable.Params = undecodable.Params[:2]
	undecodable.Payload = []byte{0xde, 0xad}

	source := newFakeSource(map[uint64][]types.RawEvent{
		10: {tokenRaw("0xa", 10), tokenRaw("0xb", 10)},
		11: {undecodable},
		// same transaction seen again after a restart race
		12: {tokenRaw("0xa", 10)},
	})
	j := newTestJournal(t, nil)
	h := health.New()
	out := make(chan types.CrossChainEvent, 8)
	failuresBefore := testutil.ToFloat64(metrics.DecodeFailures.WithLabelValues(types.BSC.String()))

	done := runListener(ctx, NewListener(source, decoder.BSC, out, h, j, 10, zerolog.Nop()))
	source.sub.heads <- 12

	assert.Equal(t, "0xa", receive(t, out).Meta().TxHash)
	assert.Equal(t, "0xb", receive(t, out).Meta().TxHash)

	require.Eventually(t, func() bool {
		height, ok, err := j.GetCheckpoint(ctx, types.BSC)
		return err == nil && ok && height == 12
	}, waitFor, tick)
	assertNothingForwarded(t, out)

	assert.Equal(t, []uint64{10, 11, 12}, source.fetchedHeights())
	assert.Equal(t, types.StatusGot, statusOf(j, "0xa"))
	assert.Equal(t, statusMissing, statusOf(j, "0xbroken"))
	assert.Equal(t, failuresBefore+1, testutil.ToFloat64(metrics.DecodeFailures.WithLabelValues(types.BSC.String())))

	cancel()
	waitDone(t, done)
	assert.True(t, h.IsHealthy(), "cancellation is not a failure")
}

func TestListenerResumesFromCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := newTestJournal(t, nil)
	require.NoError(t, j.UpdateCheckpoint(ctx, types.BSC, 20))

	source := newFakeSource(map[uint64][]types.RawEvent{22: {tokenRaw("0xc", 22)}})
	out := make(chan types.CrossChainEvent, 1)
	done := runListener(ctx, NewListener(source, decoder.BSC, out, health.New(), j, 5, zerolog.Nop()))

	source.sub.heads <- 22
	assert.Equal(t, "0xc", receive(t, out).Meta().TxHash)
	assert.Equal(t, []uint64{21, 22}, source.fetchedHeights())

	// a head at or below the cursor fetches nothing
	source.sub.heads <- 22
	source.sub.heads <- 23
	require.Eventually(t, func() bool {
		return len(source.fetchedHeights()) == 3
	}, waitFor, tick)
	assert.Equal(t, []uint64{21, 22, 23}, source.fetchedHeights())

	cancel()
	waitDone(t, done)
}

func TestListenerStartsAtFirstHeadWithoutCheckpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := newFakeSource(nil)
	done := runListener(ctx, NewListener(source, decoder.BSC, make(chan types.CrossChainEvent, 1), health.New(), newTestJournal(t, nil), 0, zerolog.Nop()))

	source.sub.heads <- 500
	require.Eventually(t, func() bool {
		return len(source.fetchedHeights()) == 1
	}, waitFor, tick)
	assert.Equal(t, []uint64{500}, source.fetchedHeights())

	cancel()
	waitDone(t, done)
}

func TestListenerReplaysGotRecords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := newTestJournal(t, nil)
	_, err := j.AddEvent(ctx, tokenEvent("0xgot", 3))
	require.NoError(t, err)
	_, err = j.AddEvent(ctx, tokenEvent("0xbusy", 4))
	require.NoError(t, err)
	require.NoError(t, j.UpdateStatus(ctx, types.BSC, "0xbusy", types.StatusInProgress))

	out := make(chan types.CrossChainEvent, 4)
	done := runListener(ctx, NewListener(newFakeSource(nil), decoder.BSC, out, health.New(), j, 0, zerolog.Nop()))

	assert.Equal(t, tokenEvent("0xgot", 3), receive(t, out))
	assertNothingForwarded(t, out)

	cancel()
	waitDone(t, done)
}

func TestListenerForwardsAfterLostInsertReply(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := sqlstore.OpenInMemory()
	require.NoError(t, err)
	j := newTestJournal(t, &lostAckStore{Store: s})

	source := newFakeSource(map[uint64][]types.RawEvent{5: {tokenRaw("0xe", 5)}})
	out := make(chan types.CrossChainEvent, 4)
	h := health.New()
	done := runListener(ctx, NewListener(source, decoder.BSC, out, h, j, 5, zerolog.Nop()))
	source.sub.heads <- 5

	assert.Equal(t, "0xe", receive(t, out).Meta().TxHash)
	require.Eventually(t, func() bool {
		height, ok, err := j.GetCheckpoint(ctx, types.BSC)
		return err == nil && ok && height == 5
	}, waitFor, tick)
	assertNothingForwarded(t, out)
	assert.Equal(t, types.StatusGot, statusOf(j, "0xe"))
	assert.True(t, h.IsHealthy())

	cancel()
	waitDone(t, done)
}

func TestListenerSkipsDuplicatesPastGot(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j := newTestJournal(t, nil)
	_, err := j.AddEvent(ctx, tokenEvent("0xdone", 3))
	require.NoError(t, err)
	require.NoError(t, j.UpdateStatus(ctx, types.BSC, "0xdone", types.StatusSuccess))

	source := newFakeSource(map[uint64][]types.RawEvent{
		3: {tokenRaw("0xdone", 3)},
		// one transaction emitting the same bridge item twice
		4: {tokenRaw("0xtwice", 4), tokenRaw("0xtwice", 4)},
	})
	out := make(chan types.CrossChainEvent, 4)
	done := runListener(ctx, NewListener(source, decoder.BSC, out, health.New(), j, 3, zerolog.Nop()))
	source.sub.heads <- 4

	assert.Equal(t, "0xtwice", receive(t, out).Meta().TxHash)
	assertNothingForwarded(t, out)

	cancel()
	waitDone(t, done)
}

func TestListenerMarksUnhealthy(t *testing.T) {
	t.Run("subscription cannot be opened", func(t *testing.T) {
		source := newFakeSource(nil)
		source.subscribeErr = errors.New("dial tcp: connection refused")
		h := health.New()

		done := runListener(context.Background(), NewListener(source, decoder.BSC, make(chan types.CrossChainEvent), h, newTestJournal(t, nil), 0, zerolog.Nop()))
		waitDone(t, done)
		assert.False(t, h.IsHealthy())
	})

	t.Run("subscription fails", func(t *testing.T) {
		source := newFakeSource(nil)
		h := health.New()

		done := runListener(context.Background(), NewListener(source, decoder.BSC, make(chan types.CrossChainEvent), h, newTestJournal(t, nil), 0, zerolog.Nop()))
		source.sub.errs <- errors.New("websocket: close 1006")
		waitDone(t, done)
		assert.False(t, h.IsHealthy())
	})

	t.Run("fatal storage error", func(t *testing.T) {
		source := newFakeSource(map[uint64][]types.RawEvent{7: {tokenRaw("0xd", 7)}})
		h := health.New()
		j := fatalJournal(t)

		done := runListener(context.Background(), NewListener(source, decoder.BSC, make(chan types.CrossChainEvent, 1), h, j, 7, zerolog.Nop()))
		source.sub.heads <- 7
		waitDone(t, done)

		assert.False(t, h.IsHealthy())
		assert.False(t, h.MarkUnhealthy(), "already unhealthy before returning")
		_, ok, err := j.GetCheckpoint(context.Background(), types.BSC)
		require.NoError(t, err)
		assert.False(t, ok, "block with an unjournaled event must not be checkpointed")
	})
}
