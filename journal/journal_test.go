package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorealisbridge/backoff"
	"gorealisbridge/types"
)

var (
	errUnreachable = errors.New("storage unreachable")
	errSchema      = errors.New("column does not exist")
)

// scriptedStore fails the first failures calls with err, then delegates
// to an in-memory map.
type scriptedStore struct {
	failures int
	err      error
	calls    int

	records     map[string]types.JournalRecord
	checkpoints []uint64
	undecoded   []types.UndecodedEvent
}

func newScriptedStore(failures int, err error) *scriptedStore {
	return &scriptedStore{failures: failures, err: err, records: map[string]types.JournalRecord{}}
}

func (s *scriptedStore) fail() error {
	s.calls++
	if s.calls <= s.failures {
		return s.err
	}
	return nil
}

func key(chain types.Chain, hash string) string { return chain.String() + ":" + hash }

func (s *scriptedStore) InsertEvent(_ context.Context, rec types.JournalRecord) (bool, error) {
	if err := s.fail(); err != nil {
		return false, err
	}
	if _, ok := s.records[key(rec.Chain, rec.Hash)]; ok {
		return false, nil
	}
	s.records[key(rec.Chain, rec.Hash)] = rec
	return true, nil
}

func (s *scriptedStore) UpdateStatus(_ context.Context, chain types.Chain, hash string, status types.Status, at time.Time) error {
	if err := s.fail(); err != nil {
		return err
	}
	rec, ok := s.records[key(chain, hash)]
	if !ok {
		return ErrNotFound
	}
	rec.Status, rec.UpdatedAt = status, at
	s.records[key(chain, hash)] = rec
	return nil
}

func (s *scriptedStore) InsertCheckpoint(_ context.Context, _ types.Chain, height uint64) error {
	if err := s.fail(); err != nil {
		return err
	}
	s.checkpoints = append(s.checkpoints, height)
	return nil
}

func (s *scriptedStore) MaxCheckpoint(context.Context, types.Chain) (uint64, bool, error) {
	if err := s.fail(); err != nil {
		return 0, false, err
	}
	var max uint64
	for _, h := range s.checkpoints {
		if h > max {
			max = h
		}
	}
	return max, len(s.checkpoints) > 0, nil
}

func (s *scriptedStore) InsertUndecoded(_ context.Context, ev types.UndecodedEvent) error {
	if err := s.fail(); err != nil {
		return err
	}
	s.undecoded = append(s.undecoded, ev)
	return nil
}

func (s *scriptedStore) Get(_ context.Context, chain types.Chain, hash string) (types.JournalRecord, error) {
	if err := s.fail(); err != nil {
		return types.JournalRecord{}, err
	}
	rec, ok := s.records[key(chain, hash)]
	if !ok {
		return types.JournalRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *scriptedStore) ListByStatus(context.Context, types.Chain, types.Status, int) ([]types.JournalRecord, error) {
	return nil, s.fail()
}

func (s *scriptedStore) ListStuck(context.Context, types.Chain, time.Time, int) ([]types.JournalRecord, error) {
	return nil, s.fail()
}

func (s *scriptedStore) Ping(context.Context) error { return s.fail() }

func (s *scriptedStore) IsTransient(err error) bool { return errors.Is(err, errUnreachable) }

func (s *scriptedStore) Close() error { return nil }

func newTestJournal(store Store) *Journal {
	return New(store, backoff.Policy{Attempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, zerolog.Nop())
}

func event(hash string) types.CrossChainEvent {
	return types.NftTransferObserved{
		EventMeta: types.EventMeta{
			Chain:  types.Realis,
			TxHash: hash,
			From:   types.Account{Chain: types.Realis, Address: "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"},
			To:     types.Account{Chain: types.BSC, Address: "0x6D1eee1CFeEAb71A4d7Fcc73f0EF67A9CA2cD943"},
		},
		TokenID: types.TokenIDFromUint64(1),
	}
}

func TestTransientFailuresAreRetriedInPlace(t *testing.T) {
	store := newScriptedStore(2, errUnreachable)
	j := newTestJournal(store)

	inserted, err := j.AddEvent(context.Background(), event("0x1"))
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, 3, store.calls)
}

func TestExhaustedTransientEscalates(t *testing.T) {
	store := newScriptedStore(100, errUnreachable)
	j := newTestJournal(store)

	err := j.UpdateCheckpoint(context.Background(), types.Realis, 4)
	var jerr *Error
	require.ErrorAs(t, err, &jerr)
	assert.True(t, jerr.Exhausted)
	assert.Equal(t, "update_checkpoint", jerr.Op)
	assert.ErrorIs(t, err, errUnreachable)
	assert.Equal(t, 3, store.calls)
}

func TestFatalFailureIsNotRetried(t *testing.T) {
	store := newScriptedStore(100, errSchema)
	j := newTestJournal(store)

	_, err := j.AddEvent(context.Background(), event("0x1"))
	var jerr *Error
	require.ErrorAs(t, err, &jerr)
	assert.False(t, jerr.Exhausted)
	assert.Equal(t, 1, store.calls)
}

func TestCheckpointAbsenceIsNotAnError(t *testing.T) {
	j := newTestJournal(newScriptedStore(0, nil))

	_, ok, err := j.GetCheckpoint(context.Background(), types.BSC)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecordRawSwallowsFailures(t *testing.T) {
	store := newScriptedStore(100, errSchema)
	j := newTestJournal(store)

	j.RecordRaw(context.Background(), []byte("raw"), types.BSC, "0x2", 9)
	assert.Empty(t, store.undecoded)

	ok := newScriptedStore(0, nil)
	newTestJournal(ok).RecordRaw(context.Background(), []byte("raw"), types.BSC, "0x2", 9)
	require.Len(t, ok.undecoded, 1)
	assert.Equal(t, uint64(9), ok.undecoded[0].Block)
}

func TestCanceledContextIsReturnedAsIs(t *testing.T) {
	store := newScriptedStore(100, errUnreachable)
	j := New(store, backoff.Policy{Attempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := j.Ping(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	var jerr *Error
	assert.False(t, errors.As(err, &jerr))
}
