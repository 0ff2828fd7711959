// Package journal is the durable record of every observed and relayed
// bridge event, its status, and the per-chain resume checkpoint.
//
// Every call goes through the retry policy. Transient storage failures are
// retried with exponential backoff; anything else, or a transient failure
// that outlives the policy, is returned as *Error and must be treated as
// fatal by the caller.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gorealisbridge/backoff"
	"gorealisbridge/metrics"
	"gorealisbridge/types"
)

var ErrNotFound = errors.New("journal record not found")

// Store is a storage backend. Implementations must make InsertEvent
// insert-or-ignore on (chain, hash) and keep every call its own atomic unit.
type Store interface {
	InsertEvent(ctx context.Context, rec types.JournalRecord) (bool, error)
	UpdateStatus(ctx context.Context, chain types.Chain, hash string, status types.Status, at time.Time) error
	InsertCheckpoint(ctx context.Context, chain types.Chain, height uint64) error
	MaxCheckpoint(ctx context.Context, chain types.Chain) (uint64, bool, error)
	InsertUndecoded(ctx context.Context, ev types.UndecodedEvent) error
	Get(ctx context.Context, chain types.Chain, hash string) (types.JournalRecord, error)
	ListByStatus(ctx context.Context, chain types.Chain, status types.Status, limit int) ([]types.JournalRecord, error)
	ListStuck(ctx context.Context, chain types.Chain, before time.Time, limit int) ([]types.JournalRecord, error)
	Ping(ctx context.Context) error
	// IsTransient classifies errors returned by the other methods.
	IsTransient(err error) bool
	Close() error
}

// Error is returned for every failed journal call.
// Exhausted is set when the failure was transient but outlived the policy.
type Error struct {
	Op        string
	Exhausted bool
	Err       error
}

func (e *Error) Error() string {
	if e.Exhausted {
		return fmt.Sprintf("journal %s: retries exhausted: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("journal %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

type Journal struct {
	store  Store
	policy backoff.Policy
	logger zerolog.Logger
	now    func() time.Time
}

func New(store Store, policy backoff.Policy, logger zerolog.Logger) *Journal {
	return &Journal{
		store:  store,
		policy: policy,
		logger: logger.With().Str("component", "journal").Logger(),
		now:    time.Now,
	}
}

func (j *Journal) call(ctx context.Context, op string, fn func() error) error {
	err := backoff.Do(ctx, j.policy, j.logger, op, j.store.IsTransient, fn)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return err
	}
	metrics.StorageFailures.WithLabelValues(op).Inc()
	return &Error{Op: op, Exhausted: j.store.IsTransient(err), Err: err}
}

// AddEvent journals a freshly decoded event with status Got. It reports
// false without error when (chain, hash) is already present.
func (j *Journal) AddEvent(ctx context.Context, ev types.CrossChainEvent) (bool, error) {
	rec, err := types.NewJournalRecord(ev, j.now())
	if err != nil {
		return false, &Error{Op: "add_event", Err: err}
	}

	var inserted bool
	err = j.call(ctx, "add_event", func() error {
		var err error
		inserted, err = j.store.InsertEvent(ctx, rec)
		return err
	})
	if err != nil {
		return false, err
	}

	if !inserted {
		j.logger.Info().
			Str("chain", rec.Chain.String()).
			Str("hash", rec.Hash).
			Msg("event already journaled, ignoring")
		metrics.EventsDuplicate.WithLabelValues(rec.Chain.String()).Inc()
		return false, nil
	}
	metrics.EventsJournaled.WithLabelValues(rec.Chain.String(), rec.Kind.String()).Inc()
	return true, nil
}

// UpdateStatus does not enforce the Got -> InProgress -> Success|Error
// order; callers own the state machine.
func (j *Journal) UpdateStatus(ctx context.Context, chain types.Chain, hash string, status types.Status) error {
	return j.call(ctx, "update_status", func() error {
		return j.store.UpdateStatus(ctx, chain, hash, status, j.now())
	})
}

// GetCheckpoint returns the highest recorded height. ok is false when the
// chain has no checkpoint yet.
func (j *Journal) GetCheckpoint(ctx context.Context, chain types.Chain) (height uint64, ok bool, err error) {
	err = j.call(ctx, "get_checkpoint", func() error {
		var err error
		height, ok, err = j.store.MaxCheckpoint(ctx, chain)
		return err
	})
	return height, ok, err
}

// UpdateCheckpoint appends height. The maximum wins at read time, so
// out-of-order writes are harmless.
func (j *Journal) UpdateCheckpoint(ctx context.Context, chain types.Chain, height uint64) error {
	err := j.call(ctx, "update_checkpoint", func() error {
		return j.store.InsertCheckpoint(ctx, chain, height)
	})
	if err == nil {
		metrics.CheckpointHeight.WithLabelValues(chain.String()).Set(float64(height))
	}
	return err
}

// RecordRaw keeps an undecodable payload for manual inspection.
// Failures are logged and never returned.
func (j *Journal) RecordRaw(ctx context.Context, data []byte, chain types.Chain, hash string, height uint64) {
	err := j.call(ctx, "record_raw", func() error {
		return j.store.InsertUndecoded(ctx, types.UndecodedEvent{
			Chain: chain,
			Block: height,
			Hash:  hash,
			Data:  data,
		})
	})
	if err != nil {
		j.logger.Error().
			Err(err).
			Str("chain", chain.String()).
			Str("hash", hash).
			Uint64("height", height).
			Msg("cannot record undecoded payload")
	}
}

func (j *Journal) Get(ctx context.Context, chain types.Chain, hash string) (types.JournalRecord, error) {
	var rec types.JournalRecord
	err := j.call(ctx, "get", func() error {
		var err error
		rec, err = j.store.Get(ctx, chain, hash)
		return err
	})
	return rec, err
}

// ListByStatus returns records ordered by block height.
func (j *Journal) ListByStatus(ctx context.Context, chain types.Chain, status types.Status, limit int) ([]types.JournalRecord, error) {
	var recs []types.JournalRecord
	err := j.call(ctx, "list_by_status", func() error {
		var err error
		recs, err = j.store.ListByStatus(ctx, chain, status, limit)
		return err
	})
	return recs, err
}

// ListStuck returns InProgress records not updated for longer than age.
func (j *Journal) ListStuck(ctx context.Context, chain types.Chain, age time.Duration, limit int) ([]types.JournalRecord, error) {
	var recs []types.JournalRecord
	before := j.now().Add(-age)
	err := j.call(ctx, "list_stuck", func() error {
		var err error
		recs, err = j.store.ListStuck(ctx, chain, before, limit)
		return err
	})
	return recs, err
}

func (j *Journal) Ping(ctx context.Context) error {
	return j.call(ctx, "ping", func() error {
		return j.store.Ping(ctx)
	})
}

func (j *Journal) Close() error {
	return j.store.Close()
}
