package workers

import (
	"context"
	"errors"
	"runtime"

	"github.com/rs/zerolog"

	"gorealisbridge/decoder"
	"gorealisbridge/health"
	"gorealisbridge/journal"
	"gorealisbridge/metrics"
	"gorealisbridge/types"
)

// errStopped is returned inside the loops when another component of the
// pipeline already marked it unhealthy.
var errStopped = errors.New("pipeline stopped")

// headBuffer is how many finalized heads the subscription pump may hold
// while the listener is busy with a block.
const headBuffer = 16

// queuedPruneAt is the size at which the set of queued hashes is trimmed
// down to the records still in Got.
const queuedPruneAt = 1024

// Listener follows the finalized heads of one chain, journals every bridge
// event and forwards the new ones to the sender of the pipeline.
type Listener struct {
	source     types.ChainSource
	decode     decoder.Func
	out        chan<- types.CrossChainEvent
	health     *health.Controller
	journal    *journal.Journal
	startBlock uint64
	logger     zerolog.Logger

	// next height to process, zero until the first head arrives
	next uint64
	// hashes this instance handed, or is about to hand, to the sender
	queued map[string]struct{}
}

// NewListener builds a listener. startBlock is used only when the journal
// has no checkpoint for the chain; zero means the first head seen.
func NewListener(source types.ChainSource, decode decoder.Func, out chan<- types.CrossChainEvent,
	h *health.Controller, j *journal.Journal, startBlock uint64, logger zerolog.Logger) *Listener {
	return &Listener{
		source:     source,
		decode:     decode,
		out:        out,
		health:     h,
		journal:    j,
		startBlock: startBlock,
		queued:     make(map[string]struct{}),
		logger:     logger.With().Str("component", "listener").Str("chain", source.Chain().String()).Logger(),
	}
}

// Run returns when ctx is done, the pipeline turns unhealthy or the head
// subscription ends. Every failure other than cancellation marks the
// pipeline unhealthy before returning.
func (l *Listener) Run(ctx context.Context) {
	if err := l.replay(ctx); err != nil {
		l.fail(ctx, err, "cannot replay journaled events")
		return
	}

	sub, err := l.source.SubscribeHeads(ctx)
	if err != nil {
		l.fail(ctx, err, "cannot subscribe to finalized heads")
		return
	}
	defer sub.Close()

	heads := make(chan uint64, headBuffer)
	pumpErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go pump(sub, heads, pumpErr, stop)

	l.logger.Info().Msg("listener started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.health.Done():
			return
		case err := <-pumpErr:
			l.fail(ctx, err, "head subscription ended")
			return
		case head := <-heads:
			if err := l.catchUp(ctx, head); err != nil {
				l.fail(ctx, err, "cannot process block")
				return
			}
		}
	}
}

// pump moves heads from the blocking subscription into the listener loop.
// It owns an OS thread since the subscription clients block in Next.
func pump(sub types.HeadSubscription, heads chan<- uint64, errs chan<- error, stop <-chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		head, err := sub.Next()
		if err != nil {
			errs <- err
			return
		}
		select {
		case heads <- head:
		case <-stop:
			return
		}
	}
}

func (l *Listener) fail(ctx context.Context, err error, msg string) {
	if ctx.Err() != nil || errors.Is(err, errStopped) {
		return
	}
	l.logger.Error().Err(err).Uint64("height", l.next).Msg(msg)
	l.health.MarkUnhealthy()
}

// replay forwards events journaled by an earlier instance that never
// reached a sender.
func (l *Listener) replay(ctx context.Context) error {
	recs, err := l.journal.ListByStatus(ctx, l.source.Chain(), types.StatusGot, 0)
	if err != nil {
		return err
	}
	if len(recs) > 0 {
		l.logger.Info().Int("count", len(recs)).Msg("replaying journaled events")
	}
	for _, rec := range recs {
		ev, err := rec.Event()
		if err != nil {
			l.logger.Error().Err(err).Str("hash", rec.Hash).Msg("cannot rebuild journaled event, skipping")
			continue
		}
		l.queued[rec.Hash] = struct{}{}
		if err := l.forward(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

// catchUp processes every block from the resume height up to head.
func (l *Listener) catchUp(ctx context.Context, head uint64) error {
	if l.next == 0 {
		next, err := l.resumeHeight(ctx, head)
		if err != nil {
			return err
		}
		l.next = next
	}

	for ; l.next <= head; l.next++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !l.health.IsHealthy() {
			return errStopped
		}
		if err := l.processBlock(ctx, l.next); err != nil {
			return err
		}
	}
	return nil
}

func (l *Listener) resumeHeight(ctx context.Context, head uint64) (uint64, error) {
	checkpoint, ok, err := l.journal.GetCheckpoint(ctx, l.source.Chain())
	if err != nil {
		return 0, err
	}
	switch {
	case ok:
		l.logger.Info().Uint64("checkpoint", checkpoint).Msg("resuming from checkpoint")
		return checkpoint + 1, nil
	case l.startBlock > 0:
		l.logger.Info().Uint64("start", l.startBlock).Msg("no checkpoint, starting at configured block")
		return l.startBlock, nil
	}
	l.logger.Info().Uint64("head", head).Msg("no checkpoint, starting at current head")
	return head, nil
}

// processBlock journals the events of one block, then records the block
// as the checkpoint, then forwards what was new. A crash between the two
// journal writes leaves Got records that the next instance replays.
func (l *Listener) processBlock(ctx context.Context, height uint64) error {
	chain := l.source.Chain()
	raws, err := l.source.BlockEvents(ctx, height)
	if err != nil {
		return err
	}

	var fresh []types.CrossChainEvent
	for _, raw := range raws {
		ev, err := l.decode(raw)
		if err != nil {
			l.logger.Warn().
				Err(err).
				Str("hash", raw.TxHash).
				Str("method", raw.Method).
				Uint64("height", height).
				Msg("cannot decode bridge event")
			metrics.DecodeFailures.WithLabelValues(chain.String()).Inc()
			l.journal.RecordRaw(ctx, raw.Payload, chain, raw.TxHash, height)
			continue
		}

		inserted, err := l.journal.AddEvent(ctx, ev)
		if err != nil {
			return err
		}
		if !inserted {
			// the insert may have landed on an earlier attempt whose reply
			// was lost, leaving a Got record nobody forwarded
			if inserted, err = l.unsent(ctx, ev); err != nil {
				return err
			}
		}
		if inserted {
			l.queued[ev.Meta().TxHash] = struct{}{}
			fresh = append(fresh, ev)
		}
	}

	if err := l.journal.UpdateCheckpoint(ctx, chain, height); err != nil {
		return err
	}
	if len(raws) > 0 {
		l.logger.Debug().Uint64("height", height).Int("events", len(raws)).Int("new", len(fresh)).Msg("block journaled")
	}

	for _, ev := range fresh {
		if err := l.forward(ctx, ev); err != nil {
			return err
		}
	}
	l.pruneQueued(ctx)
	return nil
}

// unsent reports whether an already journaled event is still in Got and
// was never queued by this listener.
func (l *Listener) unsent(ctx context.Context, ev types.CrossChainEvent) (bool, error) {
	meta := ev.Meta()
	if _, ok := l.queued[meta.TxHash]; ok {
		return false, nil
	}
	rec, err := l.journal.Get(ctx, meta.Chain, meta.TxHash)
	if err != nil {
		return false, err
	}
	if rec.Status != types.StatusGot {
		return false, nil
	}
	l.logger.Info().Str("hash", meta.TxHash).Msg("journaled event never forwarded, forwarding")
	return true, nil
}

// pruneQueued forgets hashes the sender already moved past Got. Failures
// only delay the trim.
func (l *Listener) pruneQueued(ctx context.Context) {
	if len(l.queued) < queuedPruneAt {
		return
	}
	recs, err := l.journal.ListByStatus(ctx, l.source.Chain(), types.StatusGot, 0)
	if err != nil {
		l.logger.Warn().Err(err).Msg("cannot trim queued hashes")
		return
	}
	pending := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if _, ok := l.queued[rec.Hash]; ok {
			pending[rec.Hash] = struct{}{}
		}
	}
	l.queued = pending
}

// forward blocks until the sender takes ev. This is the backpressure point
// of the pipeline.
func (l *Listener) forward(ctx context.Context, ev types.CrossChainEvent) error {
	select {
	case l.out <- ev:
		return nil
	case <-l.health.Done():
		return errStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
