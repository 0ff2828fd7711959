package workers

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"gorealisbridge/health"
	"gorealisbridge/journal"
	"gorealisbridge/metrics"
	"gorealisbridge/notify"
	"gorealisbridge/types"
)

// Sender executes decoded events on the destination chain, one at a time.
// A failed submission is recorded as Error and never retried here.
type Sender struct {
	executor types.Executor
	notifier notify.Notifier
	logger   zerolog.Logger
}

func NewSender(executor types.Executor, notifier notify.Notifier, logger zerolog.Logger) *Sender {
	return &Sender{
		executor: executor,
		notifier: notifier,
		logger:   logger.With().Str("component", "sender").Str("target", executor.Chain().String()).Logger(),
	}
}

// Run consumes in until ctx is done or h turns unhealthy. An event already
// taken from in is always carried to a terminal status, even during
// shutdown.
func (s *Sender) Run(ctx context.Context, in <-chan types.CrossChainEvent, j *journal.Journal, h *health.Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.Done():
			return
		case ev, ok := <-in:
			if !ok {
				return
			}
			if !s.process(ctx, ev, j, h) {
				return
			}
		}
	}
}

// process reports whether the sender may take the next event.
func (s *Sender) process(ctx context.Context, ev types.CrossChainEvent, j *journal.Journal, h *health.Controller) bool {
	meta := ev.Meta()
	logger := s.logger.With().
		Str("chain", meta.Chain.String()).
		Str("hash", meta.TxHash).
		Str("kind", ev.Kind().String()).
		Str("direction", ev.Direction().String()).
		Logger()
	if meta.BlockHeight != nil {
		logger = logger.With().Uint64("height", *meta.BlockHeight).Logger()
	}

	work := context.WithoutCancel(ctx)

	// flipped before sending so a restart never submits the event twice
	if err := j.UpdateStatus(work, meta.Chain, meta.TxHash, types.StatusInProgress); err != nil {
		logger.Error().Err(err).Msg("cannot mark event in progress, emergency stop to avoid double send")
		h.MarkUnhealthy()
		return false
	}

	start := time.Now()
	txHash, sendErr := s.executor.Execute(work, ev)
	status := types.StatusSuccess
	if sendErr != nil {
		status = types.StatusError
		logger.Error().Err(sendErr).Str("target_tx", txHash).Msg("relay failed")
	} else {
		metrics.RelayDuration.WithLabelValues(s.executor.Chain().String()).Observe(time.Since(start).Seconds())
		logger.Info().Str("target_tx", txHash).Msg("relayed")
	}
	metrics.RelayOutcomes.WithLabelValues(s.executor.Chain().String(), status.String()).Inc()

	if err := j.UpdateStatus(work, meta.Chain, meta.TxHash, status); err != nil {
		logger.Error().Err(err).Str("status", status.String()).Msg("cannot record relay outcome")
		h.MarkUnhealthy()
		return false
	}

	outcome := notify.Outcome{
		SourceChain: meta.Chain,
		TargetChain: s.executor.Chain(),
		Hash:        meta.TxHash,
		Kind:        ev.Kind().String(),
		Status:      status.String(),
		TargetTx:    txHash,
		At:          time.Now().UTC(),
	}
	if sendErr != nil {
		outcome.Error = sendErr.Error()
	}
	s.notifier.Publish(outcome)

	var se *types.SendError
	if errors.As(sendErr, &se) && se.Kind == types.SendConnection {
		logger.Warn().Msg("destination client unusable, stopping pipeline")
		h.MarkUnhealthy()
		return false
	}
	return true
}
