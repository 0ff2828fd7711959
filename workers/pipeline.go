package workers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gorealisbridge/decoder"
	"gorealisbridge/health"
	"gorealisbridge/journal"
	"gorealisbridge/metrics"
	"gorealisbridge/notify"
	"gorealisbridge/types"
)

var ErrPipelineUnhealthy = errors.New("pipeline unhealthy")

// SourceFactory and ExecutorFactory dial fresh chain clients for every
// pipeline instance.
type (
	SourceFactory   func(ctx context.Context) (types.ChainSource, error)
	ExecutorFactory func(ctx context.Context) (types.Executor, error)
)

// Pipeline relays one direction: events seen on the source chain are
// executed on its counterpart.
type Pipeline struct {
	Name        string
	NewSource   SourceFactory
	NewExecutor ExecutorFactory
	Journal     *journal.Journal
	Notifier    notify.Notifier
	ChannelSize int
	StartBlock  uint64
	Logger      zerolog.Logger
}

// RunOnce builds one instance with its own health controller and runs it
// until it turns unhealthy or ctx ends. It returns after the sender has
// finished the event it was working on.
func (p *Pipeline) RunOnce(ctx context.Context, onStart func(instance string)) error {
	instance := uuid.New().String()
	logger := p.Logger.With().Str("pipeline", p.Name).Str("instance", instance).Logger()

	source, err := p.NewSource(ctx)
	if err != nil {
		return fmt.Errorf("cannot open source: %w", err)
	}
	defer source.Close()

	executor, err := p.NewExecutor(ctx)
	if err != nil {
		return fmt.Errorf("cannot open executor: %w", err)
	}
	defer executor.Close()

	if source.Chain().Counterpart() != executor.Chain() {
		return fmt.Errorf("source %s cannot feed an executor on %s", source.Chain(), executor.Chain())
	}

	size := p.ChannelSize
	if size < 1 {
		size = 1
	}
	events := make(chan types.CrossChainEvent, size)
	h := health.New()

	decode, err := decoder.ForChain(source.Chain())
	if err != nil {
		return err
	}

	listener := NewListener(source, decode, events, h, p.Journal, p.StartBlock, logger)
	sender := NewSender(executor, p.Notifier, logger)

	if onStart != nil {
		onStart(instance)
	}
	metrics.PipelineHealthy.WithLabelValues(p.Name).Set(1)
	defer metrics.PipelineHealthy.WithLabelValues(p.Name).Set(0)
	logger.Info().Int("channel_size", size).Msg("pipeline started")

	// either loop ending stops the other one
	var g errgroup.Group
	g.Go(func() error {
		listener.Run(ctx)
		h.MarkUnhealthy()
		return nil
	})
	g.Go(func() error {
		sender.Run(ctx, events, p.Journal, h)
		h.MarkUnhealthy()
		return nil
	})
	_ = g.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return ErrPipelineUnhealthy
}

// PipelineState is what /state reports per pipeline.
type PipelineState struct {
	Name      string    `json:"name"`
	Instance  string    `json:"instance"`
	Running   bool      `json:"running"`
	Restarts  int       `json:"restarts"`
	StartedAt time.Time `json:"started_at"`
	LastError string    `json:"last_error,omitempty"`
}

// Orchestrator runs every pipeline concurrently and re-creates an instance
// after it turns unhealthy, until the context ends.
type Orchestrator struct {
	pipelines    []*Pipeline
	restartDelay time.Duration
	logger       zerolog.Logger

	mu     sync.Mutex
	states map[string]*PipelineState
}

func NewOrchestrator(restartDelay time.Duration, logger zerolog.Logger, pipelines ...*Pipeline) *Orchestrator {
	states := make(map[string]*PipelineState, len(pipelines))
	for _, p := range pipelines {
		states[p.Name] = &PipelineState{Name: p.Name}
	}
	return &Orchestrator{
		pipelines:    pipelines,
		restartDelay: restartDelay,
		logger:       logger.With().Str("component", "orchestrator").Logger(),
		states:       states,
	}
}

// Run blocks until ctx is done and every pipeline has stopped.
func (o *Orchestrator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range o.pipelines {
		p := p
		g.Go(func() error {
			o.supervise(ctx, p)
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) supervise(ctx context.Context, p *Pipeline) {
	for {
		err := p.RunOnce(ctx, func(instance string) {
			o.update(p.Name, func(s *PipelineState) {
				s.Instance = instance
				s.Running = true
				s.StartedAt = time.Now().UTC()
			})
		})
		o.update(p.Name, func(s *PipelineState) {
			s.Running = false
			if err != nil && ctx.Err() == nil {
				s.LastError = err.Error()
			}
		})
		if ctx.Err() != nil {
			o.logger.Info().Str("pipeline", p.Name).Msg("pipeline stopped")
			return
		}

		o.logger.Warn().Err(err).Str("pipeline", p.Name).Dur("delay", o.restartDelay).Msg("pipeline down, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(o.restartDelay):
		}
		metrics.PipelineRestarts.WithLabelValues(p.Name).Inc()
		o.update(p.Name, func(s *PipelineState) { s.Restarts++ })
	}
}

func (o *Orchestrator) update(name string, f func(s *PipelineState)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	f(o.states[name])
}

// Running counts the pipelines with a live instance.
func (o *Orchestrator) Running() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, s := range o.states {
		if s.Running {
			n++
		}
	}
	return n
}

// State returns a snapshot sorted by pipeline name.
func (o *Orchestrator) State() []PipelineState {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]PipelineState, 0, len(o.states))
	for _, s := range o.states {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
