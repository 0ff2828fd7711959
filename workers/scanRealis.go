package workers

import (
	"context"

	"github.com/rs/zerolog"

	"gorealisbridge/RealisRPC"
	"gorealisbridge/config"
	"gorealisbridge/journal"
	"gorealisbridge/notify"
	"gorealisbridge/types"
)

// RealisToBSC relays transfers started on Realis, and the Realis
// acknowledgements of BSC transfers, to the BSC contract.
func RealisToBSC(cfg *config.Configuration, j *journal.Journal, n notify.Notifier, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		Name:        "realis-bsc",
		NewSource:   RealisSource(cfg, logger),
		NewExecutor: BSCExecutor(cfg, logger),
		Journal:     j,
		Notifier:    n,
		ChannelSize: cfg.Pipeline.ChannelSize,
		StartBlock:  cfg.Realis.StartBlock,
		Logger:      logger,
	}
}

func RealisSource(cfg *config.Configuration, logger zerolog.Logger) SourceFactory {
	return func(ctx context.Context) (types.ChainSource, error) {
		client, err := RealisRPC.Dial(cfg.Realis.URL, cfg.Realis.Pallet, cfg.Realis.SS58Prefix, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// RealisExecutor dials a connection of its own so the signing key and its
// nonce sequence are never shared with the listener.
func RealisExecutor(cfg *config.Configuration, logger zerolog.Logger) ExecutorFactory {
	return func(ctx context.Context) (types.Executor, error) {
		client, err := RealisRPC.Dial(cfg.Realis.URL, cfg.Realis.Pallet, cfg.Realis.SS58Prefix, logger)
		if err != nil {
			return nil, err
		}
		executor, err := RealisRPC.NewExecutor(client, cfg.Realis.Seed, cfg.Realis.SubmitTimeout, logger)
		if err != nil {
			client.Close()
			return nil, err
		}
		return executor, nil
	}
}
