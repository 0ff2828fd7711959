package workers

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"gorealisbridge/EVMRPC"
	"gorealisbridge/config"
	"gorealisbridge/journal"
	"gorealisbridge/notify"
	"gorealisbridge/types"
)

// BSCToRealis relays transfers started on the BSC contract, and the
// contract's acknowledgements of Realis transfers, to the Realis pallet.
func BSCToRealis(cfg *config.Configuration, j *journal.Journal, n notify.Notifier, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		Name:        "bsc-realis",
		NewSource:   BSCSource(cfg, logger),
		NewExecutor: RealisExecutor(cfg, logger),
		Journal:     j,
		Notifier:    n,
		ChannelSize: cfg.Pipeline.ChannelSize,
		StartBlock:  cfg.BSC.StartBlock,
		Logger:      logger,
	}
}

func BSCSource(cfg *config.Configuration, logger zerolog.Logger) SourceFactory {
	return func(ctx context.Context) (types.ChainSource, error) {
		client, err := EVMRPC.Dial(ctx, cfg.BSC.URL, common.HexToAddress(cfg.BSC.Contract), cfg.BSC.Confirmations, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

func BSCExecutor(cfg *config.Configuration, logger zerolog.Logger) ExecutorFactory {
	return func(ctx context.Context) (types.Executor, error) {
		client, err := EVMRPC.Dial(ctx, cfg.BSC.URL, common.HexToAddress(cfg.BSC.Contract), cfg.BSC.Confirmations, logger)
		if err != nil {
			return nil, err
		}
		executor, err := EVMRPC.NewExecutor(client, cfg.BSC.PrivateKey, cfg.BSC.ChainID, cfg.BSC.GasLimit, cfg.BSC.SubmitTimeout, logger)
		if err != nil {
			client.Close()
			return nil, err
		}
		return executor, nil
	}
}
