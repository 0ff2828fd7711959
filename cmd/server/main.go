package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"gorealisbridge/config"
	"gorealisbridge/journal"
	"gorealisbridge/journal/sqlstore"
	"gorealisbridge/logger"
	"gorealisbridge/notify"
	"gorealisbridge/redis"
	"gorealisbridge/workers"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the yaml configuration")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("cannot load configuration")
	}
	log := logger.New(cfg.Server.LogLevel, cfg.Server.LogFormat)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("bridge stopped with error")
	}
	log.Info().Msg("bridge stopped")
}

func run(cfg *config.Configuration, log zerolog.Logger) error {
	log.Info().Str("journal", cfg.Journal.Backend).Msg("Starting Realis/BSC bridge")

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// without persistence do not continue
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	j := journal.New(store, cfg.RetryPolicy(), log)
	defer j.Close()
	if err := j.Ping(sigCtx); err != nil {
		return err
	}

	publisher, err := notify.Connect(cfg.NATS.URL, cfg.NATS.Subject, log)
	if err != nil {
		return err
	}
	defer publisher.Close()

	// one pipeline per direction, each with its own listener, sender and
	// health flag; the journal is shared
	orchestrator := workers.NewOrchestrator(cfg.Pipeline.RestartDelay, log,
		workers.RealisToBSC(cfg, j, publisher, log),
		workers.BSCToRealis(cfg, j, publisher, log),
	)

	api, err := workers.NewAPI(cfg, j, orchestrator, log)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		return orchestrator.Run(ctx)
	})
	g.Go(func() error {
		return workers.Worker_HTTP(ctx, cfg, workers.NewRouter(api, log), log)
	})
	if err := g.Wait(); err != nil && sigCtx.Err() == nil {
		return err
	}
	return nil
}

func openStore(cfg *config.Configuration) (journal.Store, error) {
	if cfg.Journal.Backend == "redis" {
		return redis.New(cfg.Journal.RedisHost, cfg.Journal.RedisPort), nil
	}

	store, err := sqlstore.Open(cfg.Journal.Backend, cfg.Journal.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.Journal.AutoMigrate {
		if err := store.Migrate(); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}
