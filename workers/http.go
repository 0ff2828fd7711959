package workers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"gorealisbridge/EVMRPC"
	"gorealisbridge/RealisRPC"
	"gorealisbridge/config"
	"gorealisbridge/journal"
	"gorealisbridge/workers/handlers"
)

// NewAPI wires the operator handlers to the journal, the orchestrator and
// the relayer accounts of both chains.
func NewAPI(cfg *config.Configuration, j *journal.Journal, o *Orchestrator, logger zerolog.Logger) (*handlers.API, error) {
	keyring, err := RealisRPC.Keyring(cfg.Realis.Seed, cfg.Realis.SS58Prefix)
	if err != nil {
		return nil, err
	}
	bscAddr, err := EVMRPC.AddressFromKey(cfg.BSC.PrivateKey)
	if err != nil {
		return nil, err
	}

	logger = logger.With().Str("component", "http").Logger()
	return &handlers.API{
		Journal:   j,
		Pipelines: func() interface{} { return o.State() },
		Running:   o.Running,
		RealisBalance: func(ctx context.Context) (string, error) {
			return RealisRPC.FreeBalanceAt(cfg.Realis.URL, keyring.PublicKey)
		},
		BSCBalance: func(ctx context.Context) (string, error) {
			return EVMRPC.NativeBalance(ctx, []string{cfg.BSC.URL}, bscAddr, logger)
		},
		StuckAfter: cfg.Pipeline.StuckAfter,
		Logger:     logger,
	}, nil
}

func NewRouter(api *handlers.API, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: &logger, NoColor: true}))
	r.Use(middleware.Recoverer)

	r.Options("/*", CORSHeaders)

	r.Get("/state", api.State)
	r.Get("/health", api.HealthCheck)

	r.Get("/balance/realis", api.BalanceRealis)
	r.Get("/balance/bsc", api.BalanceBSC)

	r.Get("/checkpoint/{chain}", api.Checkpoint)
	r.Get("/records/{chain}/{hash}", api.GetTransaction)
	r.Get("/stats/{chain}/failed", api.GetFailedTransactions)
	r.Get("/stats/{chain}/stuck", api.GetStuckTransactions)

	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Worker_HTTP serves the operator API until ctx is done, then shuts the
// server down gracefully.
func Worker_HTTP(ctx context.Context, cfg *config.Configuration, handler http.Handler, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "http").Logger()

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Server.UseSSL {
		cert, err := tls.LoadX509KeyPair(cfg.Server.CertFile, cfg.Server.KeyFile)
		if err != nil {
			return fmt.Errorf("cannot load tls key pair: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	errs := make(chan error, 1)
	go func() {
		var err error
		if cfg.Server.UseSSL {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errs <- err
		}
		close(errs)
	}()
	logger.Info().Str("addr", server.Addr).Bool("ssl", cfg.Server.UseSSL).Msg("HTTP service started")

	select {
	case err, ok := <-errs:
		if ok {
			return fmt.Errorf("error listening to %s: %w", server.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP service shutdown error: %w", err)
	}
	logger.Info().Msg("HTTP service shutdown normal")
	return nil
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, Origin, X-Requested-With")
}
