package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rahulkumargit1/Krypt/internal/client"
	"github.com/rahulkumargit1/Krypt/internal/config"
	"github.com/rahulkumargit1/Krypt/internal/crypto/seal"
	"github.com/rahulkumargit1/Krypt/internal/identity"
	"github.com/rahulkumargit1/Krypt/internal/keystore"
	"github.com/rahulkumargit1/Krypt/internal/logging"
	"github.com/rahulkumargit1/Krypt/internal/store"
	"github.com/rahulkumargit1/Krypt/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() // best-effort flush

	passphrase, err := cfg.Passphrase()
	if err != nil {
		logger.Fatal("keystore passphrase unavailable", zap.Error(err))
	}

	ks := keystore.NewFileBackend(cfg.Keystore.Path)
	initOrUnlockKeystore(logger, ks, passphrase)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	self, err := identity.Ensure(ctx, ks)
	if err != nil {
		logger.Fatal("load identity", zap.Error(err))
	}
	logger.Info("identity ready", zap.String("uuid", self.UUID))

	records, err := store.NewMemory(logger, cfg.Store.Path)
	if err != nil {
		logger.Fatal("open local store", zap.Error(err))
	}
	records.StartSweeper(ctx, cfg.SweepInterval)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	relay, err := transport.New(transport.Config{
		Log:            logger,
		RelayURL:       cfg.RelayURL,
		ReconnectDelay: cfg.ReconnectDelay,
		InboundBuffer:  cfg.InboundBuffer,
		Overflow:       overflowPolicy(cfg.OverflowPolicy),
		Metrics:        transport.NewMetrics(reg),
	})
	if err != nil {
		logger.Fatal("build transport", zap.Error(err))
	}

	engine, err := client.New(client.Config{
		Log:            logger,
		Transport:      relay,
		Oracle:         seal.Sealer{ChunkSize: cfg.ChunkSize},
		Store:          records,
		Identity:       self,
		Metrics:        client.NewMetrics(reg),
		TransferMaxAge: cfg.TransferMaxAge,
		SweepInterval:  cfg.SweepInterval,
		StatusTTL:      cfg.StatusTTL,
	})
	if err != nil {
		logger.Fatal("build engine", zap.Error(err))
	}

	admin := startAdminServer(logger, cfg.AdminAddress, reg, relay)
	defer shutdownAdminServer(logger, admin)

	relay.Start(ctx, self.UUID, self.PublicKeyString())
	logger.Info("engine running", zap.String("relay", cfg.RelayURL))

	if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("engine exited with error", zap.Error(err))
	}
}

func initOrUnlockKeystore(log *zap.Logger, backend keystore.KeyBackend, passphrase string) {
	ctx := context.Background()
	if err := backend.Unlock(ctx, passphrase); err != nil {
		if errors.Is(err, keystore.ErrNotInitialized) {
			if err := backend.Initialize(ctx, passphrase); err != nil {
				log.Fatal("initialize keystore", zap.Error(err))
			}
			log.Info("initialized new keystore")
			return
		}
		log.Fatal("unlock keystore", zap.Error(err))
		return
	}
	log.Info("keystore unlocked")
}

func overflowPolicy(name string) transport.OverflowPolicy {
	if name == config.OverflowDropOldest {
		return transport.DropOldest
	}
	return transport.DropNewest
}

// startAdminServer exposes metrics and probes on a side port. Readiness
// means a live registered relay connection.
func startAdminServer(log *zap.Logger, address string, reg *prometheus.Registry, relay *transport.Client) *http.Server {
	if address == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if relay.State() == transport.StateRegistered {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not_ready"))
	})

	srv := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("admin server stopped", zap.Error(err))
		}
	}()
	log.Info("admin server listening", zap.String("address", address))
	return srv
}

func shutdownAdminServer(log *zap.Logger, srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("admin server shutdown", zap.Error(err))
	}
}
