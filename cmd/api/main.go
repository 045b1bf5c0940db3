package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"walletgate/internal/config"
	"walletgate/internal/db"
	"walletgate/internal/flagstore"
	"walletgate/internal/ledger"
	"walletgate/internal/metrics"
	"walletgate/internal/models"
	"walletgate/internal/provisioning"
	"walletgate/internal/proximity"
	"walletgate/internal/readiness"
	"walletgate/internal/repository"
	"walletgate/internal/server"
	"walletgate/internal/session"
	"walletgate/internal/status"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("failed to run: %v", err)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Setup logger
	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("starting walletgate",
		zap.String("env", cfg.Server.Env),
		zap.Int("port", cfg.Server.Port),
		zap.String("flag_store", cfg.FlagStore.Backend),
	)

	// Connect to PostgreSQL
	database, err := db.New(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer database.Close()
	logger.Info("connected to PostgreSQL")

	// Connect to TigerBeetle. Balances and ledger accounts are skipped without it.
	var (
		balances status.BalanceReader
		accounts provisioning.Accounts
	)
	ledgerClient, err := ledger.NewClient(cfg.TigerBeetle)
	if err != nil {
		logger.Warn("TigerBeetle unavailable, running without ledger", zap.Error(err))
	} else {
		defer ledgerClient.Close()
		balances = ledgerClient
		accounts = ledgerClient
		logger.Info("connected to TigerBeetle", zap.Strings("addresses", cfg.TigerBeetle.Addresses))
	}

	// Flag store
	store, closeStore, err := openFlagStore(ctx, cfg.FlagStore, cfg.Redis)
	if err != nil {
		return fmt.Errorf("open flag store: %w", err)
	}
	defer closeStore()
	var storePinger flagstore.Pinger
	if p, ok := store.(flagstore.Pinger); ok {
		storePinger = p
	}

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// Repositories
	walletRepo := repository.NewWalletRepository(database.Pool())
	verificationRepo := repository.NewVerificationRepository(database.Pool())
	merchantRepo := repository.NewMerchantRepository(database.Pool())

	provisioner := provisioning.New(provisioning.Config{
		DB:      database,
		Wallets: walletRepo,
		WalletsTx: func(tx pgx.Tx) provisioning.Wallets {
			return walletRepo.WithTx(tx)
		},
		Ledger: accounts,
		Logger: logger,
	})

	sessions := session.NewManager(session.Config{
		Store: store,
		Status: status.Deps{
			Verifications: verificationRepo,
			Wallets:       walletRepo,
			Ledger:        balances,
			Logger:        logger,
		},
		Poll: status.PollConfig{
			Interval:     cfg.Readiness.PollInterval,
			RefetchLimit: status.Limit(cfg.Readiness.RefetchPerSecond),
			RefetchBurst: 2,
		},
		Readiness: readiness.Options{
			Enabled:              cfg.Readiness.Enabled,
			SoftFailVerification: cfg.Readiness.SoftFailVerification,
			SetPinDebounce:       cfg.Readiness.SetPinDebounce,
		},
		Proximity: session.ProximityConfig{
			ThresholdMeters: cfg.Proximity.ThresholdMeters,
			Buffer:          cfg.Proximity.Buffer,
			Lookup: proximity.LookupFunc(func(ctx context.Context, lat, lon float64) ([]models.Suggestion, error) {
				center := models.Coordinate{Latitude: lat, Longitude: lon}
				return merchantRepo.Nearby(ctx, center, cfg.Proximity.SearchRadiusMeters, cfg.Proximity.MaxSuggestions)
			}),
		},
		Logger:  logger,
		Metrics: m,
	})

	srv := server.New(server.Config{
		Port:        cfg.Server.Port,
		Database:    database,
		FlagStore:   storePinger,
		Sessions:    sessions,
		Provisioner: provisioner,
		Gatherer:    registry,
		Logger:      logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	logger.Info("walletgate ready",
		zap.Int("port", cfg.Server.Port),
	)

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	sessions.Close(shutdownCtx)

	return nil
}

func openFlagStore(ctx context.Context, cfg config.FlagStoreConfig, redis config.RedisConfig) (flagstore.Store, func(), error) {
	switch cfg.Backend {
	case config.FlagStoreMemory:
		return flagstore.NewMemoryStore(), func() {}, nil
	case config.FlagStoreRedis:
		s, err := flagstore.NewRedisStore(ctx, redis.URL, cfg.TTL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		s, err := flagstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
}
