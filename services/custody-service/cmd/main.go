package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/balance"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/chain"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/config"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/custody"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/domain"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/executor"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/infrastructure/events"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/infrastructure/lock"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/infrastructure/repository"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/infrastructure/rest"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/ledger"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/internal/service"
	"github.com/quangdang46/DeFi-Wallet/services/custody-service/migrations"
	"github.com/quangdang46/DeFi-Wallet/shared/contracts"
	"github.com/quangdang46/DeFi-Wallet/shared/database"
	"github.com/quangdang46/DeFi-Wallet/shared/logging"
	"github.com/quangdang46/DeFi-Wallet/shared/messaging"
	"github.com/quangdang46/DeFi-Wallet/shared/metrics"
	"github.com/quangdang46/DeFi-Wallet/shared/migration"
	"github.com/quangdang46/DeFi-Wallet/shared/monitoring"
	"github.com/quangdang46/DeFi-Wallet/shared/postgres"
	"github.com/quangdang46/DeFi-Wallet/shared/recovery"
	"github.com/quangdang46/DeFi-Wallet/shared/redis"
)

const serviceName = "custody-service"

func main() {
	// Load configuration
	cfg := config.LoadConfig()

	logger := logging.NewLogger(&logging.Config{
		Level:       logging.LogLevel(cfg.LogLevel),
		Service:     serviceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Output:      os.Stdout,
		PrettyLog:   cfg.Environment == "development",
		AddCaller:   true,
	})

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	logger.Infof("Starting Custody Service on %s", cfg.HTTPAddr)

	// Create context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sentryEnabled, err := monitoring.InitSentry(&monitoring.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     cfg.Version,
		ServiceName: serviceName,
	})
	if err != nil {
		logger.WithError(err).Warn("sentry disabled")
	}
	if sentryEnabled {
		defer monitoring.FlushSentry(2 * time.Second)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics("custody", reg)

	postgresDB, err := postgres.NewPostgres(cfg.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("failed to create postgres")
	}
	defer postgresDB.Close()

	if err := postgresDB.HealthCheck(ctx); err != nil {
		logger.WithError(err).Fatal("failed to ping postgres")
	}

	if cfg.RunMigrations {
		migrator := migration.NewMigrator(postgresDB.GetClient(), &migration.Config{
			Service:    serviceName,
			Migrations: migrations.FS,
			Dir:        ".",
			Logger:     logger,
		})
		if err := migrator.Migrate(); err != nil {
			logger.WithError(err).Fatal("failed to run migrations")
		}
	}

	var locker domain.WalletLocker = lock.NewMemoryLocker(cfg.WalletLockWait)
	if cfg.WalletLockBackend == config.LockBackendRedis {
		redisClient, err := redis.NewRedis(cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("failed to create redis")
		}
		defer redisClient.Close()

		if err := redisClient.HealthCheck(ctx); err != nil {
			logger.WithError(err).Fatal("failed to ping redis")
		}
		locker = lock.NewRedisLocker(redisClient, cfg.WalletLockTTL, cfg.WalletLockWait, logger)
	}

	var amqpClient contracts.AMQPClient
	if cfg.EventsEnabled() {
		rmq, err := messaging.NewRabbitMQ(cfg.RabbitMQ, logger)
		if err != nil {
			logger.WithError(err).Fatal("failed to create amqp client")
		}
		defer rmq.Close()

		if err := rmq.DeclareExchanges(
			messaging.ExchangeConfig{Name: contracts.WalletsExchange, Type: "topic", Durable: true},
			messaging.ExchangeConfig{Name: contracts.TransactionsExchange, Type: "topic", Durable: true},
		); err != nil {
			logger.WithError(err).Fatal("failed to declare exchanges")
		}
		amqpClient = rmq
	}
	publisher := events.NewEventPublisher(amqpClient, logger)

	chains, err := chain.LoadChains(cfg.ChainsFile)
	if err != nil {
		logger.WithError(err).Fatal("failed to load chains")
	}
	registry, err := chain.NewRegistry(ctx, chains, chain.DialEth,
		chain.WithRPCTimeout(cfg.RPCTimeout),
		chain.WithLogger(logger),
		chain.WithMetrics(m),
	)
	if err != nil {
		logger.WithError(err).Fatal("failed to build chain registry")
	}
	defer registry.Close()

	walletRepo := repository.NewWalletRepository(postgresDB, m)
	txRepo := repository.NewTransactionRepository(postgresDB, m)

	keys := custody.New(custody.WithLogger(logger))
	txLedger := ledger.New(txRepo, publisher, logger)
	discovery := balance.NewDiscovery(registry, balance.Config{
		ExplorerTimeout: cfg.ExplorerTimeout,
		MinInterval:     cfg.ExplorerMinInterval,
	}, logger, m)

	walletService := service.NewWalletService(registry, walletRepo, keys, discovery, txLedger, publisher, logger)
	txExecutor := executor.New(registry, walletRepo, keys, txLedger, locker,
		executor.WithLogger(logger),
		executor.WithMetrics(m),
	)

	panics := recovery.NewPanicHandler(logger, recovery.WithPanicCallback(func(interface{}, []byte) {
		m.RecordPanic()
	}))
	router := rest.NewRouter(rest.NewHandler(walletService, txExecutor, logger), rest.RouterConfig{
		JWTSecret: []byte(cfg.JWTSecret),
		Logger:    logger,
		Metrics:   m,
		Gatherer:  reg,
		Panics:    panics,

		RequestTimeout: cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go watchChainHealth(ctx, registry, cfg.HealthCheck, logger)
	go database.NewPoolMonitor(postgresDB.GetClient(), serviceName, cfg.DBPoolInterval, logger).Start(ctx)

	// Start HTTP server in a goroutine
	go func() {
		logger.Infof("Custody service listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("failed to serve")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	<-ctx.Done()

	logger.Info("Shutting down Custody Service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
}

// watchChainHealth refreshes the chain_healthy gauge until ctx is cancelled
func watchChainHealth(ctx context.Context, registry *chain.Registry, interval time.Duration, logger *logging.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for id, ok := range registry.HealthCheckAll(ctx) {
				if !ok {
					logger.WithField("chain_id", id).Warn("chain rpc unhealthy")
				}
			}
		}
	}
}
