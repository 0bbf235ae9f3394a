// Command server runs the attendance service: token issuance, check-in,
// synchronization intake, the operator queue, and analytics, over one
// HTTP listener.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"flock/internal/analytics"
	"flock/internal/attendance"
	"flock/internal/events"
	httpapi "flock/internal/http"
	"flock/internal/ledger"
	ledgermetrics "flock/internal/ledger/metrics"
	"flock/internal/member"
	"flock/internal/platform/config"
	"flock/internal/platform/httpserver"
	"flock/internal/platform/logger"
	"flock/internal/platform/middleware"
	"flock/internal/platform/postgres"
	platformredis "flock/internal/platform/redis"
	"flock/internal/session"
	"flock/internal/sync"
	"flock/internal/token"
	"flock/internal/token/replay"
)

const marksPerStationPerMinute = 120

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage. Postgres when configured, in-memory for development.
	var (
		sessionStore  session.Store
		ledgerStore   ledger.Store
		operatorStore sync.OperatorStore
		relay         *events.OutboxRelay
	)
	if cfg.PostgresURL != "" {
		if err := postgres.Migrate(cfg.PostgresURL); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		db, err := postgres.Open(cfg.PostgresURL)
		if err != nil {
			log.Error("postgres connection failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		sessionStore = session.NewPostgres(db)
		ledgerStore = ledger.NewPostgres(db)
		operatorStore = sync.NewPostgresOperatorStore(db)

		if len(cfg.KafkaBrokers) > 0 {
			kafkaSink, err := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
			if err != nil {
				log.Error("kafka connection failed", "error", err)
				os.Exit(1)
			}
			defer kafkaSink.Close()
			relay = events.NewOutboxRelay(db, kafkaSink, log, 2*time.Second)
		}
	} else {
		log.Warn("no postgres configured, using in-memory stores")
		sessionStore = session.NewInMemory()
		ledgerStore = ledger.NewInMemory()
		operatorStore = sync.NewInMemoryOperatorStore()
	}

	// Replay guard. Redis when configured so the single-use nonce check
	// spans server replicas.
	var guard replay.Guard = replay.NewInMemory()
	redisClient, err := platformredis.New(config.RedisFromEnv())
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		guard = replay.NewRedis(redisClient.Client)
	}

	// Member directory.
	var directory member.Lookup
	if cfg.MemberDirectoryURL != "" {
		directory, err = member.NewHTTPDirectory(cfg.MemberDirectoryURL, nil)
		if err != nil {
			log.Error("member directory misconfigured", "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("no member directory configured, all members will be unknown")
		directory = member.NewInMemoryDirectory()
	}

	// In-process event stream alongside the durable outbox.
	publisher := events.NewPublisher(256)
	worker := events.NewWorker(publisher.Inbox(), log, events.NewLogSink(log))

	ledgerSvc, err := ledger.NewService(ledgerStore, sessionStore, log,
		ledger.WithPublisher(publisher),
		ledger.WithMetrics(ledgermetrics.New()),
	)
	if err != nil {
		log.Error("ledger service init failed", "error", err)
		os.Exit(1)
	}

	tokenSvc := token.New(cfg.TokenSecret, cfg.TokenTTL)
	attendSvc, err := attendance.NewService(tokenSvc, guard, directory, sessionStore, ledgerSvc, log)
	if err != nil {
		log.Error("attendance service init failed", "error", err)
		os.Exit(1)
	}
	analyticsSvc, err := analytics.NewService(ledgerSvc, directory)
	if err != nil {
		log.Error("analytics service init failed", "error", err)
		os.Exit(1)
	}

	router := httpapi.NewRouter(log, middleware.NewRateLimiter(marksPerStationPerMinute),
		token.NewHandler(tokenSvc, directory, log),
		attendance.NewHandler(attendSvc, ledgerSvc, log),
		analytics.NewHandler(analyticsSvc, log),
		sync.NewHandler(operatorStore, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return worker.Run(groupCtx) })
	if relay != nil {
		group.Go(func() error { return relay.Run(groupCtx) })
	}
	group.Go(func() error {
		log.Info("attendance server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
