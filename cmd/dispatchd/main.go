// Command dispatchd wires the outbox, saga, and audit components into a
// single long-running process: it owns the Postgres connection, the
// background drain/timeout/retention loops, and the health/metrics HTTP
// surface. Concrete transport adapters beyond the in-process bus are an
// out-of-scope collaborator this binary does not provide.
package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"

	"github.com/trigintafaces/excalibur-dispatch/internal/audit"
	"github.com/trigintafaces/excalibur-dispatch/internal/config"
	"github.com/trigintafaces/excalibur-dispatch/internal/dispatcher"
	"github.com/trigintafaces/excalibur-dispatch/internal/health"
	"github.com/trigintafaces/excalibur-dispatch/internal/idempotency"
	"github.com/trigintafaces/excalibur-dispatch/internal/logging"
	"github.com/trigintafaces/excalibur-dispatch/internal/metrics"
	"github.com/trigintafaces/excalibur-dispatch/internal/outbox"
	"github.com/trigintafaces/excalibur-dispatch/internal/platform/cache"
	"github.com/trigintafaces/excalibur-dispatch/internal/platform/database"
	"github.com/trigintafaces/excalibur-dispatch/internal/platform/migrations"
	"github.com/trigintafaces/excalibur-dispatch/internal/saga"
	"github.com/trigintafaces/excalibur-dispatch/internal/sagastate"
	"github.com/trigintafaces/excalibur-dispatch/internal/sagatimeout"
	"github.com/trigintafaces/excalibur-dispatch/internal/security"
	"github.com/trigintafaces/excalibur-dispatch/internal/serializer"
	"github.com/trigintafaces/excalibur-dispatch/internal/transport"
)

const serviceName = "dispatchd"

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)
	metrics.Init(serviceName)
	startTime := time.Now()

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	db, err := database.Open(rootCtx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxConnections)
	db.SetConnMaxIdleTime(cfg.DBIdleTimeout)

	if err := migrations.Apply(db); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer redisClient.Close()

	ser := serializer.NewJSON()
	bus := dispatcher.New()
	registry := transport.NewRegistry()
	registry.Register("in-process", "In-Process Bus", transport.NewInProcess(bus))

	outboxStore := outbox.NewPostgres(db)
	publisher := outbox.New(outboxStore, bus, registry, ser, outbox.Options{BatchSize: cfg.OutboxBatchSize})
	outboxLoop := outbox.NewBackgroundLoop(publisher, outbox.ProcessingOptions{
		PollingInterval:          cfg.OutboxPollInterval,
		MaxRetries:               cfg.OutboxMaxRetries,
		ProcessScheduledMessages: true,
		RetryFailedMessages:      true,
		Enabled:                  false, // driven by cron below, not its own ticker
	}, logger)

	rawStateStore := sagastate.NewPostgres(db)
	cacheOpts := sagastate.CacheOptions{
		EnableCaching:      true,
		UseLocalCache:      cfg.SagaCacheUseLocal,
		ActiveSagaCacheTTL: 30 * time.Second,
		DefaultCacheTTL:    5 * time.Minute,
	}
	var stateStore *sagastate.CachedStore
	if cacheOpts.UseLocalCache {
		stateStore = sagastate.NewCachedStore(rawStateStore, sagastate.NewLocalCache(cache.DefaultConfig()), cacheOpts)
	} else {
		stateStore = sagastate.NewCachedStore(rawStateStore, sagastate.NewRedisCache(redisClient), cacheOpts)
	}
	timeoutStore := sagatimeout.NewPostgres(db)
	idemProvider := idempotency.NewRedis(redisClient, 7*24*time.Hour)

	coordinator := saga.New(stateStore, timeoutStore, idemProvider, publisher)
	timeoutLoop := saga.NewTimeoutDeliveryLoop(timeoutStore, bus, ser, saga.TimeoutDeliveryOptions{
		PollInterval: cfg.SagaTimeoutPollInterval,
		BatchSize:    cfg.SagaTimeoutBatchSize,
	}, logger)

	rawAuditStore := audit.NewPostgres(db)

	alertEngine := audit.NewAlertEngine(nil, audit.Options{MaxAlertsPerMinute: cfg.AuditMaxAlertsPerMin})
	restrictedReadRule, err := audit.JSONPathRule(
		"restricted-data-access",
		`$.ResourceClassification == "Restricted"`,
		audit.SeverityWarning,
		"security-team",
	)
	if err != nil {
		log.Fatalf("build restricted-read alert rule: %v", err)
	}
	if err := alertEngine.RegisterRule(restrictedReadRule); err != nil {
		log.Fatalf("register restricted-read alert rule: %v", err)
	}
	repeatedDenialRule, err := audit.ScriptRule(
		"authorization-denied",
		`event.EventType === "Authorization" && event.Outcome === "Denied"`,
		audit.SeverityCritical,
		"security-team",
	)
	if err != nil {
		log.Fatalf("build authorization-denied alert rule: %v", err)
	}
	if err := alertEngine.RegisterRule(repeatedDenialRule); err != nil {
		log.Fatalf("register authorization-denied alert rule: %v", err)
	}

	// Every append runs through alertEngine in real time; reads are
	// role-gated and meta-audited back through the same store.
	auditStore := audit.NewAlertingStore(rawAuditStore, alertEngine)
	roleProvider := security.NewJWTRoleProvider(cfg.JWTSecret)
	actorProvider := security.NewJWTActorProvider(cfg.JWTSecret)
	guardedAuditReads := audit.NewRbacAuditReadGuard(auditStore, roleProvider, actorProvider, rawAuditStore, audit.RoleViewer)

	retentionSweep := audit.NewRetentionSweep(rawAuditStore, nil, audit.RetentionOptions{
		RetentionPeriod: cfg.AuditRetentionPeriod,
		CleanupInterval: cfg.AuditCleanupInterval,
		BatchSize:       cfg.AuditRetentionBatch,
	}, nil)

	// guardedAuditReads is the collaborator an audit-read HTTP/CLI front-end
	// would call through; wiring that front-end is out of this binary's scope.
	_ = guardedAuditReads

	sagaProbe := health.NewSagaHealthProbe(coordinator, health.DefaultSagaHealthThresholds())
	heartbeats := health.NewHeartbeatRegistry(health.DefaultHeartbeatThresholds())
	healthServer := health.NewServer(serviceName, version, sagaProbe, heartbeats)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 2s", func() {
		outboxLoop.RunOnce(rootCtx)
		heartbeats.Beat("outbox")
	}); err != nil {
		log.Fatalf("schedule outbox job: %v", err)
	}
	if _, err := scheduler.AddFunc("@daily", func() {
		if _, err := retentionSweep.RunOnce(rootCtx); err != nil {
			logger.Error(rootCtx, "audit retention sweep failed", err, nil)
		}
		heartbeats.Beat("audit-retention")
	}); err != nil {
		log.Fatalf("schedule retention job: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	go timeoutLoop.Run(rootCtx)
	go reportServiceMetrics(rootCtx, db, startTime)

	httpSrv := &http.Server{
		Addr:    addrFor(cfg.HTTPPort),
		Handler: healthServer.Router(),
	}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("health server: %v", err)
		}
	}()
	log.Printf("%s listening on %s", serviceName, httpSrv.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	cancelRoot()
	timeoutLoop.Stop()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("health server shutdown: %v", err)
	}
}

// reportServiceMetrics periodically updates the uptime gauge and the open
// connection count until ctx is cancelled.
func reportServiceMetrics(ctx context.Context, db *sql.DB, startTime time.Time) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		metrics.Global().UpdateUptime(startTime)
		metrics.Global().SetDatabaseConnections(db.Stats().OpenConnections)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func addrFor(port int) string {
	if port <= 0 {
		port = 8080
	}
	return ":" + strconv.Itoa(port)
}
