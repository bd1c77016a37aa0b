// authgate - stateless bearer-token authentication service.
//
// authgate issues signed access and refresh tokens, checks every request
// against the live security record (role, enabled flag, lock, token
// version) and enforces a role policy per route. Account state lives in
// SQLite or PostgreSQL; Redis, MQTT and InfluxDB are optional.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/authgate/migrations"

	"github.com/nerrad567/authgate/internal/api"
	"github.com/nerrad567/authgate/internal/audit"
	"github.com/nerrad567/authgate/internal/auth"
	"github.com/nerrad567/authgate/internal/infrastructure/config"
	"github.com/nerrad567/authgate/internal/infrastructure/database"
	"github.com/nerrad567/authgate/internal/infrastructure/influxdb"
	"github.com/nerrad567/authgate/internal/infrastructure/logging"
	"github.com/nerrad567/authgate/internal/infrastructure/mqtt"
	"github.com/nerrad567/authgate/internal/infrastructure/redis"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/authgate.yaml"

// auditDrainTimeout bounds how long shutdown waits for queued events.
const auditDrainTimeout = 5 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting authgate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	db, err := database.Open(database.Config{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
		DSN:         cfg.Database.DSN,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "driver", db.Driver())

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	checks := map[string]api.HealthCheckFunc{"database": db.HealthCheck}

	// Optional infrastructure.
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.Connect(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to Redis: %w", err)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := rdb.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()
		checks["redis"] = rdb.HealthCheck
		log.Info("Redis connected", "addr", cfg.Redis.Addr)
	}

	var recorderOpts []audit.RecorderOption
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		checks["mqtt"] = mqttClient.HealthCheck
		recorderOpts = append(recorderOpts, audit.WithPublisher(mqttClient))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic_prefix", mqttClient.Topics().Prefix(),
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		checks["influxdb"] = influxClient.HealthCheck
		recorderOpts = append(recorderOpts, audit.WithMetrics(influxClient))
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Security events.
	auditRepo := audit.NewSQLRepository(db.DB, db.Placeholder())
	recorder := audit.NewRecorder(auditRepo, append(recorderOpts, audit.WithLogger(log.Logger))...)
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), auditDrainTimeout)
		defer cancel()
		if closeErr := recorder.Close(drainCtx); closeErr != nil {
			log.Warn("audit events not flushed", "error", closeErr, "dropped", recorder.Dropped())
		}
	}()

	c, err := buildComponents(cfg, db, rdb, recorder, log)
	if err != nil {
		return err
	}

	if _, seedErr := auth.SeedAdmin(ctx, c.store, c.hasher,
		cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword, log.Logger); seedErr != nil {
		return fmt.Errorf("bootstrapping admin: %w", seedErr)
	}

	server, err := api.New(api.Deps{
		Config:         cfg.API,
		Logger:         log,
		Service:        c.service,
		Gate:           c.gate,
		Policy:         c.policy,
		RequestLimiter: c.requestLimiter,
		Audit:          auditRepo,
		HealthChecks:   checks,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse: API server, audit recorder, InfluxDB,
	// MQTT, Redis, database.
	return nil
}

// components is everything the API server needs from the auth package.
type components struct {
	store          auth.RecordStore
	hasher         *auth.PasswordHasher
	service        *auth.Service
	gate           *auth.Gate
	policy         *auth.Policy
	requestLimiter auth.Limiter
}

// buildComponents wires the auth package from configuration.
// rdb is nil when Redis is disabled.
func buildComponents(cfg *config.Config, db *database.DB, rdb *redis.Client, events auth.EventSink, log *logging.Logger) (*components, error) {
	sec := cfg.Security

	store := auth.NewSQLRecordRepository(db.DB, db.Placeholder())

	hasher, err := auth.NewPasswordHasher(sec.Password.Algorithm, sec.Password.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}

	key, err := config.DecodeSigningKey(sec.JWT.Secret)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	tokens, err := auth.NewTokenEngine(auth.TokenConfig{
		Algorithm:  sec.JWT.Algorithm,
		Key:        key,
		Issuer:     sec.JWT.Issuer,
		AccessTTL:  sec.JWT.AccessTokenTTL,
		RefreshTTL: sec.JWT.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("token engine: %w", err)
	}

	guard := auth.NewGuard(store, hasher,
		auth.LockoutPolicy{Threshold: sec.Lockout.Threshold, Duration: sec.Lockout.Duration},
		auth.WithGuardEvents(events),
		auth.WithGuardLogger(log.Logger),
	)

	policy, err := api.PolicyFromConfig(sec.Routes)
	if err != nil {
		return nil, fmt.Errorf("route policy: %w", err)
	}

	cache, err := buildRecordCache(sec.RecordCache, rdb, log)
	if err != nil {
		return nil, err
	}

	deps := auth.ServiceDeps{
		Store:             store,
		Hasher:            hasher,
		Guard:             guard,
		Tokens:            tokens,
		Normalizer:        auth.NewIdentifierNormalizer(cfg.Identity.DefaultRegion),
		Events:            events,
		Logger:            log.Logger,
		MinPasswordLength: sec.Password.MinLength,
	}

	var reader auth.RecordReader = store
	if cache != nil {
		cached := auth.NewCachedRecordReader(store, cache)
		reader = cached
		deps.Cache = cached
	}

	c := &components{
		store:  store,
		hasher: hasher,
		gate:   auth.NewGate(tokens, reader),
		policy: policy,
	}

	if sec.RateLimit.Enabled {
		deps.LoginLimiter, err = buildLimiter(sec.RateLimit.Backend, sec.RateLimit.LoginAttemptsPerMinute, rdb)
		if err != nil {
			return nil, err
		}
		c.requestLimiter, err = buildLimiter(sec.RateLimit.Backend, sec.RateLimit.RequestsPerMinute, rdb)
		if err != nil {
			return nil, err
		}
	}

	c.service = auth.NewService(deps)
	return c, nil
}

// buildRecordCache returns nil when caching is off.
func buildRecordCache(cfg config.RecordCacheConfig, rdb *redis.Client, log *logging.Logger) (auth.RecordCache, error) {
	switch cfg.Backend {
	case "", config.CacheNone:
		return nil, nil
	case config.CacheMemory:
		log.Warn("record cache enabled; revocations by other instances apply after the cache TTL",
			"backend", cfg.Backend, "ttl", cfg.TTL)
		return auth.NewMemoryRecordCache(cfg.TTL), nil
	case config.CacheRedis:
		if rdb == nil {
			return nil, errors.New("record cache backend redis requires redis.enabled")
		}
		log.Info("record cache enabled", "backend", cfg.Backend, "ttl", cfg.TTL)
		return auth.NewRedisRecordCache(rdb.Client, rdb.KeyPrefix(), cfg.TTL, log.Logger), nil
	default:
		return nil, fmt.Errorf("unknown record cache backend %q", cfg.Backend)
	}
}

// buildLimiter allows limit hits per key per minute.
func buildLimiter(backend string, limit int, rdb *redis.Client) (auth.Limiter, error) {
	if limit <= 0 {
		return auth.NoLimit{}, nil
	}
	switch backend {
	case "", config.CacheMemory:
		return auth.NewMemoryLimiter(limit, time.Minute), nil
	case config.CacheRedis:
		if rdb == nil {
			return nil, errors.New("rate limit backend redis requires redis.enabled")
		}
		return auth.NewRedisLimiter(rdb.Client, rdb.KeyPrefix(), limit, time.Minute), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", backend)
	}
}

// getConfigPath returns the configuration file path.
// Uses AUTHGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("AUTHGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
