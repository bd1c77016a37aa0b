package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for authgate.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
	Identity  IdentityConfig  `yaml:"identity"`
	Security  SecurityConfig  `yaml:"security"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
}

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DatabaseConfig selects the security record store backend.
type DatabaseConfig struct {
	Driver      string `yaml:"driver"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	DSN         string `yaml:"dsn"`
}

// MQTTConfig contains MQTT broker connection settings for security events.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	TopicPrefix string              `yaml:"topic_prefix"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// InfluxDBConfig contains InfluxDB connection settings for auth metrics.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// RedisConfig contains Redis connection settings. Redis backs the optional
// record cache and the distributed rate limiter.
type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// IdentityConfig controls identifier normalisation.
type IdentityConfig struct {
	// DefaultRegion is the ISO 3166 region used to parse phone numbers
	// given without an international prefix.
	DefaultRegion string `yaml:"default_region"`
}

// SecurityConfig contains authentication and authorisation settings.
type SecurityConfig struct {
	JWT         JWTConfig         `yaml:"jwt"`
	Lockout     LockoutConfig     `yaml:"lockout"`
	Password    PasswordConfig    `yaml:"password"`
	RecordCache RecordCacheConfig `yaml:"record_cache"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Routes      []RouteRule       `yaml:"routes"`
}

// JWTConfig contains bearer token settings.
type JWTConfig struct {
	// Secret is the base64-encoded HMAC key. Must decode to at least 32 bytes.
	Secret          string        `yaml:"secret"`
	Algorithm       string        `yaml:"algorithm"`
	Issuer          string        `yaml:"issuer"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// LockoutConfig contains brute-force lockout settings.
type LockoutConfig struct {
	Threshold int           `yaml:"threshold"`
	Duration  time.Duration `yaml:"duration"`
}

// PasswordConfig contains password hashing settings.
type PasswordConfig struct {
	Algorithm  string `yaml:"algorithm"`
	BcryptCost int    `yaml:"bcrypt_cost"`
	MinLength  int    `yaml:"min_length"`
}

// Record cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// RecordCacheConfig controls caching of the live security record read by the
// authentication gate. Any backend other than "none" delays revocation made
// by another process by up to TTL.
type RecordCacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
}

// RateLimitConfig contains rate limiting settings.
type RateLimitConfig struct {
	Enabled                bool   `yaml:"enabled"`
	RequestsPerMinute      int    `yaml:"requests_per_minute"`
	LoginAttemptsPerMinute int    `yaml:"login_attempts_per_minute"`
	Backend                string `yaml:"backend"`
}

// RouteRule maps a path pattern to the roles allowed to reach it.
// An empty role list makes the route public.
type RouteRule struct {
	Pattern string   `yaml:"pattern"`
	Roles   []string `yaml:"roles"`
}

// BootstrapConfig holds credentials for the first administrator account.
type BootstrapConfig struct {
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AUTHGATE_SECTION_KEY
// For example: AUTHGATE_DATABASE_PATH, AUTHGATE_JWT_SECRET
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// DefaultRoutes is the built-in route table: auth and health public,
// /api/admin ADMIN, /api/manager MANAGER and everything else USER.
func DefaultRoutes() []RouteRule {
	return []RouteRule{
		{Pattern: "/api/v1/health"},
		{Pattern: "/api/v1/auth/**"},
		{Pattern: "/api/admin/**", Roles: []string{"ADMIN"}},
		{Pattern: "/api/manager/**", Roles: []string{"ADMIN", "MANAGER"}},
		{Pattern: "/**", Roles: []string{"USER"}},
	}
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:      DriverSQLite,
			Path:        "./data/authgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "authgate",
			},
			QoS:         1,
			TopicPrefix: "authgate",
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "authgate:",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Identity: IdentityConfig{
			DefaultRegion: "VN",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				Algorithm:       "HS512",
				Issuer:          "authgate",
				AccessTokenTTL:  time.Hour,
				RefreshTokenTTL: 7 * 24 * time.Hour,
			},
			Lockout: LockoutConfig{
				Threshold: 5,
				Duration:  5 * time.Minute,
			},
			Password: PasswordConfig{
				Algorithm:  "argon2id",
				BcryptCost: 12,
				MinLength:  8,
			},
			RecordCache: RecordCacheConfig{
				Backend: CacheNone,
			},
			RateLimit: RateLimitConfig{
				Enabled:                true,
				RequestsPerMinute:      100,
				LoginAttemptsPerMinute: 10,
				Backend:                CacheMemory,
			},
			Routes: DefaultRoutes(),
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: AUTHGATE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("AUTHGATE_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("AUTHGATE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("AUTHGATE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}

	// API
	if v := os.Getenv("AUTHGATE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("AUTHGATE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// MQTT
	if v := os.Getenv("AUTHGATE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("AUTHGATE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("AUTHGATE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("AUTHGATE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Redis
	if v := os.Getenv("AUTHGATE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("AUTHGATE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// Security - JWT secret (always override in production)
	if v := os.Getenv("AUTHGATE_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}

	// Bootstrap admin
	if v := os.Getenv("AUTHGATE_BOOTSTRAP_ADMIN_EMAIL"); v != "" {
		cfg.Bootstrap.AdminEmail = v
	}
	if v := os.Getenv("AUTHGATE_BOOTSTRAP_ADMIN_PASSWORD"); v != "" {
		cfg.Bootstrap.AdminPassword = v
	}
}

// MinSigningKeyBytes is the minimum decoded length of the JWT signing key (256 bits).
const MinSigningKeyBytes = 32

// DecodeSigningKey decodes a base64 JWT secret. Standard and URL alphabets,
// padded or not, are accepted.
func DecodeSigningKey(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("signing key is empty")
	}

	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	for _, enc := range encodings {
		if key, err := enc.DecodeString(secret); err == nil {
			return key, nil
		}
	}
	return nil, fmt.Errorf("signing key is not valid base64")
}

// Validate checks the configuration for errors and security issues.
// Every problem is reported, not only the first.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, "database.dsn is required for the postgres driver (set AUTHGATE_DATABASE_DSN)")
		}
	default:
		errs = append(errs, fmt.Sprintf("database.driver must be %q or %q", DriverSQLite, DriverPostgres))
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}

	errs = append(errs, c.Security.validate(c.Redis.Enabled)...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validate checks the security section. A missing or short signing key is
// fatal here so it can never surface as a per-request failure.
func (s *SecurityConfig) validate(redisEnabled bool) []string {
	var errs []string

	if s.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set AUTHGATE_JWT_SECRET environment variable)")
	} else if key, err := DecodeSigningKey(s.JWT.Secret); err != nil {
		errs = append(errs, "security.jwt.secret: "+err.Error())
	} else if len(key) < MinSigningKeyBytes {
		errs = append(errs, fmt.Sprintf("security.jwt.secret must decode to at least %d bytes (256 bits)", MinSigningKeyBytes))
	}

	switch s.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		errs = append(errs, "security.jwt.algorithm must be HS256, HS384 or HS512")
	}
	if s.JWT.AccessTokenTTL <= 0 {
		errs = append(errs, "security.jwt.access_token_ttl must be positive")
	}
	if s.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, "security.jwt.refresh_token_ttl must be positive")
	}

	if s.Lockout.Threshold < 1 {
		errs = append(errs, "security.lockout.threshold must be at least 1")
	}
	if s.Lockout.Duration <= 0 {
		errs = append(errs, "security.lockout.duration must be positive")
	}

	switch s.Password.Algorithm {
	case "argon2id", "bcrypt":
	default:
		errs = append(errs, "security.password.algorithm must be argon2id or bcrypt")
	}
	if s.Password.Algorithm == "bcrypt" && (s.Password.BcryptCost < 4 || s.Password.BcryptCost > 31) {
		errs = append(errs, "security.password.bcrypt_cost must be between 4 and 31")
	}
	if s.Password.MinLength < 1 {
		errs = append(errs, "security.password.min_length must be at least 1")
	}

	switch s.RecordCache.Backend {
	case CacheNone, "":
	case CacheMemory, CacheRedis:
		if s.RecordCache.TTL <= 0 {
			errs = append(errs, "security.record_cache.ttl must be positive when a cache backend is set")
		}
		if s.RecordCache.Backend == CacheRedis && !redisEnabled {
			errs = append(errs, "security.record_cache.backend redis requires redis.enabled")
		}
	default:
		errs = append(errs, "security.record_cache.backend must be none, memory or redis")
	}

	if s.RateLimit.Enabled {
		if s.RateLimit.RequestsPerMinute < 1 || s.RateLimit.LoginAttemptsPerMinute < 1 {
			errs = append(errs, "security.rate_limit limits must be positive when enabled")
		}
		switch s.RateLimit.Backend {
		case CacheMemory:
		case CacheRedis:
			if !redisEnabled {
				errs = append(errs, "security.rate_limit.backend redis requires redis.enabled")
			}
		default:
			errs = append(errs, "security.rate_limit.backend must be memory or redis")
		}
	}

	for i, r := range s.Routes {
		if !strings.HasPrefix(r.Pattern, "/") {
			errs = append(errs, fmt.Sprintf("security.routes[%d].pattern must start with /", i))
		}
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
