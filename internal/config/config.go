package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/docledger/docledger/internal/resilience"
	"github.com/docledger/docledger/internal/storage"
	"github.com/docledger/docledger/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration. Every backing service is optional;
// an empty address selects the in-process implementation.
type Config struct {
	Server     ServerConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	MinIO      storage.MinIOConfig
	NATS       NATSConfig
	Keycloak   KeycloakConfig
	JWT        JWTConfig
	RateLimit  RateLimitConfig
	Resilience resilience.Config
	Lifecycle  LifecycleConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

func (r RedisConfig) Addr() string { return r.Host + ":" + r.Port }

type NATSConfig struct {
	URL           string
	SubjectPrefix string
	SweepSubject  string
	QueueGroup    string
}

type KeycloakConfig struct {
	URL      string
	Realm    string
	ClientID string
}

// Issuer returns the realm issuer URL, or URL itself when no realm is set.
func (k KeycloakConfig) Issuer() string {
	if k.Realm == "" {
		return k.URL
	}
	return trimSlash(k.URL) + "/realms/" + k.Realm
}

// JWTConfig configures HMAC service tokens.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
}

type RateLimitConfig struct {
	Enabled  bool
	UseRedis bool
	RPS      float64
	Burst    int
	Window   time.Duration
}

type LifecycleConfig struct {
	PolicyFile    string
	LockTTL       time.Duration
	SweepInterval time.Duration
	PresignTTL    time.Duration

	// WorkerMetricsAddr is where the purge worker serves /metrics; empty disables it.
	WorkerMetricsAddr string
}

// LoadConfig loads configuration from environment variables and an optional
// .env file (DOCLEDGER_ENV_FILE overrides its path).
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("DOCLEDGER_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5010")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("MONGODB_DATABASE", "docledger")
	v.SetDefault("MONGODB_TIMEOUT", "10s")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("MINIO_BUCKET", "documents")
	v.SetDefault("NATS_SUBJECT_PREFIX", "docledger.events")
	v.SetDefault("NATS_SWEEP_SUBJECT", "docledger.purge.sweep")
	v.SetDefault("NATS_QUEUE_GROUP", "docledger-workers")
	v.SetDefault("JWT_ISSUER", "docledger")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW", "1s")
	v.SetDefault("RETENTION_POLICY_FILE", "policies.yaml")
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("SWEEP_INTERVAL", "5m")
	v.SetDefault("PRESIGN_TTL", "15m")
	v.SetDefault("WORKER_METRICS_ADDR", ":9091")

	res := resilience.DefaultConfig()
	if v.IsSet("RESILIENCE_RETRY_MAX_ATTEMPTS") {
		res.RetryMaxAttempts = v.GetInt("RESILIENCE_RETRY_MAX_ATTEMPTS")
	}
	if v.IsSet("RESILIENCE_BREAKER_ENABLED") {
		res.BreakerEnabled = v.GetBool("RESILIENCE_BREAKER_ENABLED")
	}
	if v.IsSet("RESILIENCE_BREAKER_OPEN_TIMEOUT") {
		res.BreakerOpenTimeout = v.GetDuration("RESILIENCE_BREAKER_OPEN_TIMEOUT")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  v.GetDuration("SERVER_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("SERVER_WRITE_TIMEOUT"),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  v.GetDuration("MONGODB_TIMEOUT"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MinIO: storage.MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
			Region:    v.GetString("MINIO_REGION"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("NATS_URL"),
			SubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
			SweepSubject:  v.GetString("NATS_SWEEP_SUBJECT"),
			QueueGroup:    v.GetString("NATS_QUEUE_GROUP"),
		},
		Keycloak: KeycloakConfig{
			URL:      v.GetString("KEYCLOAK_URL"),
			Realm:    v.GetString("KEYCLOAK_REALM"),
			ClientID: v.GetString("KEYCLOAK_CLIENT_ID"),
		},
		JWT: JWTConfig{
			Secret:         os.Getenv("JWT_SECRET"),
			Issuer:         v.GetString("JWT_ISSUER"),
			AccessTokenTTL: v.GetDuration("JWT_ACCESS_TOKEN_TTL"),
		},
		RateLimit: RateLimitConfig{
			Enabled:  v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis: v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:      v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:    v.GetInt("RATE_LIMIT_BURST"),
			Window:   v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Resilience: res,
		Lifecycle: LifecycleConfig{
			PolicyFile:        v.GetString("RETENTION_POLICY_FILE"),
			LockTTL:           v.GetDuration("LOCK_TTL"),
			SweepInterval:     v.GetDuration("SWEEP_INTERVAL"),
			PresignTTL:        v.GetDuration("PRESIGN_TTL"),
			WorkerMetricsAddr: v.GetString("WORKER_METRICS_ADDR"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.JWT.Secret == "" && cfg.Keycloak.URL == "" {
		logger.Warn("neither JWT_SECRET nor KEYCLOAK_URL is set; the API will reject every request")
	}
	return cfg, nil
}

// Validate rejects settings that cannot work at runtime.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT is required"))
	}
	if c.MongoDB.URI != "" && c.MongoDB.Database == "" {
		errs = append(errs, errors.New("MONGODB_DATABASE is required with MONGODB_URI"))
	}
	if c.MinIO.Endpoint != "" && c.MinIO.Bucket == "" {
		errs = append(errs, errors.New("MINIO_BUCKET is required with MINIO_ENDPOINT"))
	}
	if c.JWT.Secret != "" && len(c.JWT.Secret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 0) {
		errs = append(errs, fmt.Errorf("invalid rate limit rps=%v burst=%d", c.RateLimit.RPS, c.RateLimit.Burst))
	}
	if c.Lifecycle.LockTTL <= 0 || c.Lifecycle.SweepInterval <= 0 || c.Lifecycle.PresignTTL <= 0 {
		errs = append(errs, errors.New("LOCK_TTL, SWEEP_INTERVAL and PRESIGN_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
