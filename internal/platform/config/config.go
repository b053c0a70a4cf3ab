// Package config loads process configuration from the environment.
//
// Every key is read from ONBOARDING_<SECTION>_<KEY> (for example
// ONBOARDING_POSTGRES_URL). An optional .env file is loaded first; real
// environment variables win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "ONBOARDING"

// Notifier backends.
const (
	NotifierLog   = "log"
	NotifierKafka = "kafka"
	NotifierAMQP  = "amqp"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	AdminToken    string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	TokenTTL      time.Duration
	LogLevel      string
	LogFormat     string

	// TrustedProxies lists CIDRs or addresses whose X-Forwarded-For and
	// X-Real-IP headers are believed. Empty means the peer address is used.
	TrustedProxies []string
}

type Postgres struct {
	URL           string
	RunMigrations bool
	MaxOpenConns  int
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// KeyPrefix namespaces metadata keys.
	KeyPrefix string
}

type Notifier struct {
	Backend      string
	Brokers      []string
	Topic        string
	AMQPURL      string
	AMQPExchange string
	// Breaker settings for the welcome notification sender.
	FailureThreshold int
	Cooldown         time.Duration
}

type Registration struct {
	AuthTimeout           time.Duration
	NotifyTimeout         time.Duration
	RollbackActionTimeout time.Duration
	IdentityAdminEnabled  bool
	SignupsEnabled        bool
	// RateLimit is the number of registration attempts allowed per client IP
	// within RateWindow. Zero disables the limit.
	RateLimit  int
	RateWindow time.Duration
}

type Config struct {
	Server       Server
	Postgres     Postgres
	Redis        RedisConfig
	Notifier     Notifier
	Registration Registration
}

var defaults = map[string]any{
	"server.addr":                          ":8080",
	"server.jwt_signing_key":               "dev-secret-key-change-in-production",
	"server.jwt_issuer":                    "onboarding",
	"server.jwt_audience":                  "onboarding-api",
	"server.token_ttl":                     "1h",
	"server.log_level":                     "info",
	"server.log_format":                    "json",
	"postgres.run_migrations":              true,
	"postgres.max_open_conns":              20,
	"redis.pool_size":                      10,
	"redis.min_idle_conns":                 2,
	"redis.dial_timeout":                   "5s",
	"redis.read_timeout":                   "3s",
	"redis.write_timeout":                  "3s",
	"redis.key_prefix":                     "onboarding",
	"notifier.backend":                     NotifierLog,
	"notifier.topic":                       "onboarding.welcome",
	"notifier.amqp_exchange":               "onboarding.events",
	"notifier.failure_threshold":           5,
	"notifier.cooldown":                    "30s",
	"registration.auth_timeout":            "15s",
	"registration.notify_timeout":          "10s",
	"registration.rollback_action_timeout": "10s",
	"registration.identity_admin_enabled":  false,
	"registration.signups_enabled":         true,
	"registration.rate_limit":              10,
	"registration.rate_window":             "1h",
}

// Load reads an optional dotenv file and the environment. A missing dotenv
// file is not an error; pass "" to skip it.
func Load(dotenvPath string) (Config, error) {
	if dotenvPath != "" {
		if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", dotenvPath, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	// Keys without a default are only seen by AutomaticEnv once bound.
	for _, key := range []string{"server.admin_token", "server.trusted_proxies", "postgres.url", "redis.url", "notifier.brokers", "notifier.amqp_url"} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	cfg := Config{
		Server: Server{
			Addr:           v.GetString("server.addr"),
			AdminToken:     v.GetString("server.admin_token"),
			JWTSigningKey:  v.GetString("server.jwt_signing_key"),
			JWTIssuer:      v.GetString("server.jwt_issuer"),
			JWTAudience:    v.GetString("server.jwt_audience"),
			TokenTTL:       v.GetDuration("server.token_ttl"),
			LogLevel:       v.GetString("server.log_level"),
			LogFormat:      v.GetString("server.log_format"),
			TrustedProxies: splitList(v.GetString("server.trusted_proxies")),
		},
		Postgres: Postgres{
			URL:           v.GetString("postgres.url"),
			RunMigrations: v.GetBool("postgres.run_migrations"),
			MaxOpenConns:  v.GetInt("postgres.max_open_conns"),
		},
		Redis: RedisConfig{
			URL:          v.GetString("redis.url"),
			PoolSize:     v.GetInt("redis.pool_size"),
			MinIdleConns: v.GetInt("redis.min_idle_conns"),
			DialTimeout:  v.GetDuration("redis.dial_timeout"),
			ReadTimeout:  v.GetDuration("redis.read_timeout"),
			WriteTimeout: v.GetDuration("redis.write_timeout"),
			KeyPrefix:    v.GetString("redis.key_prefix"),
		},
		Notifier: Notifier{
			Backend:          strings.ToLower(v.GetString("notifier.backend")),
			Brokers:          splitList(v.GetString("notifier.brokers")),
			Topic:            v.GetString("notifier.topic"),
			AMQPURL:          v.GetString("notifier.amqp_url"),
			AMQPExchange:     v.GetString("notifier.amqp_exchange"),
			FailureThreshold: v.GetInt("notifier.failure_threshold"),
			Cooldown:         v.GetDuration("notifier.cooldown"),
		},
		Registration: Registration{
			AuthTimeout:           v.GetDuration("registration.auth_timeout"),
			NotifyTimeout:         v.GetDuration("registration.notify_timeout"),
			RollbackActionTimeout: v.GetDuration("registration.rollback_action_timeout"),
			IdentityAdminEnabled:  v.GetBool("registration.identity_admin_enabled"),
			SignupsEnabled:        v.GetBool("registration.signups_enabled"),
			RateLimit:             v.GetInt("registration.rate_limit"),
			RateWindow:            v.GetDuration("registration.rate_window"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks cross-field requirements.
func (c Config) Validate() error {
	var errs []error
	if c.Registration.AuthTimeout <= 0 {
		errs = append(errs, errors.New("registration auth timeout must be positive"))
	}
	if c.Registration.RateLimit > 0 && c.Registration.RateWindow <= 0 {
		errs = append(errs, errors.New("registration rate window must be positive when a rate limit is set"))
	}
	switch c.Notifier.Backend {
	case NotifierLog:
	case NotifierKafka:
		if len(c.Notifier.Brokers) == 0 {
			errs = append(errs, errors.New("kafka notifier requires brokers"))
		}
	case NotifierAMQP:
		if c.Notifier.AMQPURL == "" {
			errs = append(errs, errors.New("amqp notifier requires an amqp url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notifier backend %q", c.Notifier.Backend))
	}
	return errors.Join(errs...)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
