// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the auth HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health server (e.g. :9090).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty selects in-memory repositories (not allowed in production).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is the redis:// URL for pending login sessions. Empty selects the in-memory session store.
	RedisURL string `mapstructure:"REDIS_URL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// OTPTTLRaw is the one-time code lifetime (e.g. "60s").
	OTPTTLRaw string `mapstructure:"OTP_TTL"`
	// OTPMaxAttempts is the number of wrong codes allowed per OTP.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// SessionMaxAttempts is the number of verify calls allowed for a session without a live OTP.
	SessionMaxAttempts int `mapstructure:"SESSION_MAX_ATTEMPTS"`
	// SessionTTLRaw bounds how long a pending login session lives (e.g. "15m").
	SessionTTLRaw string `mapstructure:"SESSION_TTL"`
	// OTPSweepIntervalRaw is how often expired OTPs are invalidated (e.g. "5m").
	OTPSweepIntervalRaw string `mapstructure:"OTP_SWEEP_INTERVAL"`

	RefreshCookieName string `mapstructure:"REFRESH_COOKIE_NAME"`
	SessionCookieName string `mapstructure:"SESSION_COOKIE_NAME"`
	// CookieSecure sets the Secure attribute on the refresh and session cookies.
	CookieSecure bool `mapstructure:"COOKIE_SECURE"`

	// MailRelayURL is the HTTP mail relay endpoint. Empty logs codes through the log sender (development only).
	MailRelayURL    string `mapstructure:"MAIL_RELAY_URL"`
	MailRelayAPIKey string `mapstructure:"MAIL_RELAY_API_KEY"`
	MailFrom        string `mapstructure:"MAIL_FROM"`
	MailOTPSubject  string `mapstructure:"MAIL_OTP_SUBJECT"`

	// OTPReturnToClient when true enables dev OTP mode: the code is kept for GET /dev/otp. Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// RateLimitRPS and RateLimitBurst bound login and OTP requests per client IP.
	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
	// TrustedProxies is a comma-separated list of proxy IPs or CIDRs whose X-Forwarded-For is honoured.
	// Empty keys clients on the connection address only.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	// OTLPEndpoint enables trace, metric and log export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// AuthEventsKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	AuthEventsKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuthEventsKafkaTopic is the Kafka topic for auth events (default auth-events).
	AuthEventsKafkaTopic string `mapstructure:"AUTH_EVENTS_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the auth events worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the auth events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "otp-auth")
	v.SetDefault("JWT_AUDIENCE", "otp-auth-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("OTP_TTL", "60s")
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("SESSION_MAX_ATTEMPTS", 3)
	v.SetDefault("SESSION_TTL", "15m")
	v.SetDefault("OTP_SWEEP_INTERVAL", "5m")
	v.SetDefault("REFRESH_COOKIE_NAME", "refresh_token")
	v.SetDefault("SESSION_COOKIE_NAME", "auth_session")
	v.SetDefault("COOKIE_SECURE", true)
	v.SetDefault("MAIL_RELAY_URL", "")
	v.SetDefault("MAIL_RELAY_API_KEY", "")
	v.SetDefault("MAIL_FROM", "no-reply@chat4me.local")
	v.SetDefault("MAIL_OTP_SUBJECT", "Chat4Me - OTP code")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 10)
	v.SetDefault("TRUSTED_PROXIES", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_KAFKA_TOPIC", "auth-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "otp-auth-events-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPAddr == "" {
		return errors.New("config: HTTP_ADDR must be set")
	}
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}

	if c.IsProduction() {
		if c.OTPReturnToClient {
			return errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
		}
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when APP_ENV=production")
		}
		if c.JWTPrivateKey == "" || c.JWTPublicKey == "" {
			return errors.New("config: JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set when APP_ENV=production")
		}
		if c.MailRelayURL == "" {
			return errors.New("config: MAIL_RELAY_URL must be set when APP_ENV=production")
		}
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.OTPMaxAttempts < 1 {
		return errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}
	if c.SessionMaxAttempts < 1 {
		return errors.New("config: SESSION_MAX_ATTEMPTS must be at least 1")
	}
	if c.RefreshCookieName == "" || c.SessionCookieName == "" {
		return errors.New("config: REFRESH_COOKIE_NAME and SESSION_COOKIE_NAME must be set")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return durationOr(c.JWTRefreshTTL, 168*time.Hour)
}

// OTPTTL returns the one-time code lifetime. Returns 60s if unset or invalid.
func (c *Config) OTPTTL() time.Duration {
	return durationOr(c.OTPTTLRaw, 60*time.Second)
}

// SessionTTL returns the pending session lifetime. Returns 15m if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return durationOr(c.SessionTTLRaw, 15*time.Minute)
}

// OTPSweepInterval returns the OTP janitor interval. Returns 5m if unset or invalid.
func (c *Config) OTPSweepInterval() time.Duration {
	return durationOr(c.OTPSweepIntervalRaw, 5*time.Minute)
}

func durationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// AuthEventsKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event streaming is enabled (non-empty list) and to create the producer.
func (c *Config) AuthEventsKafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.AuthEventsKafkaBrokers)
}

// TrustedProxiesList returns the entries of TRUSTED_PROXIES.
func (c *Config) TrustedProxiesList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.TrustedProxies)
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
