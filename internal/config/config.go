// AngelaMos | 2026
// config.go

package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

type Config struct {
	App        AppConfig        `koanf:"app"`
	Server     ServerConfig     `koanf:"server"`
	Database   DatabaseConfig   `koanf:"database"`
	Redis      RedisConfig      `koanf:"redis"`
	JWT        JWTConfig        `koanf:"jwt"`
	RateLimit  RateLimitConfig  `koanf:"rate_limit"`
	CORS       CORSConfig       `koanf:"cors"`
	Log        LogConfig        `koanf:"log"`
	Otel       OtelConfig       `koanf:"otel"`
	Call       CallConfig       `koanf:"call"`
	Channel    ChannelConfig    `koanf:"channel"`
	Payment    PaymentConfig    `koanf:"payment"`
	AMQP       AMQPConfig       `koanf:"amqp"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

type AppConfig struct {
	Name        string `koanf:"name"`
	Version     string `koanf:"version"`
	Environment string `koanf:"environment"`
}

type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `koanf:"conn_max_idle_time"`
}

type RedisConfig struct {
	URL          string `koanf:"url"`
	PoolSize     int    `koanf:"pool_size"`
	MinIdleConns int    `koanf:"min_idle_conns"`
}

type JWTConfig struct {
	PrivateKeyPath     string        `koanf:"private_key_path"`
	PublicKeyPath      string        `koanf:"public_key_path"`
	AccessTokenExpire  time.Duration `koanf:"access_token_expire"`
	RefreshTokenExpire time.Duration `koanf:"refresh_token_expire"`
	Issuer             string        `koanf:"issuer"`
	Audience           string        `koanf:"audience"`
}

type RateLimitConfig struct {
	Requests             int           `koanf:"requests"`
	Window               time.Duration `koanf:"window"`
	Burst                int           `koanf:"burst"`
	CallInitiateRequests int           `koanf:"call_initiate_requests"`
	CallInitiateBurst    int           `koanf:"call_initiate_burst"`
}

type CORSConfig struct {
	AllowedOrigins   []string `koanf:"allowed_origins"`
	AllowedMethods   []string `koanf:"allowed_methods"`
	AllowedHeaders   []string `koanf:"allowed_headers"`
	AllowCredentials bool     `koanf:"allow_credentials"`
	MaxAge           int      `koanf:"max_age"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type OtelConfig struct {
	Endpoint    string  `koanf:"endpoint"`
	ServiceName string  `koanf:"service_name"`
	Enabled     bool    `koanf:"enabled"`
	Insecure    bool    `koanf:"insecure"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// CallConfig holds the business constants of the call lifecycle.
type CallConfig struct {
	WaitTimeout          time.Duration `koanf:"wait_timeout"`
	Duration             time.Duration `koanf:"duration"`
	EarlyLeaveWindow     time.Duration `koanf:"early_leave_window"`
	MaxPendingPerWhisper int           `koanf:"max_pending_per_whisper"`
	WhisperRate          string        `koanf:"whisper_rate"`
	PayoutDelay          time.Duration `koanf:"payout_delay"`
	HeartbeatTTL         time.Duration `koanf:"heartbeat_ttl"`
	MaxCommentLength     int           `koanf:"max_comment_length"`
}

type ChannelConfig struct {
	AppID          string        `koanf:"app_id"`
	AppCertificate string        `koanf:"app_certificate"`
	TokenTTL       time.Duration `koanf:"token_ttl"`
	PingInterval   time.Duration `koanf:"ping_interval"`
	AllowedOrigins []string      `koanf:"allowed_origins"`
}

type PaymentConfig struct {
	CheckoutURL   string `koanf:"checkout_url"`
	ReturnURL     string `koanf:"return_url"`
	WebhookSecret string `koanf:"webhook_secret"`
	Currency      string `koanf:"currency"`
	CoinPrice     string `koanf:"coin_price"`
}

type AMQPConfig struct {
	Enabled  bool   `koanf:"enabled"`
	URL      string `koanf:"url"`
	Exchange string `koanf:"exchange"`
}

type SupervisorConfig struct {
	SweepInterval time.Duration `koanf:"sweep_interval"`
	LockTTL       time.Duration `koanf:"lock_ttl"`
	BatchSize     int           `koanf:"batch_size"`
}

var (
	cfg  *Config
	once sync.Once
)

func Load(configPath string) (*Config, error) {
	var loadErr error

	once.Do(func() {
		k := koanf.New(".")

		if err := loadDefaults(k); err != nil {
			loadErr = fmt.Errorf("load defaults: %w", err)
			return
		}

		if configPath != "" {
			if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
				loadErr = fmt.Errorf("load config file: %w", err)
				return
			}
		}

		if err := k.Load(env.Provider("", ".", envKeyReplacer), nil); err != nil {
			loadErr = fmt.Errorf("load env vars: %w", err)
			return
		}

		loaded := &Config{}
		if err := k.Unmarshal("", loaded); err != nil {
			loadErr = fmt.Errorf("unmarshal config: %w", err)
			return
		}

		if err := validate(loaded); err != nil {
			loadErr = fmt.Errorf("validate config: %w", err)
			return
		}

		cfg = loaded
	})

	if loadErr != nil {
		return nil, loadErr
	}

	return cfg, nil
}

func loadDefaults(k *koanf.Koanf) error {
	for key, value := range Defaults() {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// Defaults returns the baseline configuration values keyed by koanf path.
func Defaults() map[string]any {
	return map[string]any{
		"app.name":        "Whisper+Me API",
		"app.version":     "1.0.0",
		"app.environment": "development",

		"server.host":             "0.0.0.0",
		"server.port":             8080,
		"server.read_timeout":     "30s",
		"server.write_timeout":    "30s",
		"server.idle_timeout":     "120s",
		"server.shutdown_timeout": "15s",

		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  "1h",
		"database.conn_max_idle_time": "30m",

		"redis.pool_size":      10,
		"redis.min_idle_conns": 5,

		"jwt.access_token_expire":  "15m",
		"jwt.refresh_token_expire": "168h",
		"jwt.issuer":               "whisper-api",
		"jwt.audience":             "whisper-web",
		"jwt.private_key_path":     "keys/private.pem",
		"jwt.public_key_path":      "keys/public.pem",

		"rate_limit.requests": 120,
		"rate_limit.window":   "1m",
		"rate_limit.burst":    30,

		"rate_limit.call_initiate_requests": 10,
		"rate_limit.call_initiate_burst":    3,

		"cors.allowed_origins": []string{"http://localhost:3000"},
		"cors.allowed_methods": []string{
			"GET",
			"POST",
			"PUT",
			"DELETE",
			"OPTIONS",
		},
		"cors.allowed_headers": []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		"cors.allow_credentials": true,
		"cors.max_age":           300,

		"log.level":  "info",
		"log.format": "json",

		"otel.enabled":      false,
		"otel.insecure":     true,
		"otel.sample_rate":  0.1,
		"otel.service_name": "whisper-api",

		"call.wait_timeout":            "2m",
		"call.duration":                "300s",
		"call.early_leave_window":      "60s",
		"call.max_pending_per_whisper": 5,
		"call.whisper_rate":            "0.70",
		"call.payout_delay":            "72h",
		"call.heartbeat_ttl":           "30s",
		"call.max_comment_length":      500,

		"channel.app_id":        "whisper-dev",
		"channel.token_ttl":     "10m",
		"channel.ping_interval": "10s",

		"payment.checkout_url": "https://checkout.example.com/pay",
		"payment.return_url":   "http://localhost:3000/dashboard",
		"payment.currency":     "USD",
		"payment.coin_price":   "0.99",

		"amqp.enabled":  false,
		"amqp.exchange": "whisper.calls",

		"supervisor.sweep_interval": "15s",
		"supervisor.lock_ttl":       "10s",
		"supervisor.batch_size":     100,
	}
}

var envKeyMap = map[string]string{
	"DATABASE_URL":                "database.url",
	"REDIS_URL":                   "redis.url",
	"ENVIRONMENT":                 "app.environment",
	"HOST":                        "server.host",
	"PORT":                        "server.port",
	"LOG_LEVEL":                   "log.level",
	"LOG_FORMAT":                  "log.format",
	"JWT_PRIVATE_KEY_PATH":        "jwt.private_key_path",
	"JWT_PUBLIC_KEY_PATH":         "jwt.public_key_path",
	"JWT_ACCESS_TOKEN_EXPIRE":     "jwt.access_token_expire",
	"JWT_REFRESH_TOKEN_EXPIRE":    "jwt.refresh_token_expire",
	"JWT_ISSUER":                  "jwt.issuer",
	"JWT_AUDIENCE":                "jwt.audience",
	"RATE_LIMIT_REQUESTS":         "rate_limit.requests",
	"RATE_LIMIT_WINDOW":           "rate_limit.window",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
	"RATE_LIMIT_CALL_REQUESTS":    "rate_limit.call_initiate_requests",
	"RATE_LIMIT_CALL_BURST":       "rate_limit.call_initiate_burst",
	"OTEL_ENDPOINT":               "otel.endpoint",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel.endpoint",
	"OTEL_SERVICE_NAME":           "otel.service_name",
	"OTEL_ENABLED":                "otel.enabled",
	"OTEL_INSECURE":               "otel.insecure",
	"OTEL_SAMPLE_RATE":            "otel.sample_rate",
	"CALL_WHISPER_RATE":           "call.whisper_rate",
	"CALL_WAIT_TIMEOUT":           "call.wait_timeout",
	"CALL_DURATION":               "call.duration",
	"CHANNEL_APP_ID":              "channel.app_id",
	"CHANNEL_APP_CERTIFICATE":     "channel.app_certificate",
	"PAYMENT_CHECKOUT_URL":        "payment.checkout_url",
	"PAYMENT_RETURN_URL":          "payment.return_url",
	"PAYMENT_WEBHOOK_SECRET":      "payment.webhook_secret",
	"AMQP_ENABLED":                "amqp.enabled",
	"AMQP_URL":                    "amqp.url",
	"AMQP_EXCHANGE":               "amqp.exchange",
}

func envKeyReplacer(s string) string {
	if mapped, ok := envKeyMap[s]; ok {
		return mapped
	}
	return ""
}

func validate(c *Config) error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.JWT.PrivateKeyPath == "" {
		return fmt.Errorf("JWT_PRIVATE_KEY_PATH is required")
	}

	if c.CORS.AllowCredentials {
		for _, origin := range c.CORS.AllowedOrigins {
			if origin == "*" {
				return fmt.Errorf(
					"CORS wildcard '*' cannot be used with AllowCredentials",
				)
			}
		}
	}

	if c.RateLimit.Requests < 1 || c.RateLimit.Window <= 0 ||
		c.RateLimit.CallInitiateRequests < 1 {
		return fmt.Errorf("rate_limit requests and window must be positive")
	}

	if c.App.Environment == "production" {
		if c.Otel.Enabled && c.Otel.Insecure {
			return fmt.Errorf("OTEL_INSECURE must be false in production")
		}
		if c.Payment.WebhookSecret == "" {
			return fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required in production")
		}
		if c.Channel.AppCertificate == "" {
			return fmt.Errorf("CHANNEL_APP_CERTIFICATE is required in production")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be positive")
	}

	return c.Call.Validate()
}

// Validate checks the call lifecycle constants for consistency.
func (c *CallConfig) Validate() error {
	if c.WaitTimeout <= 0 {
		return fmt.Errorf("call.wait_timeout must be positive")
	}

	if c.Duration <= 0 {
		return fmt.Errorf("call.duration must be positive")
	}

	if c.EarlyLeaveWindow < 0 || c.EarlyLeaveWindow >= c.Duration {
		return fmt.Errorf("call.early_leave_window must be within call.duration")
	}

	if c.MaxPendingPerWhisper < 1 {
		return fmt.Errorf("call.max_pending_per_whisper must be at least 1")
	}

	rate, err := decimal.NewFromString(c.WhisperRate)
	if err != nil {
		return fmt.Errorf("call.whisper_rate: %w", err)
	}
	if !rate.IsPositive() {
		return fmt.Errorf("call.whisper_rate must be positive")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
