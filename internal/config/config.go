package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:":8080"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string `env:"LOG_FORMAT" envDefault:"json"`
	StoreDriver   string `env:"STORE_DRIVER" envDefault:"postgres"`
	Currency      string `env:"CURRENCY" envDefault:"USDC"`

	PostgresConfig
	RedisConfig
	AuthConfig
	PaymentConfig
	MessagingConfig
	QueryConfig

	WorkerConcurrency int `env:"WORKER_CONCURRENCY" envDefault:"5"`
}

type PostgresConfig struct {
	User        string `env:"DB_USER" envDefault:"postgres"`
	Password    string `env:"DB_PASSWORD"`
	Host        string `env:"DB_HOST" envDefault:"localhost"`
	Port        string `env:"DB_PORT" envDefault:"5432"`
	Name        string `env:"DB_NAME" envDefault:"skillmarket"`
	SSLMode     string `env:"DB_SSLMODE" envDefault:"disable"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

// DSN returns a postgres:// URL for pgx with credentials escaped.
func (p PostgresConfig) DSN() string {
	userinfo := url.User(p.User)
	if p.Password != "" {
		userinfo = url.UserPassword(p.User, p.Password)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     userinfo,
		Host:     net.JoinHostPort(p.Host, p.Port),
		Path:     "/" + p.Name,
		RawQuery: url.Values{"sslmode": {p.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

type AuthConfig struct {
	JWTSecret      string        `env:"JWT_SECRET"`
	JWTTTL         time.Duration `env:"JWT_TTL" envDefault:"24h"`
	AdminWallets   []string      `env:"ADMIN_WALLETS" envSeparator:","`
	AllowDevTokens bool          `env:"ALLOW_DEV_TOKENS" envDefault:"false"`
}

type PaymentConfig struct {
	RailURL       string        `env:"PAYMENT_RAIL_URL"`
	RailToken     string        `env:"PAYMENT_RAIL_TOKEN"`
	RailTimeout   time.Duration `env:"PAYMENT_RAIL_TIMEOUT" envDefault:"10s"`
	EscrowAccount string        `env:"ESCROW_ACCOUNT"`
	FeeBPS        int64         `env:"PLATFORM_FEE_BPS" envDefault:"0"`
}

type MessagingConfig struct {
	PollInterval time.Duration `env:"MESSAGE_POLL_INTERVAL" envDefault:"5s"`
	PageLimit    int           `env:"MESSAGE_PAGE_LIMIT" envDefault:"100"`
}

type QueryConfig struct {
	DefaultLimit int `env:"QUERY_DEFAULT_LIMIT" envDefault:"50"`
	MaxLimit     int `env:"QUERY_MAX_LIMIT" envDefault:"200"`
}

// Load reads an optional .env file and parses the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	admins := c.AdminWallets[:0]
	for _, w := range c.AdminWallets {
		if w = strings.TrimSpace(w); w != "" {
			admins = append(admins, w)
		}
	}
	c.AdminWallets = admins
	c.LogLevel = strings.ToLower(c.LogLevel)
}

func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.StoreDriver != StoreDriverPostgres && c.StoreDriver != StoreDriverMemory {
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}
	if c.RailURL == "" {
		errs = append(errs, errors.New("PAYMENT_RAIL_URL is required"))
	}
	if c.FeeBPS < 0 || c.FeeBPS > 10000 {
		errs = append(errs, fmt.Errorf("PLATFORM_FEE_BPS must be within [0,10000], got %d", c.FeeBPS))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("MESSAGE_POLL_INTERVAL must be positive"))
	}
	if c.DefaultLimit <= 0 || c.MaxLimit < c.DefaultLimit {
		errs = append(errs, errors.New("QUERY_DEFAULT_LIMIT must be positive and not above QUERY_MAX_LIMIT"))
	}
	return errors.Join(errs...)
}
