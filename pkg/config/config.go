package config

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds all configuration for the application
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Store     StoreConfig     `mapstructure:"store"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Gateway   GatewayConfig   `mapstructure:"gateway"`
}

type AppConfig struct {
	Port      string `mapstructure:"port"`
	Env       string `mapstructure:"env"`        // e.g., "local", "prod"
	ClientURL string `mapstructure:"client_url"` // CORS origin of the display layer
}

type LoggerConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"` // "json" or "console"
}

type StoreConfig struct {
	Driver    string        `mapstructure:"driver"`
	OpTimeout time.Duration `mapstructure:"op_timeout"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
	// AdminDatabase is the maintenance database used to create Database on first start.
	AdminDatabase string `mapstructure:"admin_database"`
}

// DSN renders the connection string understood by the pgx stdlib driver.
// Credentials are escaped, so passwords may contain URL delimiters.
func (p PostgresConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(p.User, p.Password),
		Host:   net.JoinHostPort(p.Host, strconv.Itoa(p.Port)),
		Path:   "/" + p.Database,
	}
	if p.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {p.SSLMode}}.Encode()
	}
	return u.String()
}

// Admin returns the same server settings pointed at the maintenance database.
func (p PostgresConfig) Admin() PostgresConfig {
	p.Database = p.AdminDatabase
	return p
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type BroadcastConfig struct {
	Interval            time.Duration `mapstructure:"interval"`
	MaxPrice            float64       `mapstructure:"max_price"`
	HoldOverProbability float64       `mapstructure:"hold_over_probability"`
	SendBuffer          int           `mapstructure:"send_buffer"`
	MirrorToRedis       bool          `mapstructure:"mirror_to_redis"`
}

type GatewayConfig struct {
	ValidTickers []string `mapstructure:"valid_tickers"`
}

// DefaultTickers is the fixed catalog offered to viewers by /get-stock-options.
var DefaultTickers = []string{
	"AAPL", "MSFT", "AMZN", "GOOGL", "FB", "TSLA", "BRK.B", "NVDA", "JPM", "JNJ",
	"V", "PG", "UNH", "HD", "MA", "DIS", "PYPL", "BAC", "VZ", "ADBE",
	"NFLX", "KO", "CMCSA", "PFE", "INTC", "CSCO", "PEP", "T", "XOM", "ABT",
}

// LoadConfig reads configuration from .env file, environment variables, and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	// 1. Load .env file into System Environment (if it exists)
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, relying on System Env Vars")
	}

	// 2. Set Defaults (12-Factor App: Dev/Prod Parity)
	setDefaults(v)

	// 3. Configure Viper to read Environment Variables
	// This maps dot-notation to underscores (e.g., "app.port" -> "APP_PORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 4. Explicitly Bind Env Vars to Keys so Unmarshal sees them
	bindEnv(v, "app.port", "app.env", "app.client_url")
	bindEnv(v, "logger.level", "logger.encoding")
	bindEnv(v, "store.driver", "store.op_timeout")
	bindEnv(v, "postgres.host", "postgres.port", "postgres.user", "postgres.password", "postgres.database", "postgres.sslmode", "postgres.admin_database")
	bindEnv(v, "redis.addr", "redis.password", "redis.db")
	bindEnv(v, "kafka.enabled", "kafka.brokers", "kafka.topic")
	bindEnv(v, "broadcast.interval", "broadcast.max_price", "broadcast.hold_over_probability", "broadcast.send_buffer", "broadcast.mirror_to_redis")
	bindEnv(v, "gateway.valid_tickers")

	// 5. Unmarshal into Struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// 6. Basic Validation
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", ":3000")
	v.SetDefault("app.env", "local")
	v.SetDefault("app.client_url", "*")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("store.driver", DriverPostgres)
	v.SetDefault("store.op_timeout", 3*time.Second)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.database", "stock_demo_database")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.admin_database", "postgres")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "watchlist_snapshots")

	v.SetDefault("broadcast.interval", time.Second)
	v.SetDefault("broadcast.max_price", 50.0)
	v.SetDefault("broadcast.hold_over_probability", 0.5)
	v.SetDefault("broadcast.send_buffer", 16)
	v.SetDefault("broadcast.mirror_to_redis", false)

	v.SetDefault("gateway.valid_tickers", DefaultTickers)
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverPostgres, DriverRedis:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.OpTimeout <= 0 {
		return fmt.Errorf("store op_timeout must be positive")
	}
	if c.Broadcast.Interval <= 0 {
		return fmt.Errorf("broadcast interval must be positive")
	}
	if c.Broadcast.MaxPrice <= 0 {
		return fmt.Errorf("broadcast max_price must be positive")
	}
	if p := c.Broadcast.HoldOverProbability; p < 0 || p > 1 {
		return fmt.Errorf("broadcast hold_over_probability must be within [0,1], got %v", p)
	}
	if c.Broadcast.SendBuffer <= 0 {
		return fmt.Errorf("broadcast send_buffer must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka brokers cannot be empty")
	}
	return nil
}

// bindEnv is a helper to bind multiple keys at once
func bindEnv(v *viper.Viper, keys ...string) {
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			log.Printf("Could not bind env var for key %s: %v", key, err)
		}
	}
}
