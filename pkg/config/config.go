package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	OTel        OTelConfig        `mapstructure:"otel"`
	Reservation ReservationConfig `mapstructure:"reservation"`
	Transaction TransactionConfig `mapstructure:"transaction"`
	Task        TaskConfig        `mapstructure:"task"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings.
// An empty broker list disables Kafka and abort reports go to the log only.
type KafkaConfig struct {
	Brokers          []string      `mapstructure:"brokers"`
	ClientID         string        `mapstructure:"client_id"`
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryInterval    time.Duration `mapstructure:"retry_interval"`
	TaskAbortedTopic string        `mapstructure:"task_aborted_topic"`
}

// Enabled reports whether any broker is configured
func (k *KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

// ReservationConfig holds reservation numbering settings
type ReservationConfig struct {
	// TimeZone is the IANA zone used for the date part of reservation numbers
	TimeZone string `mapstructure:"time_zone"`
}

// TransactionConfig holds transaction lifecycle and export settings
type TransactionConfig struct {
	DefaultExpiresIn  time.Duration `mapstructure:"default_expires_in"`
	ExpiryInterval    time.Duration `mapstructure:"expiry_interval"`
	ExportInterval    time.Duration `mapstructure:"export_interval"`
	ReexportInterval  time.Duration `mapstructure:"reexport_interval"`
	ReexportStaleness time.Duration `mapstructure:"reexport_staleness"`
}

// TaskConfig holds task runner settings
type TaskConfig struct {
	PollInterval           time.Duration `mapstructure:"poll_interval"`
	WorkersPerName         int           `mapstructure:"workers_per_name"`
	RetryInterval          time.Duration `mapstructure:"retry_interval"`
	RetryStaleness         time.Duration `mapstructure:"retry_staleness"`
	AbortInterval          time.Duration `mapstructure:"abort_interval"`
	AbortStaleness         time.Duration `mapstructure:"abort_staleness"`
	RemainingNumberOfTries int           `mapstructure:"remaining_number_of_tries"`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// .env is optional; environment variables still apply
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadWithPath loads configuration from a specific path
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	if err := bindConfig(v, cfg); err != nil {
		return nil, fmt.Errorf("failed to bind config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "reservation-core")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "reservation_db")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "1h")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "30m")
	v.SetDefault("DATABASE_AUTO_MIGRATE", false)

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_CLIENT_ID", "reservation-core")
	v.SetDefault("KAFKA_MAX_RETRIES", 3)
	v.SetDefault("KAFKA_RETRY_INTERVAL", "100ms")
	v.SetDefault("KAFKA_TASK_ABORTED_TOPIC", "task.aborted")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "reservation-core")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	// Reservation defaults
	v.SetDefault("RESERVATION_TIME_ZONE", "Asia/Tokyo")

	// Transaction defaults
	v.SetDefault("TRANSACTION_DEFAULT_EXPIRES_IN", "15m")
	v.SetDefault("TRANSACTION_EXPIRY_INTERVAL", "10s")
	v.SetDefault("TRANSACTION_EXPORT_INTERVAL", "500ms")
	v.SetDefault("TRANSACTION_REEXPORT_INTERVAL", "1m")
	v.SetDefault("TRANSACTION_REEXPORT_STALENESS", "10m")

	// Task defaults
	v.SetDefault("TASK_POLL_INTERVAL", "500ms")
	v.SetDefault("TASK_WORKERS_PER_NAME", 2)
	v.SetDefault("TASK_RETRY_INTERVAL", "1m")
	v.SetDefault("TASK_RETRY_STALENESS", "10m")
	v.SetDefault("TASK_ABORT_INTERVAL", "1m")
	v.SetDefault("TASK_ABORT_STALENESS", "10m")
	v.SetDefault("TASK_REMAINING_NUMBER_OF_TRIES", 10)
}

func bindConfig(v *viper.Viper, cfg *Config) error {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")
	cfg.Database.AutoMigrate = v.GetBool("DATABASE_AUTO_MIGRATE")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.MaxRetries = v.GetInt("KAFKA_MAX_RETRIES")
	cfg.Kafka.RetryInterval = v.GetDuration("KAFKA_RETRY_INTERVAL")
	cfg.Kafka.TaskAbortedTopic = v.GetString("KAFKA_TASK_ABORTED_TOPIC")

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	// Reservation
	cfg.Reservation.TimeZone = v.GetString("RESERVATION_TIME_ZONE")

	// Transaction
	cfg.Transaction.DefaultExpiresIn = v.GetDuration("TRANSACTION_DEFAULT_EXPIRES_IN")
	cfg.Transaction.ExpiryInterval = v.GetDuration("TRANSACTION_EXPIRY_INTERVAL")
	cfg.Transaction.ExportInterval = v.GetDuration("TRANSACTION_EXPORT_INTERVAL")
	cfg.Transaction.ReexportInterval = v.GetDuration("TRANSACTION_REEXPORT_INTERVAL")
	cfg.Transaction.ReexportStaleness = v.GetDuration("TRANSACTION_REEXPORT_STALENESS")

	// Task
	cfg.Task.PollInterval = v.GetDuration("TASK_POLL_INTERVAL")
	cfg.Task.WorkersPerName = v.GetInt("TASK_WORKERS_PER_NAME")
	cfg.Task.RetryInterval = v.GetDuration("TASK_RETRY_INTERVAL")
	cfg.Task.RetryStaleness = v.GetDuration("TASK_RETRY_STALENESS")
	cfg.Task.AbortInterval = v.GetDuration("TASK_ABORT_INTERVAL")
	cfg.Task.AbortStaleness = v.GetDuration("TASK_ABORT_STALENESS")
	cfg.Task.RemainingNumberOfTries = v.GetInt("TASK_REMAINING_NUMBER_OF_TRIES")

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DATABASE_HOST is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("DATABASE_DBNAME is required")
	}

	if _, err := time.LoadLocation(c.Reservation.TimeZone); err != nil {
		return fmt.Errorf("invalid RESERVATION_TIME_ZONE %q: %w", c.Reservation.TimeZone, err)
	}

	if c.Task.RemainingNumberOfTries <= 0 {
		return fmt.Errorf("TASK_REMAINING_NUMBER_OF_TRIES must be positive")
	}
	if c.Task.WorkersPerName <= 0 {
		return fmt.Errorf("TASK_WORKERS_PER_NAME must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
