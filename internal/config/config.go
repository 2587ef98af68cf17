package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Media    MediaConfig    `mapstructure:"media"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// WorkerConfig holds delivery worker configuration. Every timing knob of the
// polling loop lives here rather than in the worker itself.
type WorkerConfig struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	IdleDelay     time.Duration `mapstructure:"idle_delay"`
	SendDelay     time.Duration `mapstructure:"send_delay"`
	FailureDelay  time.Duration `mapstructure:"failure_delay"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	CountryPrefix string        `mapstructure:"country_prefix"`
	MessageTypes  []string      `mapstructure:"message_types"`
	LeaseTimeout  time.Duration `mapstructure:"lease_timeout"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// GatewayConfig holds Meta WhatsApp Cloud API client configuration.
type GatewayConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIVersion string        `mapstructure:"api_version"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// VaultConfig holds the credential vault key. The key is 32 bytes, hex-encoded.
type VaultConfig struct {
	KeyHex string `mapstructure:"key_hex"`
}

// MediaConfig holds media object store configuration.
type MediaConfig struct {
	Type       string `mapstructure:"type"` // "local" or "s3"
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
	PublicURL  string `mapstructure:"public_url"`
}

// RedisConfig holds the optional Redis connection used to nudge idle workers.
// When Addr is empty the worker falls back to plain idle sleeps.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	JWTSigningKey      string        `mapstructure:"jwt_signing_key"`
	AccessTokenExpiry  time.Duration `mapstructure:"access_token_expiry"`
	Issuer             string        `mapstructure:"issuer"`
	WebhookVerifyToken string        `mapstructure:"webhook_verify_token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix WADISPATCH_ override file values.
// For example, WADISPATCH_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("WADISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers defaults for the worker loop and gateway so a minimal
// config file still yields a runnable service.
func setDefaults(v *viper.Viper) {
	v.SetDefault("worker.max_retries", 2)
	v.SetDefault("worker.idle_delay", 2*time.Second)
	v.SetDefault("worker.send_delay", 1200*time.Millisecond)
	v.SetDefault("worker.failure_delay", 3*time.Second)
	v.SetDefault("worker.send_timeout", 30*time.Second)
	v.SetDefault("worker.country_prefix", "91")
	v.SetDefault("worker.message_types", []string{"image", "template"})
	v.SetDefault("worker.lease_timeout", 5*time.Minute)
	v.SetDefault("worker.sweep_interval", 1*time.Minute)

	v.SetDefault("gateway.base_url", "https://graph.facebook.com")
	v.SetDefault("gateway.api_version", "v21.0")
	v.SetDefault("gateway.timeout", 30*time.Second)

	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 10*time.Second)

	v.SetDefault("logging.level", "info")
}
