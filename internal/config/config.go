package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Provider  ProviderConfig
	Broadcast BroadcastConfig
	Relay     RelayConfig
	Storage   StorageConfig
	Auth      AuthConfig
	Metrics   MetricsConfig
	Logging   LoggingConfig
	Tracing   TracingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	WebhookRPS      int
	WebhookBurst    int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	TTL      time.Duration
}

// ProviderConfig holds video provider API and webhook configuration
type ProviderConfig struct {
	BaseURL            string
	ImageBaseURL       string
	TokenID            string
	TokenSecret        string
	WebhookSecret      string
	SignatureHeader    string
	SignatureTolerance time.Duration
	AllowBypass        bool
	BypassHeader       string
	AckUnknownAssets   bool
	PlaybackPolicy     string
}

// BroadcastConfig holds SSE fan-out configuration
type BroadcastConfig struct {
	ClientBuffer      int
	HeartbeatInterval time.Duration
}

// RelayConfig holds cross-process broadcast relay configuration
type RelayConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
	Exchange string
}

// StorageConfig holds object storage configuration for thumbnail mirroring
type StorageConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// AuthConfig holds authentication configuration for debug endpoints
type AuthConfig struct {
	JWTSecret string
}

// MetricsConfig holds the metrics server configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// TracingConfig holds tracing configuration
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	JaegerEndpoint string
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Provider.WebhookSecret == "" && !config.Provider.AllowBypass {
		return nil, fmt.Errorf("provider.webhookSecret is required when bypass is disabled")
	}

	return &config, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "0s") // SSE connections stay open
	viper.SetDefault("server.shutdownTimeout", "10s")
	viper.SetDefault("server.webhookRPS", 50)
	viper.SetDefault("server.webhookBurst", 100)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "postgres")
	viper.SetDefault("database.dbname", "mediasync")
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.maxConns", 25)
	viper.SetDefault("database.minConns", 5)

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", "5m")

	// Provider defaults
	viper.SetDefault("provider.baseURL", "https://api.provider.example")
	viper.SetDefault("provider.imageBaseURL", "https://image.mux.com")
	viper.SetDefault("provider.signatureHeader", "Provider-Signature")
	viper.SetDefault("provider.signatureTolerance", "5m")
	viper.SetDefault("provider.allowBypass", false)
	viper.SetDefault("provider.bypassHeader", "X-Webhook-Bypass")
	viper.SetDefault("provider.ackUnknownAssets", true)
	viper.SetDefault("provider.playbackPolicy", "public")

	// Broadcast defaults
	viper.SetDefault("broadcast.clientBuffer", 16)
	viper.SetDefault("broadcast.heartbeatInterval", "30s")

	// Relay defaults
	viper.SetDefault("relay.enabled", false)
	viper.SetDefault("relay.host", "localhost")
	viper.SetDefault("relay.port", 5672)
	viper.SetDefault("relay.user", "guest")
	viper.SetDefault("relay.password", "guest")
	viper.SetDefault("relay.vhost", "/")
	viper.SetDefault("relay.exchange", "asset_events")

	// Storage defaults
	viper.SetDefault("storage.enabled", false)
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "thumbnails")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9091)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.serviceName", "mediasync")
	viper.SetDefault("tracing.jaegerEndpoint", "http://localhost:14268/api/traces")
}
