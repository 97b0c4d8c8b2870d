package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	MongoDB    MongoDBConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	JWT        JWTConfig
	Gateway    GatewayConfig
	Controller ControllerConfig
	SMS        SMSConfig
	Payment    PaymentConfig
	Voucher    VoucherConfig
	LogLevel   string
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Port         string
	AllowedHosts []string
}

// MongoDBConfig holds MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig holds the redis connection used for the per-phone purchase guard
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// KafkaConfig holds the settlement event stream configuration
type KafkaConfig struct {
	Brokers []string
	Enabled bool
}

// JWTConfig holds JWT-specific configuration
type JWTConfig struct {
	Secret    string
	ExpiresIn int
}

// GatewayConfig holds mobile-money gateway configuration
type GatewayConfig struct {
	BaseURL           string
	APIKey            string
	MobileMoneyPath   string
	OrderStatusPath   string
	WebhookSecretHash string
	WebhookURL        string
	Timeout           time.Duration
	MockAPI           bool
}

// ControllerConfig holds network access controller configuration
type ControllerConfig struct {
	BaseURL        string
	Username       string
	Password       string
	HotspotProfile string
	Timeout        time.Duration
	MockAPI        bool
}

// SMSConfig holds SMS gateway-specific configuration
type SMSConfig struct {
	BaseURL        string
	APIKey         string
	SenderID       string
	MockSMSGateway bool
}

// PaymentConfig holds purchase lifecycle tuning
type PaymentConfig struct {
	AuthorizationTimeout time.Duration
	MaxVerifyAttempts    int
	MaxIssueAttempts     int
	SweepInterval        time.Duration
	RetryBaseDelay       time.Duration
}

// VoucherConfig holds voucher code generation settings
type VoucherConfig struct {
	Prefix     string
	CodeLength int
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// It's okay if config file is not found, we'll use environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	// Unmarshal configuration
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// setDefaults sets default values for configuration
func setDefaults() {
	viper.SetDefault("Server.Port", "8080")
	viper.SetDefault("Server.AllowedHosts", []string{"localhost:3000"})
	viper.SetDefault("MongoDB.URI", "mongodb://localhost:27017")
	viper.SetDefault("MongoDB.Database", "hotspot-billing")
	viper.SetDefault("Redis.Addr", "localhost:6379")
	viper.SetDefault("Redis.DB", 0)
	viper.SetDefault("Redis.Enabled", false)
	viper.SetDefault("Kafka.Brokers", []string{"localhost:9092"})
	viper.SetDefault("Kafka.Enabled", false)
	viper.SetDefault("JWT.ExpiresIn", 24*60*60) // 24 hours
	viper.SetDefault("LogLevel", "info")
	viper.SetDefault("Gateway.BaseURL", "https://zenoapi.com")
	viper.SetDefault("Gateway.MobileMoneyPath", "/api/payments/mobile_money_tanzania")
	viper.SetDefault("Gateway.OrderStatusPath", "/api/payments/order-status")
	viper.SetDefault("Gateway.Timeout", 30*time.Second)
	viper.SetDefault("Gateway.MockAPI", true)
	viper.SetDefault("Controller.HotspotProfile", "default")
	viper.SetDefault("Controller.Timeout", 15*time.Second)
	viper.SetDefault("Controller.MockAPI", true)
	viper.SetDefault("SMS.SenderID", "GGNET")
	viper.SetDefault("SMS.MockSMSGateway", true)
	viper.SetDefault("Payment.AuthorizationTimeout", 120*time.Second)
	viper.SetDefault("Payment.MaxVerifyAttempts", 3)
	viper.SetDefault("Payment.MaxIssueAttempts", 5)
	viper.SetDefault("Payment.SweepInterval", 10*time.Second)
	viper.SetDefault("Payment.RetryBaseDelay", 500*time.Millisecond)
	viper.SetDefault("Voucher.Prefix", "GG")
	viper.SetDefault("Voucher.CodeLength", 8)
}
