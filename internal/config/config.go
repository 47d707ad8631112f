// Package config loads the service configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverDynamoDB = "dynamodb"
	DriverMongo    = "mongo"
)

// Event publisher drivers.
const (
	EventsSQS  = "sqs"
	EventsAMQP = "amqp"
	EventsNone = "none"
)

// Config is the complete service configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	AWS         AWSConfig         `yaml:"aws"`
	Storage     StorageConfig     `yaml:"storage"`
	Events      EventsConfig      `yaml:"events"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Idempotency IdempotencyConfig `yaml:"idempotency"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address used when RunLocal is set.
	Addr string `yaml:"addr"`
	// RunLocal serves HTTP directly instead of starting the Lambda runtime.
	RunLocal bool   `yaml:"run_local"`
	LogLevel string `yaml:"log_level"`
}

// AWSConfig configures the SDK.
type AWSConfig struct {
	Region string `yaml:"region"`
	// Endpoint overrides the service endpoint, e.g. LocalStack.
	Endpoint string `yaml:"endpoint"`
}

// StorageConfig selects and configures the document store.
type StorageConfig struct {
	Driver   string         `yaml:"driver"`
	DynamoDB DynamoDBConfig `yaml:"dynamodb"`
	Mongo    MongoConfig    `yaml:"mongo"`
}

// DynamoDBConfig names the tables.
type DynamoDBConfig struct {
	OrdersTable      string `yaml:"orders_table"`
	CouponsTable     string `yaml:"coupons_table"`
	PaymentsTable    string `yaml:"payments_table"`
	IdempotencyTable string `yaml:"idempotency_table"`
}

// MongoConfig configures the MongoDB connection.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// EventsConfig selects the order event publisher.
type EventsConfig struct {
	Driver   string `yaml:"driver"`
	QueueURL string `yaml:"queue_url"`
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

// CatalogConfig configures the product lookup client.
type CatalogConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// RedisAddr enables the read-through cache when non-empty.
	RedisAddr string        `yaml:"redis_addr"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// PricingConfig holds the store-wide pricing constants.
type PricingConfig struct {
	DeliveryFee float64 `yaml:"delivery_fee"`
	TaxRate     float64 `yaml:"tax_rate"`
}

// IdempotencyConfig configures Idempotency-Key retention.
type IdempotencyConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// MetricsConfig configures metric names.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// DefaultConfig returns a Config with the production defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:     ":8080",
			LogLevel: "info",
		},
		AWS: AWSConfig{
			Region: "us-east-1",
		},
		Storage: StorageConfig{
			Driver: DriverDynamoDB,
			DynamoDB: DynamoDBConfig{
				OrdersTable:      "orders",
				CouponsTable:     "coupons",
				PaymentsTable:    "payments",
				IdempotencyTable: "idempotency",
			},
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "grocery",
			},
		},
		Events: EventsConfig{
			Driver:   EventsNone,
			Exchange: "orders",
		},
		Catalog: CatalogConfig{
			BaseURL:  "http://localhost:8081",
			Timeout:  5 * time.Second,
			CacheTTL: 5 * time.Minute,
		},
		Pricing: PricingConfig{
			DeliveryFee: 15,
			TaxRate:     0.09,
		},
		Idempotency: IdempotencyConfig{
			TTL: 48 * time.Hour,
		},
		Metrics: MetricsConfig{
			Namespace: "GroceryOrderflow",
		},
	}
}

// LoadFromFile reads path over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Load returns the defaults, overlaid by path (if non-empty) and then by
// the environment, and validates the result.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from well-known environment variables.
func (c *Config) ApplyEnv() error {
	setString(&c.AWS.Region, "AWS_REGION")
	setString(&c.AWS.Endpoint, "AWS_ENDPOINT_OVERRIDE")
	setString(&c.Storage.Driver, "STORAGE_DRIVER")
	setString(&c.Storage.DynamoDB.OrdersTable, "ORDERS_TABLE")
	setString(&c.Storage.DynamoDB.CouponsTable, "COUPONS_TABLE")
	setString(&c.Storage.DynamoDB.PaymentsTable, "PAYMENTS_TABLE")
	setString(&c.Storage.DynamoDB.IdempotencyTable, "IDEMPOTENCY_TABLE")
	setString(&c.Storage.Mongo.URI, "MONGO_URI")
	setString(&c.Storage.Mongo.Database, "MONGO_DATABASE")
	setString(&c.Events.Driver, "EVENTS_DRIVER")
	setString(&c.Events.QueueURL, "ORDERS_QUEUE_URL")
	setString(&c.Events.AMQPURL, "AMQP_URL")
	setString(&c.Catalog.BaseURL, "CATALOG_URL")
	setString(&c.Catalog.RedisAddr, "REDIS_ADDR")
	setString(&c.Server.LogLevel, "LOG_LEVEL")

	if v := os.Getenv("RUN_LOCAL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RUN_LOCAL: %w", err)
		}
		c.Server.RunLocal = b
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverDynamoDB:
		d := c.Storage.DynamoDB
		if d.OrdersTable == "" || d.CouponsTable == "" || d.PaymentsTable == "" || d.IdempotencyTable == "" {
			return fmt.Errorf("storage.dynamodb: all table names are required")
		}
	case DriverMongo:
		if c.Storage.Mongo.URI == "" {
			return fmt.Errorf("storage.mongo.uri is required")
		}
		if c.Storage.Mongo.Database == "" {
			return fmt.Errorf("storage.mongo.database is required")
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Events.Driver {
	case EventsNone:
	case EventsSQS:
		if c.Events.QueueURL == "" {
			return fmt.Errorf("events.queue_url is required for sqs")
		}
	case EventsAMQP:
		if c.Events.AMQPURL == "" {
			return fmt.Errorf("events.amqp_url is required for amqp")
		}
	default:
		return fmt.Errorf("unknown events.driver %q", c.Events.Driver)
	}

	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if c.Pricing.DeliveryFee < 0 {
		return fmt.Errorf("pricing.delivery_fee must not be negative")
	}
	if c.Pricing.TaxRate < 0 || c.Pricing.TaxRate >= 1 {
		return fmt.Errorf("pricing.tax_rate must be in [0, 1)")
	}
	if c.Idempotency.TTL <= 0 {
		return fmt.Errorf("idempotency.ttl must be positive")
	}
	return nil
}
