package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP    HTTP    `yaml:"http"`
	Backend Backend `yaml:"backend"`
	Store   Store   `yaml:"store"`
	Kafka   Kafka   `yaml:"kafka"`
	Cart    Cart    `yaml:"cart"`
	Cache   Cache   `yaml:"cache"`
	Orders  Orders  `yaml:"orders"`
	Log     Log     `yaml:"log"`
}

type HTTP struct {
	Port               string        `yaml:"port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`
}

type Backend struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Store selects the key/value backend: memory, sqlite, redis or mongo.
type Store struct {
	Driver        string `yaml:"driver"`
	SQLitePath    string `yaml:"sqlite_path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDBName   string `yaml:"mongo_db_name"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type Cart struct {
	TTL time.Duration `yaml:"ttl"`
}

type Cache struct {
	TTL time.Duration `yaml:"ttl"`
}

type Orders struct {
	DeliveryFee string `yaml:"delivery_fee"`
	PhonePrefix string `yaml:"phone_prefix"`
}

type Log struct {
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		HTTP: HTTP{
			Port:               "8080",
			RequestTimeout:     30 * time.Second,
			ShutdownTimeout:    10 * time.Second,
			MaxRequestBodySize: 1 << 20, // 1MB
		},
		Backend: Backend{
			URL:     "http://localhost:8081",
			Timeout: 10 * time.Second,
		},
		Store: Store{
			Driver:      "sqlite",
			SQLitePath:  "storefront.db",
			RedisAddr:   "localhost:6379",
			MongoURI:    "mongodb://localhost:27017",
			MongoDBName: "storefront",
		},
		Kafka: Kafka{
			Topic:   "order-status",
			GroupID: "storefront",
		},
		Cart:   Cart{TTL: 24 * time.Hour},
		Cache:  Cache{TTL: 5 * time.Minute},
		Orders: Orders{DeliveryFee: "0.400", PhonePrefix: "+973"},
		Log:    Log{Level: "info"},
	}
}

// Load starts from Default, applies the YAML file named by CONFIG_PATH when set,
// then environment overrides.
func Load() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.HTTP.Port = getEnv("HTTP_PORT", c.HTTP.Port)
	c.HTTP.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.HTTP.RequestTimeout)
	c.Backend.URL = getEnv("API_BACKEND", c.Backend.URL)
	c.Store.Driver = getEnv("STORE_DRIVER", c.Store.Driver)
	c.Store.SQLitePath = getEnv("SQLITE_PATH", c.Store.SQLitePath)
	c.Store.RedisAddr = getEnv("REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = getEnv("REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.MongoURI = getEnv("MONGO_URI", c.Store.MongoURI)
	c.Store.MongoDBName = getEnv("MONGO_DB_NAME", c.Store.MongoDBName)
	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = strings.Split(brokers, ",")
	}
	c.Kafka.Topic = getEnv("KAFKA_ORDER_STATUS_TOPIC", c.Kafka.Topic)
	c.Cart.TTL = getEnvDuration("CART_TTL", c.Cart.TTL)
	c.Cache.TTL = getEnvDuration("CACHE_TTL", c.Cache.TTL)
	c.Orders.DeliveryFee = getEnv("DELIVERY_FEE", c.Orders.DeliveryFee)
	c.Orders.PhonePrefix = getEnv("PHONE_PREFIX", c.Orders.PhonePrefix)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "memory", "sqlite", "redis", "mongo":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Cart.TTL <= 0 {
		return fmt.Errorf("cart ttl must be positive, got %s", c.Cart.TTL)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive, got %s", c.Cache.TTL)
	}
	if _, err := c.DeliveryFee(); err != nil {
		return err
	}
	return nil
}

func (c *Config) DeliveryFee() (decimal.Decimal, error) {
	fee, err := decimal.NewFromString(c.Orders.DeliveryFee)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid delivery fee %q: %w", c.Orders.DeliveryFee, err)
	}
	return fee, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}
