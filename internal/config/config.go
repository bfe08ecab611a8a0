package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type AppConfig struct {
	Env             string `mapstructure:"env"`
	Port            int    `mapstructure:"port"`
	InstanceID      string `mapstructure:"instance_id"`
	ShutdownSeconds int    `mapstructure:"shutdown_seconds"`
	CORSOrigins     string `mapstructure:"cors_origins"`
}

func (a AppConfig) Addr() string { return fmt.Sprintf(":%d", a.Port) }

type AuthConfig struct {
	Algorithm     string `mapstructure:"alg"`
	HSSecret      string `mapstructure:"hs_secret"`
	PublicKeyPath string `mapstructure:"public_key_path"`
	CookieName    string `mapstructure:"cookie_name"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

type MongoConfig struct {
	URI                   string `mapstructure:"uri"`
	Database              string `mapstructure:"database"`
	MessagesCollection    string `mapstructure:"messages_collection"`
	ChatsCollection       string `mapstructure:"chats_collection"`
	ConnectTimeoutSeconds int    `mapstructure:"connect_timeout_seconds"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Brokers               []string `mapstructure:"brokers"`
	Topic                 string   `mapstructure:"topic"`
	BreakerMaxFailures    uint32   `mapstructure:"breaker_max_failures"`
	BreakerTimeoutSeconds int      `mapstructure:"breaker_timeout_seconds"`
}

func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 && k.Topic != "" }

type WSConfig struct {
	PingIntervalSeconds  int   `mapstructure:"ping_interval_seconds"`
	WriteDeadlineSeconds int   `mapstructure:"write_deadline_seconds"`
	MaxMessageSizeBytes  int64 `mapstructure:"max_message_size_bytes"`
	SendBuffer           int   `mapstructure:"send_buffer"`
	RateLimitPerSec      int   `mapstructure:"rate_limit_per_sec"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Store   StoreConfig   `mapstructure:"store"`
	Mongo   MongoConfig   `mapstructure:"mongo"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	WS      WSConfig      `mapstructure:"ws"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`

	// derived
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteDeadline   time.Duration
	ShutdownTimeout time.Duration
	ConnectTimeout  time.Duration
	BreakerTimeout  time.Duration
}

var defaults = map[string]interface{}{
	"app.env":                       "dev",
	"app.port":                      8085,
	"app.instance_id":               "",
	"app.shutdown_seconds":          10,
	"app.cors_origins":              "*",
	"auth.alg":                      "HS256",
	"auth.hs_secret":                "",
	"auth.public_key_path":          "",
	"auth.cookie_name":              "token",
	"store.driver":                  "memory",
	"mongo.uri":                     "",
	"mongo.database":                "chat",
	"mongo.messages_collection":     "messages",
	"mongo.chats_collection":        "chats",
	"mongo.connect_timeout_seconds": 30,
	"redis.enabled":                 false,
	"redis.addr":                    "localhost:6379",
	"redis.password":                "",
	"redis.db":                      0,
	"redis.prefix":                  "relay",
	"kafka.brokers":                 []string{},
	"kafka.topic":                   "",
	"kafka.breaker_max_failures":    5,
	"kafka.breaker_timeout_seconds": 30,
	"ws.ping_interval_seconds":      25,
	"ws.write_deadline_seconds":     10,
	"ws.max_message_size_bytes":     65536,
	"ws.send_buffer":                256,
	"ws.rate_limit_per_sec":         20,
	"metrics.enabled":               true,
	"log.level":                     "info",
}

// Load reads .env (if present), then the YAML file at path (if present),
// then RELAY_* environment overrides such as RELAY_REDIS_ADDR.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetConfigFile(path)
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.derive()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) derive() {
	if c.WS.PingIntervalSeconds <= 0 {
		c.WS.PingIntervalSeconds = 25
	}
	if c.WS.WriteDeadlineSeconds <= 0 {
		c.WS.WriteDeadlineSeconds = 10
	}
	if c.WS.MaxMessageSizeBytes <= 0 {
		c.WS.MaxMessageSizeBytes = 65536
	}
	if c.WS.SendBuffer <= 0 {
		c.WS.SendBuffer = 256
	}
	if c.App.ShutdownSeconds <= 0 {
		c.App.ShutdownSeconds = 10
	}
	if c.Mongo.ConnectTimeoutSeconds <= 0 {
		c.Mongo.ConnectTimeoutSeconds = 30
	}
	c.Auth.Algorithm = strings.ToUpper(c.Auth.Algorithm)
	c.Store.Driver = strings.ToLower(c.Store.Driver)

	c.PingInterval = time.Duration(c.WS.PingIntervalSeconds) * time.Second
	// peers get two ping intervals to answer before the read times out
	c.PongWait = 2 * c.PingInterval
	c.WriteDeadline = time.Duration(c.WS.WriteDeadlineSeconds) * time.Second
	c.ShutdownTimeout = time.Duration(c.App.ShutdownSeconds) * time.Second
	c.ConnectTimeout = time.Duration(c.Mongo.ConnectTimeoutSeconds) * time.Second
	c.BreakerTimeout = time.Duration(c.Kafka.BreakerTimeoutSeconds) * time.Second
}

func (c *Config) Validate() error {
	var problems []string
	if c.App.Port <= 0 || c.App.Port > 65535 {
		problems = append(problems, fmt.Sprintf("app.port %d out of range", c.App.Port))
	}
	switch c.Auth.Algorithm {
	case "HS256":
		if c.Auth.HSSecret == "" {
			problems = append(problems, "auth.hs_secret is required for HS256")
		}
	case "RS256":
		if c.Auth.PublicKeyPath == "" {
			problems = append(problems, "auth.public_key_path is required for RS256")
		}
	default:
		problems = append(problems, fmt.Sprintf("auth.alg %q not supported", c.Auth.Algorithm))
	}
	switch c.Store.Driver {
	case "memory":
	case "mongo":
		if c.Mongo.URI == "" {
			problems = append(problems, "mongo.uri is required for the mongo store")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q not supported", c.Store.Driver))
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		problems = append(problems, "redis.addr is required when redis is enabled")
	}
	if c.WS.RateLimitPerSec < 0 {
		problems = append(problems, "ws.rate_limit_per_sec must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
