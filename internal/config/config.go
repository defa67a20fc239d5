package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Admin      ServerConfig     `mapstructure:"admin"`
	Store      StoreConfig      `mapstructure:"store"`
	Redis      RedisConfig      `mapstructure:"redis"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Notifier   NotifierConfig   `mapstructure:"notifier"`
	Leader     LeaderConfig     `mapstructure:"leader"`
	Instance   InstanceConfig   `mapstructure:"instance"`
	Bidding    BiddingConfig    `mapstructure:"bidding"`
	Settlement SettlementConfig `mapstructure:"settlement"`
	Sweep      SweepConfig      `mapstructure:"sweep"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type StoreConfig struct {
	// Driver is "mysql" or "memory".
	Driver string `mapstructure:"driver"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type NATSConfig struct {
	URL    string `mapstructure:"url"`
	Stream string `mapstructure:"stream"`
}

type NotifierConfig struct {
	// Driver is "redis", "nats" or "log".
	Driver     string        `mapstructure:"driver"`
	Timeout    time.Duration `mapstructure:"timeout"`
	BufferSize int           `mapstructure:"buffer_size"`
}

type LeaderConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

type BiddingConfig struct {
	MinIncrement int64 `mapstructure:"min_increment"`
	MaxAttempts  int   `mapstructure:"max_attempts"`
}

type SettlementConfig struct {
	SellerReward int64 `mapstructure:"seller_reward"`
	BuyerReward  int64 `mapstructure:"buyer_reward"`
}

type SweepConfig struct {
	Schedule  string `mapstructure:"schedule"`
	BatchSize int    `mapstructure:"batch_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("admin.port", 8081)
	v.SetDefault("admin.host", "0.0.0.0")
	v.SetDefault("store.driver", "mysql")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "auction_user:auction_pass@tcp(localhost:3306)/waste_auction?parseTime=true&loc=UTC")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.stream", "LISTING_EVENTS")
	v.SetDefault("notifier.driver", "redis")
	v.SetDefault("notifier.timeout", 5*time.Second)
	v.SetDefault("notifier.buffer_size", 256)
	v.SetDefault("leader.ttl", 30*time.Second)
	v.SetDefault("instance.id", "waste-auction-1")
	v.SetDefault("bidding.min_increment", 5)
	v.SetDefault("bidding.max_attempts", 5)
	v.SetDefault("settlement.seller_reward", 30)
	v.SetDefault("settlement.buyer_reward", 20)
	v.SetDefault("sweep.schedule", "@every 30s")
	v.SetDefault("sweep.batch_size", 100)
	v.SetDefault("log.level", "info")
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()

	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("admin.port", "ADMIN_PORT")
	v.BindEnv("store.driver", "STORE_DRIVER")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("mysql.dsn", "MYSQL_DSN")
	v.BindEnv("mysql.max_open_conns", "MYSQL_MAX_OPEN_CONNS")
	v.BindEnv("mysql.max_idle_conns", "MYSQL_MAX_IDLE_CONNS")
	v.BindEnv("mysql.conn_max_lifetime", "MYSQL_CONN_MAX_LIFETIME")
	v.BindEnv("nats.url", "NATS_URL")
	v.BindEnv("notifier.driver", "NOTIFIER_DRIVER")
	v.BindEnv("leader.ttl", "LEADER_TTL")
	v.BindEnv("instance.id", "INSTANCE_ID")
	v.BindEnv("sweep.schedule", "SWEEP_SCHEDULE")
	v.BindEnv("log.level", "LOG_LEVEL")
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/waste-auction/")

	bindEnv(v)

	// Config file is optional, defaults and env vars are enough.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "mysql", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Notifier.Driver {
	case "redis", "nats", "log":
	default:
		return fmt.Errorf("unknown notifier driver %q", c.Notifier.Driver)
	}
	if c.Bidding.MinIncrement <= 0 {
		return fmt.Errorf("bidding.min_increment must be positive, got %d", c.Bidding.MinIncrement)
	}
	if c.Bidding.MaxAttempts <= 0 {
		return fmt.Errorf("bidding.max_attempts must be positive, got %d", c.Bidding.MaxAttempts)
	}
	if c.Sweep.BatchSize <= 0 {
		return fmt.Errorf("sweep.batch_size must be positive, got %d", c.Sweep.BatchSize)
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Store: %s, Redis: %s, Notifier: %s, Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.Store.Driver,
		c.Redis.Address,
		c.Notifier.Driver,
		c.Instance.ID,
	)
}
