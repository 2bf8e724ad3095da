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

const EnvPrefix = "LOB"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Journal JournalConfig `mapstructure:"journal"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Production bool   `mapstructure:"production"`
	Level      string `mapstructure:"level"`
}

type EngineConfig struct {
	Symbols      []string `mapstructure:"symbols"`
	AutoCreate   bool     `mapstructure:"auto_create"`
	MaxDepth     int      `mapstructure:"max_depth"`
	DefaultDepth int      `mapstructure:"default_depth"`
}

type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Dir     string `mapstructure:"dir"`
	Sync    bool   `mapstructure:"sync"`
}

type KafkaConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Brokers       []string      `mapstructure:"brokers"`
	Topic         string        `mapstructure:"topic"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	BatchSize     int           `mapstructure:"batch_size"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("log.production", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("engine.symbols", []string{})
	v.SetDefault("engine.auto_create", false)
	v.SetDefault("engine.max_depth", 100)
	v.SetDefault("engine.default_depth", 10)

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.dir", "data/journal")
	v.SetDefault("journal.sync", true)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "lob.events")
	v.SetDefault("kafka.flush_interval", 500*time.Millisecond)
	v.SetDefault("kafka.batch_size", 256)
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads defaults, then path (if not empty), then LOB_* environment
// variables, e.g. LOB_ENGINE_SYMBOLS=BTC-USD,ETH-USD.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for process startup.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic("Couldn't load configuration, cannot start. Error: " + err.Error())
	}
	return cfg
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Engine.MaxDepth <= 0 {
		return errors.New("engine.max_depth must be positive")
	}
	if c.Engine.DefaultDepth <= 0 || c.Engine.DefaultDepth > c.Engine.MaxDepth {
		return fmt.Errorf("engine.default_depth must be in 1..%d", c.Engine.MaxDepth)
	}
	if c.Journal.Enabled && c.Journal.Dir == "" {
		return errors.New("journal.dir is required when the journal is enabled")
	}
	if c.Kafka.Enabled {
		if !c.Journal.Enabled {
			return errors.New("kafka publishing requires the journal")
		}
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" {
			return errors.New("kafka.brokers and kafka.topic are required when kafka is enabled")
		}
		if c.Kafka.FlushInterval <= 0 || c.Kafka.BatchSize <= 0 {
			return errors.New("kafka.flush_interval and kafka.batch_size must be positive")
		}
	}
	return nil
}
