package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/PabloGalante/mixer-agent/internal/app/registry"
	"github.com/PabloGalante/mixer-agent/internal/domain"
)

const envPrefix = "MIXER"

type Config struct {
	HTTP    HTTPConfig    `mapstructure:"http"`
	Device  DeviceConfig  `mapstructure:"device"`
	History HistoryConfig `mapstructure:"history"`
	Redis   RedisConfig   `mapstructure:"redis"`
	GCP     GCPConfig     `mapstructure:"gcp"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Log     LogConfig     `mapstructure:"log"`

	// Catalog order is preserved: it is the order instruments are listed in.
	Instruments []domain.Instrument `mapstructure:"instruments"`
	Synonyms    map[string]string   `mapstructure:"synonyms"`
}

type HTTPConfig struct {
	Port           string   `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type DeviceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

type HistoryConfig struct {
	Backend          string        `mapstructure:"backend"` // memory | redis | firestore
	MaxTurns         int           `mapstructure:"max_turns"`
	MaxConversations int           `mapstructure:"max_conversations"`
	TTL              time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type GCPConfig struct {
	Project  string `mapstructure:"project"`
	Location string `mapstructure:"location"`
}

type LLMConfig struct {
	Provider     string  `mapstructure:"provider"` // mock | gemini | vertex | openai
	Model        string  `mapstructure:"model"`
	APIKey       string  `mapstructure:"api_key"`
	BaseURL      string  `mapstructure:"base_url"`
	MaxToolSteps int     `mapstructure:"max_tool_steps"`
	Temperature  float32 `mapstructure:"temperature"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("device.base_url", "http://192.168.0.4")
	v.SetDefault("device.connect_timeout", "2s")
	v.SetDefault("device.read_timeout", "5s")

	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.max_turns", domain.DefaultMaxTurns)
	v.SetDefault("history.max_conversations", 1000)
	v.SetDefault("history.ttl", "24h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("gcp.project", "")
	v.SetDefault("gcp.location", "us-central1")

	v.SetDefault("llm.provider", "mock")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tool_steps", 5)
	v.SetDefault("llm.temperature", 0.2)

	v.SetDefault("log.level", "info")
}

// Load reads configuration from defaults, an optional YAML file and MIXER_*
// environment variables, in increasing precedence. An empty path looks for
// config.yaml in the working directory and tolerates its absence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if len(cfg.Instruments) == 0 {
		cfg.Instruments = registry.DefaultCatalog
	}
	if cfg.Synonyms == nil {
		cfg.Synonyms = registry.DefaultSynonyms
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.History.Backend {
	case "memory", "redis", "firestore":
	default:
		return fmt.Errorf("config: unknown history.backend %q", c.History.Backend)
	}

	switch c.LLM.Provider {
	case "mock", "gemini", "openai":
	case "vertex":
		if c.GCP.Project == "" {
			return fmt.Errorf("config: gcp.project must be set for the vertex provider")
		}
	default:
		return fmt.Errorf("config: unknown llm.provider %q", c.LLM.Provider)
	}

	if c.History.Backend == "firestore" && c.GCP.Project == "" {
		return fmt.Errorf("config: gcp.project must be set for the firestore backend")
	}
	if c.Device.BaseURL == "" {
		return fmt.Errorf("config: device.base_url is required")
	}
	if c.History.MaxTurns <= 0 || c.History.MaxTurns%2 != 0 {
		return fmt.Errorf("config: history.max_turns must be a positive even number (whole exchanges)")
	}
	return nil
}
