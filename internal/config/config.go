package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
)

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type LLMConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// ScreeningPrompts override the built-in rater system prompts when set.
type ScreeningPrompts struct {
	Rater1TitleAbstract string `toml:"rater1_title_abstract"`
	Rater2TitleAbstract string `toml:"rater2_title_abstract"`
	Rater1Fulltext      string `toml:"rater1_fulltext"`
	Rater2Fulltext      string `toml:"rater2_fulltext"`
}

type ScreeningConfig struct {
	Concurrency int              `toml:"concurrency"`
	Prompts     ScreeningPrompts `toml:"prompts"`
}

type NCBIConfig struct {
	APIKey string `toml:"api_key"`
}

type StatsConfig struct {
	BaseURL string `toml:"base_url"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type Config struct {
	Server    ServerConfig    `toml:"server"`
	LLM       LLMConfig       `toml:"llm"`
	Database  DatabaseConfig  `toml:"database"`
	Screening ScreeningConfig `toml:"screening"`
	NCBI      NCBIConfig      `toml:"ncbi"`
	Stats     StatsConfig     `toml:"stats"`
	Log       LogConfig       `toml:"log"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a config without reading any file, env overrides applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

// applyEnv lets environment variables override secrets and endpoints, so
// the TOML file never has to hold credentials.
func (c *Config) applyEnv() {
	if v := os.Getenv("SIFT_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("SIFT_LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("SIFT_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("SIFT_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("SIFT_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("NCBI_API_KEY"); v != "" {
		c.NCBI.APIKey = v
	}
	if v := os.Getenv("SIFT_STATS_URL"); v != "" {
		c.Stats.BaseURL = v
	}
	if v := os.Getenv("SIFT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.Database.Path == "" {
		c.Database.Path = "sift.db"
	}
	if c.Screening.Concurrency == 0 {
		c.Screening.Concurrency = 4
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}
