package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes everything finmitrad needs at startup.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	LLM       LLMConfig       `yaml:"llm"`
	Session   SessionConfig   `yaml:"session"`
	Advisor   AdvisorConfig   `yaml:"advisor"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Events    EventsConfig    `yaml:"events"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Alerting  AlertingConfig  `yaml:"alerting"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address"`
	AllowedOrigins  []string `yaml:"allowed_origins"`
	ShutdownSeconds int      `yaml:"shutdown_seconds"`
}

// LoggingConfig mirrors pkg/logger.Config.
type LoggingConfig struct {
	Level       string   `yaml:"level"`
	Format      string   `yaml:"format"`
	OutputPaths []string `yaml:"output_paths"`
	Audit       struct {
		Enabled    bool   `yaml:"enabled"`
		Path       string `yaml:"path"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"audit"`
}

// LLMConfig configures the generation capability. The default endpoint is
// Groq's OpenAI-compatible API; any compatible base URL works.
type LLMConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SessionConfig selects and tunes the conversation store backend.
type SessionConfig struct {
	Driver   string `yaml:"driver"`
	MaxTurns int    `yaml:"max_turns"`
	Redis    struct {
		Address   string `yaml:"address"`
		Password  string `yaml:"password"`
		DB        int    `yaml:"db"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"redis"`
}

// AdvisorConfig tunes the plan pipeline and tip generator.
type AdvisorConfig struct {
	MaxTipLength   int `yaml:"max_tip_length"`
	StepTimeoutSec int `yaml:"step_timeout_seconds"`
}

// ArchiveConfig selects the plan archive backend.
type ArchiveConfig struct {
	Driver  string `yaml:"driver"`
	DataDir string `yaml:"data_dir"`
	MySQL   struct {
		DSN                    string `yaml:"dsn"`
		MaxOpenConns           int    `yaml:"max_open_conns"`
		MaxIdleConns           int    `yaml:"max_idle_conns"`
		ConnMaxLifetimeSeconds int    `yaml:"conn_max_lifetime_seconds"`
		ConnMaxIdleTimeSeconds int    `yaml:"conn_max_idle_time_seconds"`
	} `yaml:"mysql"`
}

// EventsConfig selects the post-commit event publisher.
type EventsConfig struct {
	Driver   string `yaml:"driver"`
	RabbitMQ struct {
		URL        string `yaml:"url"`
		Queue      string `yaml:"queue"`
		Durable    bool   `yaml:"durable"`
		AutoDelete bool   `yaml:"auto_delete"`
	} `yaml:"rabbitmq"`
}

// KnowledgeConfig points at an optional guidance snippet file.
type KnowledgeConfig struct {
	Source     string `yaml:"source"`
	MaxResults int    `yaml:"max_results"`
}

// AlertingConfig configures failure notifications.
type AlertingConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Load parses the config file at path. YAML is the native format; JSON files
// parse too since YAML is a superset.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config file path is empty")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))
	cfg.applyEnv()

	return &cfg, nil
}

// applyDefaults fills sane values for fields the operator left empty.
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.ShutdownSeconds <= 0 {
		c.Server.ShutdownSeconds = 5
	}

	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "llama3-70b-8192"
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = 60
	}

	if c.Session.Driver == "" {
		c.Session.Driver = "memory"
	}
	if c.Session.MaxTurns <= 0 {
		c.Session.MaxTurns = 40
	}
	if c.Session.Redis.KeyPrefix == "" {
		c.Session.Redis.KeyPrefix = "finmitra:session:"
	}

	if c.Advisor.MaxTipLength <= 0 {
		c.Advisor.MaxTipLength = 280
	}

	if c.Archive.Driver == "" {
		c.Archive.Driver = "memory"
	}
	if c.Archive.DataDir == "" {
		c.Archive.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Archive.DataDir) {
		c.Archive.DataDir = filepath.Join(baseDir, c.Archive.DataDir)
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "log"
	}
	if c.Events.RabbitMQ.Queue == "" {
		c.Events.RabbitMQ.Queue = "finmitra.events"
	}

	if c.Knowledge.MaxResults <= 0 {
		c.Knowledge.MaxResults = 3
	}
}

// applyEnv lets the secret come from the environment so the config file can
// be committed without credentials.
func (c *Config) applyEnv() {
	for _, name := range []string{"FINMITRA_LLM_API_KEY", "GROQ_API_KEY"} {
		if value := strings.TrimSpace(os.Getenv(name)); value != "" {
			c.LLM.APIKey = value
			return
		}
	}
}
