// Package config loads the evolve settings from YAML or TOML files with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/triplet-evolve/internal/evolution"
	"github.com/danielpatrickdp/triplet-evolve/internal/llmcheck"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
)

// Config holds all evolve configuration.
type Config struct {
	Evolution evolution.Config `yaml:"evolution" toml:"evolution"`
	Optimizer OptimizerConfig  `yaml:"optimizer" toml:"optimizer"`
	Storage   StorageConfig    `yaml:"storage" toml:"storage"`
	Agent     AgentConfig      `yaml:"agent" toml:"agent"`
	DeepCheck DeepCheckConfig  `yaml:"deep_check" toml:"deep_check"`
	Data      DataConfig       `yaml:"data" toml:"data"`
	Feedback  FeedbackConfig   `yaml:"feedback" toml:"feedback"`
	API       APIConfig        `yaml:"api" toml:"api"`
	Log       LogConfig        `yaml:"log" toml:"log"`
}

type OptimizerConfig struct {
	BaseStep float64 `yaml:"base_step" toml:"base_step" validate:"gt=0,lte=1"`
	Decay    float64 `yaml:"decay" toml:"decay" validate:"gt=0,lte=1"`
}

type StorageConfig struct {
	DBPath     string `yaml:"db_path" toml:"db_path"` // empty disables persistence
	ReportPath string `yaml:"report_path" toml:"report_path"`
}

type AgentConfig struct {
	Backend       string  `yaml:"backend" toml:"backend" validate:"oneof=rules grpc"`
	Addr          string  `yaml:"addr" toml:"addr" validate:"required_if=Backend grpc"`
	RatePerSecond float64 `yaml:"rate_per_second" toml:"rate_per_second" validate:"gte=0"`
	Burst         int     `yaml:"burst" toml:"burst" validate:"gte=0"`
}

type DeepCheckConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Model     string `yaml:"model" toml:"model" validate:"required_if=Enabled true"`
	BaseURL   string `yaml:"base_url" toml:"base_url" validate:"omitempty,url"`
	APIKeyEnv string `yaml:"api_key_env" toml:"api_key_env"`
	MaxTokens int    `yaml:"max_tokens" toml:"max_tokens" validate:"gte=0"`
	FailOpen  bool   `yaml:"fail_open" toml:"fail_open"`

	// APIKey is only ever read from the environment.
	APIKey string `yaml:"-" toml:"-"`
}

type DataConfig struct {
	Seed      bool     `yaml:"seed" toml:"seed"`
	PerSource int      `yaml:"per_source" toml:"per_source" validate:"gte=1"`
	Files     []string `yaml:"files" toml:"files"`
	HTTPURL   string   `yaml:"http_url" toml:"http_url" validate:"omitempty,url"`
}

type FeedbackConfig struct {
	InboxDir string `yaml:"inbox_dir" toml:"inbox_dir"`
}

type APIConfig struct {
	Listen string `yaml:"listen" toml:"listen" validate:"omitempty,hostname_port"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"oneof=text json"`
}

// Default returns config with sensible defaults.
func Default() Config {
	oc := optimize.DefaultConfig()
	dc := llmcheck.DefaultConfig()
	return Config{
		Evolution: evolution.DefaultConfig(),
		Optimizer: OptimizerConfig{BaseStep: oc.BaseStep, Decay: oc.Decay},
		Storage: StorageConfig{
			DBPath:     "evolve.db",
			ReportPath: "evolution_report.json",
		},
		Agent: AgentConfig{
			Backend:       "rules",
			Addr:          "localhost:50051",
			RatePerSecond: 0,
			Burst:         1,
		},
		DeepCheck: DeepCheckConfig{
			Enabled:   false,
			Model:     dc.Model,
			APIKeyEnv: "OPENAI_API_KEY",
			MaxTokens: dc.MaxTokens,
			FailOpen:  dc.FailOpen,
		},
		Data: DataConfig{
			Seed:      true,
			PerSource: 10,
		},
		API: APIConfig{Listen: "localhost:8080"},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load decodes path over Default and applies environment overrides. An
// empty path skips the file. The format follows the extension: .toml is
// TOML, .yaml and .yml are YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("config %s: unsupported extension %q", path, filepath.Ext(path))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Storage.DBPath = envOr("EVOLVE_DB", cfg.Storage.DBPath)
	if addr := os.Getenv("EVOLVE_AGENT_ADDR"); addr != "" {
		cfg.Agent.Addr = addr
		cfg.Agent.Backend = "grpc"
	}
	cfg.Log.Level = strings.ToLower(envOr("EVOLVE_LOG_LEVEL", cfg.Log.Level))
	cfg.API.Listen = envOr("EVOLVE_LISTEN", cfg.API.Listen)
	if v := os.Getenv("EVOLVE_MAX_ROUNDS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EVOLVE_MAX_ROUNDS: %w", err)
		}
		cfg.Evolution.MaxRounds = n
	}

	keyEnv := cfg.DeepCheck.APIKeyEnv
	if keyEnv == "" {
		keyEnv = "OPENAI_API_KEY"
	}
	cfg.DeepCheck.APIKey = os.Getenv(keyEnv)
	return nil
}

// Validate checks the runtime settings and the evolution config.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	for _, section := range []any{c.Optimizer, c.Agent, c.DeepCheck, c.Data, c.API, c.Log} {
		if err := v.Struct(section); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) && len(verrs) > 0 {
				fe := verrs[0]
				return fmt.Errorf("invalid config %s: failed %s", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("validate config: %w", err)
		}
	}
	if c.DeepCheck.Enabled && c.DeepCheck.APIKey == "" {
		return fmt.Errorf("invalid config DeepCheck: %s is not set", c.DeepCheck.APIKeyEnv)
	}
	return c.Evolution.Validate()
}

// OptimizerSettings converts the optimizer section.
func (c Config) OptimizerSettings() optimize.Config {
	return optimize.Config{BaseStep: c.Optimizer.BaseStep, Decay: c.Optimizer.Decay}
}

// DeepCheckSettings converts the deep-check section.
func (c Config) DeepCheckSettings() llmcheck.Config {
	return llmcheck.Config{
		Model:     c.DeepCheck.Model,
		MaxTokens: c.DeepCheck.MaxTokens,
		FailOpen:  c.DeepCheck.FailOpen,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
