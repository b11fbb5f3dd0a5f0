package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime settings. Values come from an optional YAML file
// overridden by environment variables (MEMAGENT_* wins over the file).
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	// LLM endpoint (OpenAI-compatible chat completions).
	LLM LLMConfig `yaml:"llm"`

	// Photo library service (search + picker + upload).
	Photos PhotosConfig `yaml:"photos"`

	// Image generation service.
	ImageGen ImageGenConfig `yaml:"imagegen"`

	// Token budget ceilings.
	Budget BudgetConfig `yaml:"budget"`

	// Session cache sizing.
	SessionTTL  time.Duration `yaml:"session_ttl"`
	MaxSessions int           `yaml:"max_sessions"`

	// Per-user request rate limit (requests per minute, with burst).
	UserRatePerMinute int `yaml:"user_rate_per_minute"`
	UserRateBurst     int `yaml:"user_rate_burst"`

	// Path for the sqlite usage database. Empty means in-memory records only.
	UsageDBPath string `yaml:"usage_db_path"`
}

type LLMConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	CollectorModel string `yaml:"collector_model"`
	ScreenerModel  string `yaml:"screener_model"`
}

type PhotosConfig struct {
	BaseURL       string        `yaml:"base_url"`
	PickerBaseURL string        `yaml:"picker_base_url"`
	SearchTimeout time.Duration `yaml:"search_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	PollTimeout   time.Duration `yaml:"poll_timeout"`
}

type ImageGenConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
}

type BudgetConfig struct {
	MaxTokensPerSession   int     `yaml:"max_tokens_per_session"`
	MaxTokensPerUserDaily int     `yaml:"max_tokens_per_user_daily"`
	WarnThreshold         float64 `yaml:"warn_threshold"`
}

// Load reads the YAML file at path (if non-empty and present), applies
// environment overrides, fills defaults and validates.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setStr(&c.ListenAddr, "MEMAGENT_LISTEN_ADDR")
	setStr(&c.LogLevel, "MEMAGENT_LOG_LEVEL")
	setStr(&c.LLM.BaseURL, "MEMAGENT_LLM_BASE_URL")
	setStr(&c.LLM.APIKey, "MEMAGENT_LLM_API_KEY")
	setStr(&c.LLM.CollectorModel, "MEMAGENT_COLLECTOR_MODEL")
	setStr(&c.LLM.ScreenerModel, "MEMAGENT_SCREENER_MODEL")
	setStr(&c.Photos.BaseURL, "MEMAGENT_PHOTOS_BASE_URL")
	setStr(&c.Photos.PickerBaseURL, "MEMAGENT_PICKER_BASE_URL")
	setStr(&c.ImageGen.BaseURL, "MEMAGENT_IMAGEGEN_BASE_URL")
	setStr(&c.ImageGen.APIKey, "MEMAGENT_IMAGEGEN_API_KEY")
	setStr(&c.ImageGen.Model, "MEMAGENT_IMAGEGEN_MODEL")
	setStr(&c.UsageDBPath, "MEMAGENT_USAGE_DB")
	setInt(&c.Budget.MaxTokensPerSession, "MEMAGENT_MAX_TOKENS_PER_SESSION")
	setInt(&c.Budget.MaxTokensPerUserDaily, "MEMAGENT_MAX_TOKENS_PER_USER_DAILY")
	setInt(&c.UserRatePerMinute, "MEMAGENT_USER_RATE_PER_MINUTE")
	setInt(&c.MaxSessions, "MEMAGENT_MAX_SESSIONS")
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8000"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LLM.CollectorModel == "" {
		c.LLM.CollectorModel = "gpt-4o-mini"
	}
	if c.LLM.ScreenerModel == "" {
		c.LLM.ScreenerModel = c.LLM.CollectorModel
	}
	if c.Photos.SearchTimeout <= 0 {
		c.Photos.SearchTimeout = 10 * time.Second
	}
	if c.Photos.PollInterval <= 0 {
		c.Photos.PollInterval = 3 * time.Second
	}
	if c.Photos.PollTimeout <= 0 {
		c.Photos.PollTimeout = 120 * time.Second
	}
	if c.Budget.MaxTokensPerSession <= 0 {
		c.Budget.MaxTokensPerSession = 15000
	}
	if c.Budget.MaxTokensPerUserDaily <= 0 {
		c.Budget.MaxTokensPerUserDaily = 50000
	}
	if c.Budget.WarnThreshold <= 0 || c.Budget.WarnThreshold > 1 {
		c.Budget.WarnThreshold = 0.8
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = 30 * time.Minute
	}
	if c.MaxSessions <= 0 {
		c.MaxSessions = 1000
	}
	if c.UserRatePerMinute <= 0 {
		c.UserRatePerMinute = 30
	}
	if c.UserRateBurst <= 0 {
		c.UserRateBurst = 10
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		return fmt.Errorf("config incomplete: llm api_key is required")
	}
	if strings.TrimSpace(c.Photos.BaseURL) == "" {
		return fmt.Errorf("config incomplete: photos base_url is required")
	}
	if strings.TrimSpace(c.ImageGen.BaseURL) == "" {
		return fmt.Errorf("config incomplete: imagegen base_url is required")
	}
	if c.Photos.PickerBaseURL == "" {
		c.Photos.PickerBaseURL = strings.TrimRight(c.Photos.BaseURL, "/") + "/picker"
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
