// Package config provides YAML-based configuration loading for Frictiondesk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/frictiondesk/frictiondesk/internal/models"
)

// Config is the top-level Frictiondesk configuration, loaded from
// frictiondesk.yaml.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Privacy  PrivacyConfig  `yaml:"privacy"`
	Chat     ChatConfig     `yaml:"chat"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	RICE     RICEConfig     `yaml:"rice"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// DatabaseConfig selects the storage backend. Driver "sqlite" uses Path;
// driver "mysql" uses Host/Port/Database.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LLMConfig holds settings for the language-model collaborator.
type LLMConfig struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// PrivacyConfig gates metric disclosure.
type PrivacyConfig struct {
	// MinRespondents is the minimum completed-response count before any
	// aggregate score may be disclosed.
	MinRespondents int `yaml:"min_respondents"`
}

// ChatConfig tunes the conversational survey engine.
type ChatConfig struct {
	// MinUserTurns is how many user messages a dimension needs before
	// rating extraction is attempted.
	MinUserTurns int `yaml:"min_user_turns"`
	// LowConfidence is the threshold below which a confirmation prompt is
	// phrased as a tentative guess. Extraction never blocks on confidence.
	LowConfidence float64 `yaml:"low_confidence"`
	// MaxConfirmRetries is how many unresolvable replies the confirmation
	// workflow tolerates before falling back to the AI-inferred score.
	MaxConfirmRetries int `yaml:"max_confirm_retries"`
	// AbandonAfterMinutes is the inactivity window before the sweep marks a
	// session abandoned.
	AbandonAfterMinutes int `yaml:"abandon_after_minutes"`
	// SweepCron is a 5-field cron expression for the abandonment sweep.
	SweepCron string `yaml:"sweep_cron"`
}

// MetricsConfig maps friction dimensions to the four metrics. Keys are
// metric names, values map dimension -> weight. Weights within a metric are
// normalized at load time.
type MetricsConfig struct {
	Weights map[string]map[string]float64 `yaml:"weights"`
	// TrendDeadBand is the composite delta (0-100 points) below which the
	// trend is reported stable.
	TrendDeadBand float64 `yaml:"trend_dead_band"`
}

// RICEConfig tunes opportunity generation.
type RICEConfig struct {
	// ImprovementThreshold is the 0-100 dimension score below which an
	// opportunity candidate is generated.
	ImprovementThreshold float64 `yaml:"improvement_threshold"`
	// EffortByDimension is the default effort estimate (person-weeks) per
	// friction dimension.
	EffortByDimension map[string]float64 `yaml:"effort_by_dimension"`
}

// NotifyConfig configures survey-close digest notifications. Empty tokens
// disable the corresponding notifier.
type NotifyConfig struct {
	SlackToken     string `yaml:"slack_token"`
	SlackChannel   string `yaml:"slack_channel"`
	DiscordToken   string `yaml:"discord_token"`
	DiscordChannel string `yaml:"discord_channel"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with all defaults applied and no file input.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// DefaultMetricWeights is the built-in dimension-to-metric mapping. Each
// metric draws on a fixed subset of the six dimensions.
func DefaultMetricWeights() map[string]map[string]float64 {
	return map[string]map[string]float64{
		string(models.MetricFlow): {
			string(models.DimClarity): 0.4,
			string(models.DimDelay):   0.6,
		},
		string(models.MetricFriction): {
			string(models.DimClarity): 0.20,
			string(models.DimTooling): 0.20,
			string(models.DimProcess): 0.20,
			string(models.DimRework):  0.20,
			string(models.DimDelay):   0.20,
		},
		string(models.MetricSafety): {
			string(models.DimRework): 0.4,
			string(models.DimSafety): 0.6,
		},
		string(models.MetricPortfolioBalance): {
			string(models.DimProcess): 0.5,
			string(models.DimDelay):   0.5,
		},
	}
}

// ApplyDefaults fills in derived and default values.
func (c *Config) ApplyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "frictiondesk.db"
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.Database == "" {
		c.Database.Database = "frictiondesk"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.TimeoutSeconds == 0 {
		c.LLM.TimeoutSeconds = 30
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 2
	}
	if c.Privacy.MinRespondents == 0 {
		c.Privacy.MinRespondents = 7
	}
	if c.Chat.MinUserTurns == 0 {
		c.Chat.MinUserTurns = 2
	}
	if c.Chat.LowConfidence == 0 {
		c.Chat.LowConfidence = 0.6
	}
	if c.Chat.MaxConfirmRetries == 0 {
		c.Chat.MaxConfirmRetries = 3
	}
	if c.Chat.AbandonAfterMinutes == 0 {
		c.Chat.AbandonAfterMinutes = 30
	}
	if c.Chat.SweepCron == "" {
		c.Chat.SweepCron = "*/5 * * * *"
	}
	if c.Metrics.Weights == nil {
		c.Metrics.Weights = DefaultMetricWeights()
	}
	if c.Metrics.TrendDeadBand == 0 {
		c.Metrics.TrendDeadBand = 5.0
	}
	if c.RICE.ImprovementThreshold == 0 {
		c.RICE.ImprovementThreshold = 70.0
	}
	if c.RICE.EffortByDimension == nil {
		c.RICE.EffortByDimension = map[string]float64{
			string(models.DimClarity): 2.0,
			string(models.DimTooling): 4.0,
			string(models.DimProcess): 3.0,
			string(models.DimRework):  3.0,
			string(models.DimDelay):   2.5,
			string(models.DimSafety):  2.0,
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be sqlite or mysql", c.Database.Driver))
	}
	if c.Chat.LowConfidence < 0 || c.Chat.LowConfidence > 1 {
		errs = append(errs, "chat.low_confidence must be within [0,1]")
	}
	if c.Privacy.MinRespondents < 1 {
		errs = append(errs, "privacy.min_respondents must be at least 1")
	}
	if c.RICE.ImprovementThreshold < 0 || c.RICE.ImprovementThreshold > 100 {
		errs = append(errs, "rice.improvement_threshold must be within [0,100]")
	}
	for metric, dims := range c.Metrics.Weights {
		switch models.MetricType(metric) {
		case models.MetricFlow, models.MetricFriction, models.MetricSafety, models.MetricPortfolioBalance:
		default:
			errs = append(errs, fmt.Sprintf("metrics.weights: unknown metric %q", metric))
		}
		for dim := range dims {
			if !models.ValidDimension(models.FrictionDimension(dim)) {
				errs = append(errs, fmt.Sprintf("metrics.weights.%s: unknown dimension %q", metric, dim))
			}
		}
	}
	for dim := range c.RICE.EffortByDimension {
		if !models.ValidDimension(models.FrictionDimension(dim)) {
			errs = append(errs, fmt.Sprintf("rice.effort_by_dimension: unknown dimension %q", dim))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// APIKey returns the LLM API key. Kept out of the YAML file so configs can
// be committed: the environment wins, then the credentials file written by
// `fdk set-key`.
func APIKey() string {
	if key := os.Getenv("FRICTIONDESK_LLM_API_KEY"); key != "" {
		return key
	}
	path, err := CredentialsPath()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// CredentialsPath is where `fdk set-key` stores the LLM API key.
func CredentialsPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve home dir: %w", err)
	}
	return filepath.Join(home, ".frictiondesk", "credentials"), nil
}
