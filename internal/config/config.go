// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Evaluation EvaluationConfig `yaml:"evaluation" mapstructure:"evaluation"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	// ScoreRatePerSec caps score submissions per second across evaluator
	// sessions; ScoreRateBurst is the token-bucket burst size.
	ScoreRatePerSec float64 `yaml:"score_rate_per_sec" mapstructure:"score_rate_per_sec"`
	ScoreRateBurst  int     `yaml:"score_rate_burst" mapstructure:"score_rate_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// EvaluationConfig holds the qualification and tie-break policy knobs the
// surrounding product leaves to per-deployment configuration.
type EvaluationConfig struct {
	// MinEvaluators is the number of distinct evaluators required per
	// criterion before a bid counts as fully scored.
	MinEvaluators int `yaml:"min_evaluators" mapstructure:"min_evaluators"`
	// TieEpsilon is the spread within which two primary ranking keys are
	// treated as tied.
	TieEpsilon float64 `yaml:"tie_epsilon" mapstructure:"tie_epsilon"`
	// WeightTolerance is how far QCBS weights may drift from summing to 1.
	WeightTolerance float64 `yaml:"weight_tolerance" mapstructure:"weight_tolerance"`
	// MandatoryPassThreshold is the minimum evaluator-average, as a fraction
	// of a criterion's max score, a bid must reach on every mandatory
	// criterion. Zero means any score counts.
	MandatoryPassThreshold float64 `yaml:"mandatory_pass_threshold" mapstructure:"mandatory_pass_threshold"`
	// Default QCBS weight split, used when the caller supplies none.
	DefaultTechnicalWeight float64 `yaml:"default_technical_weight" mapstructure:"default_technical_weight"`
	DefaultFinancialWeight float64 `yaml:"default_financial_weight" mapstructure:"default_financial_weight"`
}

// AnthropicConfig holds settings for the optional AI evaluation brief.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TENDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "tender.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.score_rate_per_sec", 25.0)
	v.SetDefault("server.score_rate_burst", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("evaluation.min_evaluators", 1)
	v.SetDefault("evaluation.tie_epsilon", 0.01)
	v.SetDefault("evaluation.weight_tolerance", 1e-6)
	v.SetDefault("evaluation.mandatory_pass_threshold", 0.0)
	v.SetDefault("evaluation.default_technical_weight", 0.7)
	v.SetDefault("evaluation.default_financial_weight", 0.3)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
