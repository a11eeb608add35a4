package evolution

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/danielpatrickdp/triplet-evolve/internal/convergence"
	"github.com/danielpatrickdp/triplet-evolve/internal/refine"
)

// #region config
// Config controls one evolution run.
type Config struct {
	MaxIterationsPerSentence int     `json:"max_iterations_per_sentence" yaml:"max_iterations_per_sentence" toml:"max_iterations_per_sentence" validate:"gte=1"`
	MaxRounds                int     `json:"max_rounds" yaml:"max_rounds" toml:"max_rounds" validate:"gte=1"`
	ConvergenceThreshold     float64 `json:"convergence_threshold" yaml:"convergence_threshold" toml:"convergence_threshold" validate:"gt=0,lt=1"`
	TargetAccuracy           float64 `json:"target_accuracy" yaml:"target_accuracy" toml:"target_accuracy" validate:"gt=0,lte=1"`
	CrawlFrequency           int     `json:"crawl_frequency" yaml:"crawl_frequency" toml:"crawl_frequency" validate:"gte=1"`
	QualityThreshold         float64 `json:"quality_threshold" yaml:"quality_threshold" toml:"quality_threshold" validate:"gte=0,lte=1"`
	OptimizationPatience     int     `json:"optimization_patience" yaml:"optimization_patience" toml:"optimization_patience" validate:"gte=1"`
	UseUserFeedback          bool    `json:"use_user_feedback" yaml:"use_user_feedback" toml:"use_user_feedback"`
	MinDataSize              int     `json:"min_data_size" yaml:"min_data_size" toml:"min_data_size" validate:"gte=0"`
	ValidationRatio          float64 `json:"validation_ratio" yaml:"validation_ratio" toml:"validation_ratio" validate:"gt=0,lte=1"`

	Concurrency       int           `json:"concurrency" yaml:"concurrency" toml:"concurrency" validate:"gte=1"`
	CallTimeout       time.Duration `json:"call_timeout" yaml:"call_timeout" toml:"call_timeout" validate:"gt=0"`
	SentenceTimeout   time.Duration `json:"sentence_timeout" yaml:"sentence_timeout" toml:"sentence_timeout" validate:"gte=0"`
	CompletenessFloor float64       `json:"completeness_floor" yaml:"completeness_floor" toml:"completeness_floor" validate:"gte=0,lte=1"`
	IntegrityFloor    float64       `json:"integrity_floor" yaml:"integrity_floor" toml:"integrity_floor" validate:"gte=0,lte=1"`
	ApproveRating     float64       `json:"approve_rating" yaml:"approve_rating" toml:"approve_rating" validate:"gte=0,lte=10"`
}

// DefaultConfig returns the stock run settings.
func DefaultConfig() Config {
	rc := refine.DefaultConfig()
	return Config{
		MaxIterationsPerSentence: 3,
		MaxRounds:                50,
		ConvergenceThreshold:     0.02,
		TargetAccuracy:           0.85,
		CrawlFrequency:           5,
		QualityThreshold:         0.7,
		OptimizationPatience:     10,
		UseUserFeedback:          true,
		MinDataSize:              50,
		ValidationRatio:          0.2,
		Concurrency:              4,
		CallTimeout:              rc.CallTimeout,
		SentenceTimeout:          rc.SentenceTimeout,
		CompletenessFloor:        0.6,
		IntegrityFloor:           0.6,
		ApproveRating:            6,
	}
}

// Detector derives the convergence thresholds.
func (c Config) Detector() convergence.Config {
	return convergence.Config{
		TargetAccuracy:       c.TargetAccuracy,
		ConvergenceThreshold: c.ConvergenceThreshold,
		Patience:             c.OptimizationPatience,
		MaxRounds:            c.MaxRounds,
		CompletenessFloor:    c.CompletenessFloor,
		IntegrityFloor:       c.IntegrityFloor,
		Weights:              convergence.DefaultWeights(),
	}
}

// Refine derives the controller timeouts.
func (c Config) Refine() refine.Config {
	return refine.Config{CallTimeout: c.CallTimeout, SentenceTimeout: c.SentenceTimeout}
}
// #endregion config

// #region errors
// ConfigurationError reports the first out-of-range setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// ErrDataSourceUnavailable marks a refresh that could not fetch data. The
// round continues with the previous batch.
var ErrDataSourceUnavailable = errors.New("data source unavailable")
// #endregion errors

// #region validate
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateTimeouts, Config{})
	return v
}

// validateTimeouts rejects a sentence budget shorter than a single call's.
// Struct-level rules run after the field tags.
func validateTimeouts(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	if c.SentenceTimeout > 0 && c.SentenceTimeout < c.CallTimeout {
		sl.ReportError(c.SentenceTimeout, "SentenceTimeout", "SentenceTimeout", "gte_call_timeout", "")
	}
}

// Validate checks every field and the cross-field rules, and returns a
// *ConfigurationError for the first violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		fe := ve[0]
		return &ConfigurationError{
			Field:  toSnake(fe.Field()),
			Reason: describe(fe),
		}
	}
	return &ConfigurationError{Field: "config", Reason: err.Error()}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gte":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("must be > %s, got %v", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	case "lt":
		return fmt.Sprintf("must be < %s, got %v", fe.Param(), fe.Value())
	case "gte_call_timeout":
		return fmt.Sprintf("must be 0 or >= call_timeout, got %v", fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func toSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
// #endregion validate
