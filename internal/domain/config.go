package domain

import "time"

// Config is the complete pipeline configuration. Every threshold and weight
// the pipeline calibrates against lives here; nothing is learned at runtime.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging"`
	Signal      SignalConfig      `mapstructure:"signal"`
	Calculator  CalculatorConfig  `mapstructure:"calculator"`
	Critic      CriticConfig      `mapstructure:"critic"`
	Uncertainty UncertaintyConfig `mapstructure:"uncertainty"`
	Provider    ProviderConfig    `mapstructure:"provider"`
}

// LoggingConfig configures structured logging output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
	Output string `mapstructure:"output"`
}

// SignalConfig configures signal extraction.
type SignalConfig struct {
	CacheSize int `mapstructure:"cache_size"` // LRU entries for extraction memoization
}

// CalculatorConfig configures the calculator registry.
type CalculatorConfig struct {
	MinCompleteness float64 `mapstructure:"min_completeness"` // captured-field bar for applicability
}

// CriticConfig holds the blocking-rule thresholds.
type CriticConfig struct {
	MinSafetyCertainty       float64 `mapstructure:"min_safety_certainty"`
	MinCalculatorConfidence  float64 `mapstructure:"min_calculator_confidence"`
	HighRiskEvidenceMaxP     float64 `mapstructure:"high_risk_evidence_max_p"`
	MeningitisRedFlagMinP    float64 `mapstructure:"meningitis_red_flag_min_p"`
	SeriousSpecificityMinP   float64 `mapstructure:"serious_specificity_min_p"`
	MaxDifferentialProbTotal float64 `mapstructure:"max_differential_prob_total"`
}

// UncertaintyConfig configures calibration, prediction sets and VOI scoring.
type UncertaintyConfig struct {
	CoverageTarget          float64 `mapstructure:"coverage_target"`
	DifferentialTemperature float64 `mapstructure:"differential_temperature"`
	MinSafetyCertainty      float64 `mapstructure:"min_safety_certainty"`
	MinDiagnosticCoverage   float64 `mapstructure:"min_diagnostic_coverage"`
	CriticalCoverageFloor   float64 `mapstructure:"critical_coverage_floor"`
	MaxVOIQuestions         int     `mapstructure:"max_voi_questions"`
	MinVOIScore             float64 `mapstructure:"min_voi_score"`
}

// ProviderConfig configures the diagnosis-generation collaborator wrapper:
// per-call timeout, circuit breaker and rate limiting.
type ProviderConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	RateLimit           float64       `mapstructure:"rate_limit"` // requests per second
	RateBurst           int           `mapstructure:"rate_burst"`
	BreakerMaxRequests  uint32        `mapstructure:"breaker_max_requests"`
	BreakerInterval     time.Duration `mapstructure:"breaker_interval"`
	BreakerTimeout      time.Duration `mapstructure:"breaker_timeout"`
	BreakerMinRequests  uint32        `mapstructure:"breaker_min_requests"`
	BreakerFailureRatio float64       `mapstructure:"breaker_failure_ratio"`
}
