// Package config loads and validates pipeline configuration from file,
// environment and defaults.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/precision-dx-pipeline/internal/domain"
)

// Manager loads pipeline configuration using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager.
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources.
func (m *Manager) loadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/precision-dx-pipeline/")

	viper.SetEnvPrefix("PRECISION_DX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and env vars suffice.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values. The numeric defaults are the
// published calibration parameters of the pipeline, not tuning suggestions.
func (m *Manager) setDefaults() {
	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	// Signal extraction defaults
	viper.SetDefault("signal.cache_size", 512)

	// Calculator defaults
	viper.SetDefault("calculator.min_completeness", 0.8)

	// Critic rule thresholds
	viper.SetDefault("critic.min_safety_certainty", 0.85)
	viper.SetDefault("critic.min_calculator_confidence", 0.8)
	viper.SetDefault("critic.high_risk_evidence_max_p", 0.3)
	viper.SetDefault("critic.meningitis_red_flag_min_p", 0.3)
	viper.SetDefault("critic.serious_specificity_min_p", 0.4)
	viper.SetDefault("critic.max_differential_prob_total", 1.1)

	// Uncertainty quantification defaults
	viper.SetDefault("uncertainty.coverage_target", 0.9)
	viper.SetDefault("uncertainty.differential_temperature", 0.4)
	viper.SetDefault("uncertainty.min_safety_certainty", 0.85)
	viper.SetDefault("uncertainty.min_diagnostic_coverage", 0.6)
	viper.SetDefault("uncertainty.critical_coverage_floor", 0.8)
	viper.SetDefault("uncertainty.max_voi_questions", 3)
	viper.SetDefault("uncertainty.min_voi_score", 0.15)

	// Diagnosis provider resilience defaults
	viper.SetDefault("provider.timeout", "5s")
	viper.SetDefault("provider.rate_limit", 20)
	viper.SetDefault("provider.rate_burst", 5)
	viper.SetDefault("provider.breaker_max_requests", 3)
	viper.SetDefault("provider.breaker_interval", "60s")
	viper.SetDefault("provider.breaker_timeout", "30s")
	viper.SetDefault("provider.breaker_min_requests", 5)
	viper.SetDefault("provider.breaker_failure_ratio", 0.6)
}

// GetConfig returns the complete configuration.
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// Reload reloads the configuration.
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration.
func (m *Manager) Validate() error {
	config := m.config

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	if config.Signal.CacheSize <= 0 {
		return fmt.Errorf("signal cache size must be positive: %d", config.Signal.CacheSize)
	}

	if config.Calculator.MinCompleteness <= 0 || config.Calculator.MinCompleteness > 1 {
		return fmt.Errorf("calculator completeness bar must be in (0,1]: %f", config.Calculator.MinCompleteness)
	}

	if config.Uncertainty.CoverageTarget <= 0 || config.Uncertainty.CoverageTarget > 1 {
		return fmt.Errorf("coverage target must be in (0,1]: %f", config.Uncertainty.CoverageTarget)
	}
	if config.Uncertainty.MinSafetyCertainty < 0 || config.Uncertainty.MinSafetyCertainty > 1 {
		return fmt.Errorf("minimum safety certainty must be in [0,1]: %f", config.Uncertainty.MinSafetyCertainty)
	}

	if config.Critic.MinSafetyCertainty < 0 || config.Critic.MinSafetyCertainty > 1 {
		return fmt.Errorf("critic safety certainty floor must be in [0,1]: %f", config.Critic.MinSafetyCertainty)
	}

	if config.Provider.Timeout <= 0 {
		return fmt.Errorf("provider timeout must be positive: %s", config.Provider.Timeout)
	}

	return nil
}
