// Package logging constructs the shared structured logger used across the
// pipeline. Every diagnostic decision is logged with structured fields for
// audit trails.
package logging

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/precision-dx-pipeline/internal/domain"
)

// NewLogger builds a logrus logger from the logging configuration.
func NewLogger(cfg domain.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	switch cfg.Output {
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		logger.SetOutput(os.Stdout)
	}

	return logger
}
