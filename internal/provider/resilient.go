package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/precision-dx-pipeline/internal/domain"
)

// Resilient wraps a DiagnosisProvider with a per-call timeout, a rate
// limiter and a circuit breaker. The rule-based provider never fails, but a
// model-backed provider does, and the pipeline must degrade to its fallback
// card rather than hang.
type Resilient struct {
	inner   DiagnosisProvider
	logger  *logrus.Logger
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// NewResilient wraps the given provider according to config.
func NewResilient(inner DiagnosisProvider, logger *logrus.Logger, cfg domain.ProviderConfig) *Resilient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "diagnosis-provider",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= cfg.BreakerMinRequests && failureRatio >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &Resilient{
		inner:   inner,
		logger:  logger,
		timeout: cfg.Timeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		breaker: breaker,
	}
}

// GenerateDifferential delegates through the resilience wrappers.
func (r *Resilient) GenerateDifferential(ctx context.Context, req Request) ([]domain.DxCandidate, error) {
	return r.execute(ctx, req, r.inner.GenerateDifferential)
}

// GenerateEmergencyDifferential delegates through the resilience wrappers.
func (r *Resilient) GenerateEmergencyDifferential(ctx context.Context, req Request) ([]domain.DxCandidate, error) {
	return r.execute(ctx, req, r.inner.GenerateEmergencyDifferential)
}

func (r *Resilient) execute(
	ctx context.Context,
	req Request,
	call func(context.Context, Request) ([]domain.DxCandidate, error),
) ([]domain.DxCandidate, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("provider rate limit: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return call(callCtx, req)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("%w: circuit breaker open", domain.ErrProviderUnavailable)
		}
		return nil, fmt.Errorf("diagnosis generation failed: %w", err)
	}

	return result.([]domain.DxCandidate), nil
}

// BreakerCounts exposes circuit breaker statistics for monitoring.
func (r *Resilient) BreakerCounts() gobreaker.Counts {
	return r.breaker.Counts()
}
