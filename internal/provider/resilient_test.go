package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/precision-dx-pipeline/internal/domain"
)

type flakyProvider struct {
	err   error
	calls int
}

func (f *flakyProvider) GenerateDifferential(ctx context.Context, req Request) ([]domain.DxCandidate, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []domain.DxCandidate{{ICD10: "J00", Label: "Common Cold", P: 0.75}}, nil
}

func (f *flakyProvider) GenerateEmergencyDifferential(ctx context.Context, req Request) ([]domain.DxCandidate, error) {
	return f.GenerateDifferential(ctx, req)
}

func resilienceConfig() domain.ProviderConfig {
	return domain.ProviderConfig{
		Timeout:             time.Second,
		RateLimit:           1000,
		RateBurst:           1000,
		BreakerMaxRequests:  1,
		BreakerInterval:     time.Minute,
		BreakerTimeout:      time.Minute,
		BreakerMinRequests:  2,
		BreakerFailureRatio: 0.5,
	}
}

func TestResilientPassesThrough(t *testing.T) {
	inner := &flakyProvider{}
	r := NewResilient(inner, testLogger(), resilienceConfig())

	differential, err := r.GenerateDifferential(context.Background(), Request{})
	require.NoError(t, err)
	require.Len(t, differential, 1)
	assert.Equal(t, "J00", differential[0].ICD10)
}

func TestResilientWrapsFailures(t *testing.T) {
	inner := &flakyProvider{err: errors.New("backend down")}
	r := NewResilient(inner, testLogger(), resilienceConfig())

	_, err := r.GenerateDifferential(context.Background(), Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diagnosis generation failed")
}

func TestResilientBreakerOpens(t *testing.T) {
	inner := &flakyProvider{err: errors.New("backend down")}
	r := NewResilient(inner, testLogger(), resilienceConfig())
	ctx := context.Background()

	// Trip the breaker with consecutive failures.
	for i := 0; i < 3; i++ {
		_, _ = r.GenerateDifferential(ctx, Request{})
	}

	_, err := r.GenerateDifferential(ctx, Request{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)

	// Inner provider is no longer reached once the breaker is open.
	callsWhenOpen := inner.calls
	_, _ = r.GenerateDifferential(ctx, Request{})
	assert.Equal(t, callsWhenOpen, inner.calls)
}
