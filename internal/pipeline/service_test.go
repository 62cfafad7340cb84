package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/precision-dx-pipeline/internal/calculator"
	"github.com/precision-dx-pipeline/internal/critic"
	"github.com/precision-dx-pipeline/internal/domain"
	"github.com/precision-dx-pipeline/internal/provider"
	"github.com/precision-dx-pipeline/internal/signal"
	"github.com/precision-dx-pipeline/internal/uncertainty"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testConfig() *domain.Config {
	return &domain.Config{
		Signal:     domain.SignalConfig{CacheSize: 16},
		Calculator: domain.CalculatorConfig{MinCompleteness: 0.8},
		Critic: domain.CriticConfig{
			MinSafetyCertainty:       0.85,
			MinCalculatorConfidence:  0.8,
			HighRiskEvidenceMaxP:     0.3,
			MeningitisRedFlagMinP:    0.3,
			SeriousSpecificityMinP:   0.4,
			MaxDifferentialProbTotal: 1.1,
		},
		Uncertainty: domain.UncertaintyConfig{
			CoverageTarget:          0.9,
			DifferentialTemperature: 0.4,
			MinSafetyCertainty:      0.85,
			MinDiagnosticCoverage:   0.6,
			CriticalCoverageFloor:   0.8,
			MaxVOIQuestions:         3,
			MinVOIScore:             0.15,
		},
	}
}

func newTestService(t *testing.T, prov provider.DiagnosisProvider) *Service {
	t.Helper()
	cfg := testConfig()
	logger := testLogger()

	extractor, err := signal.NewExtractor(logger, cfg.Signal.CacheSize)
	require.NoError(t, err)
	router := signal.NewRouter(logger, cfg.Uncertainty.MaxVOIQuestions)
	registry := calculator.NewRegistry(logger, cfg.Calculator.MinCompleteness)
	quantifier := uncertainty.NewQuantifier(logger, cfg.Uncertainty)
	abstention := uncertainty.NewEngine(logger, cfg.Uncertainty)
	ruleCritic := critic.NewCritic(logger, cfg.Critic)

	if prov == nil {
		prov = provider.NewRuleBased(logger)
	}
	executor := NewExecutor(logger, prov, registry, quantifier, cfg.Uncertainty)
	return NewService(logger, extractor, router, executor, ruleCritic, quantifier, abstention)
}

type failingProvider struct{}

func (failingProvider) GenerateDifferential(context.Context, provider.Request) ([]domain.DxCandidate, error) {
	return nil, errors.New("backend down")
}

func (failingProvider) GenerateEmergencyDifferential(context.Context, provider.Request) ([]domain.DxCandidate, error) {
	return nil, errors.New("backend down")
}

type emptyProvider struct{}

func (emptyProvider) GenerateDifferential(context.Context, provider.Request) ([]domain.DxCandidate, error) {
	return []domain.DxCandidate{}, nil
}

func (emptyProvider) GenerateEmergencyDifferential(context.Context, provider.Request) ([]domain.DxCandidate, error) {
	return []domain.DxCandidate{}, nil
}

type panickingProvider struct{}

func (panickingProvider) GenerateDifferential(context.Context, provider.Request) ([]domain.DxCandidate, error) {
	panic("boom")
}

func (panickingProvider) GenerateEmergencyDifferential(context.Context, provider.Request) ([]domain.DxCandidate, error) {
	panic("boom")
}

func TestProcessFeverConsultation(t *testing.T) {
	service := newTestService(t, nil)

	card := service.Process(context.Background(), ConsultationRequest{
		Message:     "I have a fever and a runny nose",
		PatientData: map[string]any{"age": 30},
	})

	require.NotNil(t, card)
	require.NotEmpty(t, card.Differential)
	assert.Equal(t, "J00", card.Differential[0].ICD10)
	assert.Equal(t, domain.SEMI_URGENT, card.Triage.Level)
	assert.Empty(t, card.Uncertainty.AbstentionReason)
	assert.Greater(t, card.OverallConfidence, 0.8)
	assert.Equal(t, string(domain.STANDARD_BRANCH), card.ProcessingMetadata["branch"])
	assert.NoError(t, card.Validate())

	// Guideline-cited treatment for the leading diagnosis.
	require.Len(t, card.TreatmentCandidates, 1)
	assert.Equal(t, "Paracetamol", card.TreatmentCandidates[0].Medication)
	assert.True(t, card.TreatmentCandidates[0].Evidence.HasGuidelineCitation())

	// Identifiers are filled in when absent.
	assert.NotEmpty(t, card.SessionID)
	assert.Equal(t, "unknown", card.PatientID)
	assert.Equal(t, "thai", card.Language)
	assert.Contains(t, card.ProcessingMetadata, "processing_time_ms")
}

func TestProcessEmergencyConsultation(t *testing.T) {
	service := newTestService(t, nil)

	card := service.Process(context.Background(), ConsultationRequest{
		Message: "sudden chest pain and shortness of breath, this is an emergency",
	})

	require.NotEmpty(t, card.Differential)
	assert.Equal(t, "I21.9", card.Differential[0].ICD10)
	assert.Equal(t, domain.EMERGENCY, card.Triage.Level)
	assert.Empty(t, card.TreatmentCandidates)
	require.Len(t, card.Tests, 1)
	assert.Equal(t, "Emergency assessment", card.Tests[0].Name)
	assert.Equal(t, 0.85, card.OverallConfidence)
	assert.Equal(t, string(domain.EMERGENCY_BRANCH), card.ProcessingMetadata["branch"])
	assert.NoError(t, card.Validate())
}

func TestProcessThaiEmergencyConsultation(t *testing.T) {
	service := newTestService(t, nil)

	card := service.Process(context.Background(), ConsultationRequest{
		Message: "ปวดหน้าอกเฉียบพลัน หายใจไม่ออก เร่งด่วน",
	})

	require.NotEmpty(t, card.Differential)
	assert.Equal(t, "I21.9", card.Differential[0].ICD10)
	assert.Equal(t, domain.EMERGENCY, card.Triage.Level)
}

func TestProcessVagueSymptomsAbstains(t *testing.T) {
	service := newTestService(t, nil)

	card := service.Process(context.Background(), ConsultationRequest{
		Message: "I feel a bit tired lately",
	})

	// Draft fails the safety certainty floor, the fallback's coverage then
	// triggers abstention: the user gets a consultation referral, never a
	// low-confidence diagnosis.
	require.NotEmpty(t, card.Differential)
	assert.Equal(t, "Z71.1", card.Differential[0].ICD10)
	assert.Equal(t, 1.0, card.Differential[0].P)
	assert.Equal(t, domain.SEMI_URGENT, card.Triage.Level)
	assert.Zero(t, card.OverallConfidence)
	assert.Equal(t, domain.AbstainRequestMoreInfo.String(), card.ProcessingMetadata["abstention_action"])
	assert.NotEmpty(t, card.Uncertainty.AbstentionReason)
}

func TestProcessProviderFailureDegradesSafely(t *testing.T) {
	service := newTestService(t, failingProvider{})

	card := service.Process(context.Background(), ConsultationRequest{
		Message: "I have a fever",
	})

	// No differential means zero safety certainty; the pipeline ends in an
	// abstention card rather than an error or an empty result.
	require.NotEmpty(t, card.Differential)
	assert.Equal(t, "Z71.1", card.Differential[0].ICD10)
	assert.Contains(t, card.ProcessingMetadata, "abstention_action")
}

func TestProcessEmptyDifferential(t *testing.T) {
	t.Run("standard branch ends in abstention", func(t *testing.T) {
		service := newTestService(t, emptyProvider{})

		card := service.Process(context.Background(), ConsultationRequest{
			Message: "I have a fever",
		})

		require.NotEmpty(t, card.Differential)
		assert.Equal(t, "Z71.1", card.Differential[0].ICD10)
		assert.Contains(t, card.ProcessingMetadata, "abstention_action")
	})

	t.Run("emergency branch yields the error card", func(t *testing.T) {
		service := newTestService(t, emptyProvider{})

		card := service.Process(context.Background(), ConsultationRequest{
			Message: "this is an emergency",
		})

		require.NotEmpty(t, card.Differential)
		assert.Equal(t, "Z99.9", card.Differential[0].ICD10)
		assert.Equal(t, domain.URGENT, card.Triage.Level)
	})
}

func TestProcessPanicYieldsErrorCard(t *testing.T) {
	service := newTestService(t, panickingProvider{})

	// The emergency branch calls the provider directly, so the panic is
	// recovered at the service level and yields the error card.
	card := service.Process(context.Background(), ConsultationRequest{
		Message: "this is an emergency",
	})

	require.NotEmpty(t, card.Differential)
	assert.Equal(t, "Z99.9", card.Differential[0].ICD10)
	assert.Equal(t, domain.URGENT, card.Triage.Level)
	assert.Contains(t, card.Uncertainty.AbstentionReason, "System error")
}

func TestProcessStandardBranchPanicDegrades(t *testing.T) {
	service := newTestService(t, panickingProvider{})

	card := service.Process(context.Background(), ConsultationRequest{
		Message: "I have a fever",
	})

	// The differential stage degrades instead of crashing the worker, and
	// the empty differential ends in abstention.
	require.NotEmpty(t, card.Differential)
	assert.Equal(t, "Z71.1", card.Differential[0].ICD10)
	assert.Contains(t, card.ProcessingMetadata, "abstention_action")
}

func TestProcessMetrics(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	service.Process(ctx, ConsultationRequest{Message: "I have a fever and a runny nose"})
	service.Process(ctx, ConsultationRequest{Message: "chest pain emergency"})
	service.Process(ctx, ConsultationRequest{Message: "I feel a bit tired lately"})

	snapshot := service.Metrics().Snapshot()

	assert.Equal(t, int64(3), snapshot.Consultations)
	assert.Equal(t, int64(1), snapshot.Emergencies)
	assert.Equal(t, int64(1), snapshot.CriticFailures)
	assert.Equal(t, int64(1), snapshot.Abstentions)
	assert.Equal(t, int64(0), snapshot.Errors)
}
