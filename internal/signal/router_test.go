package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/precision-dx-pipeline/internal/domain"
)

func TestCreatePlanEmergencyBranch(t *testing.T) {
	router := NewRouter(testLogger(), 3)

	t.Run("emergency keywords", func(t *testing.T) {
		plan := router.CreatePlan(domain.RouteSignals{EmergencyKeywords: []string{"emergency"}})

		assert.True(t, plan.IsEmergency())
		assert.Equal(t, []domain.StepName{domain.StepEmergencyTriage}, plan.Steps)
		assert.Equal(t, []domain.RoutingReason{domain.EMERGENCY_KEYWORDS}, plan.RoutingReasons)
	})

	t.Run("high-risk combination without keywords", func(t *testing.T) {
		plan := router.CreatePlan(domain.RouteSignals{ChestPain: true, BreathingDifficulty: true})

		assert.True(t, plan.IsEmergency())
		assert.Equal(t,
			[]domain.RoutingReason{domain.CHEST_PAIN_RISK, domain.RESPIRATORY_DISTRESS},
			plan.RoutingReasons)
	})
}

func TestCreatePlanStandardBranch(t *testing.T) {
	router := NewRouter(testLogger(), 3)

	plan := router.CreatePlan(domain.RouteSignals{Fever: true, SevereHeadache: true})

	assert.False(t, plan.IsEmergency())
	assert.Equal(t, domain.STANDARD_BRANCH, plan.Branch)
	assert.Equal(t, []domain.StepName{
		domain.StepDifferential,
		domain.StepCalculators,
		domain.StepTriage,
		domain.StepTests,
		domain.StepTreatment,
	}, plan.Steps)
	assert.Equal(t, []domain.RoutingReason{domain.FEVER_HEADACHE_REDFLAGS}, plan.RoutingReasons)
	assert.Equal(t, 3, plan.MaxQuestions)
}

func TestStandardReasonsMapping(t *testing.T) {
	router := NewRouter(testLogger(), 3)

	tests := []struct {
		name    string
		signals domain.RouteSignals
		want    []domain.RoutingReason
	}{
		{
			name:    "chest pain only",
			signals: domain.RouteSignals{ChestPain: true},
			want:    []domain.RoutingReason{domain.CHEST_PAIN_RISK},
		},
		{
			name:    "neurological deficit",
			signals: domain.RouteSignals{NeurologicalDeficit: true},
			want:    []domain.RoutingReason{domain.NEURO_DEFICIT},
		},
		{
			name:    "abdominal pain",
			signals: domain.RouteSignals{AbdominalPain: true},
			want:    []domain.RoutingReason{domain.ABDOMINAL_PAIN},
		},
		{
			name:    "no signals default",
			signals: domain.RouteSignals{},
			want:    []domain.RoutingReason{domain.BASIC_SYMPTOMS},
		},
		{
			name:    "fever alone is basic",
			signals: domain.RouteSignals{Fever: true},
			want:    []domain.RoutingReason{domain.BASIC_SYMPTOMS},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := router.CreatePlan(tt.signals)
			assert.Equal(t, tt.want, plan.RoutingReasons)
		})
	}
}

func TestRoutingRationale(t *testing.T) {
	rationale := RoutingRationale([]domain.RoutingReason{
		domain.CHEST_PAIN_RISK,
		domain.RESPIRATORY_DISTRESS,
	})

	assert.Contains(t, rationale, "cardiac risk stratification")
	assert.Contains(t, rationale, "PE/respiratory assessment")
	assert.Contains(t, rationale, "; ")

	assert.Equal(t, domain.BASIC_SYMPTOMS.Rationale(), RoutingRationale(nil))
}
