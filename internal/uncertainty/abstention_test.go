package uncertainty

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/precision-dx-pipeline/internal/domain"
)

func TestShouldAbstain(t *testing.T) {
	engine := NewEngine(testLogger(), defaultConfig())

	tests := []struct {
		name        string
		uncertainty domain.Uncertainty
		wantAbstain bool
		wantAction  domain.AbstentionAction
	}{
		{
			name: "low coverage requests more information",
			uncertainty: domain.Uncertainty{
				DiagnosticCoverage: 0.5,
				SafetyCertainty:    0.9,
				PredictionSetSize:  1,
			},
			wantAbstain: true,
			wantAction:  domain.AbstainRequestMoreInfo,
		},
		{
			name: "safety concern escalates to physician",
			uncertainty: domain.Uncertainty{
				DiagnosticCoverage: 0.7,
				SafetyCertainty:    0.8,
				PredictionSetSize:  2,
			},
			wantAbstain: true,
			wantAction:  domain.AbstainEscalateToPhysician,
		},
		{
			name: "wide prediction set requests additional tests",
			uncertainty: domain.Uncertainty{
				DiagnosticCoverage: 0.75,
				SafetyCertainty:    0.9,
				PredictionSetSize:  5,
			},
			wantAbstain: true,
			wantAction:  domain.AbstainRequestAdditionalTests,
		},
		{
			name: "confident result proceeds",
			uncertainty: domain.Uncertainty{
				DiagnosticCoverage: 0.95,
				SafetyCertainty:    0.9,
				PredictionSetSize:  1,
			},
			wantAbstain: false,
			wantAction:  domain.AbstainProceed,
		},
		{
			name: "coverage rule wins over safety rule",
			uncertainty: domain.Uncertainty{
				DiagnosticCoverage: 0.4,
				SafetyCertainty:    0.5,
				PredictionSetSize:  3,
			},
			wantAbstain: true,
			wantAction:  domain.AbstainRequestMoreInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision := engine.ShouldAbstain(tt.uncertainty)

			assert.Equal(t, tt.wantAbstain, decision.Abstain)
			assert.Equal(t, tt.wantAction, decision.Action)
			assert.NotEmpty(t, decision.Message)
		})
	}
}

func TestShouldAbstainProceedMessage(t *testing.T) {
	engine := NewEngine(testLogger(), defaultConfig())

	decision := engine.ShouldAbstain(domain.Uncertainty{
		DiagnosticCoverage: 0.95,
		SafetyCertainty:    0.95,
		PredictionSetSize:  1,
	})

	assert.Equal(t, proceedMessage, decision.Message)
}
