package calculator

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/precision-dx-pipeline/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestHeartScore(t *testing.T) {
	tests := []struct {
		name      string
		input     HeartScoreInput
		wantScore float64
		wantBand  string
	}{
		{
			name:      "young patient no findings",
			input:     HeartScoreInput{Age: 30},
			wantScore: 0,
			wantBand:  BandLowRisk,
		},
		{
			name: "moderate age with risk factors",
			input: HeartScoreInput{
				Age:         50,
				RiskFactors: 2,
				ECGAbnormal: true,
			},
			wantScore: 4,
			wantBand:  BandModerateRisk,
		},
		{
			name: "elderly with full cardiac picture",
			input: HeartScoreInput{
				Age:              70,
				CardiacHistory:   true,
				ECGAbnormal:      true,
				RiskFactors:      3,
				TroponinElevated: true,
			},
			wantScore: 10,
			wantBand:  BandHighRisk,
		},
		{
			name: "boundary at low risk maximum",
			input: HeartScoreInput{
				Age:         46,
				RiskFactors: 4,
			},
			wantScore: 3,
			wantBand:  BandLowRisk,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, band, recommendation := heartScore(tt.input)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantBand, band)
			assert.NotEmpty(t, recommendation)
		})
	}
}

func TestHeartScoreInputValidation(t *testing.T) {
	tests := []struct {
		name    string
		input   HeartScoreInput
		wantErr bool
	}{
		{"valid", HeartScoreInput{Age: 55, RiskFactors: 2}, false},
		{"negative age", HeartScoreInput{Age: -1}, true},
		{"age too high", HeartScoreInput{Age: 130}, true},
		{"too many risk factors", HeartScoreInput{Age: 55, RiskFactors: 6}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr {
				require.Error(t, err)
				var vErr *domain.ValidationError
				assert.ErrorAs(t, err, &vErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPERCRule(t *testing.T) {
	t.Run("all criteria absent rules out PE", func(t *testing.T) {
		score, band, recommendation := percRule(PERCInput{})
		assert.Equal(t, 0.0, score)
		assert.Equal(t, BandPERCNegative, band)
		assert.Contains(t, recommendation, "ruled out")
	})

	t.Run("any criterion present is positive", func(t *testing.T) {
		score, band, _ := percRule(PERCInput{AgeGE50: true, Hemoptysis: true})
		assert.Equal(t, 2.0, score)
		assert.Equal(t, BandPERCPositive, band)
	})
}

func TestWellsPEScore(t *testing.T) {
	tests := []struct {
		name      string
		input     WellsPEInput
		wantScore float64
		wantBand  string
	}{
		{"no criteria", WellsPEInput{}, 0, BandLowProbability},
		{
			"boundary at low probability maximum",
			WellsPEInput{ClinicalSignsDVT: true, Hemoptysis: true},
			4.0, BandLowProbability,
		},
		{
			"moderate probability",
			WellsPEInput{ClinicalSignsDVT: true, HeartRateGT100: true, Malignancy: true},
			5.5, BandModerateProbability,
		},
		{
			"all criteria high probability",
			WellsPEInput{
				ClinicalSignsDVT: true, PELikelyAlternative: true, HeartRateGT100: true,
				ImmobilizationSurgery: true, PreviousPEDVT: true, Hemoptysis: true, Malignancy: true,
			},
			12.5, BandHighProbability,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, band, _ := wellsPEScore(tt.input)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantBand, band)
		})
	}
}
