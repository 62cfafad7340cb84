package calculator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/precision-dx-pipeline/internal/domain"
)

func fullHeartFields() map[string]any {
	return map[string]any{
		"age":               70,
		"cardiac_history":   true,
		"ecg_abnormal":      false,
		"risk_factors":      2,
		"troponin_elevated": false,
	}
}

func TestRegistryCalculate(t *testing.T) {
	registry := NewRegistry(testLogger(), 0.8)

	t.Run("complete inputs give full confidence", func(t *testing.T) {
		captured := fullHeartFields()
		result, err := registry.Calculate(HeartScore, captured, captured)
		require.NoError(t, err)

		assert.Equal(t, "heart_score", result.Name)
		assert.Equal(t, 5.0, result.Score) // age 70 (2) + history (2) + rf 2 (1)
		assert.Equal(t, BandModerateRisk, result.RiskBand)
		assert.Equal(t, "guideline:esc_chest_pain_2020", result.Reference)
		assert.Equal(t, 1.0, result.Confidence)
		assert.Len(t, result.InputsUsed, 5)
	})

	t.Run("missing captured field lowers confidence", func(t *testing.T) {
		captured := fullHeartFields()
		delete(captured, "troponin_elevated")

		result, err := registry.Calculate(HeartScore, captured, captured)
		require.NoError(t, err)

		assert.InDelta(t, 0.8, result.Confidence, 1e-9)
		assert.NotContains(t, result.InputsUsed, "troponin_elevated")
	})

	t.Run("malformed input fails fast", func(t *testing.T) {
		captured := fullHeartFields()
		captured["age"] = "seventy"

		_, err := registry.Calculate(HeartScore, captured, captured)
		require.Error(t, err)
		var vErr *domain.ValidationError
		assert.ErrorAs(t, err, &vErr)
	})

	t.Run("out of range input fails fast", func(t *testing.T) {
		captured := fullHeartFields()
		captured["age"] = 150

		_, err := registry.Calculate(HeartScore, captured, captured)
		require.Error(t, err)
	})

	t.Run("unknown calculator", func(t *testing.T) {
		_, err := registry.Calculate(Name("apgar"), nil, nil)
		assert.ErrorIs(t, err, domain.ErrUnknownCalculator)
	})
}

func TestRegistryValidateCall(t *testing.T) {
	registry := NewRegistry(testLogger(), 0.8)

	t.Run("meets completeness bar", func(t *testing.T) {
		captured := fullHeartFields()
		delete(captured, "troponin_elevated") // 4 of 5 = 0.8
		assert.True(t, registry.ValidateCall(HeartScore, captured))
	})

	t.Run("below completeness bar", func(t *testing.T) {
		captured := map[string]any{"age": 70, "cardiac_history": true, "ecg_abnormal": true}
		assert.False(t, registry.ValidateCall(HeartScore, captured))
	})

	t.Run("derived fields count as captured", func(t *testing.T) {
		captured := map[string]any{
			"age":                     55,
			"heart_rate":              110,
			"o2_sat_lt_95":            false,
			"unilateral_leg_swelling": false,
			"hemoptysis":              false,
			"recent_surgery":          false,
			"pe_dvt_history":          false,
		}
		// age_ge_50 and hr_ge_100 derive from age/heart_rate: 7 of 8 captured.
		assert.True(t, registry.ValidateCall(PERCRule, captured))
	})

	t.Run("unknown calculator never validates", func(t *testing.T) {
		assert.False(t, registry.ValidateCall(Name("apgar"), fullHeartFields()))
	})
}

func TestWithDerivedFields(t *testing.T) {
	captured := WithDerivedFields(map[string]any{"age": 55, "heart_rate": 110})

	assert.Equal(t, true, captured["age_ge_50"])
	assert.Equal(t, true, captured["hr_ge_100"])
	assert.Equal(t, true, captured["heart_rate_gt_100"])

	captured = WithDerivedFields(map[string]any{"age": 40, "heart_rate": 100})
	assert.Equal(t, false, captured["age_ge_50"])
	assert.Equal(t, true, captured["hr_ge_100"])
	assert.Equal(t, false, captured["heart_rate_gt_100"])
}

func TestApplicableCalculators(t *testing.T) {
	registry := NewRegistry(testLogger(), 0.8)

	t.Run("chest pain with complete fields selects cardiac scoring", func(t *testing.T) {
		signals := domain.RouteSignals{ChestPain: true}
		applicable := registry.ApplicableCalculators(signals, fullHeartFields())
		assert.Equal(t, []Name{HeartScore}, applicable)
	})

	t.Run("chest pain without fields selects nothing", func(t *testing.T) {
		signals := domain.RouteSignals{ChestPain: true}
		applicable := registry.ApplicableCalculators(signals, map[string]any{"age": 55})
		assert.Empty(t, applicable)
	})

	t.Run("breathing difficulty with PE fields", func(t *testing.T) {
		captured := map[string]any{
			"age":                     55,
			"heart_rate":              110,
			"o2_sat_lt_95":            true,
			"unilateral_leg_swelling": false,
			"hemoptysis":              false,
			"recent_surgery":          false,
			"pe_dvt_history":          false,
			"estrogen_use":            false,
			"clinical_signs_dvt":      false,
			"pe_likely_alternative":   false,
			"immobilization_surgery":  false,
			"previous_pe_dvt":         false,
			"malignancy":              false,
		}
		signals := domain.RouteSignals{BreathingDifficulty: true}
		applicable := registry.ApplicableCalculators(signals, captured)
		assert.Equal(t, []Name{PERCRule, WellsPE}, applicable)
	})
}

func TestRequiredFields(t *testing.T) {
	fields, err := RequiredFields(WellsPE)
	require.NoError(t, err)
	assert.Len(t, fields, 7)

	_, err = RequiredFields(Name("apgar"))
	assert.ErrorIs(t, err, domain.ErrUnknownCalculator)
}
