package calculator

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/precision-dx-pipeline/internal/domain"
)

// Name identifies a calculator in the closed registry set.
type Name string

const (
	HeartScore Name = "heart_score"
	PERCRule   Name = "perc_rule"
	WellsPE    Name = "wells_pe"
)

// AllNames enumerates every registered calculator.
var AllNames = []Name{HeartScore, PERCRule, WellsPE}

// IsValid reports whether the name identifies a registered calculator.
func (n Name) IsValid() bool {
	switch n {
	case HeartScore, PERCRule, WellsPE:
		return true
	default:
		return false
	}
}

// String returns the string representation of the calculator name.
func (n Name) String() string {
	return string(n)
}

// DerivedFieldWhitelist lists input fields that are derivable from other
// captured fields (age, heart_rate) and therefore do not count as
// synthesized when absent from the captured set.
var DerivedFieldWhitelist = map[string]bool{
	"age_ge_50":         true,
	"hr_ge_100":         true,
	"heart_rate_gt_100": true,
}

// spec describes one calculator: its required captured fields, guideline
// reference and scoring function over a parsed input map.
type spec struct {
	requiredFields []string
	reference      string
	compute        func(inputs map[string]any) (float64, string, string, error)
}

var specs = map[Name]spec{
	HeartScore: {
		requiredFields: []string{"age", "cardiac_history", "ecg_abnormal", "risk_factors", "troponin_elevated"},
		reference:      "guideline:esc_chest_pain_2020",
		compute: func(inputs map[string]any) (float64, string, string, error) {
			age, err := intField(inputs, "age")
			if err != nil {
				return 0, "", "", err
			}
			riskFactors, err := intField(inputs, "risk_factors")
			if err != nil {
				return 0, "", "", err
			}
			history, err := boolField(inputs, "cardiac_history")
			if err != nil {
				return 0, "", "", err
			}
			ecg, err := boolField(inputs, "ecg_abnormal")
			if err != nil {
				return 0, "", "", err
			}
			troponin, err := boolField(inputs, "troponin_elevated")
			if err != nil {
				return 0, "", "", err
			}

			in := HeartScoreInput{
				Age:              age,
				CardiacHistory:   history,
				ECGAbnormal:      ecg,
				RiskFactors:      riskFactors,
				TroponinElevated: troponin,
			}
			if err := in.Validate(); err != nil {
				return 0, "", "", err
			}
			score, band, recommendation := heartScore(in)
			return score, band, recommendation, nil
		},
	},
	PERCRule: {
		requiredFields: []string{
			"age_ge_50", "hr_ge_100", "o2_sat_lt_95", "unilateral_leg_swelling",
			"hemoptysis", "recent_surgery", "pe_dvt_history", "estrogen_use",
		},
		reference: "guideline:accp_pe_2012",
		compute: func(inputs map[string]any) (float64, string, string, error) {
			in := PERCInput{}
			fields := []struct {
				key  string
				dest *bool
			}{
				{"age_ge_50", &in.AgeGE50},
				{"hr_ge_100", &in.HRGE100},
				{"o2_sat_lt_95", &in.O2SatLT95},
				{"unilateral_leg_swelling", &in.UnilateralLegSwelling},
				{"hemoptysis", &in.Hemoptysis},
				{"recent_surgery", &in.RecentSurgery},
				{"pe_dvt_history", &in.PEDVTHistory},
				{"estrogen_use", &in.EstrogenUse},
			}
			for _, field := range fields {
				value, err := boolField(inputs, field.key)
				if err != nil {
					return 0, "", "", err
				}
				*field.dest = value
			}
			score, band, recommendation := percRule(in)
			return score, band, recommendation, nil
		},
	},
	WellsPE: {
		requiredFields: []string{
			"clinical_signs_dvt", "pe_likely_alternative", "heart_rate_gt_100",
			"immobilization_surgery", "previous_pe_dvt", "hemoptysis", "malignancy",
		},
		reference: "guideline:wells_pe_2000",
		compute: func(inputs map[string]any) (float64, string, string, error) {
			in := WellsPEInput{}
			fields := []struct {
				key  string
				dest *bool
			}{
				{"clinical_signs_dvt", &in.ClinicalSignsDVT},
				{"pe_likely_alternative", &in.PELikelyAlternative},
				{"heart_rate_gt_100", &in.HeartRateGT100},
				{"immobilization_surgery", &in.ImmobilizationSurgery},
				{"previous_pe_dvt", &in.PreviousPEDVT},
				{"hemoptysis", &in.Hemoptysis},
				{"malignancy", &in.Malignancy},
			}
			for _, field := range fields {
				value, err := boolField(inputs, field.key)
				if err != nil {
					return 0, "", "", err
				}
				*field.dest = value
			}
			score, band, recommendation := wellsPEScore(in)
			return score, band, recommendation, nil
		},
	},
}

// Registry validates and executes clinical calculators. Confidence reflects
// how completely the required fields were actually observed from the
// patient; a calculator is never invoked by synthesizing uncaptured values.
type Registry struct {
	logger          *logrus.Logger
	minCompleteness float64
}

// NewRegistry creates a calculator registry with the given applicability bar
// (fraction of required fields that must be captured).
func NewRegistry(logger *logrus.Logger, minCompleteness float64) *Registry {
	return &Registry{logger: logger, minCompleteness: minCompleteness}
}

// RequiredFields returns the captured-field schema of the named calculator.
func RequiredFields(name Name) ([]string, error) {
	s, ok := specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCalculator, name)
	}
	return append([]string(nil), s.requiredFields...), nil
}

// Calculate executes the named calculator over the given inputs.
// Malformed inputs fail fast with a validation error and no partial
// computation. Criteria that were not captured are scored conservatively as
// not-met and reflected in the confidence value; they are never recorded in
// InputsUsed.
func (r *Registry) Calculate(name Name, inputs map[string]any, capturedFields map[string]any) (domain.CalculatorResult, error) {
	s, ok := specs[name]
	if !ok {
		return domain.CalculatorResult{}, fmt.Errorf("%w: %s (available: %v)", domain.ErrUnknownCalculator, name, AllNames)
	}

	score, band, recommendation, err := s.compute(inputs)
	if err != nil {
		return domain.CalculatorResult{}, fmt.Errorf("calculator %s input validation failed: %w", name, err)
	}

	captured := WithDerivedFields(capturedFields)
	missing := 0
	inputsUsed := make(map[string]any, len(s.requiredFields))
	for _, field := range s.requiredFields {
		if _, ok := captured[field]; !ok {
			missing++
			continue
		}
		if value, ok := inputs[field]; ok {
			inputsUsed[field] = value
		}
	}
	confidence := 1.0 - float64(missing)/float64(len(s.requiredFields))

	if missing > 0 {
		r.logger.WithFields(logrus.Fields{
			"calculator": name.String(),
			"missing":    missing,
			"confidence": confidence,
		}).Warn("Calculator executed with incomplete captured fields")
	}

	return domain.CalculatorResult{
		Name:           name.String(),
		InputsUsed:     inputsUsed,
		Score:          score,
		RiskBand:       band,
		Recommendation: recommendation,
		Reference:      s.reference,
		Confidence:     confidence,
	}, nil
}

// ValidateCall reports whether the named calculator may be invoked with the
// available captured data: at least minCompleteness of its required fields
// must have been observed.
func (r *Registry) ValidateCall(name Name, capturedFields map[string]any) bool {
	s, ok := specs[name]
	if !ok {
		return false
	}

	captured := WithDerivedFields(capturedFields)
	observed := 0
	for _, field := range s.requiredFields {
		if _, ok := captured[field]; ok {
			observed++
		}
	}
	completeness := float64(observed) / float64(len(s.requiredFields))
	return completeness >= r.minCompleteness
}

// ApplicableCalculators maps signal combinations to the calculators that
// meet the completeness bar: chest pain selects cardiac risk scoring,
// breathing difficulty selects the PE exclusion and probability scores.
func (r *Registry) ApplicableCalculators(signals domain.RouteSignals, capturedFields map[string]any) []Name {
	var applicable []Name

	if signals.ChestPain && r.ValidateCall(HeartScore, capturedFields) {
		applicable = append(applicable, HeartScore)
	}
	if signals.BreathingDifficulty {
		if r.ValidateCall(PERCRule, capturedFields) {
			applicable = append(applicable, PERCRule)
		}
		if r.ValidateCall(WellsPE, capturedFields) {
			applicable = append(applicable, WellsPE)
		}
	}

	return applicable
}

// WithDerivedFields returns a copy of the captured fields extended with
// fields derivable from age and heart_rate. Derivation is not synthesis:
// the base observation was captured.
func WithDerivedFields(capturedFields map[string]any) map[string]any {
	captured := make(map[string]any, len(capturedFields)+3)
	for key, value := range capturedFields {
		captured[key] = value
	}

	if age, err := intField(capturedFields, "age"); err == nil {
		captured["age_ge_50"] = age >= 50
	}
	if hr, err := intField(capturedFields, "heart_rate"); err == nil {
		captured["hr_ge_100"] = hr >= 100
		captured["heart_rate_gt_100"] = hr > 100
	}
	return captured
}

// boolField reads a boolean input, treating absence as not-met.
func boolField(inputs map[string]any, key string) (bool, error) {
	value, ok := inputs[key]
	if !ok {
		return false, nil
	}
	b, ok := value.(bool)
	if !ok {
		return false, domain.NewValidationError(key, "must be a boolean", value)
	}
	return b, nil
}

// intField reads a numeric input, accepting int and float64 (JSON numbers
// decode as float64). Absence is an error distinct from malformation.
func intField(inputs map[string]any, key string) (int, error) {
	value, ok := inputs[key]
	if !ok {
		return 0, domain.NewValidationError(key, "is required", nil)
	}
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, domain.NewValidationError(key, "must be numeric", value)
	}
}
