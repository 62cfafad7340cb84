// Package calculator implements the deterministic clinical scoring formulas
// of the pipeline. The calculator set is a closed enumeration: each entry
// carries a field schema and a pure scoring function, so "does this
// calculator exist" is checked at compile time rather than by dictionary
// lookup.
package calculator

import (
	"fmt"

	"github.com/precision-dx-pipeline/internal/domain"
)

// HEART score component and band constants.
// Reference: ESC chest pain guideline risk stratification.
const (
	heartAgeModerate = 45 // years; below scores 0
	heartAgeHigh     = 65 // years; at or above scores 2

	heartRiskFactorsModerate = 1 // 1-2 risk factors score 1
	heartRiskFactorsHigh     = 3 // >=3 risk factors score 2

	heartLowRiskMax      = 3
	heartModerateRiskMax = 6
)

// Wells PE score weights and bands.
const (
	wellsDVTSignsPoints      = 3.0
	wellsPELikelyPoints      = 3.0
	wellsTachycardiaPoints   = 1.5
	wellsImmobilityPoints    = 1.5
	wellsPriorPEDVTPoints    = 1.5
	wellsHemoptysisPoints    = 1.0
	wellsMalignancyPoints    = 1.0
	wellsLowProbabilityMax   = 4.0
	wellsModerateProbability = 6.0
)

// Risk band labels shared across calculators.
const (
	BandLowRisk      = "Low Risk"
	BandModerateRisk = "Moderate Risk"
	BandHighRisk     = "High Risk"

	BandLowProbability      = "Low Probability"
	BandModerateProbability = "Moderate Probability"
	BandHighProbability     = "High Probability"

	BandPERCNegative = "PERC Negative"
	BandPERCPositive = "PERC Positive"
)

// HeartScoreInput holds the validated HEART score inputs.
type HeartScoreInput struct {
	Age              int  // patient age in years
	CardiacHistory   bool // history of CAD, MI or revascularization
	ECGAbnormal      bool // ECG abnormalities
	RiskFactors      int  // number of cardiovascular risk factors
	TroponinElevated bool // troponin above 99th percentile
}

// Validate checks HEART score input ranges.
func (in *HeartScoreInput) Validate() error {
	if in.Age < 0 || in.Age > 120 {
		return domain.NewValidationError("age", "must be between 0 and 120", in.Age)
	}
	if in.RiskFactors < 0 || in.RiskFactors > 5 {
		return domain.NewValidationError("risk_factors", "must be between 0 and 5", in.RiskFactors)
	}
	return nil
}

// heartScore computes the HEART score for chest pain risk stratification.
// Pure function of validated inputs.
func heartScore(in HeartScoreInput) (float64, string, string) {
	score := 0

	switch {
	case in.Age < heartAgeModerate:
		// 0 points
	case in.Age < heartAgeHigh:
		score += 1
	default:
		score += 2
	}

	if in.CardiacHistory {
		score += 2
	}
	if in.ECGAbnormal {
		score += 2
	}

	switch {
	case in.RiskFactors == 0:
		// 0 points
	case in.RiskFactors < heartRiskFactorsHigh:
		score += heartRiskFactorsModerate
	default:
		score += 2
	}

	if in.TroponinElevated {
		score += 2
	}

	switch {
	case score <= heartLowRiskMax:
		return float64(score), BandLowRisk, "Discharge with outpatient follow-up"
	case score <= heartModerateRiskMax:
		return float64(score), BandModerateRisk, "Observe 6-12 hours, serial troponins"
	default:
		return float64(score), BandHighRisk, "Urgent cardiology consultation, consider catheterization"
	}
}

// PERCInput holds the eight PERC rule criteria. All absent rules out PE
// without further testing when clinical suspicion is low.
type PERCInput struct {
	AgeGE50               bool
	HRGE100               bool
	O2SatLT95             bool
	UnilateralLegSwelling bool
	Hemoptysis            bool
	RecentSurgery         bool
	PEDVTHistory          bool
	EstrogenUse           bool
}

// percRule applies the PERC rule for pulmonary embolism exclusion.
func percRule(in PERCInput) (float64, string, string) {
	criteria := []bool{
		in.AgeGE50, in.HRGE100, in.O2SatLT95, in.UnilateralLegSwelling,
		in.Hemoptysis, in.RecentSurgery, in.PEDVTHistory, in.EstrogenUse,
	}

	positive := 0
	for _, present := range criteria {
		if present {
			positive++
		}
	}

	if positive == 0 {
		return 0, BandPERCNegative, "PERC negative: PE ruled out, no further testing needed"
	}
	return float64(positive), BandPERCPositive,
		fmt.Sprintf("PERC positive (%d criteria): Consider D-dimer or imaging", positive)
}

// WellsPEInput holds the Wells score criteria for PE probability.
type WellsPEInput struct {
	ClinicalSignsDVT      bool
	PELikelyAlternative   bool
	HeartRateGT100        bool
	ImmobilizationSurgery bool
	PreviousPEDVT         bool
	Hemoptysis            bool
	Malignancy            bool
}

// wellsPEScore computes the Wells score for PE probability.
func wellsPEScore(in WellsPEInput) (float64, string, string) {
	score := 0.0

	if in.ClinicalSignsDVT {
		score += wellsDVTSignsPoints
	}
	if in.PELikelyAlternative {
		score += wellsPELikelyPoints
	}
	if in.HeartRateGT100 {
		score += wellsTachycardiaPoints
	}
	if in.ImmobilizationSurgery {
		score += wellsImmobilityPoints
	}
	if in.PreviousPEDVT {
		score += wellsPriorPEDVTPoints
	}
	if in.Hemoptysis {
		score += wellsHemoptysisPoints
	}
	if in.Malignancy {
		score += wellsMalignancyPoints
	}

	switch {
	case score <= wellsLowProbabilityMax:
		return score, BandLowProbability, "D-dimer; if negative, PE ruled out"
	case score <= wellsModerateProbability:
		return score, BandModerateProbability, "D-dimer or CTPA; if D-dimer positive, proceed to imaging"
	default:
		return score, BandHighProbability, "CTPA or V/Q scan recommended"
	}
}
