// Package uncertainty implements calibrated uncertainty quantification,
// value-of-information question generation and the abstention engine.
package uncertainty

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/precision-dx-pipeline/internal/domain"
)

// criticalICDPrefixes are conditions that must not be missed: STEMI, PE,
// brain disorders, respiratory failure, bacterial meningitis.
var criticalICDPrefixes = []string{"I21", "I26", "G93", "R06.02", "G00"}

// criticalSymptomPatterns flag symptom text that demands critical-condition
// coverage in the differential.
var criticalSymptomPatterns = []string{
	"chest pain", "ปวดหน้าอก",
	"shortness of breath", "หายใจไม่ออก",
	"severe headache", "ปวดหัวรุนแรง",
	"altered mental status", "สติเปลี่ยนแปลง",
	"unconscious", "หมดสติ",
}

// FlagInsufficientEvidence marks a consultation whose upstream evidence was
// judged too thin for a reliable diagnosis.
const FlagInsufficientEvidence = "insufficient_evidence"

// Context is the clinical context uncertainty is assessed against.
type Context struct {
	Symptoms string
	Flags    []string
}

// HasCriticalSymptoms reports whether the symptom text matches a
// critical-condition pattern.
func (c Context) HasCriticalSymptoms() bool {
	symptoms := strings.ToLower(c.Symptoms)
	for _, pattern := range criticalSymptomPatterns {
		if strings.Contains(symptoms, pattern) {
			return true
		}
	}
	return false
}

func (c Context) hasFlag(flag string) bool {
	for _, f := range c.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Quantifier computes calibrated uncertainty metrics over a differential.
// Calibration parameters are configuration, never learned at runtime.
type Quantifier struct {
	logger *logrus.Logger
	cfg    domain.UncertaintyConfig
}

// NewQuantifier creates a quantifier with the given calibration config.
func NewQuantifier(logger *logrus.Logger, cfg domain.UncertaintyConfig) *Quantifier {
	return &Quantifier{logger: logger, cfg: cfg}
}

// Quantify computes the uncertainty metrics for a differential: temperature
// scaling, the conformal prediction set, safety certainty and the abstention
// reason. An empty differential yields the all-zero abstaining result.
func (q *Quantifier) Quantify(differential []domain.DxCandidate, ctx Context, temperature float64) domain.Uncertainty {
	if len(differential) == 0 {
		return domain.Uncertainty{
			DiagnosticCoverage: 0.0,
			SafetyCertainty:    0.0,
			AbstentionReason:   "No differential diagnoses generated",
			PredictionSetSize:  0,
		}
	}

	scaled := TemperatureScale(differential, temperature)
	setSize, coverage := predictionSet(scaled, q.cfg.CoverageTarget)
	safety := q.safetyCertainty(differential, ctx)
	reason := q.abstentionReason(coverage, safety, ctx)

	q.logger.WithFields(logrus.Fields{
		"diagnostic_coverage": coverage,
		"safety_certainty":    safety,
		"prediction_set_size": setSize,
	}).Info("Uncertainty quantified")

	return domain.Uncertainty{
		DiagnosticCoverage: coverage,
		SafetyCertainty:    safety,
		AbstentionReason:   reason,
		PredictionSetSize:  setSize,
	}
}

// TemperatureScale recalibrates the differential probabilities via
// temperature-scaled softmax. A non-positive temperature means no scaling
// (temperature 1). The output always sums to 1.
func TemperatureScale(differential []domain.DxCandidate, temperature float64) []float64 {
	if temperature <= 0 {
		temperature = 1.0
	}

	logits := make([]float64, len(differential))
	maxLogit := math.Inf(-1)
	for i, dx := range differential {
		logits[i] = math.Log(math.Max(dx.P, 1e-8)) / temperature
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}

	scaled := make([]float64, len(logits))
	var sum float64
	for i, logit := range logits {
		scaled[i] = math.Exp(logit - maxLogit)
		sum += scaled[i]
	}
	for i := range scaled {
		scaled[i] /= sum
	}
	return scaled
}

// predictionSet builds the smallest set of diagnoses whose calibrated
// probability mass reaches the target coverage. Returns the set size and the
// coverage actually achieved.
func predictionSet(probabilities []float64, targetCoverage float64) (int, float64) {
	if len(probabilities) == 0 {
		return 0, 0.0
	}

	sorted := append([]float64(nil), probabilities...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))

	var cumulative float64
	setSize := 0
	for _, p := range sorted {
		cumulative += p
		setSize++
		if cumulative >= targetCoverage {
			break
		}
	}
	return setSize, math.Min(cumulative, 1.0)
}

// safetyCertainty estimates the certainty that no critical condition is
// missed. Starts at a 0.8 base and adjusts for critical-symptom coverage,
// evidence quality, differential breadth and top-probability strength.
func (q *Quantifier) safetyCertainty(differential []domain.DxCandidate, ctx Context) float64 {
	safety := 0.8

	if ctx.HasCriticalSymptoms() {
		if criticalInDifferential(differential) {
			safety += 0.1
		} else {
			safety -= 0.3
		}
	}

	safety += (evidenceQuality(differential) - 0.5) * 0.2

	if len(differential) < 2 {
		safety -= 0.1
	}

	topP := 0.0
	for _, dx := range differential {
		if dx.P > topP {
			topP = dx.P
		}
	}
	if topP < 0.3 {
		safety -= 0.15
	}

	return math.Max(0.0, math.Min(1.0, safety))
}

func criticalInDifferential(differential []domain.DxCandidate) bool {
	for _, dx := range differential {
		for _, prefix := range criticalICDPrefixes {
			if strings.HasPrefix(dx.ICD10, prefix) {
				return true
			}
		}
	}
	return false
}

// evidenceQuality scores how well each diagnosis is supported, weighted by
// probability. Each evidence item contributes 0.2, each citation 0.3,
// capped at 1.0 per diagnosis.
func evidenceQuality(differential []domain.DxCandidate) float64 {
	if len(differential) == 0 {
		return 0.0
	}

	var total float64
	for _, dx := range differential {
		evidenceCount := len(dx.Evidence.For) + len(dx.Evidence.Against)
		citationCount := len(dx.Evidence.Citations)
		dxScore := math.Min(1.0, float64(evidenceCount)*0.2+float64(citationCount)*0.3)
		total += dxScore * dx.P
	}
	return total
}

// abstentionReason returns a non-empty reason when the metrics demand
// abstention, checked in fixed order: safety, coverage, critical symptoms
// with weak coverage, then the insufficient-evidence flag.
func (q *Quantifier) abstentionReason(coverage, safety float64, ctx Context) string {
	if safety < q.cfg.MinSafetyCertainty {
		return fmt.Sprintf("Safety certainty too low (%.2f < %.2f)", safety, q.cfg.MinSafetyCertainty)
	}
	if coverage < q.cfg.MinDiagnosticCoverage {
		return fmt.Sprintf("Diagnostic coverage too low (%.2f < %.2f)", coverage, q.cfg.MinDiagnosticCoverage)
	}
	if ctx.HasCriticalSymptoms() && coverage < q.cfg.CriticalCoverageFloor {
		return "Critical symptoms with insufficient diagnostic certainty"
	}
	if ctx.hasFlag(FlagInsufficientEvidence) {
		return "Insufficient evidence for reliable diagnosis"
	}
	return ""
}
