// Package critic validates diagnosis cards against blocking safety rules
// before they reach the user. A card that fails any blocking rule is never
// presented as-is; the failed rules prescribe the corrective actions.
package critic

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/precision-dx-pipeline/internal/domain"
)

// highRiskICDPrefixes mark diagnoses that demand strong evidence before they
// may carry substantial probability mass.
var highRiskICDPrefixes = []string{"I2", "I4", "G0", "G9", "R06", "R50", "I60", "I63"}

// seriousDiagnosisFindings maps serious ICD-10 codes to the specific findings
// at least one of which must be mentioned before the diagnosis is presented
// with meaningful probability.
var seriousDiagnosisFindings = map[string][]string{
	"I21":    {"chest pain", "troponin", "ecg changes"},
	"I26":    {"dyspnea", "chest pain", "d-dimer"},
	"G93":    {"headache", "vomiting", "altered mental"},
	"R06.02": {"dyspnea", "hypoxia"},
}

// meningitisRedFlags are the signs that must appear in the supporting
// evidence of a meningitis diagnosis. Thai equivalents are matched alongside
// English.
var meningitisRedFlags = []string{
	"neck stiffness", "photophobia", "altered mental status",
	"คอแข็ง", "เกลียดแสง", "ซึม", "สับสน",
}

// Input is everything a validation pass inspects: the draft card plus the
// raw symptom text and captured fields it was derived from.
type Input struct {
	Card           *domain.DiagnosisCard
	Symptoms       string
	CapturedFields map[string]any
}

// severity classifies a rule as blocking or advisory.
type severity string

const (
	severityBlocking severity = "blocking"
	severityWarning  severity = "warning"
)

// rule is one safety rule: a stable identifier, the action its failure
// demands, and an evaluator returning pass/fail with a detail string.
type rule struct {
	id          string
	severity    severity
	action      domain.CriticAction
	description string
	evaluate    func(c *Critic, in Input) (bool, string)
}

// Critic runs the fixed rule set against draft cards. The rule table is
// append-only: rules are never disabled at runtime, only recalibrated via
// thresholds.
type Critic struct {
	logger     *logrus.Logger
	thresholds domain.CriticConfig
	rules      []rule
}

// NewCritic creates a critic with the given thresholds.
func NewCritic(logger *logrus.Logger, thresholds domain.CriticConfig) *Critic {
	c := &Critic{logger: logger, thresholds: thresholds}
	c.rules = []rule{
		{
			id:          "treatment_guideline_citation",
			severity:    severityBlocking,
			action:      domain.ActionRequestInfo,
			description: "Treatment recommendations must cite a clinical guideline",
			evaluate:    (*Critic).checkTreatmentCitations,
		},
		{
			id:          "high_risk_diagnosis_evidence",
			severity:    severityBlocking,
			action:      domain.ActionRequestInfo,
			description: "High-risk diagnoses in the leading differential require supporting evidence",
			evaluate:    (*Critic).checkHighRiskEvidence,
		},
		{
			id:          "calculator_input_completeness",
			severity:    severityBlocking,
			action:      domain.ActionRequestInfo,
			description: "Calculator results must be computed from captured patient data",
			evaluate:    (*Critic).checkCalculatorCompleteness,
		},
		{
			id:          "meningitis_without_redflags",
			severity:    severityBlocking,
			action:      domain.ActionDowngradeDiagnosis,
			description: "Meningitis without documented red-flag signs must be downgraded",
			evaluate:    (*Critic).checkMeningitisRedFlags,
		},
		{
			id:          "serious_diagnosis_without_specificity",
			severity:    severityBlocking,
			action:      domain.ActionDowngradeDiagnosis,
			description: "Serious diagnoses require their specific clinical findings",
			evaluate:    (*Critic).checkSeriousSpecificity,
		},
		{
			id:          "safety_certainty_threshold",
			severity:    severityBlocking,
			action:      domain.ActionEscalate,
			description: "Safety certainty must meet the minimum threshold",
			evaluate:    (*Critic).checkSafetyCertainty,
		},
		{
			id:          "triage_consistency",
			severity:    severityWarning,
			action:      domain.ActionReview,
			description: "Triage level should match the severity of the leading diagnosis",
			evaluate:    (*Critic).checkTriageConsistency,
		},
		{
			id:          "differential_probability_coherence",
			severity:    severityBlocking,
			action:      domain.ActionRecalculate,
			description: "Differential probabilities must be ordered and coherent",
			evaluate:    (*Critic).checkProbabilityCoherence,
		},
	}
	return c
}

// Validate runs every rule against the card. Blocking failures mark the card
// as not passed and accumulate their corrective actions; warnings are counted
// in the rationale without blocking.
func (c *Critic) Validate(in Input) domain.CriticResult {
	var (
		failed   []string
		details  []string
		actions  []domain.CriticAction
		warnings int
	)
	seenActions := make(map[domain.CriticAction]bool)

	for _, r := range c.rules {
		ok, detail := r.evaluate(c, in)
		if ok {
			continue
		}

		if r.severity == severityWarning {
			warnings++
			c.logger.WithFields(logrus.Fields{
				"rule":   r.id,
				"detail": detail,
			}).Warn("Critic consistency warning")
			continue
		}

		failed = append(failed, r.id)
		if detail != "" {
			details = append(details, detail)
		} else {
			details = append(details, r.description)
		}
		if !seenActions[r.action] {
			seenActions[r.action] = true
			actions = append(actions, r.action)
		}
		c.logger.WithFields(logrus.Fields{
			"rule":   r.id,
			"action": r.action.String(),
			"detail": detail,
		}).Warn("Critic rule failed")
	}

	result := domain.CriticResult{
		Passed:      len(failed) == 0,
		FailedRules: failed,
		Actions:     actions,
		Rationale:   c.buildRationale(in.Card, details, warnings),
	}

	c.logger.WithFields(logrus.Fields{
		"passed":       result.Passed,
		"failed_rules": result.FailedRules,
		"warnings":     warnings,
	}).Info("Critic validation complete")

	return result
}

func (c *Critic) buildRationale(card *domain.DiagnosisCard, details []string, warnings int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Validated %d diagnoses, %d calculators, %d treatments.",
		len(card.Differential), len(card.Calculators), len(card.TreatmentCandidates))
	if len(details) > 0 {
		fmt.Fprintf(&b, " Failed rules: %s.", strings.Join(details, "; "))
	}
	if warnings > 0 {
		fmt.Fprintf(&b, " Warnings: %d consistency issues.", warnings)
	}
	fmt.Fprintf(&b, " Safety certainty: %.2f", card.Uncertainty.SafetyCertainty)
	return b.String()
}

func (c *Critic) checkTreatmentCitations(in Input) (bool, string) {
	for i := range in.Card.TreatmentCandidates {
		t := &in.Card.TreatmentCandidates[i]
		if !t.Evidence.HasGuidelineCitation() {
			return false, fmt.Sprintf("treatment %q lacks a guideline citation", t.Instructions)
		}
	}
	return true, ""
}

// checkHighRiskEvidence inspects only the top three differential entries;
// anything below that carries too little mass to drive a decision.
func (c *Critic) checkHighRiskEvidence(in Input) (bool, string) {
	limit := len(in.Card.Differential)
	if limit > 3 {
		limit = 3
	}
	for i := range in.Card.Differential[:limit] {
		dx := &in.Card.Differential[i]
		if !isHighRisk(dx.ICD10) || dx.P <= c.thresholds.HighRiskEvidenceMaxP {
			continue
		}
		if len(dx.Evidence.For) == 0 {
			return false, fmt.Sprintf(
				"high-risk diagnosis %s at p=%.2f has no supporting evidence", dx.ICD10, dx.P)
		}
	}
	return true, ""
}

func (c *Critic) checkCalculatorCompleteness(in Input) (bool, string) {
	for i := range in.Card.Calculators {
		calc := &in.Card.Calculators[i]
		if calc.Confidence < c.thresholds.MinCalculatorConfidence {
			return false, fmt.Sprintf(
				"calculator %s confidence %.2f below minimum %.2f",
				calc.Name, calc.Confidence, c.thresholds.MinCalculatorConfidence)
		}
		if field, ok := synthesizedInput(calc.InputsUsed, in.CapturedFields); ok {
			return false, fmt.Sprintf(
				"calculator %s used field %q not captured from the patient", calc.Name, field)
		}
	}
	return true, ""
}

// checkMeningitisRedFlags gates any diagnosis named or coded as meningitis.
// The red flag must appear in the diagnosis's own supporting evidence; a
// mention in the raw symptom text is not documentation.
func (c *Critic) checkMeningitisRedFlags(in Input) (bool, string) {
	for i := range in.Card.Differential {
		dx := &in.Card.Differential[i]
		if !isMeningitis(dx) || dx.P < c.thresholds.MeningitisRedFlagMinP {
			continue
		}
		if !evidenceMentionsAny(&dx.Evidence, meningitisRedFlags) {
			return false, fmt.Sprintf(
				"meningitis (%s) at p=%.2f without documented red-flag signs", dx.ICD10, dx.P)
		}
	}
	return true, ""
}

func isMeningitis(dx *domain.DxCandidate) bool {
	return strings.Contains(strings.ToLower(dx.Label), "meningitis") ||
		strings.HasPrefix(dx.ICD10, "G0")
}

func (c *Critic) checkSeriousSpecificity(in Input) (bool, string) {
	text := strings.ToLower(in.Symptoms)
	for i := range in.Card.Differential {
		dx := &in.Card.Differential[i]
		if dx.P < c.thresholds.SeriousSpecificityMinP {
			continue
		}
		findings, ok := requiredFindings(dx.ICD10)
		if !ok {
			continue
		}
		if !containsAny(text, findings) && !evidenceMentionsAny(&dx.Evidence, findings) {
			return false, fmt.Sprintf(
				"serious diagnosis %s at p=%.2f without specific findings (need one of: %s)",
				dx.ICD10, dx.P, strings.Join(findings, ", "))
		}
	}
	return true, ""
}

func (c *Critic) checkSafetyCertainty(in Input) (bool, string) {
	if in.Card.Uncertainty.SafetyCertainty < c.thresholds.MinSafetyCertainty {
		return false, fmt.Sprintf(
			"safety certainty %.2f below minimum %.2f",
			in.Card.Uncertainty.SafetyCertainty, c.thresholds.MinSafetyCertainty)
	}
	return true, ""
}

func (c *Critic) checkTriageConsistency(in Input) (bool, string) {
	top := in.Card.TopCandidate()
	if top == nil {
		return true, ""
	}
	level := in.Card.Triage.Level
	if isHighRisk(top.ICD10) && top.P > c.thresholds.HighRiskEvidenceMaxP {
		if level == domain.SEMI_URGENT || level == domain.NON_URGENT {
			return false, fmt.Sprintf(
				"high-risk leading diagnosis %s with low-urgency triage %s", top.ICD10, level)
		}
	}
	return true, ""
}

func (c *Critic) checkProbabilityCoherence(in Input) (bool, string) {
	var total float64
	prev := 1.0
	for i := range in.Card.Differential {
		dx := &in.Card.Differential[i]
		if dx.P > prev {
			return false, fmt.Sprintf("differential not ordered by probability at %s", dx.ICD10)
		}
		prev = dx.P
		total += dx.P
	}
	if len(in.Card.Differential) > 1 && total > c.thresholds.MaxDifferentialProbTotal {
		return false, fmt.Sprintf("differential probability mass %.2f exceeds %.2f",
			total, c.thresholds.MaxDifferentialProbTotal)
	}
	return true, ""
}

func isHighRisk(icd10 string) bool {
	for _, prefix := range highRiskICDPrefixes {
		if strings.HasPrefix(icd10, prefix) {
			return true
		}
	}
	return false
}

// requiredFindings resolves the specificity requirements for a serious
// diagnosis, matching the most specific map entry first.
func requiredFindings(icd10 string) ([]string, bool) {
	if findings, ok := seriousDiagnosisFindings[icd10]; ok {
		return findings, true
	}
	for code, findings := range seriousDiagnosisFindings {
		if strings.HasPrefix(icd10, code) {
			return findings, true
		}
	}
	return nil, false
}

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func evidenceMentionsAny(e *domain.Evidence, terms []string) bool {
	for _, item := range e.For {
		if containsAny(strings.ToLower(item), terms) {
			return true
		}
	}
	return false
}

// synthesizedInput reports the first calculator input that does not trace
// back to a captured or derivable patient field.
func synthesizedInput(inputsUsed map[string]any, capturedFields map[string]any) (string, bool) {
	for field := range inputsUsed {
		if _, ok := capturedFields[field]; ok {
			continue
		}
		if derivedFields[field] {
			continue
		}
		return field, true
	}
	return "", false
}

// derivedFields mirrors the calculator registry's derivation whitelist:
// these inputs are computed from age and heart_rate rather than captured
// verbatim.
var derivedFields = map[string]bool{
	"age_ge_50":         true,
	"hr_ge_100":         true,
	"heart_rate_gt_100": true,
}
