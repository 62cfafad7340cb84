package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProbabilityTolerance is the rounding slack allowed when checking that
// differential probabilities sum to at most 1.0.
const ProbabilityTolerance = 0.1

// CitationPrefixes are the accepted provenance prefixes for evidence
// citations. Anything else is rejected at validation time.
var CitationPrefixes = []string{"guideline:", "icd:", "calculator:", "kb:", "study:", "system:"}

// Evidence holds structured supporting/opposing facts and tagged citations
// for a diagnosis or treatment.
type Evidence struct {
	For       []string `json:"for,omitempty"`
	Against   []string `json:"against,omitempty"`
	Citations []string `json:"citations,omitempty"`
}

// Validate checks that every citation carries a known provenance prefix.
func (e *Evidence) Validate() error {
	for _, citation := range e.Citations {
		if !hasKnownPrefix(citation) {
			return fmt.Errorf("evidence validation: %w: %q", ErrInvalidCitation, citation)
		}
	}
	return nil
}

// HasGuidelineCitation reports whether at least one citation is
// guideline-backed. Treatments must satisfy this before being presented.
func (e *Evidence) HasGuidelineCitation() bool {
	for _, citation := range e.Citations {
		if strings.HasPrefix(citation, "guideline:") {
			return true
		}
	}
	return false
}

func hasKnownPrefix(citation string) bool {
	for _, prefix := range CitationPrefixes {
		if strings.HasPrefix(citation, prefix) {
			return true
		}
	}
	return false
}

// DxCandidate is a single differential-diagnosis entry ranked by probability.
type DxCandidate struct {
	ICD10    string   `json:"icd10"`
	Label    string   `json:"label"`
	P        float64  `json:"p"`
	Evidence Evidence `json:"evidence"`
}

// Validate ensures the candidate is usable in clinical decision-making.
func (d *DxCandidate) Validate() error {
	if len(d.ICD10) < 3 {
		return fmt.Errorf("dx candidate validation: ICD-10 code must be at least 3 characters, got %q", d.ICD10)
	}
	if d.P < 0.0 || d.P > 1.0 {
		return fmt.Errorf("dx candidate validation: %w: %f", ErrInvalidProbability, d.P)
	}
	return d.Evidence.Validate()
}

// CalculatorResult is the outcome of one clinical scoring formula.
// InputsUsed records the exact fields the score was computed from so the
// critic can verify no value was synthesized.
type CalculatorResult struct {
	Name           string         `json:"name"`
	InputsUsed     map[string]any `json:"inputs_used"`
	Score          float64        `json:"score"`
	RiskBand       string         `json:"risk_band"`
	Recommendation string         `json:"recommendation,omitempty"`
	Reference      string         `json:"reference"`
	Confidence     float64        `json:"confidence"`
}

// Test is a recommended diagnostic test.
type Test struct {
	Name      string      `json:"name"`
	Rationale string      `json:"rationale"`
	VOIScore  float64     `json:"voi_score"`
	Urgency   TriageLevel `json:"urgency"`
}

// Treatment is a treatment recommendation with supporting evidence.
type Treatment struct {
	Medication        string   `json:"medication,omitempty"`
	Dosage            string   `json:"dosage,omitempty"`
	Instructions      string   `json:"instructions"`
	Contraindications []string `json:"contraindications,omitempty"`
	Evidence          Evidence `json:"evidence"`
	SafetyScore       float64  `json:"safety_score"`
}

// Validate ensures treatments never surface without citations.
func (t *Treatment) Validate() error {
	if len(t.Evidence.Citations) == 0 {
		return fmt.Errorf("treatment validation: %w: %q", ErrMissingCitation, t.Instructions)
	}
	return t.Evidence.Validate()
}

// Uncertainty carries the calibrated uncertainty metrics for a card.
// It is always recomputed from the final differential, never carried over
// from a discarded draft.
type Uncertainty struct {
	DiagnosticCoverage float64 `json:"diagnostic_coverage"`
	SafetyCertainty    float64 `json:"safety_certainty"`
	AbstentionReason   string  `json:"abstention_reason,omitempty"`
	PredictionSetSize  int     `json:"prediction_set_size"`
}

// Triage is the assessed urgency level with its rationale.
type Triage struct {
	Level     TriageLevel `json:"level"`
	Rationale string      `json:"rationale"`
}

// VOIQuestion is a candidate follow-up question scored by expected value
// of information.
type VOIQuestion struct {
	Question       string           `json:"question"`
	VOIScore       float64          `json:"voi_score"`
	ExpectedDeltaP float64          `json:"expected_delta_p"`
	Category       QuestionCategory `json:"category"`
}

// CriticResult is the outcome of validating a DiagnosisCard against the
// blocking safety rules. The rationale string is part of the contract:
// callers may display it.
type CriticResult struct {
	Passed      bool           `json:"passed"`
	FailedRules []string       `json:"failed_rules,omitempty"`
	Actions     []CriticAction `json:"actions,omitempty"`
	Rationale   string         `json:"rationale"`
}

// RouteSignals are the boolean clinical signals extracted from raw input.
// Immutable once produced; created per request.
type RouteSignals struct {
	ChestPain           bool     `json:"chest_pain"`
	Fever               bool     `json:"fever"`
	SevereHeadache      bool     `json:"severe_headache"`
	BreathingDifficulty bool     `json:"breathing_difficulty"`
	NeurologicalDeficit bool     `json:"neurological_deficit"`
	AbdominalPain       bool     `json:"abdominal_pain"`
	EmergencyKeywords   []string `json:"emergency_keywords,omitempty"`
}

// HasEmergencyCombination reports whether the signals alone demand the
// emergency branch: any emergency keyword, or the high-risk chest pain +
// breathing difficulty combination.
func (s RouteSignals) HasEmergencyCombination() bool {
	return len(s.EmergencyKeywords) > 0 || (s.ChestPain && s.BreathingDifficulty)
}

// PrecisionPlan is the ordered execution plan produced by the router and
// consumed exactly once by the executor.
type PrecisionPlan struct {
	Branch         PipelineBranch  `json:"branch"`
	Steps          []StepName      `json:"steps"`
	RoutingReasons []RoutingReason `json:"routing_reasons"`
	MaxQuestions   int             `json:"max_questions"`
}

// IsEmergency reports whether the plan selected the terminal emergency branch.
func (p *PrecisionPlan) IsEmergency() bool {
	return p.Branch == EMERGENCY_BRANCH
}

// DiagnosisCard is the aggregate root produced by one consultation request.
// Each pipeline stage either replaces a field wholesale or appends to a list
// it exclusively owns; no two stages mutate a field concurrently.
type DiagnosisCard struct {
	PatientID string `json:"patient_id"`
	SessionID string `json:"session_id"`
	Language  string `json:"language"`

	Triage              Triage             `json:"triage"`
	Differential        []DxCandidate      `json:"differential"`
	Calculators         []CalculatorResult `json:"calculators,omitempty"`
	Tests               []Test             `json:"tests,omitempty"`
	TreatmentCandidates []Treatment        `json:"treatment_candidates,omitempty"`

	Uncertainty       Uncertainty `json:"uncertainty"`
	OverallConfidence float64     `json:"overall_confidence"`

	RoutingReasons     []RoutingReason `json:"routing_reasons,omitempty"`
	FollowUpQuestions  []VOIQuestion   `json:"follow_up_questions,omitempty"`
	ProcessingMetadata map[string]any  `json:"processing_metadata,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Validate enforces the card-level invariants: a non-empty differential with
// non-increasing probabilities summing to at most 1.0 (plus tolerance),
// a valid triage level, and guideline-cited treatments.
func (c *DiagnosisCard) Validate() error {
	if len(c.Differential) == 0 {
		return fmt.Errorf("diagnosis card validation: %w", ErrEmptyDifferential)
	}
	if !c.Triage.Level.IsValid() {
		return fmt.Errorf("diagnosis card validation: %w: %q", ErrInvalidTriageLevel, c.Triage.Level)
	}

	var total float64
	prev := 1.0
	for i := range c.Differential {
		dx := &c.Differential[i]
		if err := dx.Validate(); err != nil {
			return err
		}
		if dx.P > prev {
			return fmt.Errorf("diagnosis card validation: differential probabilities not in descending order at %s", dx.ICD10)
		}
		prev = dx.P
		total += dx.P
	}
	if len(c.Differential) > 1 && total > 1.0+ProbabilityTolerance {
		return fmt.Errorf("diagnosis card validation: %w: %.3f", ErrIncoherentProbMass, total)
	}

	for i := range c.TreatmentCandidates {
		if err := c.TreatmentCandidates[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SetMetadata records a processing-metadata entry, allocating the map on
// first use.
func (c *DiagnosisCard) SetMetadata(key string, value any) {
	if c.ProcessingMetadata == nil {
		c.ProcessingMetadata = make(map[string]any)
	}
	c.ProcessingMetadata[key] = value
}

// TopCandidate returns the highest-probability differential entry, or nil
// for an empty differential.
func (c *DiagnosisCard) TopCandidate() *DxCandidate {
	if len(c.Differential) == 0 {
		return nil
	}
	return &c.Differential[0]
}
