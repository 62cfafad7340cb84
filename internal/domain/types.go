// Package domain contains the core entities of the precision diagnosis
// pipeline: routing signals, diagnosis candidates, calculator results,
// uncertainty metrics and the aggregate DiagnosisCard.
//
// The pipeline turns free-text symptom reports into a validated,
// uncertainty-aware diagnostic result. Calibration parameters (thresholds,
// weights) are configuration, not learned state.
package domain

import "errors"

// TriageLevel represents standardized triage urgency levels,
// ordered from most to least urgent.
type TriageLevel string

const (
	RESUSCITATION TriageLevel = "resuscitation" // 1 - Red - Immediate
	EMERGENCY     TriageLevel = "emergency"     // 2 - Orange - Within 10 min
	URGENT        TriageLevel = "urgent"        // 3 - Yellow - Within 30 min
	SEMI_URGENT   TriageLevel = "semi_urgent"   // 4 - Green - Within 60 min
	NON_URGENT    TriageLevel = "non_urgent"    // 5 - Blue - Within 120 min
)

// IsValid validates the triage level. Medical software must never emit an
// unknown urgency category.
func (t TriageLevel) IsValid() bool {
	switch t {
	case RESUSCITATION, EMERGENCY, URGENT, SEMI_URGENT, NON_URGENT:
		return true
	default:
		return false
	}
}

// String returns the string representation of the triage level.
func (t TriageLevel) String() string {
	return string(t)
}

// RoutingReason is an evidence-based routing rationale recorded on the plan
// and the final card so callers can explain why specific steps ran.
type RoutingReason string

const (
	CHEST_PAIN_RISK         RoutingReason = "chest_pain_risk"
	FEVER_HEADACHE_REDFLAGS RoutingReason = "fever_headache_redflags"
	NEURO_DEFICIT           RoutingReason = "neuro_deficit"
	ABDOMINAL_PAIN          RoutingReason = "abdominal_pain"
	RESPIRATORY_DISTRESS    RoutingReason = "respiratory_distress"
	EMERGENCY_KEYWORDS      RoutingReason = "emergency_keywords"
	BASIC_SYMPTOMS          RoutingReason = "basic_symptoms"
)

// Rationale returns the human-readable clinical rationale for the reason.
func (r RoutingReason) Rationale() string {
	switch r {
	case CHEST_PAIN_RISK:
		return "Chest pain requires cardiac risk stratification"
	case FEVER_HEADACHE_REDFLAGS:
		return "Fever + headache requires meningitis screening"
	case NEURO_DEFICIT:
		return "Neurological deficits require stroke evaluation"
	case ABDOMINAL_PAIN:
		return "Abdominal pain requires surgical abdomen screening"
	case RESPIRATORY_DISTRESS:
		return "Breathing difficulty requires PE/respiratory assessment"
	case EMERGENCY_KEYWORDS:
		return "Emergency keywords trigger immediate assessment"
	case BASIC_SYMPTOMS:
		return "Standard symptom evaluation"
	default:
		return "Unknown routing reason"
	}
}

// String returns the string representation of the routing reason.
func (r RoutingReason) String() string {
	return string(r)
}

// PipelineBranch identifies which of the two execution branches a plan
// selects. The branch is chosen once, before any stage executes, and
// EMERGENCY is terminal: no calculator/test/treatment steps run after it.
type PipelineBranch string

const (
	STANDARD_BRANCH  PipelineBranch = "STANDARD"
	EMERGENCY_BRANCH PipelineBranch = "EMERGENCY"
)

// StepName names a pipeline execution step.
type StepName string

const (
	StepEmergencyTriage StepName = "emergency_triage"
	StepDifferential    StepName = "differential"
	StepCalculators     StepName = "calculators"
	StepTriage          StepName = "triage"
	StepTests           StepName = "tests"
	StepTreatment       StepName = "treatment"
)

// CriticAction is the corrective action a failed critic rule demands.
type CriticAction string

const (
	ActionRequestInfo        CriticAction = "request_info"
	ActionDowngradeDiagnosis CriticAction = "downgrade_diagnosis"
	ActionEscalate           CriticAction = "escalate"
	ActionRecalculate        CriticAction = "recalculate"
	ActionReview             CriticAction = "review"
)

// String returns the string representation of the critic action.
func (a CriticAction) String() string {
	return string(a)
}

// AbstentionAction is the action the abstention engine selects when an
// otherwise-valid card is not confident enough to present to the end user.
type AbstentionAction string

const (
	AbstainRequestMoreInfo        AbstentionAction = "request_more_info"
	AbstainEscalateToPhysician    AbstentionAction = "escalate_to_physician"
	AbstainRequestAdditionalTests AbstentionAction = "request_additional_tests"
	AbstainProceed                AbstentionAction = "proceed"
)

// String returns the string representation of the abstention action.
func (a AbstentionAction) String() string {
	return string(a)
}

// QuestionCategory tags a follow-up question by the kind of information it
// would elicit. Physical-exam and vitals questions carry the highest value
// of information.
type QuestionCategory string

const (
	CategorySymptoms     QuestionCategory = "symptoms"
	CategoryHistory      QuestionCategory = "history"
	CategoryPhysicalExam QuestionCategory = "physical_exam"
	CategoryTimeline     QuestionCategory = "timeline"
	CategoryVitals       QuestionCategory = "vitals"
	CategoryMentalStatus QuestionCategory = "mental_status"
	CategoryProgression  QuestionCategory = "progression"
)

// Sentinel errors for pipeline data integrity.
var (
	ErrUnknownCalculator   = errors.New("unknown calculator")
	ErrInvalidTriageLevel  = errors.New("invalid triage level")
	ErrEmptyDifferential   = errors.New("differential must contain at least one candidate")
	ErrInvalidProbability  = errors.New("probability must be in [0,1]")
	ErrIncoherentProbMass  = errors.New("differential probability mass exceeds tolerance")
	ErrMissingCitation     = errors.New("treatment requires at least one citation")
	ErrInvalidCitation     = errors.New("citation does not carry a known provenance prefix")
	ErrProviderUnavailable = errors.New("diagnosis provider unavailable")
)
