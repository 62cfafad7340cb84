package signal

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/precision-dx-pipeline/internal/domain"
)

// standardSteps is the ordered standard-branch step sequence. Differential
// generation and calculator application run as independent tasks; triage,
// tests and treatment are dependent and strictly sequential.
var standardSteps = []domain.StepName{
	domain.StepDifferential,
	domain.StepCalculators,
	domain.StepTriage,
	domain.StepTests,
	domain.StepTreatment,
}

// Router builds the execution plan from extracted signals. The branch
// decision is a two-state machine: STANDARD or EMERGENCY, chosen once before
// any stage executes, with EMERGENCY terminal.
type Router struct {
	logger       *logrus.Logger
	maxQuestions int
}

// NewRouter creates a router.
func NewRouter(logger *logrus.Logger, maxQuestions int) *Router {
	return &Router{logger: logger, maxQuestions: maxQuestions}
}

// CreatePlan constructs the ordered execution plan and its routing reasons.
func (r *Router) CreatePlan(signals domain.RouteSignals) domain.PrecisionPlan {
	if signals.HasEmergencyCombination() {
		reasons := []domain.RoutingReason{domain.EMERGENCY_KEYWORDS}
		if len(signals.EmergencyKeywords) == 0 {
			// High-risk signal combination without explicit keywords.
			reasons = []domain.RoutingReason{domain.CHEST_PAIN_RISK, domain.RESPIRATORY_DISTRESS}
		}
		r.logger.WithFields(logrus.Fields{
			"emergency_keywords": signals.EmergencyKeywords,
			"chest_pain":         signals.ChestPain,
			"breathing":          signals.BreathingDifficulty,
		}).Warn("Emergency routing triggered")

		return domain.PrecisionPlan{
			Branch:         domain.EMERGENCY_BRANCH,
			Steps:          []domain.StepName{domain.StepEmergencyTriage},
			RoutingReasons: reasons,
			MaxQuestions:   r.maxQuestions,
		}
	}

	reasons := r.standardReasons(signals)
	r.logger.WithField("routing_reasons", reasons).Info("Standard routing selected")

	return domain.PrecisionPlan{
		Branch:         domain.STANDARD_BRANCH,
		Steps:          append([]domain.StepName(nil), standardSteps...),
		RoutingReasons: reasons,
		MaxQuestions:   r.maxQuestions,
	}
}

// standardReasons maps clinical signal patterns to routing rationales.
func (r *Router) standardReasons(signals domain.RouteSignals) []domain.RoutingReason {
	var reasons []domain.RoutingReason

	if signals.ChestPain {
		reasons = append(reasons, domain.CHEST_PAIN_RISK)
	}
	if signals.Fever && signals.SevereHeadache {
		reasons = append(reasons, domain.FEVER_HEADACHE_REDFLAGS)
	}
	if signals.NeurologicalDeficit {
		reasons = append(reasons, domain.NEURO_DEFICIT)
	}
	if signals.BreathingDifficulty {
		reasons = append(reasons, domain.RESPIRATORY_DISTRESS)
	}
	if signals.AbdominalPain {
		reasons = append(reasons, domain.ABDOMINAL_PAIN)
	}

	if len(reasons) == 0 {
		reasons = append(reasons, domain.BASIC_SYMPTOMS)
	}
	return reasons
}

// RoutingRationale joins the human-readable rationale for a set of routing
// reasons, for display on the final card.
func RoutingRationale(reasons []domain.RoutingReason) string {
	if len(reasons) == 0 {
		return domain.BASIC_SYMPTOMS.Rationale()
	}
	rationales := make([]string, 0, len(reasons))
	for _, reason := range reasons {
		rationales = append(rationales, reason.Rationale())
	}
	return strings.Join(rationales, "; ")
}
