package uncertainty

import (
	"github.com/sirupsen/logrus"

	"github.com/precision-dx-pipeline/internal/domain"
)

// Decision is the outcome of an abstention check.
type Decision struct {
	Abstain bool
	Action  domain.AbstentionAction
	Message string
}

// abstentionRule maps an uncertainty condition to the action taken when an
// otherwise-valid card is not confident enough to present.
type abstentionRule struct {
	name      string
	condition func(u domain.Uncertainty, cfg domain.UncertaintyConfig) bool
	action    domain.AbstentionAction
	message   string
}

// abstentionRules are evaluated in order; the first match wins. User-facing
// messages are in Thai, matching the deployment locale.
var abstentionRules = []abstentionRule{
	{
		name: "low_confidence",
		condition: func(u domain.Uncertainty, cfg domain.UncertaintyConfig) bool {
			return u.DiagnosticCoverage < cfg.MinDiagnosticCoverage
		},
		action:  domain.AbstainRequestMoreInfo,
		message: "ข้อมูลไม่เพียงพอสำหรับการวินิจฉัย กรุณาให้ข้อมูลเพิ่มเติม",
	},
	{
		name: "safety_concern",
		condition: func(u domain.Uncertainty, cfg domain.UncertaintyConfig) bool {
			return u.SafetyCertainty < cfg.MinSafetyCertainty
		},
		action:  domain.AbstainEscalateToPhysician,
		message: "ควรปรึกษาแพทย์เพื่อการประเมินที่ละเอียดมากขึ้น",
	},
	{
		name: "high_uncertainty",
		condition: func(u domain.Uncertainty, cfg domain.UncertaintyConfig) bool {
			return u.PredictionSetSize > 4 && u.DiagnosticCoverage < cfg.CriticalCoverageFloor
		},
		action:  domain.AbstainRequestAdditionalTests,
		message: "จำเป็นต้องทำการตรวจเพิ่มเติมเพื่อการวินิจฉัยที่แม่นยำ",
	},
}

// proceedMessage is returned when no abstention rule matches.
const proceedMessage = "การวินิจฉัยพร้อมใช้งาน"

// Engine makes the final present-or-abstain decision from quantified
// uncertainty.
type Engine struct {
	logger *logrus.Logger
	cfg    domain.UncertaintyConfig
}

// NewEngine creates an abstention engine.
func NewEngine(logger *logrus.Logger, cfg domain.UncertaintyConfig) *Engine {
	return &Engine{logger: logger, cfg: cfg}
}

// ShouldAbstain evaluates the abstention rules in order and returns the
// first matching decision, or a proceed decision when none match.
func (e *Engine) ShouldAbstain(u domain.Uncertainty) Decision {
	for _, rule := range abstentionRules {
		if rule.condition(u, e.cfg) {
			e.logger.WithFields(logrus.Fields{
				"rule":                rule.name,
				"action":              rule.action.String(),
				"diagnostic_coverage": u.DiagnosticCoverage,
				"safety_certainty":    u.SafetyCertainty,
			}).Info("Abstention rule triggered")

			return Decision{Abstain: true, Action: rule.action, Message: rule.message}
		}
	}

	return Decision{Abstain: false, Action: domain.AbstainProceed, Message: proceedMessage}
}
