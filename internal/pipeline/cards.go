package pipeline

import (
	"fmt"
	"time"

	"github.com/precision-dx-pipeline/internal/domain"
)

// Safe-output card builders. Whenever the pipeline cannot present its draft
// result, exactly one of these replaces it: fallback after critic failure,
// abstention when confidence is insufficient, error on unexpected failure.

// newFallbackCard builds the conservative card that replaces a draft the
// critic rejected.
func newFallbackCard(patientID, sessionID, language string) *domain.DiagnosisCard {
	return &domain.DiagnosisCard{
		PatientID: patientID,
		SessionID: sessionID,
		Language:  language,
		Triage: domain.Triage{
			Level:     domain.SEMI_URGENT,
			Rationale: "Conservative assessment",
		},
		Differential: []domain.DxCandidate{{
			ICD10: "Z71.1",
			Label: "General Medical Consultation",
			P:     0.9,
			Evidence: domain.Evidence{
				For:       []string{"symptom_evaluation_needed"},
				Citations: []string{"guideline:primary_care_2021"},
			},
		}},
		Uncertainty: domain.Uncertainty{
			DiagnosticCoverage: 0.5,
			SafetyCertainty:    0.9,
			PredictionSetSize:  1,
		},
		OverallConfidence: 0.6,
		Timestamp:         time.Now().UTC(),
	}
}

// newAbstentionCard builds the card presented when the abstention engine
// decides the draft is not confident enough for the end user. The message
// is surfaced as the abstention reason.
func newAbstentionCard(patientID, sessionID, language string, action domain.AbstentionAction, message string) *domain.DiagnosisCard {
	card := &domain.DiagnosisCard{
		PatientID: patientID,
		SessionID: sessionID,
		Language:  language,
		Triage: domain.Triage{
			Level:     domain.SEMI_URGENT,
			Rationale: "AI abstention - human review needed",
		},
		Differential: []domain.DxCandidate{{
			ICD10: "Z71.1",
			Label: "Medical Consultation Needed",
			P:     1.0,
			Evidence: domain.Evidence{
				For:       []string{"insufficient_certainty_for_ai_diagnosis"},
				Citations: []string{"guideline:ai_limitations_2023"},
			},
		}},
		Uncertainty: domain.Uncertainty{
			DiagnosticCoverage: 0.0,
			SafetyCertainty:    1.0,
			AbstentionReason:   message,
			PredictionSetSize:  1,
		},
		OverallConfidence: 0.0,
		Timestamp:         time.Now().UTC(),
	}
	card.SetMetadata("abstention_action", action.String())
	card.SetMetadata("abstention_message", message)
	return card
}

// newErrorCard builds the card returned when the pipeline itself fails. It
// escalates to physician review and never exposes a partial diagnosis.
func newErrorCard(sessionID string, cause error) *domain.DiagnosisCard {
	card := &domain.DiagnosisCard{
		PatientID: "unknown",
		SessionID: sessionID,
		Language:  "thai",
		Triage: domain.Triage{
			Level:     domain.URGENT,
			Rationale: "System error - immediate physician review",
		},
		Differential: []domain.DxCandidate{{
			ICD10: "Z99.9",
			Label: "System Error - Physician Consultation Required",
			P:     1.0,
			Evidence: domain.Evidence{
				For:       []string{"system_error"},
				Citations: []string{"system:error_handling"},
			},
		}},
		Uncertainty: domain.Uncertainty{
			DiagnosticCoverage: 0.0,
			SafetyCertainty:    1.0,
			AbstentionReason:   fmt.Sprintf("System error: %v", cause),
			PredictionSetSize:  1,
		},
		OverallConfidence: 0.0,
		Timestamp:         time.Now().UTC(),
	}
	card.SetMetadata("error", cause.Error())
	return card
}
