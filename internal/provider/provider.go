// Package provider generates differential diagnoses. The pipeline treats
// generation as a pluggable collaborator behind DiagnosisProvider so the
// deterministic rule-based knowledge base and any future model-backed
// service are interchangeable.
package provider

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/precision-dx-pipeline/internal/domain"
)

// Request carries everything a provider may condition on.
type Request struct {
	Symptoms    string
	Signals     domain.RouteSignals
	PatientData map[string]any
}

// DiagnosisProvider generates ranked diagnosis candidates for a consultation.
type DiagnosisProvider interface {
	GenerateDifferential(ctx context.Context, req Request) ([]domain.DxCandidate, error)
	GenerateEmergencyDifferential(ctx context.Context, req Request) ([]domain.DxCandidate, error)
}

// RuleBased maps routing signals to conservative differentials from a fixed
// knowledge base. Every candidate it emits carries cited evidence.
type RuleBased struct {
	logger *logrus.Logger
}

// NewRuleBased creates the rule-based provider.
func NewRuleBased(logger *logrus.Logger) *RuleBased {
	return &RuleBased{logger: logger}
}

// GenerateDifferential builds the standard-branch differential. Candidates
// are sorted by descending probability and renormalized so the total mass
// never exceeds 1.0 when multiple signal patterns fire together.
func (p *RuleBased) GenerateDifferential(ctx context.Context, req Request) ([]domain.DxCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var differential []domain.DxCandidate
	signals := req.Signals

	if signals.Fever && !signals.SevereHeadache {
		differential = append(differential,
			domain.DxCandidate{
				ICD10: "J00",
				Label: "Common Cold",
				P:     0.75,
				Evidence: domain.Evidence{
					For:       []string{"fever", "common symptoms"},
					Citations: []string{"kb:common_cold", "guideline:uri_management_2021"},
				},
			},
			domain.DxCandidate{
				ICD10: "J11.1",
				Label: "Influenza",
				P:     0.15,
				Evidence: domain.Evidence{
					For:       []string{"fever", "seasonal prevalence"},
					Citations: []string{"kb:influenza"},
				},
			},
		)
	}

	if signals.ChestPain && len(signals.EmergencyKeywords) == 0 {
		differential = append(differential, domain.DxCandidate{
			ICD10: "R07.89",
			Label: "Chest Pain, Other",
			P:     0.6,
			Evidence: domain.Evidence{
				For:       []string{"chest pain", "no emergency features"},
				Citations: []string{"guideline:chest_pain_evaluation_2021"},
			},
		})
	}

	if len(differential) == 0 {
		differential = append(differential, domain.DxCandidate{
			ICD10: "Z71.1",
			Label: "Medical Consultation",
			P:     0.7,
			Evidence: domain.Evidence{
				For:       []string{"symptom evaluation needed"},
				Citations: []string{"guideline:primary_care_consultation_2021"},
			},
		})
	}

	normalizeDifferential(differential)

	p.logger.WithFields(logrus.Fields{
		"candidates": len(differential),
		"top_icd10":  differential[0].ICD10,
	}).Debug("Generated differential")

	return differential, nil
}

// GenerateEmergencyDifferential builds the emergency-branch differential
// focused on life-threatening conditions.
func (p *RuleBased) GenerateEmergencyDifferential(ctx context.Context, req Request) ([]domain.DxCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var conditions []domain.DxCandidate
	signals := req.Signals

	switch {
	case signals.ChestPain && signals.BreathingDifficulty:
		conditions = append(conditions, domain.DxCandidate{
			ICD10: "I21.9",
			Label: "Acute Myocardial Infarction",
			P:     0.8,
			Evidence: domain.Evidence{
				For:       []string{"chest pain", "breathing difficulty", "emergency presentation"},
				Citations: []string{"guideline:aha_stemi_2022"},
			},
		})
	case signals.ChestPain:
		conditions = append(conditions, domain.DxCandidate{
			ICD10: "I21.9",
			Label: "Acute Myocardial Infarction",
			P:     0.7,
			Evidence: domain.Evidence{
				For:       []string{"chest pain", "emergency presentation"},
				Citations: []string{"guideline:aha_stemi_2022"},
			},
		})
	case signals.BreathingDifficulty:
		conditions = append(conditions, domain.DxCandidate{
			ICD10: "I26.9",
			Label: "Pulmonary Embolism",
			P:     0.6,
			Evidence: domain.Evidence{
				For:       []string{"breathing difficulty", "emergency presentation"},
				Citations: []string{"guideline:esc_pe_2019"},
			},
		})
	}

	if signals.NeurologicalDeficit {
		conditions = append(conditions, domain.DxCandidate{
			ICD10: "I63.9",
			Label: "Cerebral Infarction",
			P:     0.8,
			Evidence: domain.Evidence{
				For:       []string{"neurological deficit", "emergency presentation"},
				Citations: []string{"guideline:aha_stroke_2019"},
			},
		})
	}

	if len(conditions) == 0 {
		conditions = append(conditions, domain.DxCandidate{
			ICD10: "Z71.1",
			Label: "Emergency Medical Consultation",
			P:     0.9,
			Evidence: domain.Evidence{
				For:       []string{"emergency keywords", "urgent presentation"},
				Citations: []string{"guideline:emergency_triage_2020"},
			},
		})
	}

	normalizeDifferential(conditions)

	p.logger.WithFields(logrus.Fields{
		"candidates": len(conditions),
		"top_icd10":  conditions[0].ICD10,
	}).Warn("Generated emergency differential")

	return conditions, nil
}

// normalizeDifferential sorts candidates by descending probability and, when
// combined signal patterns push the total mass above 1.0, rescales
// proportionally so the card invariants hold.
func normalizeDifferential(differential []domain.DxCandidate) {
	sort.SliceStable(differential, func(i, j int) bool {
		return differential[i].P > differential[j].P
	})

	var total float64
	for _, dx := range differential {
		total += dx.P
	}
	if total > 1.0 {
		for i := range differential {
			differential[i].P /= total
		}
	}
}
