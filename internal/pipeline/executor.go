// Package pipeline orchestrates a consultation end to end: signal
// extraction, routing, branch execution, critic validation, uncertainty
// quantification and abstention.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/precision-dx-pipeline/internal/calculator"
	"github.com/precision-dx-pipeline/internal/domain"
	"github.com/precision-dx-pipeline/internal/provider"
	"github.com/precision-dx-pipeline/internal/uncertainty"
)

// Executor runs the branch selected by a plan and assembles the draft card.
// Independent stages (differential generation, calculators) run
// concurrently; dependent stages (triage, tests, treatments) run
// sequentially after them.
type Executor struct {
	logger     *logrus.Logger
	provider   provider.DiagnosisProvider
	registry   *calculator.Registry
	quantifier *uncertainty.Quantifier
	cfg        domain.UncertaintyConfig
}

// NewExecutor creates an executor.
func NewExecutor(
	logger *logrus.Logger,
	prov provider.DiagnosisProvider,
	registry *calculator.Registry,
	quantifier *uncertainty.Quantifier,
	cfg domain.UncertaintyConfig,
) *Executor {
	return &Executor{
		logger:     logger,
		provider:   prov,
		registry:   registry,
		quantifier: quantifier,
		cfg:        cfg,
	}
}

// Consultation is the executor's input: the plan plus everything it was
// derived from.
type Consultation struct {
	PatientID      string
	SessionID      string
	Language       string
	Symptoms       string
	PatientData    map[string]any
	CapturedFields map[string]any
	Signals        domain.RouteSignals
	Plan           domain.PrecisionPlan
}

// Execute runs the plan's branch and returns the draft card. Degraded
// stages are recorded in processing metadata rather than failing the
// consultation; only a failed emergency differential is a hard error.
func (e *Executor) Execute(ctx context.Context, c Consultation) (*domain.DiagnosisCard, error) {
	card := &domain.DiagnosisCard{
		PatientID:      c.PatientID,
		SessionID:      c.SessionID,
		Language:       c.Language,
		RoutingReasons: c.Plan.RoutingReasons,
		Timestamp:      time.Now().UTC(),
	}
	card.SetMetadata("execution_start", card.Timestamp.Format(time.RFC3339Nano))
	card.SetMetadata("branch", string(c.Plan.Branch))

	if c.Plan.IsEmergency() {
		if err := e.executeEmergency(ctx, c, card); err != nil {
			return nil, err
		}
		return card, nil
	}

	if err := e.executeStandard(ctx, c, card); err != nil {
		return nil, err
	}
	return card, nil
}

// executeEmergency runs the terminal emergency protocol: emergency triage
// and a life-threat-focused differential, fixed high-certainty metrics, no
// calculators or treatment recommendations.
func (e *Executor) executeEmergency(ctx context.Context, c Consultation, card *domain.DiagnosisCard) error {
	req := provider.Request{Symptoms: c.Symptoms, Signals: c.Signals, PatientData: c.PatientData}

	differential, err := e.provider.GenerateEmergencyDifferential(ctx, req)
	if err != nil {
		return fmt.Errorf("emergency differential: %w", err)
	}
	if len(differential) == 0 {
		return fmt.Errorf("emergency differential: no candidates generated")
	}

	card.Triage = domain.Triage{
		Level:     domain.EMERGENCY,
		Rationale: fmt.Sprintf("Emergency keywords detected: %v", c.Signals.EmergencyKeywords),
	}
	card.Differential = differential
	card.Tests = []domain.Test{{
		Name:      "Emergency assessment",
		Rationale: "Critical symptoms",
		VOIScore:  1.0,
		Urgency:   domain.EMERGENCY,
	}}
	card.Uncertainty = domain.Uncertainty{
		DiagnosticCoverage: 0.95,
		SafetyCertainty:    0.95,
		PredictionSetSize:  len(differential),
	}
	card.OverallConfidence = 0.85

	e.logger.WithFields(logrus.Fields{
		"session_id": c.SessionID,
		"top_icd10":  differential[0].ICD10,
	}).Warn("Emergency protocol executed")

	return nil
}

// executeStandard runs the standard branch. Differential generation and
// calculator application are independent and run concurrently; each
// degrades independently, so a failed provider call yields an empty
// differential (and downstream abstention) rather than an aborted request.
func (e *Executor) executeStandard(ctx context.Context, c Consultation, card *domain.DiagnosisCard) error {
	var (
		differentialRes domain.StageResult[[]domain.DxCandidate]
		calculatorsRes  domain.StageResult[[]domain.CalculatorResult]
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A panicking provider degrades the stage; it must not take down
		// the whole process from a worker goroutine.
		defer func() {
			if r := recover(); r != nil {
				differentialRes = domain.Degraded[[]domain.DxCandidate](nil, fmt.Errorf("panic: %v", r))
			}
		}()
		req := provider.Request{Symptoms: c.Symptoms, Signals: c.Signals, PatientData: c.PatientData}
		differential, err := e.provider.GenerateDifferential(gctx, req)
		if err != nil {
			differentialRes = domain.Degraded[[]domain.DxCandidate](nil, err)
			return nil
		}
		differentialRes = domain.Ok(differential)
		return nil
	})
	g.Go(func() error {
		calculatorsRes = e.applyCalculators(c.Signals, c.CapturedFields)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if differentialRes.Degraded {
		card.SetMetadata("degraded_differential", differentialRes.Cause)
		e.logger.WithField("cause", differentialRes.Cause).Error("Differential generation degraded")
	}
	if calculatorsRes.Degraded {
		card.SetMetadata("degraded_calculators", calculatorsRes.Cause)
	}

	differential := differentialRes.Value
	card.Differential = differential
	card.Calculators = calculatorsRes.Value

	card.Triage = assessTriage(c.Signals)
	card.Tests = recommendTests(differential)
	card.TreatmentCandidates = recommendTreatments(differential)

	uctx := uncertainty.Context{Symptoms: c.Symptoms}
	card.Uncertainty = e.quantifier.Quantify(differential, uctx, e.cfg.DifferentialTemperature)
	card.OverallConfidence = overallConfidence(differential, card.Calculators, card.Uncertainty)

	return nil
}

// applyCalculators runs every applicable calculator. Individual failures
// degrade the stage without discarding the successful results.
func (e *Executor) applyCalculators(signals domain.RouteSignals, capturedFields map[string]any) domain.StageResult[[]domain.CalculatorResult] {
	applicable := e.registry.ApplicableCalculators(signals, capturedFields)
	if len(applicable) == 0 {
		return domain.Ok[[]domain.CalculatorResult](nil)
	}

	inputs := calculator.WithDerivedFields(capturedFields)
	var (
		results  []domain.CalculatorResult
		firstErr error
	)
	for _, name := range applicable {
		result, err := e.registry.Calculate(name, inputs, capturedFields)
		if err != nil {
			e.logger.WithError(err).WithField("calculator", name.String()).Warn("Calculator failed")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		results = append(results, result)
	}

	if firstErr != nil {
		return domain.Degraded(results, firstErr)
	}
	return domain.Ok(results)
}

// assessTriage maps signals to an urgency level. Emergency keywords are
// handled by the router before this runs, but the mapping stays defensive
// about them.
func assessTriage(signals domain.RouteSignals) domain.Triage {
	switch {
	case len(signals.EmergencyKeywords) > 0:
		return domain.Triage{Level: domain.EMERGENCY, Rationale: "Emergency keywords detected"}
	case signals.ChestPain || signals.BreathingDifficulty:
		return domain.Triage{Level: domain.URGENT, Rationale: "Potentially serious symptoms"}
	case signals.Fever && signals.SevereHeadache:
		return domain.Triage{Level: domain.URGENT, Rationale: "Fever with severe headache"}
	default:
		return domain.Triage{Level: domain.SEMI_URGENT, Rationale: "Standard symptom evaluation"}
	}
}

// recommendTests proposes diagnostic tests for the top two diagnoses.
func recommendTests(differential []domain.DxCandidate) []domain.Test {
	var tests []domain.Test

	limit := len(differential)
	if limit > 2 {
		limit = 2
	}
	for _, dx := range differential[:limit] {
		switch {
		case strings.HasPrefix(dx.ICD10, "I2"):
			tests = append(tests, domain.Test{
				Name:      "ECG and Troponin",
				Rationale: fmt.Sprintf("Evaluate %s", dx.Label),
				VOIScore:  0.8,
				Urgency:   domain.URGENT,
			})
		case strings.HasPrefix(dx.ICD10, "G0"):
			tests = append(tests, domain.Test{
				Name:      "Lumbar Puncture",
				Rationale: fmt.Sprintf("Rule out %s", dx.Label),
				VOIScore:  0.9,
				Urgency:   domain.EMERGENCY,
			})
		}
	}
	return tests
}

// recommendTreatments proposes guideline-cited treatments for diagnoses the
// knowledge base covers. No citation, no recommendation.
func recommendTreatments(differential []domain.DxCandidate) []domain.Treatment {
	var treatments []domain.Treatment

	for _, dx := range differential {
		if dx.ICD10 == "J00" {
			treatments = append(treatments, domain.Treatment{
				Medication:        "Paracetamol",
				Dosage:            "500mg every 6 hours as needed",
				Instructions:      "For symptom relief of fever and aches",
				Contraindications: []string{"liver disease", "alcohol dependence"},
				Evidence: domain.Evidence{
					For:       []string{"symptomatic relief", "safe for common cold"},
					Citations: []string{"guideline:common_cold_treatment_2021"},
				},
				SafetyScore: 0.95,
			})
		}
	}
	return treatments
}

// overallConfidence blends the top-diagnosis probability, mean calculator
// confidence and the uncertainty metrics into a single [0,1] score.
func overallConfidence(differential []domain.DxCandidate, calculators []domain.CalculatorResult, u domain.Uncertainty) float64 {
	if len(differential) == 0 {
		return 0.0
	}

	dxConfidence := differential[0].P

	calcConfidence := 1.0
	if len(calculators) > 0 {
		var sum float64
		for _, c := range calculators {
			sum += c.Confidence
		}
		calcConfidence = sum / float64(len(calculators))
	}

	uncertaintyFactor := (u.DiagnosticCoverage + u.SafetyCertainty) / 2

	overall := dxConfidence*0.4 + calcConfidence*0.3 + uncertaintyFactor*0.3
	if overall > 1.0 {
		return 1.0
	}
	if overall < 0.0 {
		return 0.0
	}
	return overall
}
