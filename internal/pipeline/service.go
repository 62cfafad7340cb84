package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/precision-dx-pipeline/internal/critic"
	"github.com/precision-dx-pipeline/internal/domain"
	"github.com/precision-dx-pipeline/internal/signal"
	"github.com/precision-dx-pipeline/internal/uncertainty"
)

// ConsultationRequest is one consultation turn.
type ConsultationRequest struct {
	PatientID   string
	SessionID   string
	Language    string
	Message     string
	PatientData map[string]any
}

// Service is the pipeline entry point: extraction, routing, execution,
// critic validation and abstention, always producing a presentable card.
// Process never returns an error; failures produce the error card.
type Service struct {
	logger     *logrus.Logger
	extractor  *signal.Extractor
	router     *signal.Router
	executor   *Executor
	critic     *critic.Critic
	quantifier *uncertainty.Quantifier
	abstention *uncertainty.Engine
	metrics    *Metrics
}

// NewService wires the pipeline components.
func NewService(
	logger *logrus.Logger,
	extractor *signal.Extractor,
	router *signal.Router,
	executor *Executor,
	c *critic.Critic,
	quantifier *uncertainty.Quantifier,
	abstention *uncertainty.Engine,
) *Service {
	return &Service{
		logger:     logger,
		extractor:  extractor,
		router:     router,
		executor:   executor,
		critic:     c,
		quantifier: quantifier,
		abstention: abstention,
		metrics:    &Metrics{},
	}
}

// Metrics exposes the service's outcome counters.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// Process runs one consultation through the full pipeline. A draft card is
// presented only if it passes the critic and the abstention check; otherwise
// the appropriate safe card replaces it. Panics and execution errors yield
// the error card.
func (s *Service) Process(ctx context.Context, req ConsultationRequest) (card *domain.DiagnosisCard) {
	start := time.Now()
	req = normalizeRequest(req)

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Consultation panicked")
			s.metrics.recordError()
			card = newErrorCard(req.SessionID, fmt.Errorf("panic: %v", r))
		}
		card.SetMetadata("processing_time_ms", time.Since(start).Milliseconds())
		s.metrics.recordConsultation(time.Since(start).Milliseconds())
	}()

	s.logger.WithFields(logrus.Fields{
		"session_id": req.SessionID,
		"patient_id": req.PatientID,
	}).Info("Starting consultation")

	capturedFields := extractCapturedFields(req.PatientData)
	signals := s.extractor.Extract(req.Message, req.PatientData)
	plan := s.router.CreatePlan(signals)

	consult := Consultation{
		PatientID:      req.PatientID,
		SessionID:      req.SessionID,
		Language:       req.Language,
		Symptoms:       req.Message,
		PatientData:    req.PatientData,
		CapturedFields: capturedFields,
		Signals:        signals,
		Plan:           plan,
	}

	draft, err := s.executor.Execute(ctx, consult)
	if err != nil {
		s.logger.WithError(err).Error("Pipeline execution failed")
		s.metrics.recordError()
		return newErrorCard(req.SessionID, err)
	}
	draft.SetMetadata("routing_rationale", signal.RoutingRationale(plan.RoutingReasons))

	if plan.IsEmergency() {
		s.metrics.recordEmergency()
	}

	// The draft differential survives fallback replacement so abstention
	// follow-up questions target what was actually considered.
	draftDifferential := draft.Differential

	criticResult := s.critic.Validate(critic.Input{
		Card:           draft,
		Symptoms:       req.Message,
		CapturedFields: capturedFields,
	})
	if !criticResult.Passed {
		s.metrics.recordCriticFailure()
		draft = s.replaceWithFallback(req, draft, criticResult)
	}

	decision := s.abstention.ShouldAbstain(draft.Uncertainty)
	if decision.Abstain {
		s.metrics.recordAbstention()
		abstained := newAbstentionCard(req.PatientID, req.SessionID, req.Language, decision.Action, decision.Message)
		if decision.Action == domain.AbstainRequestMoreInfo {
			// Give the user the highest-value questions to answer next turn.
			abstained.FollowUpQuestions = s.quantifier.GenerateQuestions(draftDifferential)
		}
		return abstained
	}

	topICD10 := ""
	if top := draft.TopCandidate(); top != nil {
		topICD10 = top.ICD10
	}
	s.logger.WithFields(logrus.Fields{
		"session_id":         req.SessionID,
		"top_icd10":          topICD10,
		"overall_confidence": draft.OverallConfidence,
	}).Info("Consultation completed")

	return draft
}

// replaceWithFallback swaps a critic-rejected draft for the conservative
// fallback card, preserving the failure context in metadata.
func (s *Service) replaceWithFallback(req ConsultationRequest, draft *domain.DiagnosisCard, result domain.CriticResult) *domain.DiagnosisCard {
	s.logger.WithFields(logrus.Fields{
		"session_id":   req.SessionID,
		"failed_rules": result.FailedRules,
	}).Warn("Critic rejected draft card, falling back")

	fallback := newFallbackCard(req.PatientID, req.SessionID, req.Language)
	fallback.SetMetadata("fallback_reason", "critic_validation_failure")
	fallback.SetMetadata("critic_failure", map[string]any{
		"failed_rules":        result.FailedRules,
		"actions":             result.Actions,
		"rationale":           result.Rationale,
		"original_confidence": draft.OverallConfidence,
	})
	return fallback
}

// normalizeRequest fills request defaults: generated identifiers and the
// deployment locale.
func normalizeRequest(req ConsultationRequest) ConsultationRequest {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.PatientID == "" {
		req.PatientID = "unknown"
	}
	if req.Language == "" {
		req.Language = "thai"
	}
	if req.PatientData == nil {
		req.PatientData = map[string]any{}
	}
	return req
}

// extractCapturedFields keeps only fields actually captured from the
// patient. Nothing else may feed a calculator.
func extractCapturedFields(patientData map[string]any) map[string]any {
	captured := make(map[string]any, len(patientData))
	for key, value := range patientData {
		captured[key] = value
	}
	return captured
}
