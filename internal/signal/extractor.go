// Package signal extracts clinical routing signals from free-text symptom
// reports and builds the pipeline execution plan.
package signal

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/precision-dx-pipeline/internal/domain"
)

// Keyword tables for deterministic signal classification. Regional-dialect
// (Thai) emergency vocabulary is included alongside English; extraction fails
// closed, treating unmatched text as "no signal".
var (
	chestPainKeywords = []string{
		"chest pain", "ปวดหน้าอก", "เจ็บหน้าอก", "แน่นหน้าอก",
	}
	feverKeywords = []string{
		"fever", "ไข้", "มีไข้", "ตัวร้อน",
	}
	severeHeadacheKeywords = []string{
		"severe headache", "ปวดหัวรุนแรง", "ปวดหัวมาก", "หัวปวดแสบ",
	}
	breathingKeywords = []string{
		"shortness of breath", "breathing difficulty", "หายใจไม่ออก", "หายใจลำบาก", "อึดอัด",
	}
	neuroDeficitKeywords = []string{
		"paralysis", "slurred speech", "อัมพาต", "พูดไม่ได้", "มึนงง", "ชัก",
	}
	abdominalPainKeywords = []string{
		"abdominal pain", "ปวดท้อง", "เจ็บท้อง", "ท้องเสียว",
	}
	emergencyKeywords = []string{
		"emergency", "urgent", "ฉุกเฉิน", "เร่งด่วน", "รุนแรง",
	}
)

// Extractor turns raw symptom text and captured patient fields into
// RouteSignals. Extraction is deterministic, so results are memoized per
// normalized text in an LRU cache; repeated messages within a chat session
// are common.
type Extractor struct {
	logger *logrus.Logger
	cache  *lru.Cache[string, domain.RouteSignals]
}

// NewExtractor creates a signal extractor with the given memoization size.
func NewExtractor(logger *logrus.Logger, cacheSize int) (*Extractor, error) {
	cache, err := lru.New[string, domain.RouteSignals](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Extractor{logger: logger, cache: cache}, nil
}

// Extract classifies the symptom text into routing signals and enhances them
// with captured patient fields. A documented cardiac history raises
// chest-pain sensitivity.
func (e *Extractor) Extract(text string, patientFields map[string]any) domain.RouteSignals {
	normalized := strings.ToLower(strings.TrimSpace(text))

	signals, ok := e.cache.Get(normalized)
	if !ok {
		signals = extractFromText(normalized)
		e.cache.Add(normalized, signals)
	}

	if hasCardiacHistory(patientFields) {
		signals.ChestPain = true
	}

	e.logger.WithFields(logrus.Fields{
		"chest_pain":           signals.ChestPain,
		"fever":                signals.Fever,
		"severe_headache":      signals.SevereHeadache,
		"breathing_difficulty": signals.BreathingDifficulty,
		"neurological_deficit": signals.NeurologicalDeficit,
		"abdominal_pain":       signals.AbdominalPain,
		"emergency_keywords":   signals.EmergencyKeywords,
	}).Debug("Extracted routing signals")

	return signals
}

func extractFromText(normalized string) domain.RouteSignals {
	signals := domain.RouteSignals{
		ChestPain:           matchesAny(normalized, chestPainKeywords),
		Fever:               matchesAny(normalized, feverKeywords),
		SevereHeadache:      matchesAny(normalized, severeHeadacheKeywords),
		BreathingDifficulty: matchesAny(normalized, breathingKeywords),
		NeurologicalDeficit: matchesAny(normalized, neuroDeficitKeywords),
		AbdominalPain:       matchesAny(normalized, abdominalPainKeywords),
	}

	for _, keyword := range emergencyKeywords {
		if strings.Contains(normalized, keyword) {
			signals.EmergencyKeywords = append(signals.EmergencyKeywords, keyword)
		}
	}

	return signals
}

func matchesAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func hasCardiacHistory(patientFields map[string]any) bool {
	history, ok := patientFields["history"]
	if !ok {
		return false
	}

	switch entries := history.(type) {
	case []string:
		for _, entry := range entries {
			if strings.Contains(strings.ToLower(entry), "cardiac") {
				return true
			}
		}
	case []any:
		for _, entry := range entries {
			if s, ok := entry.(string); ok && strings.Contains(strings.ToLower(s), "cardiac") {
				return true
			}
		}
	case string:
		return strings.Contains(strings.ToLower(entries), "cardiac")
	}
	return false
}
