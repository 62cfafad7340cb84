package uncertainty

import (
	"sort"
	"strings"

	"github.com/precision-dx-pipeline/internal/domain"
)

// categoryWeights rank question categories by how much a typical answer
// shifts the differential. Vitals and physical-exam findings move
// probabilities the most.
var categoryWeights = map[domain.QuestionCategory]float64{
	domain.CategoryPhysicalExam: 0.8,
	domain.CategoryVitals:       0.9,
	domain.CategorySymptoms:     0.6,
	domain.CategoryHistory:      0.5,
	domain.CategoryTimeline:     0.4,
}

const defaultCategoryWeight = 0.5

// minActionableUncertainty is the top-diagnosis uncertainty below which
// follow-up questions are not worth asking.
const minActionableUncertainty = 0.2

// closeCompetitionGap is the probability gap under which the top two
// diagnoses are considered in close competition, boosting question value.
const closeCompetitionGap = 0.3

const closeCompetitionBoost = 1.5

// candidate pairs a question with the category of information it elicits.
type candidate struct {
	question string
	category domain.QuestionCategory
}

// GenerateQuestions proposes up to cfg.MaxVOIQuestions follow-up questions
// ranked by expected value of information. Questions are collected from all
// of the top three diagnoses so that distinguishing questions for each
// close competitor are considered, deduplicated, scored and filtered by
// cfg.MinVOIScore.
func (q *Quantifier) GenerateQuestions(differential []domain.DxCandidate) []domain.VOIQuestion {
	if len(differential) == 0 {
		return nil
	}

	top := differential[0]
	if 1.0-top.P < minActionableUncertainty {
		return nil
	}

	var candidates []candidate
	seen := make(map[string]bool)
	limit := len(differential)
	if limit > 3 {
		limit = 3
	}
	for _, dx := range differential[:limit] {
		for _, cand := range diagnosisQuestions(dx) {
			if seen[cand.question] {
				continue
			}
			seen[cand.question] = true
			candidates = append(candidates, cand)
		}
	}

	var questions []domain.VOIQuestion
	for _, cand := range candidates {
		score := voiScore(cand.category, differential)
		if score <= q.cfg.MinVOIScore {
			continue
		}
		questions = append(questions, domain.VOIQuestion{
			Question:       cand.question,
			VOIScore:       score,
			ExpectedDeltaP: score,
			Category:       cand.category,
		})
	}

	sort.SliceStable(questions, func(i, j int) bool {
		return questions[i].VOIScore > questions[j].VOIScore
	})
	if len(questions) > q.cfg.MaxVOIQuestions {
		questions = questions[:q.cfg.MaxVOIQuestions]
	}
	return questions
}

// diagnosisQuestions returns the question templates for a diagnosis based on
// its ICD-10 category, falling back to generic history-taking questions.
func diagnosisQuestions(dx domain.DxCandidate) []candidate {
	switch {
	case strings.HasPrefix(dx.ICD10, "I2"): // ischemic heart disease
		return []candidate{
			{"Do you have crushing chest pain radiating to your arm or jaw?", domain.CategorySymptoms},
			{"Have you had any previous heart problems?", domain.CategoryHistory},
			{"Are you experiencing shortness of breath with the chest pain?", domain.CategorySymptoms},
		}
	case strings.HasPrefix(dx.ICD10, "G0"): // CNS infections
		return []candidate{
			{"Do you have neck stiffness or pain when moving your neck?", domain.CategoryPhysicalExam},
			{"Are you bothered by bright lights (photophobia)?", domain.CategorySymptoms},
			{"Have you been confused or had changes in thinking?", domain.CategoryMentalStatus},
		}
	case strings.HasPrefix(dx.ICD10, "J"): // respiratory
		return []candidate{
			{"How many days have you had these symptoms?", domain.CategoryTimeline},
			{"Do you have a cough with colored sputum?", domain.CategorySymptoms},
			{"Have you had fever with chills?", domain.CategorySymptoms},
		}
	default:
		return []candidate{
			{"When did these symptoms first start?", domain.CategoryTimeline},
			{"Have you had similar symptoms before?", domain.CategoryHistory},
			{"Are the symptoms getting better or worse?", domain.CategoryProgression},
		}
	}
}

// voiScore computes the expected value of information for a question:
// base value proportional to top-diagnosis uncertainty, weighted by
// category, boosted when the top two diagnoses are in close competition.
func voiScore(category domain.QuestionCategory, differential []domain.DxCandidate) float64 {
	if len(differential) == 0 {
		return 0.0
	}

	baseVOI := (1.0 - differential[0].P) * 0.5

	weight, ok := categoryWeights[category]
	if !ok {
		weight = defaultCategoryWeight
	}
	score := baseVOI * weight

	if len(differential) > 1 {
		gap := differential[0].P - differential[1].P
		if gap < closeCompetitionGap {
			score *= closeCompetitionBoost
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
