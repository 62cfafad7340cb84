package pipeline

import "sync/atomic"

// Metrics accumulates pipeline outcome counters. All methods are safe for
// concurrent use.
type Metrics struct {
	consultations   atomic.Int64
	emergencies     atomic.Int64
	criticFailures  atomic.Int64
	abstentions     atomic.Int64
	errors          atomic.Int64
	totalDurationMS atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Consultations  int64 `json:"consultations"`
	Emergencies    int64 `json:"emergencies"`
	CriticFailures int64 `json:"critic_failures"`
	Abstentions    int64 `json:"abstentions"`
	Errors         int64 `json:"errors"`
	AvgDurationMS  int64 `json:"avg_duration_ms"`
}

func (m *Metrics) recordConsultation(durationMS int64) {
	m.consultations.Add(1)
	m.totalDurationMS.Add(durationMS)
}

func (m *Metrics) recordEmergency()     { m.emergencies.Add(1) }
func (m *Metrics) recordCriticFailure() { m.criticFailures.Add(1) }
func (m *Metrics) recordAbstention()    { m.abstentions.Add(1) }
func (m *Metrics) recordError()         { m.errors.Add(1) }

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	consultations := m.consultations.Load()
	avg := int64(0)
	if consultations > 0 {
		avg = m.totalDurationMS.Load() / consultations
	}
	return MetricsSnapshot{
		Consultations:  consultations,
		Emergencies:    m.emergencies.Load(),
		CriticFailures: m.criticFailures.Load(),
		Abstentions:    m.abstentions.Load(),
		Errors:         m.errors.Load(),
		AvgDurationMS:  avg,
	}
}
