package domain

// StageResult carries the outcome of a non-critical pipeline stage.
// A degraded stage substitutes a default value and records the cause instead
// of aborting the request, making best-effort handling visible in the type
// system rather than hidden in recover blocks.
type StageResult[T any] struct {
	Value    T      `json:"value"`
	Degraded bool   `json:"degraded"`
	Cause    string `json:"cause,omitempty"`
}

// Ok wraps a successful stage value.
func Ok[T any](value T) StageResult[T] {
	return StageResult[T]{Value: value}
}

// Degraded wraps a stage default with the failure that caused the downgrade.
func Degraded[T any](def T, cause error) StageResult[T] {
	r := StageResult[T]{Value: def, Degraded: true}
	if cause != nil {
		r.Cause = cause.Error()
	}
	return r
}
