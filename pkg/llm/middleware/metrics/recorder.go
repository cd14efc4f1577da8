// Package metrics provides metrics recording for completion client operations.
package metrics

import "time"

// Recorder defines the interface for recording completion request metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed request.
	ObserveRequest(
		model, component string,
		promptTokens, completionTokens int,
		success bool,
		errorType string,
		duration time.Duration,
	)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_, _ string, _, _ int, _ bool, _ string, _ time.Duration) {
	// No-op
}
