// Package metrics provides interfaces and implementations for recording
// backup engine metrics. The Recorder interface is consumed by the IMAP
// session and the backup pipeline; the prometheus implementation backs the
// /metrics endpoint.
package metrics

// Recorder defines the interface for recording backup engine metrics.
type Recorder interface {
	// Session metrics
	SessionOpened(host string)
	SessionClosed(host string)
	CommandSent(command string)
	ReconnectAttempt(host string)

	// Rate limit metrics
	ThrottleDetected(host string)

	// Download metrics
	MessageDownloaded(accountEmail string, sizeBytes int64)
	MessageFailed(accountEmail string)

	// Run metrics
	RunStarted(trigger string)
	RunFinished(result string, durationSeconds float64)
}
