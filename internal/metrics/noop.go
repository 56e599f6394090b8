package metrics

// NoopRecorder discards all metrics. Used in tests and one-shot commands.
type NoopRecorder struct{}

func (n *NoopRecorder) SessionOpened(host string)    {}
func (n *NoopRecorder) SessionClosed(host string)    {}
func (n *NoopRecorder) CommandSent(command string)   {}
func (n *NoopRecorder) ReconnectAttempt(host string) {}
func (n *NoopRecorder) ThrottleDetected(host string) {}

func (n *NoopRecorder) MessageDownloaded(accountEmail string, sizeBytes int64) {}
func (n *NoopRecorder) MessageFailed(accountEmail string)                      {}

func (n *NoopRecorder) RunStarted(trigger string)                          {}
func (n *NoopRecorder) RunFinished(result string, durationSeconds float64) {}
