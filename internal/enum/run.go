package enum

// RunStatus is the live status of a backup run for one account.
type RunStatus string

const (
	RunIdle        RunStatus = "idle"
	RunConnecting  RunStatus = "connecting"
	RunListing     RunStatus = "listing"
	RunScanning    RunStatus = "scanning"
	RunDownloading RunStatus = "downloading"
	RunCompleted   RunStatus = "completed"
	RunFailed      RunStatus = "failed"
	RunCancelled   RunStatus = "cancelled"
)

func (t RunStatus) String() string {
	return string(t)
}

// Terminal reports whether no further status transitions can happen.
func (t RunStatus) Terminal() bool {
	switch t {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// RunResult is the final outcome surfaced to API consumers.
type RunResult string

const (
	ResultCompleted           RunResult = "completed"
	ResultCompletedWithErrors RunResult = "completed_with_errors"
	ResultFailed              RunResult = "failed"
	ResultCancelled           RunResult = "cancelled"
)

func (t RunResult) String() string {
	return string(t)
}
