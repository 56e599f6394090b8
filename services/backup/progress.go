package backup

import (
	"fmt"
	"sync"
	"time"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/enum"
)

// progressTracker maintains one run's live counters and hands a snapshot to
// the publish callback after every transition.
type progressTracker struct {
	mu       sync.Mutex
	snapshot interfaces.Progress
	publish  func(interfaces.Progress)
}

func newProgressTracker(accountID, runID string, publish func(interfaces.Progress)) *progressTracker {
	if publish == nil {
		publish = func(interfaces.Progress) {}
	}
	return &progressTracker{
		snapshot: interfaces.Progress{
			AccountID: accountID,
			RunID:     runID,
			Status:    enum.RunIdle,
			StartedAt: time.Now().UTC(),
		},
		publish: publish,
	}
}

func (p *progressTracker) mutate(apply func(s *interfaces.Progress)) {
	p.mu.Lock()
	apply(&p.snapshot)
	p.snapshot.UpdatedAt = time.Now().UTC()
	snapshot := cloneProgress(p.snapshot)
	p.mu.Unlock()
	p.publish(snapshot)
}

func (p *progressTracker) setStatus(status enum.RunStatus) {
	p.mutate(func(s *interfaces.Progress) { s.Status = status })
}

func (p *progressTracker) setFolderTotal(total int) {
	p.mutate(func(s *interfaces.Progress) { s.FoldersTotal = total })
}

func (p *progressTracker) enterFolder(name string) {
	p.mutate(func(s *interfaces.Progress) { s.CurrentFolder = name })
}

func (p *progressTracker) folderDone() {
	p.mutate(func(s *interfaces.Progress) { s.FoldersProcessed++ })
}

func (p *progressTracker) addPlanned(count int) {
	p.mutate(func(s *interfaces.Progress) { s.EmailsTotal += count })
}

func (p *progressTracker) messageDone(bytes int64) {
	p.mutate(func(s *interfaces.Progress) {
		s.EmailsDownloaded++
		s.BytesDownloaded += bytes
	})
}

func (p *progressTracker) recordError(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	p.mutate(func(s *interfaces.Progress) { s.Errors = append(s.Errors, message) })
}

// current returns a copy safe to hand across goroutines.
func (p *progressTracker) current() interfaces.Progress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneProgress(p.snapshot)
}

func (p *progressTracker) errorCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshot.Errors)
}

func cloneProgress(s interfaces.Progress) interfaces.Progress {
	out := s
	out.Errors = make([]string, len(s.Errors))
	copy(out.Errors, s.Errors)
	return out
}
