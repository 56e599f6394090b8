package cron

import (
	"context"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/interfaces"
	cron_config "github.com/customeros/mailvault/internal/cron/config"
	"github.com/customeros/mailvault/internal/enum"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/tracing"
)

// CONSTANTS
const (
	// GroupBackup serialises scheduled backup dispatch with itself
	GroupBackup = "backup"

	jobHeartbeat   = "heartbeat"
	jobBackup      = "backup"
	jobOrphanSweep = "orphan_sweep"
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupBackup: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	cron     *cronv3.Cron
	stopCh   chan struct{}
	backup   interfaces.BackupService
	settings interfaces.SettingsRepository

	mu       sync.Mutex
	jobIDs   map[string]cronv3.EntryID
	schedule Schedule
}

func NewCronManager(cfg *config.Config, log logger.Logger, backup interfaces.BackupService, settings interfaces.SettingsRepository) *CronManager {
	return &CronManager{
		cfg:      cfg,
		log:      log,
		stopCh:   make(chan struct{}),
		jobIDs:   make(map[string]cronv3.EntryID),
		backup:   backup,
		settings: settings,
		schedule: DefaultSchedule(),
	}
}

// Start loads the persisted schedule and starts the scheduler. A stored
// schedule that no longer parses falls back to manual.
func (cm *CronManager) Start() error {
	schedule, err := LoadSchedule(context.Background(), cm.settings)
	if err != nil {
		cm.log.Warnf("Falling back to manual schedule: %v", err)
	}
	cm.mu.Lock()
	cm.schedule = schedule
	cm.mu.Unlock()

	cm.StartCron()
	return nil
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() {
	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger), // Skip if still running
			cronv3.Recover(cronv3.DefaultLogger),            // Default recovery as backup
		),
	}
	c := cronv3.New(cronOptions...)
	cm.registerJobs(c)
	c.Start()
	cm.cron = c
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
	close(cm.stopCh)
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) {
	// Load cron config from environment variables
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Fatalf("Failed to parse cron config from environment: %v", err)
	}

	// Register heartbeat job
	if cronConfig.CronScheduleHeartbeat != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat, next backup: %s", cm.describeNextFire())
		})
		if err != nil {
			cm.log.Fatalf("Could not add heartbeat cron job: %v", err)
		}
		cm.setJobID(jobHeartbeat, id)
		cm.log.Infof("Registered heartbeat job with schedule: %s", cronConfig.CronScheduleHeartbeat)
	}

	// Register orphaned temp file sweep
	if cronConfig.CronScheduleOrphanSweep != "" {
		id, err := c.AddFunc(cronConfig.CronScheduleOrphanSweep, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.runOrphanSweep()
		})
		if err != nil {
			cm.log.Fatalf("Could not add orphan sweep cron job: %v", err)
		}
		cm.setJobID(jobOrphanSweep, id)
		cm.log.Infof("Registered orphan sweep job with schedule: %s", cronConfig.CronScheduleOrphanSweep)
	}

	cm.registerBackupJob(c, cm.Schedule())
}

// registerBackupJob compiles the active schedule into a cron entry. Manual
// mode registers nothing.
func (cm *CronManager) registerBackupJob(c *cronv3.Cron, schedule Schedule) {
	spec, ok := schedule.CronSpec()
	if !ok {
		cm.log.Infof("Automatic backups disabled (schedule mode %s)", schedule.Mode)
		return
	}
	id, err := c.AddFunc(spec, func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		jobLocks.locks[GroupBackup].Lock()
		defer jobLocks.locks[GroupBackup].Unlock()
		cm.runScheduledBackup()
	})
	if err != nil {
		// the schedule came from user input, a bad spec must not take the
		// process down
		cm.log.Errorf("Could not add backup cron job: %v", err)
		return
	}
	cm.setJobID(jobBackup, id)
	cm.log.Infof("Registered backup job with schedule: %s", spec)
}

// runScheduledBackup dispatches a backup for every enabled account. Accounts
// still running from the previous fire are skipped, not queued.
func (cm *CronManager) runScheduledBackup() {
	ctx := context.Background()
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runScheduledBackup")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	started, err := cm.backup.StartAll(ctx, models.RunTriggerSchedule)
	if err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to start scheduled backups: %v", err)
		return
	}
	span.SetTag("started", len(started))
	cm.log.Infof("Scheduled backup started %d runs", len(started))
}

func (cm *CronManager) runOrphanSweep() {
	ctx := context.Background()
	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.runOrphanSweep")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if _, err := cm.backup.CleanupOrphans(ctx); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to sweep orphaned temp files: %v", err)
	}
}

// UpdateSchedule validates, persists and applies a new schedule. A custom
// schedule arriving without an anchor is anchored at the time of the update.
func (cm *CronManager) UpdateSchedule(ctx context.Context, schedule Schedule) error {
	if err := schedule.Validate(); err != nil {
		return err
	}
	if schedule.Mode == enum.ScheduleCustom && schedule.Anchor.IsZero() {
		schedule.Anchor = time.Now().UTC()
	}
	if err := SaveSchedule(ctx, cm.settings, schedule); err != nil {
		return err
	}

	cm.mu.Lock()
	cm.schedule = schedule
	c := cm.cron
	oldID, hadJob := cm.jobIDs[jobBackup]
	if hadJob {
		delete(cm.jobIDs, jobBackup)
	}
	cm.mu.Unlock()

	if c == nil {
		return nil
	}
	if hadJob {
		c.Remove(oldID)
	}
	cm.registerBackupJob(c, schedule)
	return nil
}

// Schedule returns the active schedule.
func (cm *CronManager) Schedule() Schedule {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.schedule
}

// NextRunAt reports the next scheduled fire, false when the schedule never
// fires.
func (cm *CronManager) NextRunAt(now time.Time) (time.Time, bool) {
	return cm.Schedule().NextFire(now)
}

func (cm *CronManager) describeNextFire() string {
	at, ok := cm.NextRunAt(time.Now())
	if !ok {
		return "manual only"
	}
	return at.Format(time.RFC3339)
}

func (cm *CronManager) setJobID(name string, id cronv3.EntryID) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.jobIDs[name] = id
}

func (cm *CronManager) jobCount() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.jobIDs)
}
