package cron

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/database"
	"github.com/customeros/mailvault/internal/enum"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/repository"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newSettingsRepo(t *testing.T) interfaces.SettingsRepository {
	dbConfig := &config.DatabaseConfig{
		Driver:     database.DriverSqlite,
		SqlitePath: filepath.Join(t.TempDir(), "mailvault.db"),
	}
	db, err := database.NewConnection(dbConfig)
	require.NoError(t, err)
	require.NoError(t, repository.MigrateDB(dbConfig, db))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return repository.InitRepositories(db).SettingsRepository
}

type stubBackupService struct {
	interfaces.BackupService
	mu       sync.Mutex
	triggers []string
	sweeps   int
}

func (s *stubBackupService) StartAll(ctx context.Context, trigger string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggers = append(s.triggers, trigger)
	return []string{"run_1"}, nil
}

func (s *stubBackupService) CleanupOrphans(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweeps++
	return 0, nil
}

func TestNewCronManager(t *testing.T) {
	// Arrange
	cfg := &config.Config{}
	log := getLogger()
	settings := newSettingsRepo(t)

	// Act
	cm := NewCronManager(cfg, log, &stubBackupService{}, settings)

	// Assert
	assert.NotNil(t, cm)
	assert.Equal(t, cfg, cm.cfg)
	assert.Equal(t, log, cm.log)
	assert.NotNil(t, cm.jobIDs)
	assert.Equal(t, enum.ScheduleManual, cm.Schedule().Mode)
}

func TestCronManagerStartAndStop(t *testing.T) {
	os.Setenv("CRON_SCHEDULE_HEARTBEAT", "0 * * * * *")
	defer os.Unsetenv("CRON_SCHEDULE_HEARTBEAT")

	// Arrange
	cm := NewCronManager(&config.Config{}, getLogger(), &stubBackupService{}, newSettingsRepo(t))

	// Act
	err := cm.Start()

	// Assert: nothing stored means manual mode, so only the housekeeping
	// jobs are registered
	require.NoError(t, err)
	assert.Equal(t, enum.ScheduleManual, cm.Schedule().Mode)
	assert.Equal(t, 2, cm.jobCount())

	cm.Stop()
	select {
	case <-cm.stopCh:
		// Channel is closed as expected
	default:
		t.Error("Stop channel was not closed")
	}
}

func TestCronManagerLoadsPersistedSchedule(t *testing.T) {
	// Arrange
	settings := newSettingsRepo(t)
	stored := Schedule{Mode: enum.ScheduleDaily, TimeOfDay: "03:30"}
	require.NoError(t, SaveSchedule(context.Background(), settings, stored))
	cm := NewCronManager(&config.Config{}, getLogger(), &stubBackupService{}, settings)

	// Act
	err := cm.Start()
	defer cm.Stop()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, stored, cm.Schedule())
	assert.Equal(t, 3, cm.jobCount())
}

func TestUpdateScheduleSwapsBackupJob(t *testing.T) {
	// Arrange
	settings := newSettingsRepo(t)
	cm := NewCronManager(&config.Config{}, getLogger(), &stubBackupService{}, settings)
	require.NoError(t, cm.Start())
	defer cm.Stop()
	require.Equal(t, 2, cm.jobCount())

	// Act
	err := cm.UpdateSchedule(context.Background(), Schedule{Mode: enum.ScheduleHourly})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 3, cm.jobCount())
	assert.Equal(t, enum.ScheduleHourly, cm.Schedule().Mode)

	loaded, err := LoadSchedule(context.Background(), settings)
	require.NoError(t, err)
	assert.Equal(t, enum.ScheduleHourly, loaded.Mode)

	// back to manual removes the entry again
	require.NoError(t, cm.UpdateSchedule(context.Background(), Schedule{Mode: enum.ScheduleManual}))
	assert.Equal(t, 2, cm.jobCount())
}

func TestUpdateScheduleRejectsInvalid(t *testing.T) {
	// Arrange
	settings := newSettingsRepo(t)
	cm := NewCronManager(&config.Config{}, getLogger(), &stubBackupService{}, settings)

	// Act
	err := cm.UpdateSchedule(context.Background(), Schedule{Mode: enum.ScheduleDaily, TimeOfDay: "nope"})

	// Assert: nothing persisted, active schedule untouched
	require.Error(t, err)
	assert.Equal(t, enum.ScheduleManual, cm.Schedule().Mode)
	loaded, err := LoadSchedule(context.Background(), settings)
	require.NoError(t, err)
	assert.Equal(t, enum.ScheduleManual, loaded.Mode)
}

func TestUpdateScheduleAnchorsCustom(t *testing.T) {
	// Arrange
	settings := newSettingsRepo(t)
	cm := NewCronManager(&config.Config{}, getLogger(), &stubBackupService{}, settings)
	before := time.Now().UTC()

	// Act
	err := cm.UpdateSchedule(context.Background(), Schedule{
		Mode:     enum.ScheduleCustom,
		Interval: 30,
		Unit:     enum.IntervalMinutes,
	})

	// Assert
	require.NoError(t, err)
	anchor := cm.Schedule().Anchor
	assert.False(t, anchor.IsZero())
	assert.False(t, anchor.Before(before))

	loaded, err := LoadSchedule(context.Background(), settings)
	require.NoError(t, err)
	assert.Equal(t, anchor.Unix(), loaded.Anchor.Unix())
}

func TestRunScheduledBackupDispatches(t *testing.T) {
	// Arrange
	backup := &stubBackupService{}
	cm := NewCronManager(&config.Config{}, getLogger(), backup, newSettingsRepo(t))

	// Act
	cm.runScheduledBackup()

	// Assert
	backup.mu.Lock()
	defer backup.mu.Unlock()
	require.Len(t, backup.triggers, 1)
	assert.Equal(t, models.RunTriggerSchedule, backup.triggers[0])
}

func TestRunOrphanSweepDelegates(t *testing.T) {
	// Arrange
	backup := &stubBackupService{}
	cm := NewCronManager(&config.Config{}, getLogger(), backup, newSettingsRepo(t))

	// Act
	cm.runOrphanSweep()

	// Assert
	backup.mu.Lock()
	defer backup.mu.Unlock()
	assert.Equal(t, 1, backup.sweeps)
}
