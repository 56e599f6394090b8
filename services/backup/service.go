package backup

import (
	"context"
	"errors"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailvault/config"
	"github.com/customeros/mailvault/dto"
	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/enum"
	mverrors "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/metrics"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/repository"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/internal/utils"
	"github.com/customeros/mailvault/services/imap"
	"github.com/customeros/mailvault/services/ratelimit"
)

const settingHistoryRetention = "history.retention"

type activeRun struct {
	runID    string
	cancel   context.CancelFunc
	progress *progressTracker
}

// Service owns backup runs. One run per account at a time; runs for
// different accounts proceed concurrently, pacing through shared per-host
// trackers.
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	repos    *repository.Repositories
	store    interfaces.MessageStore
	secrets  interfaces.SecretStore
	tokens   interfaces.TokenProvider
	events   interfaces.EventPublisher
	mirror   interfaces.StorageService
	recorder metrics.Recorder
	trackers *ratelimit.Coordinator

	mu     sync.Mutex
	active map[string]*activeRun
	sinks  []interfaces.ProgressSink
	wg     sync.WaitGroup
}

// NewService wires the backup engine. events and mirror may be nil when the
// deployment runs without RabbitMQ or an off-site bucket.
func NewService(
	cfg *config.Config,
	log logger.Logger,
	repos *repository.Repositories,
	store interfaces.MessageStore,
	secrets interfaces.SecretStore,
	tokens interfaces.TokenProvider,
	events interfaces.EventPublisher,
	mirror interfaces.StorageService,
	recorder metrics.Recorder,
) interfaces.BackupService {
	if recorder == nil {
		recorder = &metrics.NoopRecorder{}
	}
	return &Service{
		cfg:      cfg,
		log:      log,
		repos:    repos,
		store:    store,
		secrets:  secrets,
		tokens:   tokens,
		events:   events,
		mirror:   mirror,
		recorder: recorder,
		trackers: ratelimit.NewCoordinator(),
		active:   make(map[string]*activeRun),
	}
}

func (s *Service) StartRun(ctx context.Context, accountID string, trigger string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BackupService.StartRun")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)
	span.SetTag("trigger", trigger)

	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	if !account.Enabled {
		return "", mverrors.ErrAccountDisabled
	}

	runID, err := s.launch(ctx, account, trigger, nil)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	tracing.TagRun(span, runID)
	return runID, nil
}

func (s *Service) StartAll(ctx context.Context, trigger string) ([]string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BackupService.StartAll")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	span.SetTag("trigger", trigger)

	accounts, err := s.repos.AccountRepository.GetEnabledAccounts(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}

	started := make([]string, 0, len(accounts))
	for _, account := range accounts {
		runID, err := s.launch(ctx, account, trigger, nil)
		if err != nil {
			if errors.Is(err, mverrors.ErrRunInProgress) {
				// still busy from the previous tick, skip rather than queue
				log.Printf("[%s] run already active, skipping", account.Email)
				continue
			}
			tracing.TraceErr(span, err)
			s.log.Errorf("[%s] failed to start run: %v", account.Email, err)
			continue
		}
		started = append(started, runID)
	}
	span.SetTag("started", len(started))
	return started, nil
}

// launch reserves the per-account slot, persists the run row and hands off
// to the background goroutine.
func (s *Service) launch(ctx context.Context, account *models.Account, trigger string, restrict map[string]map[uint32]struct{}) (string, error) {
	s.mu.Lock()
	if _, busy := s.active[account.ID]; busy {
		s.mu.Unlock()
		return "", mverrors.ErrRunInProgress
	}
	slot := &activeRun{}
	s.active[account.ID] = slot
	s.mu.Unlock()

	run := &models.BackupRun{
		AccountID: account.ID,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
	}
	if err := s.repos.BackupRunRepository.CreateRun(ctx, run); err != nil {
		s.clearActive(account.ID)
		return "", err
	}

	// the run outlives the caller's request context; cancellation goes
	// through CancelRun
	runCtx, cancel := context.WithCancel(context.Background())
	progress := newProgressTracker(account.ID, run.ID, s.publishProgress)

	s.mu.Lock()
	slot.runID = run.ID
	slot.cancel = cancel
	slot.progress = progress
	s.mu.Unlock()

	s.wg.Add(1)
	go s.executeRun(runCtx, account, run, progress, restrict)

	return run.ID, nil
}

func (s *Service) executeRun(ctx context.Context, account *models.Account, run *models.BackupRun, progress *progressTracker, restrict map[string]map[uint32]struct{}) {
	defer s.wg.Done()
	defer s.clearActive(account.ID)

	s.recorder.RunStarted(run.Trigger)
	s.publishRunEvent(ctx, dto.EventRunStarted, account, run, progress.current())

	status := enum.RunFailed
	client, err := s.buildClient(account)
	if err != nil {
		progress.recordError("credentials: %v", err)
		progress.setStatus(enum.RunFailed)
		s.log.Errorf("[%s] run %s could not authenticate: %v", account.Email, run.ID, err)
	} else {
		p := &pipeline{
			account:         account,
			client:          client,
			store:           s.store,
			progress:        progress,
			recorder:        s.recorder,
			log:             s.log,
			streamThreshold: s.cfg.BackupConfig.StreamThresholdBytes,
			restrict:        restrict,
			mirror:          s.mirrorHook(account),
		}
		var runErr error
		status, runErr = p.run(ctx)
		if runErr != nil {
			s.log.Warnf("[%s] run %s ended %s: %v", account.Email, run.ID, status, runErr)
		}
	}

	s.completeRun(account, run, progress, status)
}

// buildClient assembles a session from the account row plus its keychain
// material.
func (s *Service) buildClient(account *models.Account) (interfaces.IMAPClient, error) {
	clientConfig := imap.ClientConfig{
		Host:          account.Host,
		Port:          account.Port,
		TLS:           account.TLS,
		Username:      account.Username,
		Email:         account.Email,
		AuthMethod:    account.AuthMethod,
		SocksProxyURL: s.cfg.BackupConfig.SocksProxyURL,
	}
	switch account.AuthMethod {
	case enum.AuthOAuth2:
		accountCopy := *account
		clientConfig.AccessToken = func(ctx context.Context) (string, error) {
			return s.tokens.AccessToken(ctx, &accountCopy)
		}
	default:
		password, err := s.secrets.Password(account.ID)
		if err != nil {
			return nil, &imap.AuthError{Reason: "password unavailable: " + err.Error()}
		}
		clientConfig.Password = password
	}

	preset := enum.GetRateLimitProfile(utils.FirstNonEmpty(account.RateLimitProfile, s.cfg.BackupConfig.RateLimitProfile))
	tracker := s.trackers.TrackerFor(account.Host, ratelimit.ProfileFor(preset))
	return imap.NewClient(clientConfig, tracker, s.log, s.recorder), nil
}

// mirrorHook returns the best-effort off-site upload callback, nil when
// mirroring is disabled.
func (s *Service) mirrorHook(account *models.Account) func(ctx context.Context, folderPath, localPath string, uid uint32) {
	if s.mirror == nil {
		return nil
	}
	return func(ctx context.Context, folderPath, localPath string, uid uint32) {
		data, err := os.ReadFile(localPath)
		if err != nil {
			s.log.Warnf("[%s] mirror read failed for uid %d: %v", account.Email, uid, err)
			return
		}
		key := path.Join(
			utils.SanitizePathComponent(account.Email),
			utils.SanitizePathComponent(folderPath),
			filepath.Base(localPath),
		)
		if err := s.mirror.Upload(ctx, key, data, "message/rfc822"); err != nil {
			s.log.Warnf("[%s] mirror upload failed for uid %d: %v", account.Email, uid, err)
		}
	}
}

// completeRun persists the final counters and announces the outcome. Runs on
// a fresh context so a cancelled run still gets recorded.
func (s *Service) completeRun(account *models.Account, run *models.BackupRun, progress *progressTracker, status enum.RunStatus) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	span, ctx := opentracing.StartSpanFromContext(ctx, "BackupService.completeRun")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, account.ID)
	tracing.TagRun(span, run.ID)

	snapshot := progress.current()
	result := resultFor(status, len(snapshot.Errors))
	now := time.Now().UTC()

	run.Result = result
	run.FoldersProcessed = snapshot.FoldersProcessed
	run.FoldersTotal = snapshot.FoldersTotal
	run.EmailsDownloaded = snapshot.EmailsDownloaded
	run.EmailsTotal = snapshot.EmailsTotal
	run.BytesDownloaded = snapshot.BytesDownloaded
	run.Errors = models.StringList(snapshot.Errors)
	run.CompletedAt = &now

	if err := s.repos.BackupRunRepository.CompleteRun(ctx, run); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("[%s] failed to persist run %s: %v", account.Email, run.ID, err)
	}
	if err := s.repos.AccountRepository.UpdateLastRun(ctx, account.ID, result.String()); err != nil {
		tracing.TraceErr(span, err)
		s.log.Errorf("[%s] failed to update last run: %v", account.Email, err)
	}

	retention, err := s.repos.SettingsRepository.GetInt(ctx, settingHistoryRetention, s.cfg.BackupConfig.HistoryRetention)
	if err != nil {
		retention = s.cfg.BackupConfig.HistoryRetention
	}
	if err := s.repos.BackupRunRepository.PruneHistory(ctx, account.ID, retention); err != nil {
		s.log.Warnf("[%s] failed to prune run history: %v", account.Email, err)
	}

	s.recorder.RunFinished(result.String(), now.Sub(run.StartedAt).Seconds())
	s.publishRunEvent(ctx, runEventName(result), account, run, snapshot)
	log.Printf("[%s] run %s finished %s: %d emails, %d bytes, %d errors",
		account.Email, run.ID, result, snapshot.EmailsDownloaded, snapshot.BytesDownloaded, len(snapshot.Errors))
}

func (s *Service) CancelRun(ctx context.Context, accountID string) error {
	span, _ := opentracing.StartSpanFromContext(ctx, "BackupService.CancelRun")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	s.mu.Lock()
	run, ok := s.active[accountID]
	s.mu.Unlock()
	if !ok || run.cancel == nil {
		return mverrors.ErrRunNotFound
	}
	run.cancel()
	return nil
}

func (s *Service) CancelAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, run := range s.active {
		if run.cancel != nil {
			run.cancel()
		}
	}
}

func (s *Service) Progress(accountID string) (interfaces.Progress, bool) {
	s.mu.Lock()
	run, ok := s.active[accountID]
	s.mu.Unlock()
	if !ok || run.progress == nil {
		return interfaces.Progress{}, false
	}
	return run.progress.current(), true
}

func (s *Service) ActiveRuns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.active))
	for accountID := range s.active {
		ids = append(ids, accountID)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) Verify(ctx context.Context, accountID string) (*dto.AccountVerification, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BackupService.Verify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	report, err := s.verifyAccount(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	span.SetTag("synced", report.Synced)
	return report, nil
}

func (s *Service) verifyAccount(ctx context.Context, account *models.Account) (*dto.AccountVerification, error) {
	// verification shares the session budget with runs, so it refuses to
	// race an active run on the same account
	s.mu.Lock()
	_, busy := s.active[account.ID]
	s.mu.Unlock()
	if busy {
		return nil, mverrors.ErrRunInProgress
	}

	client, err := s.buildClient(account)
	if err != nil {
		return nil, err
	}
	v := &verifier{account: account, client: client, store: s.store, log: s.log}
	report, err := v.verify(ctx)
	if err != nil {
		return nil, err
	}
	s.publishVerificationEvent(ctx, account, report)
	return report, nil
}

func (s *Service) StartRepair(ctx context.Context, accountID string) (string, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BackupService.StartRepair")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	if !account.Enabled {
		return "", mverrors.ErrAccountDisabled
	}

	report, err := s.verifyAccount(ctx, account)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	plan := repairPlan(report)
	if len(plan) == 0 {
		log.Printf("[%s] verification found nothing to repair", account.Email)
		return "", nil
	}

	runID, err := s.launch(ctx, account, models.RunTriggerRepair, plan)
	if err != nil {
		tracing.TraceErr(span, err)
		return "", err
	}
	tracing.TagRun(span, runID)
	return runID, nil
}

func (s *Service) History(ctx context.Context, accountID string, limit int) ([]*models.BackupRun, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "BackupService.History")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, accountID)

	if _, err := s.getAccount(ctx, accountID); err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	return s.repos.BackupRunRepository.GetRuns(ctx, accountID, limit)
}

func (s *Service) CleanupOrphans(ctx context.Context) (int, error) {
	span, _ := opentracing.StartSpanFromContext(ctx, "BackupService.CleanupOrphans")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)

	removed, err := s.store.CleanupOrphans()
	if err != nil {
		tracing.TraceErr(span, err)
		return removed, err
	}
	span.SetTag("removed", removed)
	if removed > 0 {
		s.log.Infof("removed %d orphaned temp files", removed)
	}
	return removed, nil
}

func (s *Service) RegisterProgressSink(sink interfaces.ProgressSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

func (s *Service) WaitIdle() {
	s.wg.Wait()
}

func (s *Service) Shutdown(ctx context.Context) {
	s.CancelAll(ctx)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warnf("shutdown timed out waiting for active runs")
	}
}

func (s *Service) getAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := s.repos.AccountRepository.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, mverrors.ErrAccountNotFound
	}
	return account, nil
}

func (s *Service) clearActive(accountID string) {
	s.mu.Lock()
	run, ok := s.active[accountID]
	if ok {
		delete(s.active, accountID)
	}
	s.mu.Unlock()
	if ok && run.cancel != nil {
		run.cancel()
	}
}

func (s *Service) publishProgress(progress interfaces.Progress) {
	s.mu.Lock()
	sinks := make([]interfaces.ProgressSink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.Unlock()
	for _, sink := range sinks {
		sink.PublishProgress(progress)
	}
}

func (s *Service) publishRunEvent(ctx context.Context, name string, account *models.Account, run *models.BackupRun, snapshot interfaces.Progress) {
	if s.events == nil {
		return
	}
	event := dto.RunEvent{
		Event:            name,
		RunID:            run.ID,
		AccountID:        account.ID,
		Email:            account.Email,
		Trigger:          run.Trigger,
		Result:           run.Result.String(),
		EmailsDownloaded: int64(snapshot.EmailsDownloaded),
		BytesDownloaded:  snapshot.BytesDownloaded,
		Errors:           len(snapshot.Errors),
		Timestamp:        time.Now().UTC(),
	}
	if err := s.events.PublishRunEvent(ctx, event); err != nil {
		s.log.Warnf("[%s] failed to publish %s event: %v", account.Email, name, err)
	}
}

func (s *Service) publishVerificationEvent(ctx context.Context, account *models.Account, report *dto.AccountVerification) {
	if s.events == nil {
		return
	}
	event := dto.VerificationEvent{
		Event:          dto.EventVerificationCompleted,
		AccountID:      account.ID,
		Email:          account.Email,
		Synced:         report.Synced,
		FoldersChecked: len(report.Folders),
		Timestamp:      report.CheckedAt,
	}
	for _, folder := range report.Folders {
		event.MissingLocally += len(folder.MissingLocally)
		event.DeletedOnServer += len(folder.DeletedOnServer)
	}
	if err := s.events.PublishVerificationEvent(ctx, event); err != nil {
		s.log.Warnf("[%s] failed to publish verification event: %v", account.Email, err)
	}
}

func resultFor(status enum.RunStatus, errorCount int) enum.RunResult {
	switch status {
	case enum.RunCompleted:
		if errorCount > 0 {
			return enum.ResultCompletedWithErrors
		}
		return enum.ResultCompleted
	case enum.RunCancelled:
		return enum.ResultCancelled
	default:
		return enum.ResultFailed
	}
}

func runEventName(result enum.RunResult) string {
	switch result {
	case enum.ResultCompleted, enum.ResultCompletedWithErrors:
		return dto.EventRunCompleted
	case enum.ResultCancelled:
		return dto.EventRunCancelled
	default:
		return dto.EventRunFailed
	}
}

func repairPlan(report *dto.AccountVerification) map[string]map[uint32]struct{} {
	plan := make(map[string]map[uint32]struct{})
	for _, folder := range report.Folders {
		if len(folder.MissingLocally) == 0 {
			continue
		}
		uids := make(map[uint32]struct{}, len(folder.MissingLocally))
		for _, uid := range folder.MissingLocally {
			uids[uid] = struct{}{}
		}
		plan[folder.Folder] = uids
	}
	return plan
}
