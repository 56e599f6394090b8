package backup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/enum"
	mverrors "github.com/customeros/mailvault/internal/errors"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/metrics"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/tracing"
	"github.com/customeros/mailvault/services/imap"
)

// pipeline executes one backup run for a single account: connect, list
// folders, diff UIDs per folder and download what is missing. Per-message
// failures are recorded and skipped; transport failures that survived the
// session's own reconnect policy end the run.
type pipeline struct {
	account         *models.Account
	client          interfaces.IMAPClient
	store           interfaces.MessageStore
	progress        *progressTracker
	recorder        metrics.Recorder
	log             logger.Logger
	streamThreshold int64

	// restrict, when non-nil, limits the run to the given folders and UID
	// sets. Used by the repair path.
	restrict map[string]map[uint32]struct{}

	// mirror uploads a committed file off-site, best-effort. Nil when
	// mirroring is disabled.
	mirror func(ctx context.Context, folderPath, localPath string, uid uint32)
}

// run drives the full per-account sequence and returns the final status.
func (p *pipeline) run(ctx context.Context) (enum.RunStatus, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pipeline.run")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, p.account.ID)

	status, err := p.execute(ctx)
	p.progress.setStatus(status)
	if err != nil {
		tracing.TraceErr(span, err)
	}
	span.SetTag("status", status.String())
	return status, err
}

func (p *pipeline) execute(ctx context.Context) (enum.RunStatus, error) {
	p.progress.setStatus(enum.RunConnecting)
	if err := p.client.Connect(ctx); err != nil {
		p.progress.recordError("connect: %v", err)
		if isCancellation(ctx, err) {
			return enum.RunCancelled, err
		}
		return enum.RunFailed, err
	}
	defer p.closeSession()

	p.progress.setStatus(enum.RunListing)
	folders, err := p.client.ListFolders(ctx)
	if err != nil {
		p.progress.recordError("list folders: %v", err)
		if isCancellation(ctx, err) {
			return enum.RunCancelled, err
		}
		return enum.RunFailed, err
	}

	selectable := selectableFolders(folders, p.restrict)
	p.progress.setFolderTotal(len(selectable))
	log.Printf("[%s] backing up %d folders", p.account.Email, len(selectable))

	for _, folder := range selectable {
		if ctx.Err() != nil {
			return enum.RunCancelled, ctx.Err()
		}
		var only map[uint32]struct{}
		if p.restrict != nil {
			only = p.restrict[folder.Path]
		}
		if err := p.processFolder(ctx, folder.Path, only); err != nil {
			if isCancellation(ctx, err) {
				return enum.RunCancelled, err
			}
			if isSessionFailure(err) {
				p.progress.recordError("folder %s: %v", folder.Path, err)
				return enum.RunFailed, err
			}
			// a folder-level refusal (NO, parse trouble) is recorded and the
			// run moves on to the next folder
			p.progress.recordError("folder %s: %v", folder.Path, err)
			continue
		}
		p.progress.folderDone()
	}
	return enum.RunCompleted, nil
}

// processFolder selects one folder, diffs server UIDs against the local tree
// and downloads the missing set ascending. When only is non-nil the missing
// set is additionally restricted to it.
func (p *pipeline) processFolder(ctx context.Context, folderPath string, only map[uint32]struct{}) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "pipeline.processFolder")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, p.account.ID)
	tracing.TagFolder(span, folderPath)

	p.progress.enterFolder(folderPath)
	p.progress.setStatus(enum.RunScanning)

	if _, err := p.client.SelectFolder(ctx, folderPath); err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to select folder: %w", err)
	}
	serverUIDs, err := p.client.SearchAllUIDs(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to search folder: %w", err)
	}
	localUIDs, err := p.store.ExistingUIDs(p.account.Email, folderPath)
	if err != nil {
		tracing.TraceErr(span, err)
		return fmt.Errorf("failed to read local uids: %w", err)
	}

	missing := missingUIDs(serverUIDs, localUIDs)
	if only != nil {
		missing = restrictUIDs(missing, only)
	}
	p.progress.addPlanned(len(missing))
	span.SetTag("uids.server", len(serverUIDs))
	span.SetTag("uids.missing", len(missing))

	if len(missing) == 0 {
		log.Printf("[%s][%s] up to date (%d messages)", p.account.Email, folderPath, len(serverUIDs))
		return nil
	}
	log.Printf("[%s][%s] downloading %d of %d messages", p.account.Email, folderPath, len(missing), len(serverUIDs))

	p.progress.setStatus(enum.RunDownloading)
	for _, uid := range missing {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := p.downloadMessage(ctx, folderPath, uid); err != nil {
			if isCancellation(ctx, err) || isSessionFailure(err) {
				tracing.TraceErr(span, err)
				return err
			}
			p.progress.recordError("%s uid %d: %v", folderPath, uid, err)
			p.recorder.MessageFailed(p.account.Email)
			log.Printf("[%s][%s] UID %d failed: %v", p.account.Email, folderPath, uid, err)
		}
	}
	return nil
}

// downloadMessage fetches one message, choosing the buffered or streaming
// path by server-reported size, and commits it to the store.
func (p *pipeline) downloadMessage(ctx context.Context, folderPath string, uid uint32) error {
	size, err := p.client.FetchMessageSize(ctx, uid)
	if err != nil {
		return fmt.Errorf("failed to fetch size: %w", err)
	}

	var committed string
	if int64(size) > p.streamThreshold {
		committed, err = p.downloadStreaming(ctx, folderPath, uid)
	} else {
		committed, err = p.downloadBuffered(ctx, folderPath, uid)
	}
	if err != nil {
		return err
	}

	p.progress.messageDone(int64(size))
	p.recorder.MessageDownloaded(p.account.Email, int64(size))
	if p.mirror != nil {
		p.mirror(ctx, folderPath, committed, uid)
	}
	return nil
}

func (p *pipeline) downloadBuffered(ctx context.Context, folderPath string, uid uint32) (string, error) {
	raw, err := p.client.FetchMessage(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("failed to fetch message: %w", err)
	}
	env := parseEnvelope(raw)
	path, err := p.store.WriteMessage(raw, p.account.Email, folderPath, uid, env.Date, env.SenderSlug)
	if err != nil {
		return "", fmt.Errorf("failed to store message: %w", err)
	}
	return path, nil
}

// downloadStreaming fetches the header first so the final filename is known,
// then streams the body straight into the temp file.
func (p *pipeline) downloadStreaming(ctx context.Context, folderPath string, uid uint32) (string, error) {
	header, err := p.client.FetchMessageHeader(ctx, uid)
	if err != nil {
		return "", fmt.Errorf("failed to fetch header: %w", err)
	}
	env := parseEnvelope(header)

	tempPath, finalPath, err := p.store.PrepareStreamingDestination(p.account.Email, folderPath, uid, env.Date, env.SenderSlug)
	if err != nil {
		return "", fmt.Errorf("failed to prepare destination: %w", err)
	}
	f, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to open temp file: %w", err)
	}
	if _, err := p.client.StreamMessageTo(ctx, uid, f); err != nil {
		_ = f.Close()
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to stream message: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("failed to flush temp file: %w", err)
	}
	if err := p.store.FinalizeStreamedFile(tempPath, finalPath, uid); err != nil {
		return "", err
	}
	return finalPath, nil
}

// closeSession ends the session politely even when the run context is
// already cancelled.
func (p *pipeline) closeSession() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.client.Logout(ctx); err != nil {
		p.log.Warnf("[%s] logout failed: %v", p.account.Email, err)
		_ = p.client.Close()
	}
}

func selectableFolders(folders []interfaces.Folder, restrict map[string]map[uint32]struct{}) []interfaces.Folder {
	out := make([]interfaces.Folder, 0, len(folders))
	for _, folder := range folders {
		if !folder.Selectable() {
			continue
		}
		if restrict != nil {
			if _, ok := restrict[folder.Path]; !ok {
				continue
			}
		}
		out = append(out, folder)
	}
	return out
}

// missingUIDs returns the server UIDs absent locally, preserving the
// ascending order the session guarantees.
func missingUIDs(serverUIDs []uint32, local map[uint32]struct{}) []uint32 {
	missing := make([]uint32, 0)
	for _, uid := range serverUIDs {
		if _, ok := local[uid]; !ok {
			missing = append(missing, uid)
		}
	}
	return missing
}

func restrictUIDs(uids []uint32, only map[uint32]struct{}) []uint32 {
	out := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		if _, ok := only[uid]; ok {
			out = append(out, uid)
		}
	}
	return out
}

// isCancellation reports whether err is the run context being cancelled.
func isCancellation(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var transportErr *imap.TransportError
	return errors.As(err, &transportErr) && transportErr.Kind == imap.TransportCancelled
}

// isSessionFailure reports whether the connection is gone for good; the
// session has already spent its reconnect attempts by the time such an error
// reaches the pipeline.
func isSessionFailure(err error) bool {
	var transportErr *imap.TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	return errors.Is(err, mverrors.ErrNotConnected)
}
