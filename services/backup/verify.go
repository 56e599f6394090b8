package backup

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/customeros/mailvault/dto"
	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/models"
	"github.com/customeros/mailvault/internal/tracing"
)

// verifier compares the server's UID sets against the local tree without
// downloading anything.
type verifier struct {
	account *models.Account
	client  interfaces.IMAPClient
	store   interfaces.MessageStore
	log     logger.Logger
}

func (v *verifier) verify(ctx context.Context) (*dto.AccountVerification, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "verifier.verify")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagAccount(span, v.account.ID)

	if err := v.client.Connect(ctx); err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := v.client.Logout(closeCtx); err != nil {
			v.log.Warnf("[%s] logout failed: %v", v.account.Email, err)
			_ = v.client.Close()
		}
	}()

	folders, err := v.client.ListFolders(ctx)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}

	report := &dto.AccountVerification{
		AccountID: v.account.ID,
		Email:     v.account.Email,
		Synced:    true,
		CheckedAt: time.Now().UTC(),
	}
	for _, folder := range folders {
		if !folder.Selectable() {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result, err := v.verifyFolder(ctx, folder.Path)
		if err != nil {
			if isCancellation(ctx, err) || isSessionFailure(err) {
				tracing.TraceErr(span, err)
				return nil, err
			}
			result = dto.FolderVerification{Folder: folder.Path, Error: err.Error()}
		}
		if result.Error != "" || len(result.MissingLocally) > 0 || len(result.DeletedOnServer) > 0 {
			report.Synced = false
		}
		report.Folders = append(report.Folders, result)
	}
	span.SetTag("synced", report.Synced)
	return report, nil
}

func (v *verifier) verifyFolder(ctx context.Context, folderPath string) (dto.FolderVerification, error) {
	if _, err := v.client.SelectFolder(ctx, folderPath); err != nil {
		return dto.FolderVerification{}, fmt.Errorf("failed to select folder: %w", err)
	}
	serverUIDs, err := v.client.SearchAllUIDs(ctx)
	if err != nil {
		return dto.FolderVerification{}, fmt.Errorf("failed to search folder: %w", err)
	}
	localUIDs, err := v.store.ExistingUIDs(v.account.Email, folderPath)
	if err != nil {
		return dto.FolderVerification{}, fmt.Errorf("failed to read local uids: %w", err)
	}

	result := dto.FolderVerification{
		Folder:         folderPath,
		ServerCount:    len(serverUIDs),
		LocalCount:     len(localUIDs),
		MissingLocally: missingUIDs(serverUIDs, localUIDs),
	}
	onServer := make(map[uint32]struct{}, len(serverUIDs))
	for _, uid := range serverUIDs {
		onServer[uid] = struct{}{}
	}
	for uid := range localUIDs {
		if _, ok := onServer[uid]; !ok {
			result.DeletedOnServer = append(result.DeletedOnServer, uid)
		}
	}
	sort.Slice(result.DeletedOnServer, func(i, j int) bool {
		return result.DeletedOnServer[i] < result.DeletedOnServer[j]
	})
	return result, nil
}
