package filestore

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/customeros/mailvault/interfaces"
	"github.com/customeros/mailvault/internal/logger"
	"github.com/customeros/mailvault/internal/utils"
)

const (
	sidecarName     = ".uid_cache"
	messageSuffix   = ".eml"
	tempSuffix      = ".tmp"
	filenameTimeFmt = "20060102150405"
)

// Store lays out downloaded messages as
// <root>/<account>/<folder>/<uid>_<timestamp>_<sender>.eml, one directory per
// folder, with an append-only .uid_cache sidecar next to the files. Folder
// hierarchies are flattened into a single sanitized component, so
// "INBOX/Receipts" becomes the directory "INBOX_Receipts".
type Store struct {
	root string
	log  logger.Logger
}

func NewStore(root string, log logger.Logger) interfaces.MessageStore {
	return &Store{root: root, log: log}
}

func (s *Store) accountDir(accountEmail string) string {
	return filepath.Join(s.root, utils.SanitizePathComponent(accountEmail))
}

func (s *Store) folderDir(accountEmail, folderPath string) string {
	return filepath.Join(s.accountDir(accountEmail), utils.SanitizePathComponent(folderPath))
}

// PrepareFolder ensures the directory for an account folder exists and
// returns its path.
func (s *Store) PrepareFolder(accountEmail, folderPath string) (string, error) {
	dir := s.folderDir(accountEmail, folderPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create folder directory: %w", err)
	}
	return dir, nil
}

// ExistingUIDs returns the downloaded UID set for a folder. The sidecar is
// authoritative when present; otherwise the set is rebuilt from the .eml
// filenames and the sidecar is rewritten best-effort.
func (s *Store) ExistingUIDs(accountEmail, folderPath string) (map[uint32]struct{}, error) {
	dir := s.folderDir(accountEmail, folderPath)

	uids, err := readSidecar(filepath.Join(dir, sidecarName))
	if err == nil {
		return uids, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	uids, err = scanMessageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(uids) > 0 {
		if err := writeSidecar(filepath.Join(dir, sidecarName), uids); err != nil {
			s.log.Warnf("failed to rebuild uid cache in %s: %v", dir, err)
		}
	}
	return uids, nil
}

// WriteMessage commits raw message bytes under a temp name, renames into
// place and appends the UID to the folder sidecar.
func (s *Store) WriteMessage(raw []byte, accountEmail, folderPath string, uid uint32, date time.Time, senderSlug string) (string, error) {
	dir, err := s.PrepareFolder(accountEmail, folderPath)
	if err != nil {
		return "", err
	}
	final := reservePath(dir, uid, date, senderSlug)
	temp := final + tempSuffix

	if err := os.WriteFile(temp, raw, 0644); err != nil {
		return "", fmt.Errorf("failed to write message file: %w", err)
	}
	if err := os.Rename(temp, final); err != nil {
		_ = os.Remove(temp)
		return "", fmt.Errorf("failed to commit message file: %w", err)
	}
	if err := appendSidecar(dir, uid); err != nil {
		return "", err
	}
	return final, nil
}

// PrepareStreamingDestination reserves temp and final paths for a message too
// large to buffer. The caller streams into tempPath and then finalizes.
func (s *Store) PrepareStreamingDestination(accountEmail, folderPath string, uid uint32, date time.Time, senderSlug string) (string, string, error) {
	dir, err := s.PrepareFolder(accountEmail, folderPath)
	if err != nil {
		return "", "", err
	}
	final := reservePath(dir, uid, date, senderSlug)
	return final + tempSuffix, final, nil
}

// FinalizeStreamedFile renames a fully streamed temp file into place and
// appends the UID to the sidecar.
func (s *Store) FinalizeStreamedFile(tempPath, finalPath string, uid uint32) error {
	if err := os.Rename(tempPath, finalPath); err != nil {
		return fmt.Errorf("failed to commit streamed file: %w", err)
	}
	return appendSidecar(filepath.Dir(finalPath), uid)
}

// CleanupOrphans removes leftover *.tmp files anywhere below the backup root
// and returns how many were deleted.
func (s *Store) CleanupOrphans() (int, error) {
	removed := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), tempSuffix) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			s.log.Warnf("failed to remove orphan %s: %v", path, err)
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("failed to sweep backup root: %w", err)
	}
	return removed, nil
}

// SizeBytes totals the stored .eml bytes for one account.
func (s *Store) SizeBytes(accountEmail string) (int64, error) {
	var total int64
	err := walkMessages(s.accountDir(accountEmail), func(d fs.DirEntry) error {
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// MessageCount counts the stored .eml files for one account.
func (s *Store) MessageCount(accountEmail string) (int64, error) {
	var count int64
	err := walkMessages(s.accountDir(accountEmail), func(d fs.DirEntry) error {
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func walkMessages(dir string, visit func(d fs.DirEntry) error) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), messageSuffix) {
			return nil
		}
		return visit(d)
	})
	if err != nil {
		return fmt.Errorf("failed to walk account tree: %w", err)
	}
	return nil
}

// reservePath picks the final filename for a message, adding _1, _2, ... when
// the natural name is already taken.
func reservePath(dir string, uid uint32, date time.Time, senderSlug string) string {
	if date.IsZero() {
		date = time.Now().UTC()
	}
	if senderSlug == "" {
		senderSlug = "unknown"
	}
	base := fmt.Sprintf("%d_%s_%s", uid, date.Format(filenameTimeFmt), utils.SanitizePathComponent(senderSlug))

	final := filepath.Join(dir, base+messageSuffix)
	for i := 1; pathExists(final); i++ {
		final = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, messageSuffix))
	}
	return final
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// uidFromFilename extracts the UID prefix from
// "<uid>_<timestamp>_<sender>.eml". The prefix before the first underscore is
// authoritative for identity.
func uidFromFilename(name string) (uint32, bool) {
	idx := strings.Index(name, "_")
	if idx <= 0 {
		return 0, false
	}
	n, err := strconv.ParseUint(name[:idx], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

func scanMessageFiles(dir string) (map[uint32]struct{}, error) {
	uids := make(map[uint32]struct{})
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return uids, nil
		}
		return nil, fmt.Errorf("failed to scan folder directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), messageSuffix) {
			continue
		}
		if uid, ok := uidFromFilename(entry.Name()); ok {
			uids[uid] = struct{}{}
		}
	}
	return uids, nil
}

func readSidecar(path string) (map[uint32]struct{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	uids := make(map[uint32]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		n, err := strconv.ParseUint(line, 10, 32)
		if err != nil {
			continue
		}
		uids[uint32(n)] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read uid cache: %w", err)
	}
	return uids, nil
}

func writeSidecar(path string, uids map[uint32]struct{}) error {
	sorted := make([]uint32, 0, len(uids))
	for uid := range uids {
		sorted = append(sorted, uid)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var b strings.Builder
	for _, uid := range sorted {
		b.WriteString(strconv.FormatUint(uint64(uid), 10))
		b.WriteByte('\n')
	}

	temp := path + tempSuffix
	if err := os.WriteFile(temp, []byte(b.String()), 0644); err != nil {
		return err
	}
	return os.Rename(temp, path)
}

func appendSidecar(dir string, uid uint32) error {
	f, err := os.OpenFile(filepath.Join(dir, sidecarName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open uid cache: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "%d\n", uid); err != nil {
		return fmt.Errorf("failed to append uid cache: %w", err)
	}
	return nil
}
