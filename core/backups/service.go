package backups

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/gofrs/uuid/v5"

	"meridian-cmp/config"
	"meridian-cmp/core/utils"
)

const (
	backupExt        = ".db"
	sidecarExt       = ".json"
	autoBackupPrefix = "auto_backup_"
	backupTimeFormat = "2006-01-02_15-04-05"
)

// Service owns the backup directory: it creates, lists, verifies,
// restores, deletes and rotates point-in-time copies of the store. One
// lifecycle operation runs at a time per Service.
type Service struct {
	cfg    *config.AppConfig
	db     *sql.DB
	logger *utils.Logger

	opMu   sync.Mutex
	opName string
}

func NewService(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) *Service {
	return &Service{cfg: cfg, db: db, logger: logger}
}

// DB exposes the current live handle; after a successful Restore this is
// the freshly opened one.
func (s *Service) DB() *sql.DB {
	if s == nil {
		return nil
	}
	return s.db
}

func (s *Service) dir() string {
	if s != nil && s.cfg != nil && strings.TrimSpace(s.cfg.Backups.Path) != "" {
		return strings.TrimSpace(s.cfg.Backups.Path)
	}
	return "data/backups"
}

func (s *Service) sourcePath() string {
	if s != nil && s.cfg != nil && strings.TrimSpace(s.cfg.DBPath) != "" {
		return strings.TrimSpace(s.cfg.DBPath)
	}
	return "data/meridian.db"
}

// Create produces a consistent snapshot of the live store under the
// given name and writes its sidecar metadata. An empty name gets a
// timestamped default.
func (s *Service) Create(ctx context.Context, name string) (*Info, error) {
	if s == nil || s.db == nil {
		return nil, &BackupError{Name: name, Err: errors.New("backup service is not initialized")}
	}
	if err := s.beginOp("backup"); err != nil {
		return nil, err
	}
	defer s.endOp("backup")
	return s.create(ctx, name)
}

func (s *Service) create(ctx context.Context, name string) (*Info, error) {
	name = normalizeBackupName(name)
	if name == "" {
		return nil, &BackupError{Name: name, Err: errors.New("backup name has no usable characters")}
	}
	dir := s.dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &BackupError{Name: name, Err: fmt.Errorf("create backup directory: %w", err)}
	}
	target := filepath.Join(dir, name+backupExt)
	if _, err := os.Stat(target); err == nil {
		return nil, &BackupError{Name: name, Err: fmt.Errorf("backup %s already exists", name)}
	}

	// VACUUM INTO writes a compacted, transactionally consistent copy
	// while the source stays live.
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, target); err != nil {
		os.Remove(target)
		return nil, &BackupError{Name: name, Err: fmt.Errorf("online copy: %w", err)}
	}
	checksum, size, err := fileSHA256(target)
	if err != nil {
		os.Remove(target)
		return nil, &BackupError{Name: name, Err: fmt.Errorf("checksum: %w", err)}
	}

	info := &Info{
		Name:       name,
		CreatedAt:  utils.NowUTC(),
		SourcePath: s.sourcePath(),
		SizeBytes:  size,
		Checksum:   checksum,
		Counts:     s.entityCounts(ctx),
		Path:       target,
	}
	if err := writeSidecar(sidecarPath(dir, name), info); err != nil {
		os.Remove(target)
		return nil, &BackupError{Name: name, Err: err}
	}
	s.logger.Printf("backup %s created (%d bytes)", name, size)
	return info, nil
}

// CreateAuto takes a timestamped automatic backup, then rotates old
// automatic copies down to the configured keep count. Rotation never
// touches manually named backups, and a rotation failure does not undo
// the successful backup.
func (s *Service) CreateAuto(ctx context.Context) (*Info, error) {
	if s == nil || s.db == nil {
		return nil, &BackupError{Err: errors.New("backup service is not initialized")}
	}
	if err := s.beginOp("backup"); err != nil {
		return nil, err
	}
	defer s.endOp("backup")

	name := autoBackupPrefix + utils.NowUTC().Format(backupTimeFormat) + "_" + shortID()
	info, err := s.create(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := s.rotate(ctx); err != nil {
		s.logger.Errorf("auto backup rotation: %v", err)
	}
	return info, nil
}

func (s *Service) rotate(ctx context.Context) error {
	keep := s.cfg.EffectiveAutoKeep()
	infos, err := s.List(ctx, 0)
	if err != nil {
		return err
	}
	var autos []Info
	for _, info := range infos {
		if strings.HasPrefix(info.Name, autoBackupPrefix) {
			autos = append(autos, info)
		}
	}
	if len(autos) <= keep {
		return nil
	}
	for _, old := range autos[keep:] {
		if err := s.removeBackupFiles(old.Name); err != nil {
			return err
		}
		s.logger.Printf("rotated out %s", old.Name)
	}
	return nil
}

// List returns backups newest first. Sidecar metadata wins when
// present; otherwise file size and mtime fill in.
func (s *Service) List(ctx context.Context, limit int) ([]Info, error) {
	if s == nil {
		return []Info{}, nil
	}
	dir := s.dir()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), backupExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), backupExt)
		info := Info{Name: name}
		if meta, err := readSidecar(sidecarPath(dir, name)); err == nil {
			info = *meta
			info.Name = name
		} else if fi, err := e.Info(); err == nil {
			info.CreatedAt = fi.ModTime().UTC()
			info.SizeBytes = fi.Size()
		}
		info.Path = filepath.Join(dir, e.Name())
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Delete removes the copy and its sidecar. Deleting a backup that does
// not exist is a no-op.
func (s *Service) Delete(ctx context.Context, name string) error {
	if s == nil {
		return errors.New("backup service is not initialized")
	}
	if err := s.beginOp("delete"); err != nil {
		return err
	}
	defer s.endOp("delete")
	return s.removeBackupFiles(normalizeBackupName(name))
}

func (s *Service) removeBackupFiles(name string) error {
	dir := s.dir()
	for _, p := range []string{filepath.Join(dir, name+backupExt), sidecarPath(dir, name)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

func (s *Service) find(ctx context.Context, name string) (*Info, error) {
	infos, err := s.List(ctx, 0)
	if err != nil {
		return nil, err
	}
	name = normalizeBackupName(name)
	for i := range infos {
		if infos[i].Name == name {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("backup %q: %w", name, ErrNotFound)
}

func (s *Service) beginOp(name string) error {
	if s == nil {
		return errors.New("backup service is not initialized")
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.opName != "" {
		return fmt.Errorf("%s while %s is running: %w", name, s.opName, ErrBusy)
	}
	s.opName = name
	return nil
}

func (s *Service) endOp(name string) {
	if s == nil {
		return
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()
	if s.opName == name {
		s.opName = ""
	}
}

// shortID keeps automatic names unique when several backups land in the
// same second.
func shortID() string {
	id, err := uuid.NewV4()
	if err != nil {
		return "0"
	}
	return id.String()[:8]
}

func sidecarPath(dir, name string) string {
	return filepath.Join(dir, name+sidecarExt)
}

func writeSidecar(path string, info *Info) error {
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return nil
}

func readSidecar(path string) (*Info, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info := &Info{}
	if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("decode metadata %s: %w", path, err)
	}
	return info, nil
}

func fileSHA256(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	hasher := sha256.New()
	size, err := io.Copy(hasher, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

// normalizeBackupName makes a name filesystem-safe. Timestamps and the
// auto prefix pass through unchanged.
func normalizeBackupName(in string) string {
	v := strings.TrimSpace(in)
	if v == "" {
		return "backup_" + utils.NowUTC().Format(backupTimeFormat)
	}
	replacer := strings.NewReplacer(
		" ", "_",
		"/", "_",
		"\\", "_",
		":", "_",
		";", "_",
		",", "_",
		"\"", "",
		"'", "",
		"..", "_",
	)
	v = replacer.Replace(v)
	for strings.Contains(v, "__") {
		v = strings.ReplaceAll(v, "__", "_")
	}
	return strings.Trim(v, "_")
}
