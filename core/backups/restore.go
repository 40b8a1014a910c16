package backups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"meridian-cmp/core/store"
)

// Verify opens the named copy on an isolated read-only handle and runs
// the engine's consistency check. When the sidecar carries a checksum
// the file is rehashed first. Verify reports false instead of failing.
func (s *Service) Verify(ctx context.Context, name string) bool {
	if s == nil {
		return false
	}
	info, err := s.find(ctx, name)
	if err != nil {
		return false
	}
	if info.Checksum != "" {
		sum, size, err := fileSHA256(info.Path)
		if err != nil || sum != info.Checksum {
			return false
		}
		if info.SizeBytes > 0 && size != info.SizeBytes {
			return false
		}
	}
	db, err := store.OpenReadOnly(info.Path)
	if err != nil {
		return false
	}
	defer db.Close()
	var result string
	if err := db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&result); err != nil {
		return false
	}
	return strings.EqualFold(result, "ok")
}

// Restore replaces the live store file with the named backup. The live
// handle is closed before the copy; on success a freshly opened handle
// is returned and the Service continues on it. When the returned error
// has HandleClosed set, the old handle is already gone and the caller
// must reopen or abort.
func (s *Service) Restore(ctx context.Context, name string) (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, &RestoreError{Name: name, Err: errors.New("backup service is not initialized")}
	}
	if err := s.beginOp("restore"); err != nil {
		return nil, err
	}
	defer s.endOp("restore")

	info, err := s.find(ctx, name)
	if err != nil {
		return nil, &RestoreError{Name: name, Err: err}
	}
	if _, err := os.Stat(info.Path); err != nil {
		return nil, &RestoreError{Name: name, Err: fmt.Errorf("backup file unreadable: %w", err)}
	}

	livePath := s.sourcePath()
	if err := s.db.Close(); err != nil {
		return nil, &RestoreError{Name: name, Err: fmt.Errorf("close live handle: %w", err)}
	}
	// Past this point the old handle is gone.
	for _, sidecar := range []string{livePath + "-wal", livePath + "-shm"} {
		if err := os.Remove(sidecar); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, &RestoreError{Name: name, HandleClosed: true, Err: fmt.Errorf("remove %s: %w", sidecar, err)}
		}
	}
	if err := copyFile(info.Path, livePath); err != nil {
		return nil, &RestoreError{Name: name, HandleClosed: true, Err: err}
	}

	fresh, err := store.OpenAt(livePath)
	if err != nil {
		return nil, &RestoreError{Name: name, HandleClosed: true, Err: fmt.Errorf("reopen store: %w", err)}
	}
	s.db = fresh
	s.logger.Printf("restored backup %s over %s", info.Name, livePath)
	return fresh, nil
}

// copyFile stages the copy next to the destination and renames it into
// place so a torn write cannot leave a half-written store.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	tmp := dst + ".restore-tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy to %s: %w", tmp, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", dst, err)
	}
	return nil
}
