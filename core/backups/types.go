package backups

import (
	"errors"
	"fmt"
	"time"
)

// Info is the sidecar metadata written next to each backup copy, read
// back at list, verify and restore time and never mutated.
type Info struct {
	Name       string           `json:"name"`
	CreatedAt  time.Time        `json:"created_at"`
	SourcePath string           `json:"source_path"`
	SizeBytes  int64            `json:"size_bytes"`
	Checksum   string           `json:"checksum,omitempty"`
	Counts     map[string]int64 `json:"entity_counts,omitempty"`
	Path       string           `json:"-"`
}

var (
	ErrNotFound = errors.New("backup not found")
	ErrBusy     = errors.New("another backup operation is in progress")
)

// BackupError reports a failed backup creation.
type BackupError struct {
	Name string
	Err  error
}

func (e *BackupError) Error() string { return fmt.Sprintf("backup %s failed: %v", e.Name, e.Err) }

func (e *BackupError) Unwrap() error { return e.Err }

// RestoreError reports a failed restore. HandleClosed is set once the
// live handle has been closed: from then on the caller must reopen the
// store or abort, the old handle is gone either way.
type RestoreError struct {
	Name         string
	HandleClosed bool
	Err          error
}

func (e *RestoreError) Error() string {
	if e.HandleClosed {
		return fmt.Sprintf("restore %s failed after closing the live handle: %v", e.Name, e.Err)
	}
	return fmt.Sprintf("restore %s failed: %v", e.Name, e.Err)
}

func (e *RestoreError) Unwrap() error { return e.Err }
