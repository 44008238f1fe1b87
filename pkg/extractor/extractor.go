// Package extractor walks ZIP entries and writes them under a destination
// root with conflict resolution, safety enforcement and pause/cancel control.
package extractor

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/unzipr/unzipr/internal/logger"
	"github.com/unzipr/unzipr/internal/utils"
	"github.com/unzipr/unzipr/pkg/archive"
	"github.com/unzipr/unzipr/pkg/task"
)

// ProgressFunc receives a task snapshot once per processed entry, invoked
// synchronously on the extracting goroutine.
type ProgressFunc func(task.Snapshot)

// ConflictResolver is consulted for entries whose target already exists when
// the task policy is ask. Returning ask (or any unknown value) skips the
// entry.
type ConflictResolver func(target string) task.ConflictPolicy

// Engine runs one extraction at a time. Cancel, Pause and Resume may be
// called from other goroutines; both flags are observed only at entry
// boundaries, never mid-write.
type Engine struct {
	logger zerolog.Logger

	cancelled atomic.Bool
	paused    atomic.Bool

	// SpaceBuffer is the disk-space safety margin as a fraction of the
	// required bytes.
	SpaceBuffer float64

	// PausePoll is how often the paused loop re-checks its flags.
	PausePoll time.Duration

	ConflictResolver ConflictResolver
}

func New() *Engine {
	return &Engine{
		logger:      logger.New("extractor"),
		SpaceBuffer: DefaultSpaceBuffer,
		PausePoll:   100 * time.Millisecond,
	}
}

// Cancel requests a stop at the next entry boundary. Files already written
// stay on disk.
func (e *Engine) Cancel() { e.cancelled.Store(true) }

// Pause blocks the extraction loop at the next entry boundary until Resume
// or Cancel.
func (e *Engine) Pause() { e.paused.Store(true) }

// Resume clears the pause flag.
func (e *Engine) Resume() { e.paused.Store(false) }

// Extract runs the task to a terminal state and reports success. It never
// panics outward: every failure path sets the task status and error message
// before returning false.
func (e *Engine) Extract(t *task.Task, onProgress ProgressFunc) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Str("task", t.ID()).Msg("Recovered from panic during extraction")
			t.MarkFailed(fmt.Sprintf("unexpected error: %v", r))
			ok = false
		}
	}()

	// a fresh run always starts unblocked
	e.cancelled.Store(false)
	e.paused.Store(false)

	if err := archive.Validate(t.ArchivePath()); err != nil {
		t.MarkFailed(fmt.Sprintf("archive validation failed: %v", err))
		return false
	}

	info, err := archive.Inspect(t.ArchivePath())
	if err != nil {
		t.MarkFailed(fmt.Sprintf("archive validation failed: %v", err))
		return false
	}
	if !info.IsValid {
		t.MarkFailed(fmt.Sprintf("invalid archive: %s", strings.Join(info.ValidationErrors, ", ")))
		return false
	}
	t.SetTotals(info.FileCount, info.UncompressedSize)

	hasSpace, available := CheckDiskSpace(t.Destination(), info.UncompressedSize, e.SpaceBuffer)
	if !hasSpace {
		t.MarkFailed(fmt.Sprintf("insufficient disk space. Required: %d bytes, Available: %d bytes",
			info.UncompressedSize, available))
		return false
	}

	if err := utils.EnsureDir(t.Destination()); err != nil {
		t.MarkFailed(fmt.Sprintf("failed to create destination directory: %v", err))
		return false
	}

	t.MarkRunning()

	root, err := e.extractionRoot(t, info)
	if err != nil {
		t.MarkFailed(fmt.Sprintf("failed to create extraction root: %v", err))
		return false
	}

	zr, err := zip.OpenReader(t.ArchivePath())
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		t.MarkFailed(categorize(err))
		return false
	}
	defer zr.Close()

	e.logger.Debug().
		Str("task", t.ID()).
		Str("archive", t.ArchivePath()).
		Str("root", root).
		Int("entries", len(zr.File)).
		Msg("Starting extraction")

	for _, f := range zr.File {
		if e.cancelled.Load() {
			t.MarkCancelled()
			return false
		}

		for e.paused.Load() {
			t.SetStatus(task.StatusPaused)
			time.Sleep(e.PausePoll)
			if e.cancelled.Load() {
				t.MarkCancelled()
				return false
			}
		}
		if t.Status() == task.StatusPaused {
			t.SetStatus(task.StatusRunning)
		}

		if !archive.IsSafePath(root, f.Name) {
			e.logger.Warn().Str("entry", f.Name).Msg("Skipping unsafe path")
			if !f.FileInfo().IsDir() {
				t.AddFailedFile(f.Name)
			}
			continue
		}

		if f.FileInfo().IsDir() {
			// best effort, directories never count toward progress
			_ = os.MkdirAll(filepath.Join(root, filepath.FromSlash(f.Name)), 0755)
			continue
		}

		t.SetCurrentFile(f.Name)
		size := int64(f.UncompressedSize64)
		target := filepath.Join(root, filepath.FromSlash(f.Name))

		if utils.FileExists(target) {
			resolved, write := e.resolveConflict(target, t.Opts().ConflictPolicy)
			if !write {
				// skipped entries still advance the byte counter so the
				// percentage stays meaningful
				t.AddExtracted(0, size)
				if onProgress != nil {
					onProgress(t.Snapshot())
				}
				continue
			}
			target = resolved
		}

		// no progress callback here: entries whose parent cannot be created
		// are recorded and dropped before the write is ever attempted
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			t.AddFailedFile(f.Name)
			continue
		}

		if err := e.writeEntry(f, target, t.Opts()); err != nil {
			e.logger.Warn().Err(err).Str("entry", f.Name).Msg("Failed to extract entry")
			t.AddFailedFile(f.Name)
		} else {
			t.AddExtracted(1, size)
		}

		if onProgress != nil {
			onProgress(t.Snapshot())
		}
	}

	t.MarkCompleted()
	e.logger.Info().Str("task", t.ID()).Str("archive", t.ArchivePath()).Msg("Extraction completed")
	return true
}

// extractionRoot applies the task's root folder mode, creating the wrapper
// directory when one is called for.
func (e *Engine) extractionRoot(t *task.Task, info *archive.Info) (string, error) {
	wrap := false
	switch t.Opts().RootFolderMode {
	case task.RootFolderAlways:
		wrap = true
	case task.RootFolderAuto:
		wrap = info.RootFolder == ""
	}
	if !wrap {
		return t.Destination(), nil
	}

	base := filepath.Base(t.ArchivePath())
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	root := filepath.Join(t.Destination(), stem)
	if err := utils.EnsureDir(root); err != nil {
		return "", err
	}
	return root, nil
}

// writeEntry reads the entry fully and writes it in one shot, then applies
// requested metadata best-effort.
func (e *Engine) writeEntry(f *zip.File, target string, opts task.Options) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry: %w", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return fmt.Errorf("read entry: %w", err)
	}

	if err := os.WriteFile(target, data, 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	if opts.PreserveTimestamps && !f.Modified.IsZero() {
		_ = os.Chtimes(target, f.Modified, f.Modified)
	}

	if opts.PreservePermissions {
		// unix permission bits live in the high 16 bits of the external
		// attributes; zero means the creator recorded nothing
		if mode := f.ExternalAttrs >> 16; mode != 0 {
			_ = os.Chmod(target, os.FileMode(mode)&os.ModePerm)
		}
	}
	return nil
}

// categorize maps a fatal error to the failure message taxonomy.
func categorize(err error) string {
	switch {
	case errors.Is(err, zip.ErrFormat), errors.Is(err, zip.ErrChecksum), errors.Is(err, zip.ErrAlgorithm):
		return fmt.Sprintf("corrupted archive: %v", err)
	case errors.Is(err, os.ErrPermission):
		return fmt.Sprintf("permission denied: %v", err)
	default:
		return fmt.Sprintf("I/O error: %v", err)
	}
}
