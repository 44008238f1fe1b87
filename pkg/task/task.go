package task

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an extraction task. Transitions only move
// forward: queued -> running -> {completed, failed, cancelled}, with
// running <-> paused as a reversible sub-cycle while active.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// IsActive reports whether the task is waiting to run or running.
func (s Status) IsActive() bool {
	return s == StatusQueued || s == StatusRunning
}

// IsTerminal reports whether the task has reached a final state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ConflictPolicy decides what happens when an entry's target path already
// exists on disk.
type ConflictPolicy string

const (
	ConflictAsk       ConflictPolicy = "ask"
	ConflictOverwrite ConflictPolicy = "overwrite"
	ConflictSkip      ConflictPolicy = "skip"
	ConflictRename    ConflictPolicy = "rename"
)

func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case ConflictAsk, ConflictOverwrite, ConflictSkip, ConflictRename:
		return ConflictPolicy(s), nil
	case "":
		return ConflictAsk, nil
	}
	return "", fmt.Errorf("unknown conflict policy: %s", s)
}

// RootFolderMode controls whether extraction wraps the archive contents in a
// folder named after the archive. Auto only wraps when the archive has no
// common root folder of its own, avoiding double nesting.
type RootFolderMode string

const (
	RootFolderNever  RootFolderMode = "never"
	RootFolderAlways RootFolderMode = "always"
	RootFolderAuto   RootFolderMode = "auto"
)

func ParseRootFolderMode(s string) (RootFolderMode, error) {
	switch RootFolderMode(s) {
	case RootFolderNever, RootFolderAlways, RootFolderAuto:
		return RootFolderMode(s), nil
	case "":
		return RootFolderNever, nil
	}
	return "", fmt.Errorf("unknown root folder mode: %s", s)
}

// Options are the immutable extraction settings fixed at task creation.
type Options struct {
	ConflictPolicy      ConflictPolicy `json:"conflict_policy"`
	RootFolderMode      RootFolderMode `json:"root_folder_mode"`
	PreserveTimestamps  bool           `json:"preserve_timestamps"`
	PreservePermissions bool           `json:"preserve_permissions"`
}

// Task is the mutable unit of work for one extraction run. The engine is the
// sole mutator while Extract runs; everyone else reads through Snapshot.
type Task struct {
	mu sync.Mutex

	id          string
	archivePath string
	destination string
	opts        Options

	status         Status
	totalFiles     int
	extractedFiles int
	totalBytes     int64
	extractedBytes int64
	currentFile    string
	failedFiles    []string
	errorMessage   string

	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
}

// New builds a queued task with a fresh id.
func New(archivePath, destination string, opts Options) *Task {
	return &Task{
		id:          uuid.NewString(),
		archivePath: archivePath,
		destination: destination,
		opts:        opts,
		status:      StatusQueued,
		createdAt:   time.Now(),
	}
}

func (t *Task) ID() string          { return t.id }
func (t *Task) ArchivePath() string { return t.archivePath }
func (t *Task) Destination() string { return t.destination }
func (t *Task) Opts() Options       { return t.opts }

func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Task) SetStatus(s Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = s
}

// MarkRunning flips the task to running, recording the start instant on the
// first transition out of queued.
func (t *Task) MarkRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusRunning
	if t.startedAt.IsZero() {
		t.startedAt = time.Now()
	}
}

func (t *Task) MarkCompleted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusCompleted
	t.completedAt = time.Now()
	t.currentFile = ""
}

func (t *Task) MarkCancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusCancelled
	t.completedAt = time.Now()
}

func (t *Task) MarkFailed(message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusFailed
	t.errorMessage = message
	t.completedAt = time.Now()
}

func (t *Task) SetTotals(files int, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.totalFiles = files
	t.totalBytes = bytes
}

func (t *Task) SetCurrentFile(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.currentFile = name
}

// AddExtracted advances the progress counters. Skipped entries pass files=0
// so the byte accounting stays monotonic without inflating the file count.
func (t *Task) AddExtracted(files int, bytes int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.extractedFiles += files
	t.extractedBytes += bytes
}

func (t *Task) AddFailedFile(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failedFiles = append(t.failedFiles, name)
}

func (t *Task) ExtractedBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.extractedBytes
}

// Snapshot is an immutable copy of the task state, safe to hand across
// goroutines and to serialize.
type Snapshot struct {
	ID             string    `json:"id"`
	ArchivePath    string    `json:"archive_path"`
	Destination    string    `json:"destination"`
	Options        Options   `json:"options"`
	Status         Status    `json:"status"`
	TotalFiles     int       `json:"total_files"`
	ExtractedFiles int       `json:"extracted_files"`
	TotalBytes     int64     `json:"total_bytes"`
	ExtractedBytes int64     `json:"extracted_bytes"`
	CurrentFile    string    `json:"current_file,omitempty"`
	FailedFiles    []string  `json:"failed_files,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Progress       float64   `json:"progress"`
	CreatedAt      time.Time `json:"created_at"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	CompletedAt    time.Time `json:"completed_at,omitzero"`
}

func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := Snapshot{
		ID:             t.id,
		ArchivePath:    t.archivePath,
		Destination:    t.destination,
		Options:        t.opts,
		Status:         t.status,
		TotalFiles:     t.totalFiles,
		ExtractedFiles: t.extractedFiles,
		TotalBytes:     t.totalBytes,
		ExtractedBytes: t.extractedBytes,
		CurrentFile:    t.currentFile,
		FailedFiles:    append([]string(nil), t.failedFiles...),
		ErrorMessage:   t.errorMessage,
		CreatedAt:      t.createdAt,
		StartedAt:      t.startedAt,
		CompletedAt:    t.completedAt,
	}
	if t.totalBytes > 0 {
		snap.Progress = float64(t.extractedBytes) / float64(t.totalBytes) * 100.0
	}
	return snap
}
