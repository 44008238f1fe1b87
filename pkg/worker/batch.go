package worker

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/unzipr/unzipr/internal/logger"
	"github.com/unzipr/unzipr/pkg/task"
)

// Batch processes tasks strictly sequentially, one live worker at a time,
// re-emitting each worker's events tagged with the task's position.
// Cancelling marks every not-yet-started task cancelled but leaves finished
// tasks untouched.
type Batch struct {
	id     string
	tasks  []*task.Task
	events chan Event

	mu      sync.Mutex
	current *Worker

	cancelled atomic.Bool
	started   atomic.Bool
	logger    zerolog.Logger
}

func NewBatch(tasks []*task.Task) *Batch {
	return &Batch{
		id:     uuid.NewString(),
		tasks:  tasks,
		events: make(chan Event, eventBuffer),
		logger: logger.New("batch"),
	}
}

func (b *Batch) ID() string { return b.id }

func (b *Batch) Tasks() []*task.Task { return b.tasks }

// Events carries every task's events plus a final batch_completed event,
// after which the channel is closed.
func (b *Batch) Events() <-chan Event { return b.events }

// Progress returns the aggregate byte progress across all tasks, 0-100.
func (b *Batch) Progress() float64 {
	var total, extracted int64
	for _, t := range b.tasks {
		snap := t.Snapshot()
		total += snap.TotalBytes
		extracted += snap.ExtractedBytes
	}
	if total == 0 {
		return 0
	}
	return float64(extracted) / float64(total) * 100
}

// Start launches the sequential run on its own goroutine.
func (b *Batch) Start() {
	if !b.started.CompareAndSwap(false, true) {
		b.logger.Warn().Msg("Batch already started, ignoring start request")
		return
	}
	go b.run()
}

// CancelAll stops the current task at its next entry boundary and prevents
// the remaining ones from starting.
func (b *Batch) CancelAll() {
	b.logger.Info().Msg("Batch cancellation requested")
	b.cancelled.Store(true)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.current.Cancel()
	}
}

func (b *Batch) PauseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.current.Pause()
	}
}

func (b *Batch) ResumeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil {
		b.current.Resume()
	}
}

func (b *Batch) run() {
	defer close(b.events)

	count := len(b.tasks)
	for i, t := range b.tasks {
		if b.cancelled.Load() {
			for _, remaining := range b.tasks[i:] {
				remaining.MarkCancelled()
			}
			break
		}

		b.logger.Info().
			Int("index", i+1).
			Int("count", count).
			Str("archive", t.ArchivePath()).
			Msg("Starting batch task")

		w := NewWorker(t)
		b.mu.Lock()
		b.current = w
		b.mu.Unlock()

		w.Start()
		for ev := range w.Events() {
			ev.TaskIndex = i
			ev.TaskCount = count
			b.events <- ev
		}

		b.mu.Lock()
		b.current = nil
		b.mu.Unlock()
	}

	snaps := make([]task.Snapshot, 0, count)
	for _, t := range b.tasks {
		snaps = append(snaps, t.Snapshot())
	}
	b.logger.Info().Int("count", count).Msg("Batch complete")
	b.events <- Event{Type: EventBatchCompleted, TaskCount: count, Success: allSucceeded(snaps)}
}

func allSucceeded(snaps []task.Snapshot) bool {
	for _, s := range snaps {
		if s.Status != task.StatusCompleted {
			return false
		}
	}
	return true
}
