// Package worker runs extraction engines off the caller's goroutine and
// hands progress, completion and error events back over channels, so callers
// (the HTTP layer here, a UI loop elsewhere) never touch a running task
// directly.
package worker

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/unzipr/unzipr/internal/config"
	"github.com/unzipr/unzipr/internal/logger"
	"github.com/unzipr/unzipr/pkg/extractor"
	"github.com/unzipr/unzipr/pkg/progress"
	"github.com/unzipr/unzipr/pkg/task"
)

type EventType string

const (
	EventProgress       EventType = "progress"
	EventCompleted      EventType = "completed"
	EventErrored        EventType = "errored"
	EventBatchCompleted EventType = "batch_completed"
)

// Event is one observable occurrence in a task's run. Progress events carry
// tracker stats; terminal events carry the final snapshot. TaskIndex and
// TaskCount are populated by batch runs.
type Event struct {
	Type      EventType
	Task      task.Snapshot
	Stats     progress.Stats
	Success   bool
	Error     string
	TaskIndex int
	TaskCount int
}

const eventBuffer = 64

// Worker owns one engine and one task for the duration of a run. Exactly one
// terminal event (completed or errored) is emitted per Start, after which the
// event channel is closed.
type Worker struct {
	task    *task.Task
	engine  *extractor.Engine
	tracker *progress.Tracker
	events  chan Event

	running    atomic.Bool
	trackOnce  sync.Once
	wg         sync.WaitGroup
	logger     zerolog.Logger
}

func NewWorker(t *task.Task) *Worker {
	engine := extractor.New()
	engine.SpaceBuffer = config.Get().DiskSpaceBuffer
	return &Worker{
		task:    t,
		engine:  engine,
		tracker: progress.NewTracker(0),
		events:  make(chan Event, eventBuffer),
		logger:  logger.New("worker"),
	}
}

func (w *Worker) Task() *task.Task { return w.task }

// Events returns the channel the run's events arrive on. It is closed once
// the run finishes.
func (w *Worker) Events() <-chan Event { return w.events }

func (w *Worker) IsRunning() bool { return w.running.Load() }

// Start launches the extraction on its own goroutine. A second Start on a
// live worker is ignored.
func (w *Worker) Start() {
	if !w.running.CompareAndSwap(false, true) {
		w.logger.Warn().Str("task", w.task.ID()).Msg("Worker already running, ignoring start request")
		return
	}

	w.wg.Add(1)
	go w.run()
	w.logger.Info().Str("task", w.task.ID()).Str("archive", w.task.ArchivePath()).Msg("Started extraction worker")
}

// Wait blocks until the run has finished and the event channel is closed.
func (w *Worker) Wait() { w.wg.Wait() }

func (w *Worker) Cancel() {
	w.logger.Info().Str("task", w.task.ID()).Msg("Cancellation requested")
	w.engine.Cancel()
}

func (w *Worker) Pause() {
	w.logger.Info().Str("task", w.task.ID()).Msg("Pause requested")
	w.engine.Pause()
}

func (w *Worker) Resume() {
	w.logger.Info().Str("task", w.task.ID()).Msg("Resume requested")
	w.engine.Resume()
}

func (w *Worker) run() {
	defer w.wg.Done()
	defer close(w.events)
	defer w.running.Store(false)

	ok := w.engine.Extract(w.task, w.handleProgress)
	snap := w.task.Snapshot()

	if snap.Status == task.StatusFailed {
		w.events <- Event{Type: EventErrored, Task: snap, Error: snap.ErrorMessage}
		return
	}
	w.events <- Event{Type: EventCompleted, Task: snap, Success: ok}
}

// handleProgress runs on the extraction goroutine; the channel hand-off is
// what keeps consumers off the engine's thread.
func (w *Worker) handleProgress(snap task.Snapshot) {
	// totals are only known once the engine has inspected the archive
	w.trackOnce.Do(func() {
		w.tracker.Start(snap.TotalBytes)
	})
	stats := w.tracker.Update(snap.ExtractedBytes)
	w.events <- Event{Type: EventProgress, Task: snap, Stats: stats}
}
