package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/unzipr/unzipr/internal/logger"
	"github.com/unzipr/unzipr/pkg/history"
	"github.com/unzipr/unzipr/pkg/progress"
	"github.com/unzipr/unzipr/pkg/task"
)

const pruneInterval = 10 * time.Minute

// Store is the registry of tasks and their workers. It drains every worker's
// event stream, keeps the latest progress stats for the API to read, records
// finished runs in the history service and prunes terminal tasks past the
// retention window on a schedule.
type Store struct {
	mu      sync.RWMutex
	tasks   map[string]*task.Task
	workers map[string]*Worker
	batches map[string]*Batch
	stats   map[string]progress.Stats

	history   *history.Service
	retention time.Duration
	logger    zerolog.Logger
}

func NewStore(hist *history.Service, retention time.Duration) *Store {
	return &Store{
		tasks:     make(map[string]*task.Task),
		workers:   make(map[string]*Worker),
		batches:   make(map[string]*Batch),
		stats:     make(map[string]progress.Stats),
		history:   hist,
		retention: retention,
		logger:    logger.New("store"),
	}
}

// Add registers a task and starts its worker immediately.
func (s *Store) Add(t *task.Task) *Worker {
	w := NewWorker(t)

	s.mu.Lock()
	s.tasks[t.ID()] = t
	s.workers[t.ID()] = w
	s.mu.Unlock()

	go s.drain(w)
	w.Start()
	return w
}

// AddBatch registers all tasks and starts a strictly sequential batch run.
func (s *Store) AddBatch(tasks []*task.Task) *Batch {
	b := NewBatch(tasks)

	s.mu.Lock()
	for _, t := range tasks {
		s.tasks[t.ID()] = t
	}
	s.batches[b.ID()] = b
	s.mu.Unlock()

	go s.drainBatch(b)
	b.Start()
	return b
}

func (s *Store) drainBatch(b *Batch) {
	for ev := range b.Events() {
		switch ev.Type {
		case EventProgress:
			s.mu.Lock()
			s.stats[ev.Task.ID] = ev.Stats
			s.mu.Unlock()
		case EventCompleted, EventErrored:
			if s.history != nil {
				s.history.Add(ev.Task, ev.Task.Status == task.StatusCompleted)
			}
		}
	}

	s.mu.Lock()
	delete(s.batches, b.ID())
	s.mu.Unlock()
}

// Batch returns a live batch by id.
func (s *Store) Batch(id string) (*Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	return b, ok
}

// drain consumes a worker's events until its run finishes.
func (s *Store) drain(w *Worker) {
	id := w.Task().ID()
	for ev := range w.Events() {
		switch ev.Type {
		case EventProgress:
			s.mu.Lock()
			s.stats[id] = ev.Stats
			s.mu.Unlock()
		case EventCompleted, EventErrored:
			if s.history != nil {
				s.history.Add(ev.Task, ev.Task.Status == task.StatusCompleted)
			}
		}
	}

	s.mu.Lock()
	delete(s.workers, id)
	s.mu.Unlock()
}

// Get returns the task snapshot and its latest stats.
func (s *Store) Get(id string) (task.Snapshot, progress.Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Snapshot{}, progress.Stats{}, false
	}
	return t.Snapshot(), s.stats[id], true
}

// List returns snapshots of every registered task.
func (s *Store) List() []task.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snaps := make([]task.Snapshot, 0, len(s.tasks))
	for _, t := range s.tasks {
		snaps = append(snaps, t.Snapshot())
	}
	return snaps
}

func (s *Store) worker(id string) (*Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workers[id]
	if !ok {
		return nil, fmt.Errorf("no running worker for task %s", id)
	}
	return w, nil
}

func (s *Store) Cancel(id string) error {
	w, err := s.worker(id)
	if err != nil {
		return err
	}
	w.Cancel()
	return nil
}

func (s *Store) Pause(id string) error {
	w, err := s.worker(id)
	if err != nil {
		return err
	}
	w.Pause()
	return nil
}

func (s *Store) Resume(id string) error {
	w, err := s.worker(id)
	if err != nil {
		return err
	}
	w.Resume()
	return nil
}

// Remove drops a task from the registry. Active tasks must be cancelled
// first.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("unknown task: %s", id)
	}
	if t.Status().IsActive() || t.Status() == task.StatusPaused {
		return fmt.Errorf("task %s is still active", id)
	}
	delete(s.tasks, id)
	delete(s.stats, id)
	return nil
}

// StartSchedule runs the periodic pruning of finished tasks until ctx ends.
func (s *Store) StartSchedule(ctx context.Context) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(pruneInterval),
		gocron.NewTask(s.pruneFinished),
		gocron.WithContext(ctx),
	); err != nil {
		return fmt.Errorf("failed to create prune job: %w", err)
	}

	scheduler.Start()
	s.logger.Debug().Msg("Store worker started")

	<-ctx.Done()
	return scheduler.Shutdown()
}

// pruneFinished drops terminal tasks whose completion is older than the
// retention window.
func (s *Store) pruneFinished() {
	if s.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		snap := t.Snapshot()
		if snap.Status.IsTerminal() && !snap.CompletedAt.IsZero() && snap.CompletedAt.Before(cutoff) {
			s.logger.Debug().Str("task", id).Msg("Pruning finished task")
			delete(s.tasks, id)
			delete(s.stats, id)
		}
	}
}
