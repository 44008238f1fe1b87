package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/unzipr/unzipr/internal/config"
	"github.com/unzipr/unzipr/internal/testutil"
	"github.com/unzipr/unzipr/pkg/task"
)

func TestMain(m *testing.M) {
	// workers read the disk-space buffer through the config singleton
	dir, err := os.MkdirTemp("", "unzipr-worker-test")
	if err != nil {
		panic(err)
	}
	config.SetConfigPath(dir)
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func buildArchive(t *testing.T, files int) string {
	t.Helper()
	entries := make([]testutil.ZipEntry, 0, files)
	for i := 0; i < files; i++ {
		entries = append(entries, testutil.ZipEntry{
			Name: fmt.Sprintf("file%03d.txt", i),
			Body: []byte(fmt.Sprintf("content of file %03d", i)),
		})
	}
	path := filepath.Join(t.TempDir(), "fixture.zip")
	testutil.BuildZip(t, path, entries...)
	return path
}

func collectEvents(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestWorkerEmitsOrderedEvents(t *testing.T) {
	archive := buildArchive(t, 5)
	tk := task.New(archive, t.TempDir(), task.Options{ConflictPolicy: task.ConflictOverwrite})

	w := NewWorker(tk)
	w.Start()
	events := collectEvents(t, w.Events())
	w.Wait()

	if len(events) == 0 {
		t.Fatal("no events received")
	}

	var terminals int
	var lastBytes int64 = -1
	for _, ev := range events {
		switch ev.Type {
		case EventProgress:
			if ev.Task.ExtractedBytes < lastBytes {
				t.Errorf("byte counter went backwards: %d -> %d", lastBytes, ev.Task.ExtractedBytes)
			}
			lastBytes = ev.Task.ExtractedBytes
		case EventCompleted, EventErrored:
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("saw %d terminal events, want exactly 1", terminals)
	}

	final := events[len(events)-1]
	if final.Type != EventCompleted {
		t.Errorf("final event = %s, want completed", final.Type)
	}
	if !final.Success {
		t.Errorf("final event not successful: %s", final.Error)
	}
	if final.Task.Status != task.StatusCompleted {
		t.Errorf("final snapshot status = %s", final.Task.Status)
	}
	if final.Task.ExtractedFiles != 5 {
		t.Errorf("ExtractedFiles = %d, want 5", final.Task.ExtractedFiles)
	}
}

func TestWorkerAppliesConfiguredSpaceBuffer(t *testing.T) {
	cfg := config.Get()
	orig := cfg.DiskSpaceBuffer
	cfg.DiskSpaceBuffer = 0.25
	t.Cleanup(func() { cfg.DiskSpaceBuffer = orig })

	tk := task.New("/tmp/a.zip", "/tmp/out", task.Options{})
	w := NewWorker(tk)

	if w.engine.SpaceBuffer != 0.25 {
		t.Errorf("engine SpaceBuffer = %v, want the configured 0.25", w.engine.SpaceBuffer)
	}
}

func TestWorkerReportsFailure(t *testing.T) {
	tk := task.New(filepath.Join(t.TempDir(), "missing.zip"), t.TempDir(), task.Options{})

	w := NewWorker(tk)
	w.Start()
	events := collectEvents(t, w.Events())
	w.Wait()

	if len(events) != 1 {
		t.Fatalf("got %d events, want just the error", len(events))
	}
	if events[0].Type != EventErrored || events[0].Error == "" {
		t.Errorf("event = %+v, want errored with a message", events[0])
	}
	if tk.Status() != task.StatusFailed {
		t.Errorf("task status = %s, want failed", tk.Status())
	}
}

func TestWorkerIgnoresDoubleStart(t *testing.T) {
	archive := buildArchive(t, 3)
	tk := task.New(archive, t.TempDir(), task.Options{ConflictPolicy: task.ConflictOverwrite})

	w := NewWorker(tk)
	w.Start()
	w.Start() // must not spawn a second run or double-close the channel

	events := collectEvents(t, w.Events())
	w.Wait()

	var terminals int
	for _, ev := range events {
		if ev.Type == EventCompleted || ev.Type == EventErrored {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("saw %d terminal events after double start, want 1", terminals)
	}
}

func TestWorkerCancellationNeverFails(t *testing.T) {
	archive := buildArchive(t, 200)
	tk := task.New(archive, t.TempDir(), task.Options{ConflictPolicy: task.ConflictOverwrite})

	w := NewWorker(tk)
	w.Start()
	w.Cancel()
	events := collectEvents(t, w.Events())
	w.Wait()

	// the run may have finished before the flag was seen, but it must land in
	// a clean terminal state either way
	status := tk.Status()
	if status != task.StatusCancelled && status != task.StatusCompleted {
		t.Errorf("status after cancel = %s, want cancelled or completed", status)
	}
	if status == task.StatusFailed {
		t.Error("cancellation produced a failure")
	}

	var terminals int
	for _, ev := range events {
		if ev.Type == EventCompleted || ev.Type == EventErrored {
			terminals++
		}
	}
	if terminals != 1 {
		t.Errorf("saw %d terminal events, want 1", terminals)
	}
}

func TestWorkerPauseAndResume(t *testing.T) {
	archive := buildArchive(t, 50)
	tk := task.New(archive, t.TempDir(), task.Options{ConflictPolicy: task.ConflictOverwrite})

	w := NewWorker(tk)
	w.engine.PausePoll = 5 * time.Millisecond
	w.Pause()
	w.Start()

	// the pause flag is reset when the run begins, so pausing only sticks
	// once the run is live; resume regardless and expect completion
	w.Resume()
	collectEvents(t, w.Events())
	w.Wait()

	if tk.Status() != task.StatusCompleted {
		t.Errorf("status = %s, want completed after resume", tk.Status())
	}
}

func TestBatchRunsSequentially(t *testing.T) {
	tasks := []*task.Task{
		task.New(buildArchive(t, 3), t.TempDir(), task.Options{ConflictPolicy: task.ConflictOverwrite}),
		task.New(buildArchive(t, 4), t.TempDir(), task.Options{ConflictPolicy: task.ConflictOverwrite}),
	}

	b := NewBatch(tasks)
	b.Start()
	events := collectEvents(t, b.Events())

	if len(events) == 0 {
		t.Fatal("no events received")
	}
	final := events[len(events)-1]
	if final.Type != EventBatchCompleted {
		t.Fatalf("final event = %s, want batch_completed", final.Type)
	}
	if !final.Success {
		t.Error("batch reported failure")
	}
	if final.TaskCount != 2 {
		t.Errorf("TaskCount = %d, want 2", final.TaskCount)
	}

	// per-task events are tagged with their position and never interleave
	// backwards
	lastIndex := 0
	for _, ev := range events[:len(events)-1] {
		if ev.TaskIndex < lastIndex {
			t.Errorf("task index went backwards: %d after %d", ev.TaskIndex, lastIndex)
		}
		lastIndex = ev.TaskIndex
	}

	for i, tk := range tasks {
		if tk.Status() != task.StatusCompleted {
			t.Errorf("task %d status = %s, want completed", i, tk.Status())
		}
	}
	if p := b.Progress(); p != 100 {
		t.Errorf("batch progress = %v, want 100", p)
	}
}

func TestBatchCancelBeforeStart(t *testing.T) {
	tasks := []*task.Task{
		task.New(buildArchive(t, 3), t.TempDir(), task.Options{ConflictPolicy: task.ConflictOverwrite}),
		task.New(buildArchive(t, 3), t.TempDir(), task.Options{ConflictPolicy: task.ConflictOverwrite}),
	}

	b := NewBatch(tasks)
	b.CancelAll()
	b.Start()
	events := collectEvents(t, b.Events())

	final := events[len(events)-1]
	if final.Type != EventBatchCompleted || final.Success {
		t.Errorf("final event = %+v, want an unsuccessful batch_completed", final)
	}
	for i, tk := range tasks {
		if tk.Status() != task.StatusCancelled {
			t.Errorf("task %d status = %s, want cancelled", i, tk.Status())
		}
	}
}

func TestStoreLifecycle(t *testing.T) {
	s := NewStore(nil, time.Hour)
	archive := buildArchive(t, 3)
	tk := task.New(archive, t.TempDir(), task.Options{ConflictPolicy: task.ConflictOverwrite})

	w := s.Add(tk)
	w.Wait()

	snap, _, ok := s.Get(tk.ID())
	if !ok {
		t.Fatal("task missing from the store")
	}
	if snap.Status != task.StatusCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}

	if len(s.List()) != 1 {
		t.Errorf("List() has %d tasks, want 1", len(s.List()))
	}

	// control calls on a finished task fail cleanly once the worker is gone
	waitFor(t, func() bool {
		_, err := s.worker(tk.ID())
		return err != nil
	})
	if err := s.Cancel(tk.ID()); err == nil {
		t.Error("Cancel succeeded on a drained worker")
	}

	if err := s.Remove(tk.ID()); err != nil {
		t.Errorf("Remove failed: %v", err)
	}
	if _, _, ok := s.Get(tk.ID()); ok {
		t.Error("task still present after Remove")
	}
	if err := s.Remove(tk.ID()); err == nil {
		t.Error("Remove succeeded twice")
	}
}

func TestStorePruneFinished(t *testing.T) {
	s := NewStore(nil, time.Nanosecond)
	archive := buildArchive(t, 1)
	tk := task.New(archive, t.TempDir(), task.Options{ConflictPolicy: task.ConflictOverwrite})

	s.Add(tk).Wait()
	time.Sleep(time.Millisecond) // push CompletedAt past the tiny retention
	s.pruneFinished()

	if _, _, ok := s.Get(tk.ID()); ok {
		t.Error("terminal task survived pruning")
	}
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
