package extractor

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/unzipr/unzipr/internal/testutil"
	"github.com/unzipr/unzipr/pkg/task"
)

// withDiskFree swaps the free-space query for the duration of a test.
func withDiskFree(t *testing.T, fn func(path string) (uint64, error)) {
	t.Helper()
	orig := diskFree
	diskFree = fn
	t.Cleanup(func() { diskFree = orig })
}

func TestCheckDiskSpace(t *testing.T) {
	withDiskFree(t, func(string) (uint64, error) { return 1000, nil })

	// 800 * 1.1 = 880 <= 1000
	if ok, avail := CheckDiskSpace(t.TempDir(), 800, 0.1); !ok || avail != 1000 {
		t.Errorf("CheckDiskSpace(800) = (%v, %d), want (true, 1000)", ok, avail)
	}
	// 950 * 1.1 = 1045 > 1000
	if ok, _ := CheckDiskSpace(t.TempDir(), 950, 0.1); ok {
		t.Error("CheckDiskSpace(950) passed despite the buffer")
	}
	// negative buffer falls back to the default margin
	if ok, _ := CheckDiskSpace(t.TempDir(), 950, -1); ok {
		t.Error("CheckDiskSpace with a negative buffer skipped the default margin")
	}
}

func TestCheckDiskSpaceWalksUpToExistingAncestor(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "not", "yet", "created")

	var queried string
	withDiskFree(t, func(path string) (uint64, error) {
		queried = path
		return 1 << 40, nil
	})

	if ok, _ := CheckDiskSpace(missing, 100, 0.1); !ok {
		t.Error("CheckDiskSpace failed with plenty of room")
	}
	if queried != root {
		t.Errorf("queried %q, want the existing ancestor %q", queried, root)
	}
}

func TestCheckDiskSpaceFailsOpen(t *testing.T) {
	withDiskFree(t, func(string) (uint64, error) { return 0, errors.New("statfs broken") })

	ok, avail := CheckDiskSpace(t.TempDir(), 1<<40, 0.1)
	if !ok {
		t.Error("an unanswerable query must not block extraction")
	}
	if avail != 0 {
		t.Errorf("available = %d, want 0 to mark the figure unknown", avail)
	}
}

func TestExtractStopsOnInsufficientSpace(t *testing.T) {
	archive := filepath.Join(t.TempDir(), "big.zip")
	testutil.BuildZip(t, archive, testutil.ZipEntry{Name: "a.txt", Body: []byte("some content here")})

	withDiskFree(t, func(string) (uint64, error) { return 3, nil })

	dest := filepath.Join(t.TempDir(), "out")
	tk := task.New(archive, dest, task.Options{ConflictPolicy: task.ConflictOverwrite})

	if New().Extract(tk, nil) {
		t.Fatal("Extract succeeded with 3 bytes free")
	}
	snap := tk.Snapshot()
	if snap.Status != task.StatusFailed {
		t.Errorf("status = %s, want failed", snap.Status)
	}
	if !strings.Contains(snap.ErrorMessage, "insufficient disk space") {
		t.Errorf("ErrorMessage = %q", snap.ErrorMessage)
	}
	if !strings.Contains(snap.ErrorMessage, "Available: 3 bytes") {
		t.Errorf("ErrorMessage = %q, want the available figure", snap.ErrorMessage)
	}
	// the gate fires before anything is written
	if _, err := os.Stat(dest); err == nil {
		t.Error("destination was created despite the failed space check")
	}
}
