package extractor

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/unzipr/unzipr/internal/utils"
	"github.com/unzipr/unzipr/pkg/task"
)

// renameCap bounds the " (N)" probe before falling back to a timestamp
// suffix, guaranteeing termination on pathological directories.
const renameCap = 10000

// resolveConflict decides what to do with an entry whose target path already
// exists. It returns the path to write to and false when the entry should be
// skipped. An ask policy is delegated to the engine's resolver when one is
// set; without a resolver it degrades to skip, since the engine itself never
// blocks to prompt.
func (e *Engine) resolveConflict(target string, policy task.ConflictPolicy) (string, bool) {
	if policy == task.ConflictAsk {
		if e.ConflictResolver != nil {
			policy = e.ConflictResolver(target)
		}
		if policy == task.ConflictAsk {
			policy = task.ConflictSkip
		}
	}

	switch policy {
	case task.ConflictOverwrite:
		return target, true
	case task.ConflictRename:
		return uniquePath(target), true
	}
	return "", false
}

// uniquePath appends " (N)" before the extension until the name is free.
func uniquePath(path string) string {
	if !utils.FileExists(path) {
		return path
	}

	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)

	for n := 1; n <= renameCap; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, n, ext)
		if !utils.FileExists(candidate) {
			return candidate
		}
	}
	return fmt.Sprintf("%s_%d%s", stem, time.Now().UnixMilli(), ext)
}
