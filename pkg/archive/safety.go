package archive

import (
	"path/filepath"
	"strings"
)

// IsSafePath reports whether joining relPath onto root can only produce a
// location inside root. It rejects absolute paths and any parent-reference
// segment, then confirms component ancestry of the resolved path, so
// "/extractXYZ" never passes a check against "/extract".
func IsSafePath(root, relPath string) bool {
	if filepath.IsAbs(relPath) {
		return false
	}

	// archives may carry either separator
	normalized := strings.ReplaceAll(relPath, "\\", "/")
	if strings.HasPrefix(normalized, "/") {
		return false
	}
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return false
		}
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	target := filepath.Join(rootAbs, filepath.FromSlash(normalized))

	rel, err := filepath.Rel(rootAbs, target)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}
