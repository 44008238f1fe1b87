package extractor

import (
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/disk"
)

// DefaultSpaceBuffer is the safety margin applied on top of the required
// bytes when gating extraction on free disk space.
const DefaultSpaceBuffer = 0.1

// diskFree is a seam for tests; production queries gopsutil.
var diskFree = func(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// CheckDiskSpace reports whether the destination's filesystem has room for
// requiredBytes plus the buffer fraction. The destination may not exist yet,
// so the check walks up to the nearest existing ancestor. A failing free-space
// query fails open, reporting space available with 0 to signal "unknown".
func CheckDiskSpace(destination string, requiredBytes int64, buffer float64) (bool, uint64) {
	if buffer < 0 {
		buffer = DefaultSpaceBuffer
	}

	check := destination
	for {
		if _, err := os.Stat(check); err == nil {
			break
		}
		parent := filepath.Dir(check)
		if parent == check {
			break
		}
		check = parent
	}

	available, err := diskFree(check)
	if err != nil {
		return true, 0
	}

	required := uint64(float64(requiredBytes) * (1 + buffer))
	return available >= required, available
}
