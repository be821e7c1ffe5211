package preflight

import (
	"fmt"
	"syscall"

	"github.com/dustin/go-humanize"
)

// DefaultMinDiskSpace is the free space required when the target sets none.
const DefaultMinDiskSpace = 100 * 1024 * 1024

// CheckDiskSpace checks that path has at least min bytes free.
func (c *Checker) CheckDiskSpace(name, path string, min uint64) CheckResult {
	result := CheckResult{
		Name:     name,
		Required: true,
	}
	if min == 0 {
		min = DefaultMinDiskSpace
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(nearestExisting(path), &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	available := stat.Bavail * uint64(stat.Bsize)
	result.Message = fmt.Sprintf("%s free (minimum: %s)", humanize.IBytes(available), humanize.IBytes(min))
	if available < min {
		result.Status = StatusFail
		result.Details = "Point scan.temp_dir at a larger volume; embedded databases are copied there"
		return result
	}

	result.Status = StatusPass
	return result
}
