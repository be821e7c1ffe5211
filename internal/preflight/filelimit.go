package preflight

import (
	"fmt"
	"runtime"
	"syscall"
)

// filesPerWorker is the descriptors one worker may hold: the archive, a
// materialized database with its journal, and the entry being read.
const filesPerWorker = 4

// MinFileDescriptors is the floor below which a scan is likely to fail.
const MinFileDescriptors = 256

// CheckFileDescriptors checks that the open file limit covers the workers.
// A low limit is a warning: the scan still runs with fewer workers.
func (c *Checker) CheckFileDescriptors(workers int) CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: false,
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	want := uint64(max(MinFileDescriptors, workers*filesPerWorker+64))

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (wanted: %d for %d workers)", rLimit.Cur, want, workers)
	if rLimit.Cur < want {
		result.Status = StatusWarn
		result.Details = fmt.Sprintf("Run 'ulimit -n %d' or lower --workers", want)
		return result
	}

	result.Status = StatusPass
	return result
}
