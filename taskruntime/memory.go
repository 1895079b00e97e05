package taskruntime

import (
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// ceilingBreaker is called when a worker's own heap allocation exceeds
// the configured memory ceiling. It is a field (not a hardcoded os.Exit
// call) so tests can observe a breach without killing the test binary.
type ceilingBreaker func(ceilingBytes uint64, heapBytes uint64)

// watchMemory polls runtime.MemStats at the configured interval for the
// life of one task's execution and calls onBreach at most once if the
// ceiling is exceeded (§4.7: "enforces memory ceilings per worker process
// ... by terminating and restarting children when exceeded"). Since this
// module runs workers as goroutines rather than OS child processes, the
// breach response is delegated to onBreach — in production that's
// os.Exit, relying on an external process supervisor to restart the
// worker; tests substitute a no-op or a flag-setting stub.
func watchMemory(stop <-chan struct{}, interval time.Duration, ceilingBytes uint64, log *logrus.Entry, onBreach ceilingBreaker) {
	if ceilingBytes == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var mem runtime.MemStats
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			runtime.ReadMemStats(&mem)
			if mem.HeapAlloc > ceilingBytes {
				log.WithFields(logrus.Fields{
					"heap_alloc_bytes": mem.HeapAlloc,
					"ceiling_bytes":    ceilingBytes,
				}).Error("worker memory ceiling breached")
				onBreach(ceilingBytes, mem.HeapAlloc)
				return
			}
		}
	}
}
