package hash

import "runtime"

// workerCount sizes the batch-hashing fan-out to available hardware
// parallelism, per spec.md §5's "fixed worker pool sized to available
// hardware parallelism".
func workerCount() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}
