package tuner

// Worker configuration limits.
const (
	// maxWorkers is the maximum number of hashing workers.
	maxWorkers = 64

	// minBufferSize and maxBufferSize bound the per-worker read buffer.
	minBufferSize = 64 * 1024
	maxBufferSize = 1024 * 1024
)

// bufferMemoryFraction is the share of available RAM spread across the
// read buffers of all workers.
const bufferMemoryFraction = 0.01

// OptimalConfig contains the tuned hashing configuration.
type OptimalConfig struct {
	// Workers is the number of files hashed concurrently.
	Workers int

	// BufferSize is the read size of each worker, in bytes.
	BufferSize int
}

// Calculate returns optimal configuration based on system resources.
//
// Hashing alternates between reading and computing, so one worker more
// than there are cores keeps every core busy while another waits on disk.
func Calculate(resources SystemResources) OptimalConfig {
	workers := max(resources.CPUCores, 1) + 1
	workers = min(workers, maxWorkers)

	return OptimalConfig{
		Workers:    workers,
		BufferSize: calculateBufferSize(resources.AvailableRAM, workers),
	}
}

// CalculateWithOverrides applies user overrides to the optimal config.
// Overrides of zero or less keep the calculated value. Workers stay capped
// at 64.
func CalculateWithOverrides(resources SystemResources, workerOverride, bufferOverride int) OptimalConfig {
	config := Calculate(resources)

	if workerOverride > 0 {
		config.Workers = min(workerOverride, maxWorkers)
	}
	if bufferOverride > 0 {
		config.BufferSize = bufferOverride
	}

	return config
}

// calculateBufferSize sizes the read buffer from available memory.
func calculateBufferSize(availableRAM int64, workers int) int {
	perWorker := int(float64(availableRAM) * bufferMemoryFraction / float64(max(workers, 1)))

	// Round down to a whole KiB.
	perWorker &^= 1023

	perWorker = max(perWorker, minBufferSize)
	perWorker = min(perWorker, maxBufferSize)
	return perWorker
}
