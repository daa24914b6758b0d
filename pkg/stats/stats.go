package stats

import (
	"bufio"
	"os"
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
)

const (
	BYTE = 1 << (10 * iota)
	KILOBYTE
	MEGABYTE
)

// toMegabytes returns given memory in bytes to megabytes.
func toMegabytes(bytes uint64) float64 {
	return float64(bytes) / MEGABYTE
}

// PrintMemoryStatistics prints memory statistics using go runtime library.
func PrintMemoryStatistics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	log.Debugf(
		"Heap allocated: %.3fMB, Num of go routines: %v",
		toMegabytes(memStats.HeapAlloc),
		runtime.NumGoroutine(),
	)
}

// DumpMetrics appends every metric family collected by gatherer to the file
// at path, one per line.
func DumpMetrics(gatherer prometheus.Gatherer, path string) error {
	metricFamilies, err := gatherer.Gather()
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, v := range metricFamilies {
		if _, err := writer.WriteString(v.String() + "\n"); err != nil {
			return err
		}
	}
	return writer.Flush()
}
