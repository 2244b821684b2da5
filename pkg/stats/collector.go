package stats

import (
	"sync"
	"sync/atomic"
	"time"
)

// OperationType defines the type of operation being tracked
type OperationType string

// Common operation types
const (
	OpPut    OperationType = "put"
	OpGet    OperationType = "get"
	OpDelete OperationType = "delete"
	OpInit   OperationType = "init"
	OpGC     OperationType = "gc"
)

// AtomicCollector provides centralized statistics collection with minimal
// contention using atomic operations
type AtomicCollector struct {
	counts   map[OperationType]*atomic.Uint64
	countsMu sync.RWMutex // Only used when creating new counter entries

	totalBytesRead    atomic.Uint64
	totalBytesWritten atomic.Uint64

	errors   map[string]*atomic.Uint64
	errorsMu sync.RWMutex // Only used when creating new error entries

	gcPasses         atomic.Uint64
	relocatedEntries atomic.Uint64
	erasedSectors    atomic.Uint64

	recoveryStats RecoveryStats

	latencies   map[OperationType]*LatencyTracker
	latenciesMu sync.RWMutex // Only used when creating new latency trackers
}

// RecoveryStats tracks statistics about the initialization scan
type RecoveryStats struct {
	EntriesScanned atomic.Uint64
	CorruptEntries atomic.Uint64
	SectorsScanned atomic.Uint64
	ScanDurationNs atomic.Int64
}

// LatencyTracker maintains running statistics about operation latencies
type LatencyTracker struct {
	count atomic.Uint64
	sum   atomic.Uint64 // sum in nanoseconds
	max   atomic.Uint64 // max in nanoseconds
}

// NewAtomicCollector creates a new atomic statistics collector
func NewAtomicCollector() *AtomicCollector {
	return &AtomicCollector{
		counts:    make(map[OperationType]*atomic.Uint64),
		errors:    make(map[string]*atomic.Uint64),
		latencies: make(map[OperationType]*LatencyTracker),
	}
}

// TrackOperation increments the counter for the specified operation type
func (c *AtomicCollector) TrackOperation(op OperationType) {
	c.getOrCreateCounter(op).Add(1)
}

// TrackOperationWithLatency tracks an operation and its latency
func (c *AtomicCollector) TrackOperationWithLatency(op OperationType, latencyNs uint64) {
	c.getOrCreateCounter(op).Add(1)

	tracker := c.getOrCreateLatencyTracker(op)
	tracker.count.Add(1)
	tracker.sum.Add(latencyNs)
	for {
		max := tracker.max.Load()
		if latencyNs <= max || tracker.max.CompareAndSwap(max, latencyNs) {
			break
		}
	}
}

// TrackError increments the counter for the specified error type
func (c *AtomicCollector) TrackError(errorType string) {
	c.errorsMu.RLock()
	counter, exists := c.errors[errorType]
	c.errorsMu.RUnlock()

	if !exists {
		c.errorsMu.Lock()
		if counter, exists = c.errors[errorType]; !exists {
			counter = &atomic.Uint64{}
			c.errors[errorType] = counter
		}
		c.errorsMu.Unlock()
	}
	counter.Add(1)
}

// TrackBytes adds the given number of bytes to the read or write counter
func (c *AtomicCollector) TrackBytes(isWrite bool, bytes uint64) {
	if isWrite {
		c.totalBytesWritten.Add(bytes)
	} else {
		c.totalBytesRead.Add(bytes)
	}
}

// TrackGCPass records a completed garbage collection pass and its yield
func (c *AtomicCollector) TrackGCPass(relocated int) {
	c.gcPasses.Add(1)
	c.relocatedEntries.Add(uint64(relocated))
	c.erasedSectors.Add(1)
}

// TrackRecovery records the outcome of an initialization scan
func (c *AtomicCollector) TrackRecovery(sectors, entries, corrupt uint64, duration time.Duration) {
	c.recoveryStats.SectorsScanned.Store(sectors)
	c.recoveryStats.EntriesScanned.Store(entries)
	c.recoveryStats.CorruptEntries.Store(corrupt)
	c.recoveryStats.ScanDurationNs.Store(duration.Nanoseconds())
}

// GetStats returns all statistics as a map
func (c *AtomicCollector) GetStats() map[string]interface{} {
	stats := make(map[string]interface{})

	c.countsMu.RLock()
	for op, counter := range c.counts {
		stats[string(op)+"_ops"] = counter.Load()
	}
	c.countsMu.RUnlock()

	stats["total_bytes_read"] = c.totalBytesRead.Load()
	stats["total_bytes_written"] = c.totalBytesWritten.Load()
	stats["gc_passes"] = c.gcPasses.Load()
	stats["relocated_entries"] = c.relocatedEntries.Load()
	stats["erased_sectors"] = c.erasedSectors.Load()

	stats["recovery_sectors_scanned"] = c.recoveryStats.SectorsScanned.Load()
	stats["recovery_entries_scanned"] = c.recoveryStats.EntriesScanned.Load()
	stats["recovery_corrupt_entries"] = c.recoveryStats.CorruptEntries.Load()
	stats["recovery_duration_ns"] = c.recoveryStats.ScanDurationNs.Load()

	c.errorsMu.RLock()
	for errType, counter := range c.errors {
		stats["error_"+errType] = counter.Load()
	}
	c.errorsMu.RUnlock()

	c.latenciesMu.RLock()
	for op, tracker := range c.latencies {
		count := tracker.count.Load()
		if count == 0 {
			continue
		}
		stats[string(op)+"_avg_latency_ns"] = tracker.sum.Load() / count
		stats[string(op)+"_max_latency_ns"] = tracker.max.Load()
	}
	c.latenciesMu.RUnlock()

	return stats
}

func (c *AtomicCollector) getOrCreateCounter(op OperationType) *atomic.Uint64 {
	c.countsMu.RLock()
	counter, exists := c.counts[op]
	c.countsMu.RUnlock()

	if !exists {
		c.countsMu.Lock()
		if counter, exists = c.counts[op]; !exists {
			counter = &atomic.Uint64{}
			c.counts[op] = counter
		}
		c.countsMu.Unlock()
	}
	return counter
}

func (c *AtomicCollector) getOrCreateLatencyTracker(op OperationType) *LatencyTracker {
	c.latenciesMu.RLock()
	tracker, exists := c.latencies[op]
	c.latenciesMu.RUnlock()

	if !exists {
		c.latenciesMu.Lock()
		if tracker, exists = c.latencies[op]; !exists {
			tracker = &LatencyTracker{}
			c.latencies[op] = tracker
		}
		c.latenciesMu.Unlock()
	}
	return tracker
}
