package logger

import (
	"sync"
	"time"
)

// ProgressTracker logs periodic progress for long batch runs so operators
// can see throughput without a terminal UI.
type ProgressTracker struct {
	logger      Logger
	operation   string
	total       int64
	current     int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
	mutex       sync.Mutex
}

// ProgressConfig configures progress tracking behavior
type ProgressConfig struct {
	Operation   string
	Total       int64
	LogInterval time.Duration
	Logger      Logger
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(config ProgressConfig) *ProgressTracker {
	if config.Logger == nil {
		config.Logger = GetGlobalLogger()
	}
	if config.LogInterval == 0 {
		config.LogInterval = 5 * time.Second
	}

	tracker := &ProgressTracker{
		logger:      config.Logger.WithComponent("progress"),
		operation:   config.Operation,
		total:       config.Total,
		startTime:   time.Now(),
		lastLogTime: time.Now(),
		logInterval: config.LogInterval,
	}

	tracker.logger.WithFields(Fields{
		"operation": config.Operation,
		"total":     config.Total,
	}).Info("Starting operation")

	return tracker
}

// Increment records one completed unit and logs if the interval elapsed
func (pt *ProgressTracker) Increment() {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()

	pt.current++

	now := time.Now()
	if now.Sub(pt.lastLogTime) < pt.logInterval && pt.current < pt.total {
		return
	}
	pt.lastLogTime = now

	elapsed := now.Sub(pt.startTime)
	fields := Fields{
		"operation": pt.operation,
		"completed": pt.current,
		"total":     pt.total,
		"elapsed":   elapsed.Round(time.Millisecond).String(),
	}
	if pt.total > 0 {
		fields["percent"] = float64(pt.current) / float64(pt.total) * 100
	}
	pt.logger.WithFields(fields).Info("Progress")
}

// Done logs the final state of the operation
func (pt *ProgressTracker) Done() {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()

	pt.logger.WithFields(Fields{
		"operation": pt.operation,
		"completed": pt.current,
		"elapsed":   time.Since(pt.startTime).Round(time.Millisecond).String(),
	}).Info("Operation complete")
}
