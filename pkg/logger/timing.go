package logger

import "time"

// RunTimer logs the start and duration of a reconciliation run. A single run
// completes in well under a second for realistic ledger sizes, so the timer
// reports once at completion rather than streaming progress.
type RunTimer struct {
	logger    Logger
	operation string
	start     time.Time
}

// StartRun records the start of a named operation
func StartRun(log Logger, operation string) *RunTimer {
	if log == nil {
		log = GetGlobalLogger()
	}
	log = log.WithField("operation", operation)
	log.Debug("Starting operation")
	return &RunTimer{
		logger:    log,
		operation: operation,
		start:     time.Now(),
	}
}

// Done logs completion with the elapsed duration and record counts
func (rt *RunTimer) Done(recordsA, recordsB int) {
	rt.logger.WithFields(Fields{
		"duration_ms": time.Since(rt.start).Milliseconds(),
		"records_a":   recordsA,
		"records_b":   recordsB,
	}).Info("Operation complete")
}

// Failed logs completion with an error
func (rt *RunTimer) Failed(err error) {
	rt.logger.WithError(err).WithField(
		"duration_ms", time.Since(rt.start).Milliseconds(),
	).Error("Operation failed")
}
