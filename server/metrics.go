package server

import "time"

// MetricsCollector is an optional interface for collecting server metrics.
// Implementations can forward them to any monitoring system.
//
// Methods are called synchronously from session goroutines and should not
// block.
type MetricsCollector interface {
	// RecordRequest records a completed request.
	// kind is "list" or "fetch"; code is the response code sent
	// ("dir", "fil", "nof", "unk"); bytes is the payload size.
	RecordRequest(kind, code string, bytes int64, duration time.Duration)

	// RecordConnection records a connection attempt.
	// reason is "accepted" or "global_limit_reached".
	RecordConnection(accepted bool, reason string)
}
