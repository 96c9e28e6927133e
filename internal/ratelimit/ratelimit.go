// Package ratelimit throttles transfer streams to a fixed number of bytes
// per second. It is shared by the file receiver and the reference server.
package ratelimit

import (
	"io"

	"github.com/juju/ratelimit"
)

// Limiter is a token bucket refilled at a constant byte rate. Its capacity
// is one second worth of tokens, so short bursts pass unthrottled.
//
// A nil *Limiter means "unlimited" and is accepted everywhere.
type Limiter struct {
	bucket *ratelimit.Bucket
	rate   int64
}

// New returns a limiter for bytesPerSecond, or nil when the rate is not
// positive.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	return &Limiter{
		bucket: ratelimit.NewBucketWithRate(float64(bytesPerSecond), bytesPerSecond),
		rate:   bytesPerSecond,
	}
}

// Rate returns the configured bytes per second, 0 for a nil limiter.
func (l *Limiter) Rate() int64 {
	if l == nil {
		return 0
	}
	return l.rate
}

// NewWriter returns w throttled by l. With a nil limiter w is returned
// unchanged.
func NewWriter(w io.Writer, l *Limiter) io.Writer {
	if l == nil {
		return w
	}
	return ratelimit.Writer(w, l.bucket)
}
