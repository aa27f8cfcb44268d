package ratelimit

import (
	"time"
)

type FailMode string

const (
	FailOpen   FailMode = "open"
	FailClosed FailMode = "closed"
)

func (m FailMode) Valid() bool {
	return m == FailOpen || m == FailClosed
}

// Window is the fixed bucket a request falls into: floor(now / size).
type Window struct {
	Bucket int64
	Size   time.Duration
	Start  time.Time
	End    time.Time
}

func WindowAt(now time.Time, size time.Duration) Window {
	sizeMs := size.Milliseconds()
	if sizeMs <= 0 {
		sizeMs = 1
	}
	nowMs := now.UnixMilli()
	bucket := nowMs / sizeMs
	if nowMs < 0 && nowMs%sizeMs != 0 {
		bucket--
	}
	start := time.UnixMilli(bucket * sizeMs)
	return Window{
		Bucket: bucket,
		Size:   time.Duration(sizeMs) * time.Millisecond,
		Start:  start,
		End:    start.Add(time.Duration(sizeMs) * time.Millisecond),
	}
}

// ExpireAt is the absolute instant the bucket's counter may be dropped. It is
// the same for every request in the bucket.
func (w Window) ExpireAt() time.Time {
	return w.End.Add(w.Size)
}

type Decision struct {
	Admitted  bool
	Limit     int
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the counter store could not be consulted and the
	// fail mode decided the outcome.
	Degraded bool
}

// RetryAfter returns whole seconds until reset, rounded up and at least 1.
func (d Decision) RetryAfter(now time.Time) int {
	left := d.ResetAt.Sub(now)
	secs := int((left + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
