package testutil

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MockWriter records every Write call and detects overlapping writers.
// Writes are deliberately not serialized so callers that forget to
// synchronize show up in MaxConcurrent.
type MockWriter struct {
	mu       sync.Mutex
	writes   []string
	inFlight int32
	maxSeen  int32

	writeDelay time.Duration
	err        error
}

// NewMockWriter creates a new MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{}
}

// Write implements io.Writer.
func (mw *MockWriter) Write(p []byte) (int, error) {
	n := atomic.AddInt32(&mw.inFlight, 1)
	defer atomic.AddInt32(&mw.inFlight, -1)
	for {
		seen := atomic.LoadInt32(&mw.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&mw.maxSeen, seen, n) {
			break
		}
	}

	mw.mu.Lock()
	delay, err := mw.writeDelay, mw.err
	mw.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return 0, err
	}

	mw.mu.Lock()
	mw.writes = append(mw.writes, string(p))
	mw.mu.Unlock()
	return len(p), nil
}

// String returns everything written so far.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return strings.Join(mw.writes, "")
}

// WriteCount returns the number of successful Write calls.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return len(mw.writes)
}

// MaxConcurrent returns the highest number of Write calls observed in flight at once.
func (mw *MockWriter) MaxConcurrent() int {
	return int(atomic.LoadInt32(&mw.maxSeen))
}

// SetWriteDelay configures a delay for each write operation.
func (mw *MockWriter) SetWriteDelay(delay time.Duration) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.writeDelay = delay
}

// SetAlwaysError configures the writer to always return the given error.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.err = err
}
