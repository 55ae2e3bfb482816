// Package console serializes output from concurrently running tasks.
//
// A Sink wraps an io.Writer with its own mutex. Each call writes one whole
// message under that mutex, so lines from different goroutines never
// interleave. The sink is independent of any pool lock and is passed to the
// tasks that need it rather than shared as a global.
package console

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Stats holds counters for a Sink.
type Stats struct {
	WriteCount    int64
	BytesWritten  int64
	ErrorCount    int64
	LastWriteTime time.Time
}

// Sink is an io.Writer that is safe for concurrent use.
type Sink struct {
	mu    sync.Mutex
	w     io.Writer
	stats Stats
}

// New returns a Sink writing to w.
func New(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Write writes p in a single call to the underlying writer.
func (s *Sink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(p)
}

// WriteString writes str as one message.
func (s *Sink) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// Printf formats according to a format specifier and writes the result as one message.
func (s *Sink) Printf(format string, a ...interface{}) error {
	_, err := s.Write([]byte(fmt.Sprintf(format, a...)))
	return err
}

// Println writes its operands followed by a newline as one message.
func (s *Sink) Println(a ...interface{}) error {
	_, err := s.Write([]byte(fmt.Sprintln(a...)))
	return err
}

// Stats returns a snapshot of the sink counters.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Sink) write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	s.stats.WriteCount++
	s.stats.BytesWritten += int64(n)
	s.stats.LastWriteTime = time.Now()
	if err != nil {
		s.stats.ErrorCount++
	}
	return n, err
}
