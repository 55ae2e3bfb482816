package semaphore

import (
	"sync"

	"github.com/vnykmshr/gopool/pkg/common/validation"
)

// Semaphore is a counting semaphore. Acquire blocks while no permits are
// available; Release adds a permit and wakes one blocked caller.
type Semaphore interface {
	// Acquire blocks until a permit is available and takes it.
	// There is no timeout: a caller blocked with no Release forthcoming
	// stays blocked.
	Acquire()

	// TryAcquire takes a permit if one is available without blocking.
	TryAcquire() bool

	// Release returns a permit and wakes one waiter. It never blocks and
	// does not check an upper bound, so releasing without a prior Acquire
	// grows the available count.
	Release()

	// Count returns the number of permits currently available.
	Count() int

	// Waiting returns the number of callers currently blocked in Acquire.
	Waiting() int
}

type semaphore struct {
	mu      sync.Mutex
	cond    *sync.Cond
	count   int
	waiting int
}

// New creates a semaphore holding initial permits. initial must be >= 0.
func New(initial int) (Semaphore, error) {
	if err := validation.ValidateNonNegativeInt("semaphore", "initial", initial); err != nil {
		return nil, err
	}

	s := &semaphore{count: initial}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// MustNew is like New but panics on an invalid initial count.
func MustNew(initial int) Semaphore {
	s, err := New(initial)
	if err != nil {
		panic("invalid semaphore configuration: " + err.Error())
	}
	return s
}

func (s *semaphore) Acquire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.waiting++
	for s.count == 0 {
		s.cond.Wait()
	}
	s.waiting--
	s.count--
}

func (s *semaphore) TryAcquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count == 0 {
		return false
	}
	s.count--
	return true
}

func (s *semaphore) Release() {
	s.mu.Lock()
	s.count++
	s.mu.Unlock()

	s.cond.Signal()
}

func (s *semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *semaphore) Waiting() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}
