package threadpool

// compactThreshold is the number of consumed head slots tolerated before
// the backing slice is shifted down.
const compactThreshold = 64

// taskQueue is an unbounded FIFO of queued tasks. It is not safe for
// concurrent use; threadPool guards it with its mutex.
type taskQueue struct {
	items []queuedTask
	head  int
}

func (q *taskQueue) push(t queuedTask) {
	q.items = append(q.items, t)
}

// pop removes and returns the head. The queue must not be empty.
func (q *taskQueue) pop() queuedTask {
	t := q.items[q.head]
	q.items[q.head] = queuedTask{}
	q.head++

	switch {
	case q.head == len(q.items):
		q.items = q.items[:0]
		q.head = 0
	case q.head >= compactThreshold && q.head*2 >= len(q.items):
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}

	return t
}

func (q *taskQueue) len() int {
	return len(q.items) - q.head
}
