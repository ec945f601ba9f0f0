package console

import (
	"sync"
)

// Queue is the FIFO of console lines shared between the relay and HTTP pollers.
// Every line is handed to exactly one DrainAvailable call.
type Queue struct {
	mu       sync.Mutex
	lines    []string
	maxLines int
	dropped  uint64
}

// NewQueue returns an empty queue. A maxLines of zero leaves it unbounded; otherwise
// the oldest undrained lines are discarded once the cap is reached.
func NewQueue(maxLines int) *Queue {
	return &Queue{maxLines: maxLines}
}

func (q *Queue) Push(line string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.lines = append(q.lines, line)
	if q.maxLines > 0 && len(q.lines) > q.maxLines {
		over := len(q.lines) - q.maxLines
		q.dropped += uint64(over)
		q.lines = append(q.lines[:0], q.lines[over:]...)
	}
}

// DrainAvailable removes and returns every queued line in arrival order.
// It never blocks and returns an empty slice when nothing is queued.
func (q *Queue) DrainAvailable() []string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.lines) == 0 {
		return []string{}
	}
	lines := q.lines
	q.lines = nil
	return lines
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lines)
}

// Dropped reports how many lines were discarded by the cap since creation.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.lines = nil
}
