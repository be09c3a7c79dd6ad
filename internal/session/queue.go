package session

import (
	"context"
	"sync"
	"time"
)

// Queue is the unbounded FIFO between a session's output reader and the
// streams attached to it. Each pushed event is delivered to exactly one
// consumer: attached streams share (drain) it rather than each getting a copy.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	notify chan struct{}
	replay *lineRing
}

// NewQueue creates a queue that also remembers the last replayLines delivered
// output lines for reconnecting clients. replayLines <= 0 disables replay.
func NewQueue(replayLines int) *Queue {
	q := &Queue{notify: make(chan struct{}, 1)}
	if replayLines > 0 {
		q.replay = newLineRing(replayLines)
	}
	return q
}

// Push appends an event. It never blocks.
func (q *Queue) Push(e Event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Pop waits up to timeout for the next event. ok is false on timeout.
// The error is non-nil only when ctx is done.
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (e Event, ok bool, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if e, ok := q.tryPop(); ok {
			return e, true, nil
		}
		select {
		case <-q.notify:
		case <-timer.C:
			e, ok := q.tryPop()
			return e, ok, nil
		case <-ctx.Done():
			return Event{}, false, ctx.Err()
		}
	}
}

func (q *Queue) tryPop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Event{}, false
	}
	e := q.items[0]
	q.items[0] = Event{}
	q.items = q.items[1:]
	if q.replay != nil && (e.Type == EventOutput || e.Type == EventAwaitingInput) {
		q.replay.add(e)
	}
	// Another consumer may be waiting on the remaining items.
	if len(q.items) > 0 {
		select {
		case q.notify <- struct{}{}:
		default:
		}
	}
	return e, true
}

// Len returns the number of undelivered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Replay returns copies of already delivered lines, oldest first, marked as
// replayed. Undelivered lines are not included; they are still in the queue.
func (q *Queue) Replay() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.replay == nil {
		return nil
	}
	events := q.replay.events()
	for i := range events {
		events[i].Replay = true
	}
	return events
}

// lineRing is a fixed-size circular buffer of output events.
type lineRing struct {
	data  []Event
	start int
	count int
}

func newLineRing(size int) *lineRing {
	return &lineRing{data: make([]Event, size)}
}

func (r *lineRing) add(e Event) {
	size := len(r.data)
	if r.count < size {
		r.data[(r.start+r.count)%size] = e
		r.count++
		return
	}
	r.data[r.start] = e
	r.start = (r.start + 1) % size
}

func (r *lineRing) events() []Event {
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.data[(r.start+i)%len(r.data)])
	}
	return out
}
