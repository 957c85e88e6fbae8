package queue

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue closed")

type PushResult int

const (
	QUEUED    PushResult = 0
	COALESCED PushResult = 1
	DROPPED   PushResult = 2
)

func (r PushResult) String() string {
	switch r {
	case QUEUED:
		return "queued"
	case COALESCED:
		return "coalesced"
	case DROPPED:
		return "dropped"
	default:
		return "unknown"
	}
}

type node[K comparable, V any] struct {
	next  *node[K, V]
	prev  *node[K, V]
	key   K
	value V
}

// Coalescing is a bounded FIFO holding at most one pending value per key.  A
// push for a key that is already waiting replaces the value in place and
// keeps the original position.  Push never blocks.  Pop is meant for a single
// consumer.
type Coalescing[K comparable, V any] struct {
	m        sync.Mutex
	capacity int
	head     *node[K, V]
	tail     *node[K, V]
	byKey    map[K]*node[K, V]
	signalC  chan struct{}
	closed   bool
	closeC   chan struct{}
}

// Create a queue.  capacity <= 0 means unbounded.
func Create[K comparable, V any](capacity int) *Coalescing[K, V] {
	return &Coalescing[K, V]{
		capacity: capacity,
		byKey:    make(map[K]*node[K, V]),
		signalC:  make(chan struct{}, 1),
		closeC:   make(chan struct{}),
	}
}

func (q *Coalescing[K, V]) Push(key K, value V) PushResult {
	q.m.Lock()
	if q.closed {
		q.m.Unlock()
		return DROPPED
	}
	n, present := q.byKey[key]
	if present {
		n.value = value
		q.m.Unlock()
		return COALESCED
	}
	if 0 < q.capacity && q.capacity <= len(q.byKey) {
		q.m.Unlock()
		return DROPPED
	}
	n = &node[K, V]{key: key, value: value}
	if q.tail == nil {
		q.head = n
		q.tail = n
	} else {
		n.prev = q.tail
		q.tail.next = n
		q.tail = n
	}
	q.byKey[key] = n
	q.m.Unlock()

	select {
	case q.signalC <- struct{}{}:
	default:
	}
	return QUEUED
}

func (q *Coalescing[K, V]) pop() (ans V, present bool) {
	q.m.Lock()
	defer q.m.Unlock()
	n := q.head
	if n == nil {
		return
	}
	q.head = n.next
	if q.head == nil {
		q.tail = nil
	} else {
		q.head.prev = nil
	}
	delete(q.byKey, n.key)
	return n.value, true
}

// TryPop returns the oldest value without waiting.
func (q *Coalescing[K, V]) TryPop() (V, bool) {
	return q.pop()
}

// Pop waits for the oldest value.  It returns ctx.Err() or ErrClosed when no
// value arrives first.  Values still queued at Close are dropped.
func (q *Coalescing[K, V]) Pop(ctx context.Context) (ans V, err error) {
	doneC := ctx.Done()
	for {
		if q.isClosed() {
			err = ErrClosed
			return
		}
		v, present := q.pop()
		if present {
			return v, nil
		}
		select {
		case <-doneC:
			err = ctx.Err()
			return
		case <-q.closeC:
			err = ErrClosed
			return
		case <-q.signalC:
		}
	}
}

func (q *Coalescing[K, V]) isClosed() bool {
	q.m.Lock()
	defer q.m.Unlock()
	return q.closed
}

func (q *Coalescing[K, V]) Len() int {
	q.m.Lock()
	defer q.m.Unlock()
	return len(q.byKey)
}

func (q *Coalescing[K, V]) Close() {
	q.m.Lock()
	defer q.m.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.closeC)
}
