package sub

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type Subscription[T any] struct {
	Id      uuid.UUID
	deleteC chan<- uuid.UUID
	doneC   <-chan struct{}
	StreamC <-chan T
	ErrorC  <-chan error
}

// Unsubscribe is a no-op once the owning loop has closed the SubHome.
func (s Subscription[T]) Unsubscribe() {
	select {
	case <-s.doneC:
	case s.deleteC <- s.Id:
	}
}

type innerSubscription[T any] struct {
	id      uuid.UUID
	streamC chan<- T
	errorC  chan<- error
	filter  func(T) bool
}

type ResponseChannel[T any] struct {
	RespC      chan<- Subscription[T]
	filter     func(T) bool
	bufferSize int
}

// SubscriptionRequest asks the loop owning a SubHome for a new subscription.
func SubscriptionRequest[T any](
	ctx context.Context,
	reqC chan<- ResponseChannel[T],
	bufferSize int,
	filterCallback func(T) bool,
) (Subscription[T], error) {
	doneC := ctx.Done()
	respC := make(chan Subscription[T], 1)
	if filterCallback == nil {
		filterCallback = func(T) bool { return true }
	}
	select {
	case <-doneC:
		return Subscription[T]{}, errors.New("canceled")
	case reqC <- ResponseChannel[T]{RespC: respC, filter: filterCallback, bufferSize: bufferSize}:
	}
	select {
	case <-doneC:
		return Subscription[T]{}, errors.New("canceled")
	case s := <-respC:
		return s, nil
	}
}

// SubHome is owned by exactly one goroutine which must service ReqC and
// DeleteC.
type SubHome[T any] struct {
	subs    map[uuid.UUID]*innerSubscription[T]
	DeleteC chan uuid.UUID
	ReqC    chan ResponseChannel[T]
	doneC   chan struct{}
	closed  bool
}

func CreateSubHome[T any]() *SubHome[T] {
	return &SubHome[T]{
		subs:    make(map[uuid.UUID]*innerSubscription[T]),
		DeleteC: make(chan uuid.UUID, 10),
		ReqC:    make(chan ResponseChannel[T], 10),
		doneC:   make(chan struct{}),
	}
}

func (sh *SubHome[T]) SubscriberCount() int {
	return len(sh.subs)
}

// Broadcast never blocks.  A subscriber with a full buffer misses the value;
// the number of such misses is returned.
func (sh *SubHome[T]) Broadcast(value T) (missed int) {
	for _, v := range sh.subs {
		if !v.filter(value) {
			continue
		}
		select {
		case v.streamC <- value:
		default:
			missed++
		}
	}
	return
}

func (sh *SubHome[T]) Delete(id uuid.UUID) {
	p, present := sh.subs[id]
	if present {
		p.errorC <- nil
		delete(sh.subs, id)
	}
}

// Close ends every subscription with err.  Unsubscribe calls made afterwards
// return immediately.
func (sh *SubHome[T]) Close(err error) {
	for _, v := range sh.subs {
		v.errorC <- err
	}
	sh.subs = make(map[uuid.UUID]*innerSubscription[T])
	if !sh.closed {
		sh.closed = true
		close(sh.doneC)
	}
}

func (sh *SubHome[T]) Receive(resp ResponseChannel[T]) {
	id := uuid.New()
	size := resp.bufferSize
	if size <= 0 {
		size = 10
	}
	streamC := make(chan T, size)
	errorC := make(chan error, 1)
	sh.subs[id] = &innerSubscription[T]{
		id: id, streamC: streamC, errorC: errorC, filter: resp.filter,
	}
	resp.RespC <- Subscription[T]{Id: id, StreamC: streamC, ErrorC: errorC, deleteC: sh.DeleteC, doneC: sh.doneC}
}
