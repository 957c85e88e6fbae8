package router

import (
	"context"
	"errors"
	"time"

	sgo "github.com/gagliardetto/solana-go"
	"github.com/solpipe/solpipe-crank/meter"
	"github.com/solpipe/solpipe-crank/state/shared"
)

// AccountWrite is one account change notification.
type AccountWrite struct {
	Pubkey       sgo.PublicKey
	Slot         uint64
	WriteVersion uint64
	IsSelected   bool
	Data         []byte
}

// newer orders writes to the same account by (slot, write version).
func (w AccountWrite) newer(other AccountWrite) bool {
	if w.Slot != other.Slot {
		return other.Slot < w.Slot
	}
	return other.WriteVersion <= w.WriteVersion
}

type SlotStatus uint8

const (
	SLOT_PROCESSED SlotStatus = 0
	SLOT_CONFIRMED SlotStatus = 1
	SLOT_ROOTED    SlotStatus = 2
)

func (s SlotStatus) String() string {
	switch s {
	case SLOT_PROCESSED:
		return "processed"
	case SLOT_CONFIRMED:
		return "confirmed"
	case SLOT_ROOTED:
		return "rooted"
	default:
		return "unknown"
	}
}

type SlotUpdate struct {
	Slot   uint64
	Parent *uint64
	Status SlotStatus
}

// Handler receives matching account writes.  Process runs on the router
// goroutine, so it must return quickly and never block.
type Handler interface {
	Process(write AccountWrite)
}

// SlotHandler is optionally implemented by a Handler that wants every slot
// update that advanced the current slot.
type SlotHandler interface {
	OnSlot(update SlotUpdate)
}

type Route struct {
	MatchedPubkeys []sgo.PublicKey
	Handler        Handler
	// when non-zero, the latest write of every matched account is delivered
	// again each interval
	TimeoutInterval time.Duration
}

type Stats struct {
	WritesReceived  uint64
	WritesMatched   uint64
	WritesUnmatched uint64
	Deliveries      uint64
	Heartbeats      uint64
	SlotAdvanced    uint64
	SlotStale       uint64
}

type Router struct {
	ctx       context.Context
	internalC chan<- func(*internal)
	// WriteC and SlotC are the ingestion endpoints for the event source
	WriteC chan<- AccountWrite
	SlotC  chan<- SlotUpdate
	cancel context.CancelFunc
}

const WRITE_BUFFER_SIZE = 1024
const SLOT_BUFFER_SIZE = 100

// Init compiles routes into a lookup table and starts the routing loop.
func Init(
	ctx context.Context,
	routes []Route,
	state *shared.State,
	metrics meter.Metrics,
) (Router, error) {
	if state == nil {
		return Router{}, errors.New("no shared state")
	}
	if metrics == nil {
		metrics = meter.Discard()
	}
	table, err := compile(routes)
	if err != nil {
		return Router{}, err
	}

	writeC := make(chan AccountWrite, WRITE_BUFFER_SIZE)
	slotC := make(chan SlotUpdate, SLOT_BUFFER_SIZE)
	internalC := make(chan func(*internal), 10)
	ctx2, cancel := context.WithCancel(ctx)
	go loopInternal(
		ctx2,
		cancel,
		internalC,
		writeC,
		slotC,
		table,
		state,
		metrics,
	)

	return Router{
		ctx:       ctx2,
		internalC: internalC,
		WriteC:    writeC,
		SlotC:     slotC,
		cancel:    cancel,
	}, nil
}

func (e1 Router) Close() <-chan error {
	signalC := e1.CloseSignal()
	e1.cancel()
	return signalC
}

func (e1 Router) CloseSignal() <-chan error {
	signalC := make(chan error, 1)
	err := e1.ctx.Err()
	if err != nil {
		signalC <- err
		return signalC
	}
	select {
	case <-e1.ctx.Done():
		signalC <- errors.New("canceled")
	case e1.internalC <- func(in *internal) {
		in.closeSignalCList = append(in.closeSignalCList, signalC)
	}:
	}
	return signalC
}

func (e1 Router) Stats(ctx context.Context) (Stats, error) {
	ansC := make(chan Stats, 1)
	select {
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case <-e1.ctx.Done():
		return Stats{}, errors.New("canceled")
	case e1.internalC <- func(in *internal) {
		ansC <- in.stats
	}:
	}
	select {
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	case s := <-ansC:
		return s, nil
	}
}

// Send pushes a write into the router, waiting while the buffer is full.
func (e1 Router) Send(ctx context.Context, write AccountWrite) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e1.ctx.Done():
		return errors.New("canceled")
	case e1.WriteC <- write:
		return nil
	}
}

func (e1 Router) SendSlot(ctx context.Context, update SlotUpdate) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e1.ctx.Done():
		return errors.New("canceled")
	case e1.SlotC <- update:
		return nil
	}
}
