package mango

import (
	"bytes"
	"errors"
	"sort"

	bin "github.com/gagliardetto/binary"
	sgo "github.com/gagliardetto/solana-go"
)

const (
	DATA_TYPE_EVENT_QUEUE uint8 = 8
	EVENT_QUEUE_HEADER    int   = 32
	EVENT_SIZE            int   = 200
	MAX_EVENTS_PER_TX     int   = 10
)

type EventType uint8

const (
	EVENT_FILL      EventType = 0
	EVENT_OUT       EventType = 1
	EVENT_LIQUIDATE EventType = 2
)

// field offsets inside a 200 byte event
const (
	offsetFillMaker = 24
	offsetFillTaker = 112
	offsetOutOwner  = 24
)

var (
	ErrShortEventQueue = errors.New("event queue account too short")
	ErrBadEventQueue   = errors.New("event queue header is inconsistent")
)

type EventQueueHeader struct {
	DataType      uint8
	Version       uint8
	IsInitialized bool
	Head          uint64
	Count         uint64
	SeqNum        uint64
}

type EventQueue struct {
	Header EventQueueHeader
	events []byte
}

// DecodeEventQueue reads the header and keeps a reference to the event ring.
// A torn read usually fails the consistency checks.
func DecodeEventQueue(data []byte) (*EventQueue, error) {
	if len(data) < EVENT_QUEUE_HEADER {
		return nil, ErrShortEventQueue
	}
	var err error
	h := EventQueueHeader{}
	d := bin.NewBinDecoder(data)
	h.DataType, err = d.ReadUint8()
	if err != nil {
		return nil, err
	}
	h.Version, err = d.ReadUint8()
	if err != nil {
		return nil, err
	}
	h.IsInitialized, err = d.ReadBool()
	if err != nil {
		return nil, err
	}
	err = d.SkipBytes(5)
	if err != nil {
		return nil, err
	}
	h.Head, err = d.ReadUint64(bin.LE)
	if err != nil {
		return nil, err
	}
	h.Count, err = d.ReadUint64(bin.LE)
	if err != nil {
		return nil, err
	}
	h.SeqNum, err = d.ReadUint64(bin.LE)
	if err != nil {
		return nil, err
	}

	if !h.IsInitialized || h.DataType != DATA_TYPE_EVENT_QUEUE {
		return nil, ErrBadEventQueue
	}
	ring := data[EVENT_QUEUE_HEADER:]
	capacity := uint64(len(ring) / EVENT_SIZE)
	if capacity == 0 {
		return nil, ErrShortEventQueue
	}
	if capacity < h.Count || capacity <= h.Head {
		return nil, ErrBadEventQueue
	}
	return &EventQueue{Header: h, events: ring[:capacity*uint64(EVENT_SIZE)]}, nil
}

// Pending is the number of events waiting for a consume events crank.
func (eq *EventQueue) Pending() uint64 {
	return eq.Header.Count
}

func (eq *EventQueue) Capacity() uint64 {
	return uint64(len(eq.events) / EVENT_SIZE)
}

// Event returns the raw bytes of the i-th pending event, i < Pending().
func (eq *EventQueue) Event(i uint64) []byte {
	idx := (eq.Header.Head + i) % eq.Capacity()
	start := idx * uint64(EVENT_SIZE)
	return eq.events[start : start+uint64(EVENT_SIZE)]
}

// Accounts lists the distinct mango accounts touched by the first limit
// pending events, sorted so the instruction is deterministic.
func (eq *EventQueue) Accounts(limit int) []sgo.PublicKey {
	n := eq.Pending()
	if uint64(limit) < n {
		n = uint64(limit)
	}
	set := make(map[sgo.PublicKey]bool)
	for i := uint64(0); i < n; i++ {
		e := eq.Event(i)
		switch EventType(e[0]) {
		case EVENT_FILL:
			set[sgo.PublicKeyFromBytes(e[offsetFillMaker:offsetFillMaker+32])] = true
			set[sgo.PublicKeyFromBytes(e[offsetFillTaker:offsetFillTaker+32])] = true
		case EVENT_OUT:
			set[sgo.PublicKeyFromBytes(e[offsetOutOwner:offsetOutOwner+32])] = true
		default:
		}
	}
	ans := make([]sgo.PublicKey, 0, len(set))
	for k := range set {
		ans = append(ans, k)
	}
	sort.Slice(ans, func(i, j int) bool {
		return bytes.Compare(ans[i][:], ans[j][:]) < 0
	})
	return ans
}
