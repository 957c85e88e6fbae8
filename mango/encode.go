package mango

import (
	"bytes"
	"errors"

	bin "github.com/gagliardetto/binary"
	sgo "github.com/gagliardetto/solana-go"
)

// EncodeEventQueue is the inverse of DecodeEventQueue.  ring holds events in
// ring order starting at slot 0.
func EncodeEventQueue(h EventQueueHeader, ring [][]byte, capacity int) ([]byte, error) {
	if capacity < len(ring) {
		return nil, errors.New("ring larger than capacity")
	}
	buf := new(bytes.Buffer)
	e := bin.NewBinEncoder(buf)
	for _, f := range []func() error{
		func() error { return e.WriteUint8(h.DataType) },
		func() error { return e.WriteUint8(h.Version) },
		func() error { return e.WriteBool(h.IsInitialized) },
		func() error { return e.WriteBytes(make([]byte, 5), false) },
		func() error { return e.WriteUint64(h.Head, bin.LE) },
		func() error { return e.WriteUint64(h.Count, bin.LE) },
		func() error { return e.WriteUint64(h.SeqNum, bin.LE) },
	} {
		if err := f(); err != nil {
			return nil, err
		}
	}
	for i := 0; i < capacity; i++ {
		event := make([]byte, EVENT_SIZE)
		if i < len(ring) {
			copy(event, ring[i])
		}
		if err := e.WriteBytes(event, false); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func FillEvent(maker sgo.PublicKey, taker sgo.PublicKey) []byte {
	e := make([]byte, EVENT_SIZE)
	e[0] = byte(EVENT_FILL)
	copy(e[offsetFillMaker:], maker[:])
	copy(e[offsetFillTaker:], taker[:])
	return e
}

func OutEvent(owner sgo.PublicKey) []byte {
	e := make([]byte, EVENT_SIZE)
	e[0] = byte(EVENT_OUT)
	copy(e[offsetOutOwner:], owner[:])
	return e
}

// PendingQueue is a shortcut for an initialized queue holding events from
// slot 0.
func PendingQueue(capacity int, events ...[]byte) ([]byte, error) {
	return EncodeEventQueue(EventQueueHeader{
		DataType:      DATA_TYPE_EVENT_QUEUE,
		IsInitialized: true,
		Head:          0,
		Count:         uint64(len(events)),
		SeqNum:        uint64(len(events)),
	}, events, capacity)
}
