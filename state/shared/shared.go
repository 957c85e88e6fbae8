package shared

import (
	"sync"

	sgo "github.com/gagliardetto/solana-go"
	"go.uber.org/atomic"
)

// State is the process wide slot, blockhash and shutdown flag.  The
// orchestrator creates one and hands the pointer to every task.
type State struct {
	slot         *atomic.Uint64
	m            sync.RWMutex
	blockhash    sgo.Hash
	hasBlockhash bool
	shutdown     *atomic.Bool
	doneC        chan struct{}
	once         sync.Once
}

func Create() *State {
	return &State{
		slot:     atomic.NewUint64(0),
		shutdown: atomic.NewBool(false),
		doneC:    make(chan struct{}),
	}
}

func (s *State) Slot() uint64 {
	return s.slot.Load()
}

// AdvanceSlot moves the current slot forward.  Returns false when slot does
// not advance past the current value.
func (s *State) AdvanceSlot(slot uint64) bool {
	for {
		current := s.slot.Load()
		if slot <= current {
			return false
		}
		if s.slot.CompareAndSwap(current, slot) {
			return true
		}
	}
}

func (s *State) Blockhash() sgo.Hash {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.blockhash
}

// BlockhashReady reports whether the poller has stored a blockhash yet.
func (s *State) BlockhashReady() bool {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.hasBlockhash
}

func (s *State) SetBlockhash(h sgo.Hash) {
	s.m.Lock()
	s.blockhash = h
	s.hasBlockhash = true
	s.m.Unlock()
}

// Shutdown sets the shutdown flag.  The flag never goes back to false.
func (s *State) Shutdown() {
	s.shutdown.Store(true)
	s.once.Do(func() {
		close(s.doneC)
	})
}

func (s *State) IsShutdown() bool {
	return s.shutdown.Load()
}

// Done is closed once Shutdown has been called.
func (s *State) Done() <-chan struct{} {
	return s.doneC
}
