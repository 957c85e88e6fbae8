package shared_test

import (
	"sync"
	"testing"
	"time"

	sgo "github.com/gagliardetto/solana-go"
	"github.com/solpipe/solpipe-crank/state/shared"
	"github.com/stretchr/testify/require"
)

func TestSlotNeverRegresses(t *testing.T) {
	s := shared.Create()
	require.True(t, s.AdvanceSlot(5))
	require.False(t, s.AdvanceSlot(3))
	require.Equal(t, uint64(5), s.Slot())
	require.False(t, s.AdvanceSlot(5))
	require.True(t, s.AdvanceSlot(7))
	require.Equal(t, uint64(7), s.Slot())
}

func TestSlotConcurrentWriters(t *testing.T) {
	s := shared.Create()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(offset uint64) {
			defer wg.Done()
			for i := uint64(0); i < 1000; i++ {
				s.AdvanceSlot(i*8 + offset)
			}
		}(uint64(w))
	}
	wg.Wait()
	require.Equal(t, uint64(999*8+7), s.Slot())
}

func TestBlockhash(t *testing.T) {
	s := shared.Create()
	require.False(t, s.BlockhashReady())
	h := sgo.HashFromBytes(make([]byte, 32))
	h[0] = 9
	s.SetBlockhash(h)
	require.True(t, s.BlockhashReady())
	require.Equal(t, h, s.Blockhash())
}

func TestShutdownIsWriteOnce(t *testing.T) {
	s := shared.Create()
	require.False(t, s.IsShutdown())
	s.Shutdown()
	s.Shutdown()
	require.True(t, s.IsShutdown())
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("done channel not closed")
	}
}
