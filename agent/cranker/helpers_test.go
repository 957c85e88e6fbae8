package cranker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	sgo "github.com/gagliardetto/solana-go"
	"github.com/solpipe/solpipe-crank/mango"
	rtr "github.com/solpipe/solpipe-crank/state/router"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) sgo.PublicKey {
	key, err := sgo.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return key.PublicKey()
}

func testGroup(t *testing.T) *mango.GroupContext {
	return &mango.GroupContext{
		Name:      "test",
		ProgramId: randomKey(t),
		GroupId:   randomKey(t),
		CacheId:   randomKey(t),
		Markets: []mango.MarketQueue{
			{Name: "BTC-PERP", Market: randomKey(t), EventQueue: randomKey(t)},
			{Name: "SOL-PERP", Market: randomKey(t), EventQueue: randomKey(t)},
		},
	}
}

// pendingWrite is a write to evq holding n fill events
func pendingWrite(t *testing.T, evq sgo.PublicKey, n int, slot uint64) rtr.AccountWrite {
	events := make([][]byte, n)
	for i := 0; i < n; i++ {
		events[i] = mango.FillEvent(randomKey(t), randomKey(t))
	}
	data, err := mango.PendingQueue(16, events...)
	require.NoError(t, err)
	return rtr.AccountWrite{Pubkey: evq, Slot: slot, IsSelected: true, Data: data}
}

type fakeTransport struct {
	m      sync.Mutex
	accept bool
	sent   []*sgo.Transaction
	sentC  chan *sgo.Transaction
}

func newFakeTransport(accept bool) *fakeTransport {
	return &fakeTransport{accept: accept, sentC: make(chan *sgo.Transaction, 100)}
}

func (f *fakeTransport) Send(ctx context.Context, tx *sgo.Transaction) (bool, error) {
	f.m.Lock()
	f.sent = append(f.sent, tx)
	f.m.Unlock()
	f.sentC <- tx
	return f.accept, nil
}

// slowTransport holds each send for delay and fails it if ctx ends first.
type slowTransport struct {
	delay    time.Duration
	startedC chan struct{}
	resultC  chan error
}

func newSlowTransport(delay time.Duration) *slowTransport {
	return &slowTransport{
		delay:    delay,
		startedC: make(chan struct{}, 10),
		resultC:  make(chan error, 10),
	}
}

func (s *slowTransport) Send(ctx context.Context, tx *sgo.Transaction) (bool, error) {
	s.startedC <- struct{}{}
	select {
	case <-ctx.Done():
		s.resultC <- ctx.Err()
		return false, ctx.Err()
	case <-time.After(s.delay):
		s.resultC <- nil
		return true, nil
	}
}

func (f *fakeTransport) count() int {
	f.m.Lock()
	defer f.m.Unlock()
	return len(f.sent)
}
