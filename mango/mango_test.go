package mango_test

import (
	"testing"

	sgo "github.com/gagliardetto/solana-go"
	"github.com/solpipe/solpipe-crank/mango"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) sgo.PublicKey {
	key, err := sgo.NewRandomPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	return key.PublicKey()
}

func TestDecodeEmptyQueue(t *testing.T) {
	data, err := mango.PendingQueue(8)
	require.NoError(t, err)
	eq, err := mango.DecodeEventQueue(data)
	require.NoError(t, err)
	require.Equal(t, uint64(0), eq.Pending())
	require.Equal(t, uint64(8), eq.Capacity())
	require.Empty(t, eq.Accounts(mango.MAX_EVENTS_PER_TX))
}

func TestDecodePendingAccounts(t *testing.T) {
	maker := randomKey(t)
	taker := randomKey(t)
	owner := randomKey(t)
	data, err := mango.PendingQueue(
		8,
		mango.FillEvent(maker, taker),
		mango.OutEvent(owner),
		mango.OutEvent(maker),
	)
	require.NoError(t, err)
	eq, err := mango.DecodeEventQueue(data)
	require.NoError(t, err)
	require.Equal(t, uint64(3), eq.Pending())
	accounts := eq.Accounts(mango.MAX_EVENTS_PER_TX)
	require.Len(t, accounts, 3)
	require.ElementsMatch(t, []sgo.PublicKey{maker, taker, owner}, accounts)

	// only the first event is inspected
	require.ElementsMatch(t, []sgo.PublicKey{maker, taker}, eq.Accounts(1))
}

func TestDecodeWrapsAroundRing(t *testing.T) {
	a := randomKey(t)
	b := randomKey(t)
	ring := [][]byte{mango.OutEvent(b), nil, nil, mango.OutEvent(a)}
	data, err := mango.EncodeEventQueue(mango.EventQueueHeader{
		DataType:      mango.DATA_TYPE_EVENT_QUEUE,
		IsInitialized: true,
		Head:          3,
		Count:         2,
	}, ring, 4)
	require.NoError(t, err)
	eq, err := mango.DecodeEventQueue(data)
	require.NoError(t, err)
	require.ElementsMatch(t, []sgo.PublicKey{a, b}, eq.Accounts(10))
}

func TestDecodeRejectsTornData(t *testing.T) {
	_, err := mango.DecodeEventQueue(make([]byte, 10))
	require.ErrorIs(t, err, mango.ErrShortEventQueue)

	// uninitialized
	_, err = mango.DecodeEventQueue(make([]byte, mango.EVENT_QUEUE_HEADER+mango.EVENT_SIZE))
	require.ErrorIs(t, err, mango.ErrBadEventQueue)

	// count larger than the ring
	data, err := mango.EncodeEventQueue(mango.EventQueueHeader{
		DataType:      mango.DATA_TYPE_EVENT_QUEUE,
		IsInitialized: true,
		Count:         5,
	}, nil, 2)
	require.NoError(t, err)
	_, err = mango.DecodeEventQueue(data)
	require.ErrorIs(t, err, mango.ErrBadEventQueue)
}

func TestConsumeEventsInstruction(t *testing.T) {
	program := randomKey(t)
	group := randomKey(t)
	cache := randomKey(t)
	market := randomKey(t)
	evq := randomKey(t)
	acct := randomKey(t)
	ix, err := mango.ConsumeEvents(program, group, cache, market, evq, []sgo.PublicKey{acct}, 10)
	require.NoError(t, err)
	require.Equal(t, program, ix.ProgramID())

	accounts := ix.Accounts()
	require.Len(t, accounts, 5)
	require.Equal(t, group, accounts[0].PublicKey)
	require.False(t, accounts[0].IsWritable)
	require.Equal(t, cache, accounts[1].PublicKey)
	require.Equal(t, market, accounts[2].PublicKey)
	require.True(t, accounts[2].IsWritable)
	require.Equal(t, evq, accounts[3].PublicKey)
	require.True(t, accounts[3].IsWritable)
	require.Equal(t, acct, accounts[4].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	limit, ok := mango.ReadConsumeEventsLimit(data)
	require.True(t, ok)
	require.Equal(t, uint64(10), limit)
}

func TestComputeBudget(t *testing.T) {
	ix, err := mango.SetComputeUnitPrice(4242)
	require.NoError(t, err)
	require.Equal(t, mango.ComputeBudgetProgramId, ix.ProgramID())
	data, err := ix.Data()
	require.NoError(t, err)
	fee, ok := mango.ReadComputeUnitPrice(data)
	require.True(t, ok)
	require.Equal(t, uint64(4242), fee)

	ix, err = mango.SetComputeUnitLimit(200_000)
	require.NoError(t, err)
	data, err = ix.Data()
	require.NoError(t, err)
	require.Equal(t, []byte{2, 0x40, 0x0d, 0x03, 0x00}, data)
}

func TestGroupContext(t *testing.T) {
	program := randomKey(t)
	group := randomKey(t)
	cache := randomKey(t)
	market := randomKey(t)
	evq := randomKey(t)
	gc := mango.GroupConfig{
		Name:           "devnet.2",
		PublicKey:      group.String(),
		CacheKey:       cache.String(),
		MangoProgramId: program.String(),
		PerpMarkets: []mango.PerpMarketConfig{
			{Name: "SOL-PERP", PublicKey: market.String(), EventsKey: evq.String()},
		},
	}
	ctx, err := gc.Context()
	require.NoError(t, err)
	require.Equal(t, program, ctx.ProgramId)
	require.Equal(t, []sgo.PublicKey{evq}, ctx.EventQueueIds())
	m, present := ctx.MarketByEventQueue(evq)
	require.True(t, present)
	require.Equal(t, market, m.Market)

	bad := gc
	bad.CacheKey = "not-base58-0OIl"
	_, err = bad.Context()
	require.Error(t, err)

	bad = gc
	bad.PerpMarkets = nil
	_, err = bad.Context()
	require.ErrorIs(t, err, mango.ErrNoMarkets)

	bad = gc
	bad.PerpMarkets = append(bad.PerpMarkets, gc.PerpMarkets[0])
	_, err = bad.Context()
	require.Error(t, err)
}
