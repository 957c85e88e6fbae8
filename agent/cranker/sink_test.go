package cranker_test

import (
	"testing"

	sgo "github.com/gagliardetto/solana-go"
	"github.com/solpipe/solpipe-crank/agent/cranker"
	"github.com/solpipe/solpipe-crank/ds/queue"
	"github.com/solpipe/solpipe-crank/mango"
	"github.com/solpipe/solpipe-crank/meter"
	rtr "github.com/solpipe/solpipe-crank/state/router"
	"github.com/stretchr/testify/require"
)

func setupSink(t *testing.T) (*mango.GroupContext, *cranker.BatchQueue, *cranker.PerpCrankSink, *meter.Log) {
	group := testGroup(t)
	q := queue.Create[sgo.PublicKey, cranker.Batch](10)
	m := meter.CreateLog("test")
	sink, err := cranker.CreatePerpCrankSink(group, q, m)
	require.NoError(t, err)
	return group, q, sink, m
}

func TestSinkIgnoresEmptyQueue(t *testing.T) {
	group, q, sink, m := setupSink(t)
	sink.Process(pendingWrite(t, group.Markets[0].EventQueue, 0, 1))
	require.Equal(t, 0, q.Len())
	require.Equal(t, uint64(0), m.Value(meter.BatchEmitted))
}

func TestSinkEmitsOneConsumeEvents(t *testing.T) {
	for _, n := range []int{1, 3, 12} {
		group, q, sink, m := setupSink(t)
		market := group.Markets[1]
		sink.Process(pendingWrite(t, market.EventQueue, n, 1))
		require.Equal(t, 1, q.Len())
		require.Equal(t, uint64(1), m.Value(meter.BatchEmitted))

		b, ok := q.TryPop()
		require.True(t, ok)
		require.Equal(t, market.Market, b.Market)
		require.Equal(t, market.EventQueue, b.EventQueue)
		require.Equal(t, mango.KIND_CONSUME_EVENTS, b.Kind)
		require.Equal(t, uint64(n), b.Pending)
		require.Len(t, b.Instructions, 1)

		ix := b.Instructions[0]
		require.Equal(t, group.ProgramId, ix.ProgramID())
		accounts := ix.Accounts()
		require.True(t, 4 <= len(accounts))
		require.Equal(t, group.GroupId, accounts[0].PublicKey)
		require.Equal(t, group.CacheId, accounts[1].PublicKey)
		require.Equal(t, market.Market, accounts[2].PublicKey)
		require.Equal(t, market.EventQueue, accounts[3].PublicKey)

		data, err := ix.Data()
		require.NoError(t, err)
		limit, ok := mango.ReadConsumeEventsLimit(data)
		require.True(t, ok)
		require.Equal(t, uint64(mango.MAX_EVENTS_PER_TX), limit)
	}
}

func TestSinkSkipsUndecodable(t *testing.T) {
	group, q, sink, m := setupSink(t)
	sink.Process(rtr.AccountWrite{Pubkey: group.Markets[0].EventQueue, Data: []byte{1, 2, 3}})
	require.Equal(t, 0, q.Len())
	require.Equal(t, uint64(1), m.Value(meter.DecodeFailed))

	// an unknown queue is not an error
	sink.Process(pendingWrite(t, randomKey(t), 2, 1))
	require.Equal(t, 0, q.Len())
	require.Equal(t, uint64(1), m.Value(meter.DecodeFailed))
}

func TestSinkSecondEmptyWriteEmitsNothing(t *testing.T) {
	group, q, sink, m := setupSink(t)
	evq := group.Markets[0].EventQueue
	sink.Process(pendingWrite(t, evq, 2, 1))
	sink.Process(pendingWrite(t, evq, 0, 2))
	require.Equal(t, 1, q.Len())
	require.Equal(t, uint64(1), m.Value(meter.BatchEmitted))
	b, ok := q.TryPop()
	require.True(t, ok)
	require.Equal(t, uint64(2), b.Pending)
}

func TestSinkCoalescesPerMarket(t *testing.T) {
	group, q, sink, m := setupSink(t)
	sink.Process(pendingWrite(t, group.Markets[0].EventQueue, 2, 1))
	sink.Process(pendingWrite(t, group.Markets[1].EventQueue, 1, 1))
	sink.Process(pendingWrite(t, group.Markets[0].EventQueue, 5, 2))
	require.Equal(t, 2, q.Len())
	require.Equal(t, uint64(1), m.Value(meter.BatchCoalesced))

	b, _ := q.TryPop()
	require.Equal(t, group.Markets[0].Market, b.Market)
	require.Equal(t, uint64(5), b.Pending)
}

func TestSinkRoute(t *testing.T) {
	group, _, sink, _ := setupSink(t)
	route := sink.Route()
	require.Equal(t, group.EventQueueIds(), route.MatchedPubkeys)
	require.Equal(t, rtr.Handler(sink), route.Handler)
}
