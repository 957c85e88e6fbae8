package blockhash_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	sgo "github.com/gagliardetto/solana-go"
	sgorpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/solpipe/solpipe-crank/state/blockhash"
	"github.com/solpipe/solpipe-crank/state/shared"
	"github.com/solpipe/solpipe-crank/test"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func latest(h sgo.Hash) interface{} {
	return map[string]interface{}{
		"context": map[string]interface{}{"slot": 10},
		"value": map[string]interface{}{
			"blockhash":            h.String(),
			"lastValidBlockHeight": 100,
		},
	}
}

func TestPollRefreshes(t *testing.T) {
	first := sgo.HashFromBytes(make([]byte, 32))
	b := make([]byte, 32)
	b[0] = 7
	second := sgo.HashFromBytes(b)

	count := atomic.NewInt32(0)
	fake := test.CreateFakeRpc(t)
	fake.Handle("getLatestBlockhash", func(json.RawMessage) (interface{}, *test.RpcError) {
		if count.Inc() == 1 {
			return latest(first), nil
		}
		return latest(second), nil
	})

	state := shared.Create()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errorC := make(chan error, 1)
	go func() {
		errorC <- blockhash.Poll(ctx, sgorpc.New(fake.Url()), state, 50*time.Millisecond, sgorpc.CommitmentFinalized)
	}()

	require.Eventually(t, func() bool {
		return state.BlockhashReady() && state.Blockhash().Equals(second)
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-errorC)
}

func TestPollFailsWithoutFirstBlockhash(t *testing.T) {
	fake := test.CreateFakeRpc(t)
	fake.Handle("getLatestBlockhash", func(json.RawMessage) (interface{}, *test.RpcError) {
		return nil, &test.RpcError{Code: -32000, Message: "node is behind"}
	})
	state := shared.Create()
	err := blockhash.Poll(context.Background(), sgorpc.New(fake.Url()), state, time.Second, "")
	require.Error(t, err)
	require.False(t, state.BlockhashReady())
}
