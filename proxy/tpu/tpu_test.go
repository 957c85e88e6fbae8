package tpu_test

import (
	"context"
	"encoding/json"
	"testing"

	sgo "github.com/gagliardetto/solana-go"
	"github.com/solpipe/solpipe-crank/mango"
	"github.com/solpipe/solpipe-crank/proxy/tpu"
	"github.com/solpipe/solpipe-crank/test"
	"github.com/stretchr/testify/require"
)

func signedTx(t *testing.T) *sgo.Transaction {
	key, err := sgo.NewRandomPrivateKey()
	require.NoError(t, err)
	ix, err := mango.SetComputeUnitPrice(1)
	require.NoError(t, err)
	tx, err := sgo.NewTransaction([]sgo.Instruction{ix}, sgo.Hash{}, sgo.TransactionPayer(key.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(sgo.PublicKey) *sgo.PrivateKey { return &key })
	require.NoError(t, err)
	return tx
}

func accept(tx *sgo.Transaction) test.RpcHandler {
	return func(json.RawMessage) (interface{}, *test.RpcError) {
		return tx.Signatures[0].String(), nil
	}
}

func reject(json.RawMessage) (interface{}, *test.RpcError) {
	return nil, &test.RpcError{Code: -32002, Message: "Transaction simulation failed"}
}

func TestCreatePoolNeedsEndpoints(t *testing.T) {
	_, err := tpu.CreatePool(nil, 0)
	require.ErrorIs(t, err, tpu.ErrNoEndpoints)
	_, err = tpu.CreatePool([]string{""}, 0)
	require.Error(t, err)
}

func TestPoolRoundRobin(t *testing.T) {
	tx := signedTx(t)
	a := test.CreateFakeRpc(t)
	a.Handle("sendTransaction", accept(tx))
	b := test.CreateFakeRpc(t)
	b.Handle("sendTransaction", reject)

	pool, err := tpu.CreatePool([]string{a.Url(), b.Url()}, 100)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := pool.Send(ctx, tx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = pool.Send(ctx, tx)
	require.Error(t, err)
	require.False(t, ok)

	ok, err = pool.Send(ctx, tx)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, 2, a.Calls("sendTransaction"))
	require.Equal(t, 1, b.Calls("sendTransaction"))
	stats := pool.Stats()
	require.Equal(t, uint64(2), stats[0].Accepted)
	require.Equal(t, uint64(1), stats[1].Rejected)
}
