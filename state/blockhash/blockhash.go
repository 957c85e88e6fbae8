package blockhash

import (
	"context"
	"errors"
	"time"

	sgorpc "github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
	"github.com/solpipe/solpipe-crank/state/shared"
)

const DEFAULT_INTERVAL = 5 * time.Second

// Refresh fetches the latest blockhash once and stores it.
func Refresh(
	ctx context.Context,
	rpcClient *sgorpc.Client,
	state *shared.State,
	commitment sgorpc.CommitmentType,
) error {
	if len(commitment) == 0 {
		commitment = sgorpc.CommitmentFinalized
	}
	r, err := rpcClient.GetLatestBlockhash(ctx, commitment)
	if err != nil {
		return err
	}
	if r == nil || r.Value == nil {
		return errors.New("empty blockhash response")
	}
	state.SetBlockhash(r.Value.Blockhash)
	return nil
}

// Poll refreshes the shared blockhash every interval.  The first fetch must
// succeed; later failures keep the previous hash and are only logged.
func Poll(
	ctx context.Context,
	rpcClient *sgorpc.Client,
	state *shared.State,
	interval time.Duration,
	commitment sgorpc.CommitmentType,
) error {
	if rpcClient == nil || state == nil {
		return errors.New("blockhash poller is missing a dependency")
	}
	if interval <= 0 {
		interval = DEFAULT_INTERVAL
	}
	err := Refresh(ctx, rpcClient, state, commitment)
	if err != nil {
		return err
	}
	log.Debugf("initial blockhash=%s", state.Blockhash())

	doneC := ctx.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
out:
	for {
		select {
		case <-doneC:
			break out
		case <-ticker.C:
			err = Refresh(ctx, rpcClient, state, commitment)
			if err != nil && ctx.Err() == nil {
				log.Warnf("blockhash refresh failed: %s", err)
			}
		}
	}
	return nil
}
