package slot

import (
	"context"
	"errors"
	"time"

	sgorpc "github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
	rtr "github.com/solpipe/solpipe-crank/state/router"
)

const DEFAULT_INTERVAL = 2 * time.Second

// Poll asks the rpc for the slot every interval and feeds it to the router.
// It backs up the websocket slot stream, which can stall silently.  Failed
// requests are logged and retried on the next tick.
func Poll(
	ctx context.Context,
	rpcClient *sgorpc.Client,
	slotC chan<- rtr.SlotUpdate,
	interval time.Duration,
	commitment sgorpc.CommitmentType,
) error {
	if rpcClient == nil {
		return errors.New("no rpc client")
	}
	if interval <= 0 {
		interval = DEFAULT_INTERVAL
	}
	if len(commitment) == 0 {
		commitment = sgorpc.CommitmentConfirmed
	}
	doneC := ctx.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	lastSlot := uint64(0)
	failures := 0

out:
	for {
		select {
		case <-doneC:
			break out
		case <-ticker.C:
			slot, err := rpcClient.GetSlot(ctx, commitment)
			if err != nil {
				if ctx.Err() != nil {
					break out
				}
				failures++
				log.Debugf("slot poll failed (%d in a row): %s", failures, err)
				continue
			}
			failures = 0
			if slot <= lastSlot {
				continue
			}
			lastSlot = slot
			select {
			case <-doneC:
				break out
			case slotC <- rtr.SlotUpdate{Slot: slot, Status: rtr.SLOT_CONFIRMED}:
			}
		}
	}
	return nil
}

// Poller runs Poll as an event source.  It never produces account writes.
type Poller struct {
	Rpc        *sgorpc.Client
	Interval   time.Duration
	Commitment sgorpc.CommitmentType
}

func (p Poller) Run(ctx context.Context, writeC chan<- rtr.AccountWrite, slotC chan<- rtr.SlotUpdate) error {
	return Poll(ctx, p.Rpc, slotC, p.Interval, p.Commitment)
}
