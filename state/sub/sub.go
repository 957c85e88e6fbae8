package sub

import (
	"context"
	"errors"

	sgo "github.com/gagliardetto/solana-go"
	sgorpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/solpipe/solpipe-crank/mango"
	rtr "github.com/solpipe/solpipe-crank/state/router"
)

// FilterConfig selects which accounts a source streams.  When ProgramIds is
// not empty, accounts owned by other programs are skipped.
type FilterConfig struct {
	ProgramIds []sgo.PublicKey
	AccountIds []sgo.PublicKey
}

// GroupFilter streams every event queue of the group.
func GroupFilter(group *mango.GroupContext) FilterConfig {
	return FilterConfig{
		ProgramIds: []sgo.PublicKey{group.ProgramId},
		AccountIds: group.EventQueueIds(),
	}
}

func (fc FilterConfig) Check() error {
	if len(fc.AccountIds) == 0 {
		return errors.New("filter selects no accounts")
	}
	return nil
}

func (fc FilterConfig) ownerAllowed(owner sgo.PublicKey) bool {
	if len(fc.ProgramIds) == 0 {
		return true
	}
	for _, p := range fc.ProgramIds {
		if p.Equals(owner) {
			return true
		}
	}
	return false
}

// Source pushes account writes and slot updates into the router until ctx is
// done or the stream fails.
type Source interface {
	Run(ctx context.Context, writeC chan<- rtr.AccountWrite, slotC chan<- rtr.SlotUpdate) error
}

// convert turns an rpc account into a write.  Returns false for deleted
// accounts and accounts owned by an unexpected program.
func (fc FilterConfig) convert(
	id sgo.PublicKey,
	slot uint64,
	writeVersion uint64,
	account *sgorpc.Account,
) (rtr.AccountWrite, bool) {
	if account == nil || account.Data == nil {
		return rtr.AccountWrite{}, false
	}
	if !fc.ownerAllowed(account.Owner) {
		return rtr.AccountWrite{}, false
	}
	return rtr.AccountWrite{
		Pubkey:       id,
		Slot:         slot,
		WriteVersion: writeVersion,
		IsSelected:   true,
		Data:         account.Data.GetBinary(),
	}, true
}

func push[T any](ctx context.Context, c chan<- T, value T) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case c <- value:
		return nil
	}
}
