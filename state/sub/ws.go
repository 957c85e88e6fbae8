package sub

import (
	"context"
	"errors"
	"fmt"
	"time"

	sgo "github.com/gagliardetto/solana-go"
	sgorpc "github.com/gagliardetto/solana-go/rpc"
	sgows "github.com/gagliardetto/solana-go/rpc/ws"
	log "github.com/sirupsen/logrus"
	rtr "github.com/solpipe/solpipe-crank/state/router"
	"github.com/solpipe/solpipe-crank/util"
	"go.uber.org/atomic"
)

// WebsocketSource subscribes to each filtered account and to slot
// notifications over the rpc websocket.
type WebsocketSource struct {
	config        *util.RpcConfig
	reconnectBase time.Duration
	reconnectMax  time.Duration
	rpc           *sgorpc.Client
	filter        FilterConfig
	commitment    sgorpc.CommitmentType
	writeVersion  *atomic.Uint64
}

func CreateWebsocketSource(
	config *util.RpcConfig,
	filter FilterConfig,
	commitment sgorpc.CommitmentType,
) (*WebsocketSource, error) {
	if config == nil {
		return nil, errors.New("no rpc config")
	}
	err := filter.Check()
	if err != nil {
		return nil, err
	}
	if len(commitment) == 0 {
		commitment = sgorpc.CommitmentProcessed
	}
	return &WebsocketSource{
		config:        config,
		reconnectBase: DEFAULT_RECONNECT_BASE,
		reconnectMax:  DEFAULT_RECONNECT_MAX,
		rpc:           config.Client(),
		filter:        filter,
		commitment:    commitment,
		writeVersion:  atomic.NewUint64(0),
	}, nil
}

const (
	DEFAULT_RECONNECT_BASE = 500 * time.Millisecond
	DEFAULT_RECONNECT_MAX  = 30 * time.Second
)

// WithReconnect sets the first and the longest wait between sessions.
// Non-positive values keep the defaults.
func (s *WebsocketSource) WithReconnect(base time.Duration, max time.Duration) *WebsocketSource {
	if 0 < base {
		s.reconnectBase = base
	}
	if 0 < max {
		s.reconnectMax = max
	}
	if s.reconnectMax < s.reconnectBase {
		s.reconnectMax = s.reconnectBase
	}
	return s
}

// Snapshot fetches the current state of every filtered account so a backlog
// that exists at startup gets cranked without waiting for a change.
func (s *WebsocketSource) Snapshot(ctx context.Context) ([]rtr.AccountWrite, error) {
	r, err := s.rpc.GetMultipleAccountsWithOpts(ctx, s.filter.AccountIds, &sgorpc.GetMultipleAccountsOpts{
		Encoding:   sgo.EncodingBase64,
		Commitment: s.commitment,
	})
	if err != nil {
		return nil, err
	}
	if len(r.Value) != len(s.filter.AccountIds) {
		return nil, fmt.Errorf("asked for %d accounts, got %d", len(s.filter.AccountIds), len(r.Value))
	}
	ans := make([]rtr.AccountWrite, 0, len(r.Value))
	for i, account := range r.Value {
		w, ok := s.filter.convert(s.filter.AccountIds[i], r.Context.Slot, s.writeVersion.Inc(), account)
		if !ok {
			log.Debugf("snapshot skipped account=%s", s.filter.AccountIds[i])
			continue
		}
		ans = append(ans, w)
	}
	return ans, nil
}

// Run streams until ctx is done.  A dropped connection is logged and
// reopened after a doubling wait; every new session subscribes again and
// re-injects the snapshot so writes missed while disconnected are not lost.
func (s *WebsocketSource) Run(
	ctx context.Context,
	writeC chan<- rtr.AccountWrite,
	slotC chan<- rtr.SlotUpdate,
) error {
	wait := s.reconnectBase
	for {
		start := time.Now()
		err := s.session(ctx, writeC, slotC)
		if ctx.Err() != nil {
			return nil
		}
		if s.reconnectMax <= time.Since(start) {
			wait = s.reconnectBase
		}
		log.Warnf("websocket session ended, reconnecting in %s: %s", wait, err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		wait *= 2
		if s.reconnectMax < wait {
			wait = s.reconnectMax
		}
	}
}

// session runs one websocket connection.  It always returns a non-nil error
// unless ctx is done.
func (s *WebsocketSource) session(
	ctx context.Context,
	writeC chan<- rtr.AccountWrite,
	slotC chan<- rtr.SlotUpdate,
) error {
	ctx2, cancel := context.WithCancel(ctx)
	defer cancel()

	wsClient, err := s.config.WsConnect(ctx2)
	if err != nil {
		return err
	}
	defer wsClient.Close()

	errorC := make(chan error, len(s.filter.AccountIds)+1)
	for _, id := range s.filter.AccountIds {
		accountSub, err := wsClient.AccountSubscribeWithOpts(id, s.commitment, sgo.EncodingBase64)
		if err != nil {
			return fmt.Errorf("account %s: %w", id, err)
		}
		go s.loopAccount(ctx2, id, accountSub, writeC, errorC)
	}
	slotSub, err := wsClient.SlotSubscribe()
	if err != nil {
		return fmt.Errorf("slot: %w", err)
	}
	go loopSlot(ctx2, slotSub, slotC, errorC)

	list, err := s.Snapshot(ctx2)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	for _, w := range list {
		err = push(ctx2, writeC, w)
		if err != nil {
			return err
		}
	}
	log.Infof("streaming %d accounts", len(s.filter.AccountIds))

	select {
	case <-ctx2.Done():
		return ctx2.Err()
	case err = <-errorC:
		return err
	}
}

func (s *WebsocketSource) loopAccount(
	ctx context.Context,
	id sgo.PublicKey,
	accountSub *sgows.AccountSubscription,
	writeC chan<- rtr.AccountWrite,
	errorC chan<- error,
) {
	go func() {
		<-ctx.Done()
		accountSub.Unsubscribe()
	}()
	for {
		result, err := accountSub.Recv()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			errorC <- fmt.Errorf("account %s: %w", id, err)
			return
		}
		if result == nil {
			continue
		}
		w, ok := s.filter.convert(id, result.Context.Slot, s.writeVersion.Inc(), &result.Value.Account)
		if !ok {
			continue
		}
		if push(ctx, writeC, w) != nil {
			return
		}
	}
}

func loopSlot(
	ctx context.Context,
	slotSub *sgows.SlotSubscription,
	slotC chan<- rtr.SlotUpdate,
	errorC chan<- error,
) {
	go func() {
		<-ctx.Done()
		slotSub.Unsubscribe()
	}()
	for {
		result, err := slotSub.Recv()
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			errorC <- fmt.Errorf("slot: %w", err)
			return
		}
		if result == nil {
			continue
		}
		parent := result.Parent
		if push(ctx, slotC, rtr.SlotUpdate{
			Slot:   result.Slot,
			Parent: &parent,
			Status: rtr.SLOT_PROCESSED,
		}) != nil {
			return
		}
	}
}
