package main

import (
	"context"
	"fmt"

	sgorpc "github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
	ckr "github.com/solpipe/solpipe-crank/agent/cranker"
	"github.com/solpipe/solpipe-crank/logger"
	"github.com/solpipe/solpipe-crank/meter"
	"github.com/solpipe/solpipe-crank/proxy/tpu"
	"github.com/solpipe/solpipe-crank/state/blockhash"
	"github.com/solpipe/solpipe-crank/state/shared"
	"github.com/solpipe/solpipe-crank/state/slot"
	"github.com/solpipe/solpipe-crank/state/sub"
	"github.com/solpipe/solpipe-crank/web"
)

const SERVICE_NAME = "crank"

type Crank struct {
	PriorityFee int64 `option:"" name:"fee" help:"Override priority_fee, in micro-lamports per compute unit" default:"-1"`
}

func (r *Crank) Run(kongCtx *CLIContext) error {
	ctx := kongCtx.Ctx
	config, err := kongCtx.Clients.Load()
	if err != nil {
		return err
	}
	if 0 <= r.PriorityFee {
		config.PriorityFee = uint64(r.PriorityFee)
	}
	group, err := config.GroupContext()
	if err != nil {
		return err
	}
	identity, err := config.Keypair()
	if err != nil {
		return err
	}
	logger.Component(SERVICE_NAME).Infof("cranker=%s group=%s markets=%d fee=%d", identity.PublicKey(), group.Name, len(group.Markets), config.PriorityFee)

	rpcClient := config.Rpc().Client()
	state := shared.Create()
	err = blockhash.Refresh(ctx, rpcClient, state, sgorpc.CommitmentFinalized)
	if err != nil {
		return fmt.Errorf("initial blockhash: %w", err)
	}

	prom, err := meter.CreatePrometheus(SERVICE_NAME)
	if err != nil {
		return err
	}
	logMeter := meter.CreateLog(SERVICE_NAME)
	metrics := meter.Tee(prom, logMeter)

	pool, err := tpu.CreatePool(config.BroadcastUrls(), config.SendRate)
	if err != nil {
		return err
	}
	source, err := sub.CreateWebsocketSource(config.Rpc(), sub.GroupFilter(group), config.CommitmentType())
	if err != nil {
		return err
	}
	source.WithReconnect(config.ReconnectBaseDelay, config.ReconnectMaxDelay)

	cranker, err := ckr.Create(
		ctx,
		ckr.Configuration{
			Group: group,
			Dispatch: ckr.DispatcherConfig{
				Identity:         identity,
				PriorityFee:      config.PriorityFee,
				ComputeUnitLimit: config.ComputeUnitLimit,
				SendTimeout:      config.SendTimeout,
			},
			QueueCapacity:     config.QueueCapacity,
			HeartbeatInterval: config.HeartbeatInterval,
		},
		ckr.Dependencies{
			State:     state,
			Transport: pool,
			Metrics:   metrics,
			Sources: []sub.Source{
				source,
				slot.Poller{
					Rpc:        rpcClient,
					Interval:   config.SlotInterval,
					Commitment: sgorpc.CommitmentConfirmed,
				},
			},
			Tasks: []ckr.Task{
				{Name: "blockhash", Run: func(ctx context.Context) error {
					return blockhash.Poll(ctx, rpcClient, state, config.BlockhashInterval, sgorpc.CommitmentFinalized)
				}},
				{Name: "meter", Run: func(ctx context.Context) error {
					return logMeter.Run(ctx, config.MetricsInterval)
				}},
			},
		},
	)
	if err != nil {
		return err
	}
	crankerSignalC := cranker.CloseSignal()

	webSignalC := web.Run(ctx, &web.Configuration{
		ListenUrl:       config.Listen,
		HealthListenUrl: config.HealthListen,
		Registry:        prom.Registry,
	}, cranker)

	select {
	case err = <-crankerSignalC:
	case err = <-webSignalC:
		if err != nil {
			log.Errorf("http server: %s", err)
			cranker.Close()
		}
		crankerErr := <-crankerSignalC
		if err == nil {
			err = crankerErr
		}
	}
	for _, s := range pool.Stats() {
		log.Infof("endpoint=%s accepted=%d rejected=%d", s.Url, s.Accepted, s.Rejected)
	}
	return err
}
