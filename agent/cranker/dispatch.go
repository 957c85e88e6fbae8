package cranker

import (
	"context"
	"errors"
	"time"

	sgo "github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
	"github.com/solpipe/solpipe-crank/mango"
	"github.com/solpipe/solpipe-crank/meter"
	"github.com/solpipe/solpipe-crank/proxy/tpu"
	"github.com/solpipe/solpipe-crank/state/shared"
	"github.com/solpipe/solpipe-crank/util"
)

type DispatcherConfig struct {
	Identity    sgo.PrivateKey
	PriorityFee uint64
	// 0 leaves the limit at the runtime default
	ComputeUnitLimit uint32
	// bound on one broadcast, <= 0 uses DEFAULT_SEND_TIMEOUT
	SendTimeout time.Duration
}

const DEFAULT_SEND_TIMEOUT = 10 * time.Second

// Dispatcher signs and sends batches popped from the queue, one transaction
// per batch.  A batch that fails to send is not retried.  Shutdown is only
// observed between batches; a send that has started runs to completion or
// to SendTimeout.
type Dispatcher struct {
	config    DispatcherConfig
	payer     sgo.PublicKey
	q         *BatchQueue
	state     *shared.State
	transport tpu.Transport
	metrics   meter.Metrics
	// sent to without a ctx guard, so it has to keep accepting
	recordC chan<- Record
}

func CreateDispatcher(
	config DispatcherConfig,
	q *BatchQueue,
	state *shared.State,
	transport tpu.Transport,
	metrics meter.Metrics,
	recordC chan<- Record,
) (*Dispatcher, error) {
	if len(config.Identity) == 0 {
		return nil, errors.New("no identity")
	}
	if q == nil || state == nil || transport == nil {
		return nil, errors.New("dispatcher is missing a dependency")
	}
	if metrics == nil {
		metrics = meter.Discard()
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = DEFAULT_SEND_TIMEOUT
	}
	return &Dispatcher{
		config:    config,
		payer:     config.Identity.PublicKey(),
		q:         q,
		state:     state,
		transport: transport,
		metrics:   metrics,
		recordC:   recordC,
	}, nil
}

// Run returns nil once the shutdown flag is set or ctx is done.  Batches
// still queued at that point are abandoned.  Only the wait for the next
// batch is cut short by either of them.
func (d *Dispatcher) Run(ctx context.Context) error {
	popCtx, cancel := util.CancelOn(ctx, d.state.Done())
	defer cancel()

	for {
		if d.state.IsShutdown() {
			log.Debug("dispatcher stopping on shutdown")
			return nil
		}
		b, err := d.q.Pop(popCtx)
		if err != nil {
			log.Debugf("dispatcher stopping: %s", err)
			return nil
		}
		if d.state.IsShutdown() {
			return nil
		}
		d.dispatch(b)
	}
}

// Build assembles and signs the transaction for a batch.  The priority fee is
// always the first instruction.
func (d *Dispatcher) Build(b Batch, blockhash sgo.Hash) (*sgo.Transaction, error) {
	ixList := make([]sgo.Instruction, 0, 2+len(b.Instructions))
	feeIx, err := mango.SetComputeUnitPrice(d.config.PriorityFee)
	if err != nil {
		return nil, err
	}
	ixList = append(ixList, feeIx)
	if 0 < d.config.ComputeUnitLimit {
		limitIx, err := mango.SetComputeUnitLimit(d.config.ComputeUnitLimit)
		if err != nil {
			return nil, err
		}
		ixList = append(ixList, limitIx)
	}
	ixList = append(ixList, b.Instructions...)

	tx, err := sgo.NewTransaction(ixList, blockhash, sgo.TransactionPayer(d.payer))
	if err != nil {
		return nil, err
	}
	_, err = tx.Sign(func(key sgo.PublicKey) *sgo.PrivateKey {
		if key.Equals(d.payer) {
			return &d.config.Identity
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

func (d *Dispatcher) dispatch(b Batch) {
	if !d.state.BlockhashReady() {
		log.Warnf("market=%s no blockhash yet, dropping batch", b.Market)
		return
	}
	tx, err := d.Build(b, d.state.Blockhash())
	if err != nil {
		log.Warnf("market=%s failed to build transaction: %s", b.Market, err)
		return
	}

	slot := d.state.Slot()
	start := time.Now()
	sendCtx, cancel := context.WithTimeout(context.Background(), d.config.SendTimeout)
	accepted, err := d.transport.Send(sendCtx, tx)
	cancel()
	d.metrics.Observe(meter.TxSendLatency, time.Since(start))
	if err != nil {
		accepted = false
		d.metrics.Incr(meter.TxRejected)
		log.Warnf("market=%s sig=%s send failed: %s", b.Market, tx.Signatures[0], err)
	} else if !accepted {
		d.metrics.Incr(meter.TxRejected)
		log.Warnf("market=%s sig=%s not accepted", b.Market, tx.Signatures[0])
	} else {
		d.metrics.Incr(meter.TxSent)
		log.Debugf("market=%s sig=%s pending=%d slot=%d sent", b.Market, tx.Signatures[0], b.Pending, slot)
	}

	if d.recordC == nil {
		return
	}
	market := b.Market
	kind := b.Kind
	r := Record{
		Signature:   tx.Signatures[0],
		SentAt:      start,
		SentSlot:    slot,
		Market:      &market,
		PriorityFee: d.config.PriorityFee,
		Kind:        &kind,
		Accepted:    accepted,
	}
	d.recordC <- r
}
