package cranker

import (
	"errors"

	sgo "github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
	"github.com/solpipe/solpipe-crank/ds/queue"
	"github.com/solpipe/solpipe-crank/mango"
	"github.com/solpipe/solpipe-crank/meter"
	rtr "github.com/solpipe/solpipe-crank/state/router"
)

// Batch is one unit of work for the dispatcher.  Every instruction in a batch
// lands in the same transaction.
type Batch struct {
	Market       sgo.PublicKey
	EventQueue   sgo.PublicKey
	Kind         mango.InstructionKind
	Pending      uint64
	Instructions []sgo.Instruction
}

type BatchQueue = queue.Coalescing[sgo.PublicKey, Batch]

// PerpCrankSink turns event queue writes into consume events batches.  It
// keeps no state between writes.
type PerpCrankSink struct {
	group   *mango.GroupContext
	q       *BatchQueue
	metrics meter.Metrics
}

func CreatePerpCrankSink(
	group *mango.GroupContext,
	q *BatchQueue,
	metrics meter.Metrics,
) (*PerpCrankSink, error) {
	if group == nil {
		return nil, errors.New("no group")
	}
	if q == nil {
		return nil, errors.New("no queue")
	}
	if metrics == nil {
		metrics = meter.Discard()
	}
	return &PerpCrankSink{group: group, q: q, metrics: metrics}, nil
}

// Route matches every event queue in the group.
func (s *PerpCrankSink) Route() rtr.Route {
	return rtr.Route{
		MatchedPubkeys: s.group.EventQueueIds(),
		Handler:        s,
	}
}

func (s *PerpCrankSink) Process(write rtr.AccountWrite) {
	market, present := s.group.MarketByEventQueue(write.Pubkey)
	if !present {
		return
	}
	eq, err := mango.DecodeEventQueue(write.Data)
	if err != nil {
		s.metrics.Incr(meter.DecodeFailed)
		log.Debugf("market=%s evq=%s slot=%d decode failed: %s", market.Name, write.Pubkey, write.Slot, err)
		return
	}
	pending := eq.Pending()
	if pending == 0 {
		return
	}
	ix, err := mango.ConsumeEvents(
		s.group.ProgramId,
		s.group.GroupId,
		s.group.CacheId,
		market.Market,
		market.EventQueue,
		eq.Accounts(mango.MAX_EVENTS_PER_TX),
		uint64(mango.MAX_EVENTS_PER_TX),
	)
	if err != nil {
		log.Debugf("market=%s failed to build consume events: %s", market.Name, err)
		return
	}
	result := s.q.Push(market.Market, Batch{
		Market:       market.Market,
		EventQueue:   market.EventQueue,
		Kind:         mango.KIND_CONSUME_EVENTS,
		Pending:      pending,
		Instructions: []sgo.Instruction{ix},
	})
	switch result {
	case queue.QUEUED:
		s.metrics.Incr(meter.BatchEmitted)
	case queue.COALESCED:
		s.metrics.Incr(meter.BatchCoalesced)
	case queue.DROPPED:
		s.metrics.Incr(meter.BatchDropped)
		log.Debugf("market=%s batch dropped", market.Name)
	}
}
