package cranker

import (
	"time"

	sgo "github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
	dssub "github.com/solpipe/solpipe-crank/ds/sub"
	"github.com/solpipe/solpipe-crank/mango"
)

// Record describes one transaction handed to the transport.  SentSlot is the
// shared slot at send time.
type Record struct {
	Signature   sgo.Signature          `json:"signature"`
	SentAt      time.Time              `json:"sent_at"`
	SentSlot    uint64                 `json:"sent_slot"`
	Market      *sgo.PublicKey         `json:"market,omitempty"`
	MarketMaker *sgo.PublicKey         `json:"market_maker,omitempty"`
	PriorityFee uint64                 `json:"priority_fee"`
	Kind        *mango.InstructionKind `json:"kind,omitempty"`
	Accepted    bool                   `json:"accepted"`
}

// loopRecord fans records out to subscribers until recordC is closed.
// Subscribers that fall behind miss records; the dispatcher never waits on
// them.
func loopRecord(
	recordC <-chan Record,
	home *dssub.SubHome[Record],
) error {
	defer home.Close(nil)
out:
	for {
		select {
		case r := <-home.ReqC:
			home.Receive(r)
		case id := <-home.DeleteC:
			home.Delete(id)
		case r, ok := <-recordC:
			if !ok {
				break out
			}
			if log.IsLevelEnabled(log.TraceLevel) {
				log.Tracef("record sig=%s slot=%d market=%s accepted=%t", r.Signature, r.SentSlot, r.Market, r.Accepted)
			}
			missed := home.Broadcast(r)
			if 0 < missed {
				log.Debugf("%d record subscribers lagging", missed)
			}
		}
	}
	return nil
}
