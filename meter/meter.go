package meter

import "time"

// Stage names a point in the crank pipeline.
type Stage string

const (
	WriteReceived  Stage = "write_received"
	RouteMatched   Stage = "route_matched"
	SlotUpdate     Stage = "slot_update"
	SlotStale      Stage = "slot_stale"
	DecodeFailed   Stage = "decode_failed"
	BatchEmitted   Stage = "batch_emitted"
	BatchCoalesced Stage = "batch_coalesced"
	BatchDropped   Stage = "batch_dropped"
	TxSent         Stage = "tx_sent"
	TxRejected     Stage = "tx_rejected"
	TxSendLatency  Stage = "tx_send_latency"
)

var AllStages = []Stage{
	WriteReceived,
	RouteMatched,
	SlotUpdate,
	SlotStale,
	DecodeFailed,
	BatchEmitted,
	BatchCoalesced,
	BatchDropped,
	TxSent,
	TxRejected,
}

// Metrics is the sink for pipeline counters and timers.  Implementations must
// not block; the router calls Incr from the ingestion path.
type Metrics interface {
	Incr(stage Stage)
	Observe(stage Stage, d time.Duration)
}

type discard struct{}

func (discard) Incr(Stage)                   {}
func (discard) Observe(Stage, time.Duration) {}

func Discard() Metrics {
	return discard{}
}

type multi []Metrics

func (m multi) Incr(stage Stage) {
	for _, x := range m {
		x.Incr(stage)
	}
}

func (m multi) Observe(stage Stage, d time.Duration) {
	for _, x := range m {
		x.Observe(stage, d)
	}
}

// Tee sends every measurement to all of list.
func Tee(list ...Metrics) Metrics {
	return multi(list)
}
