package router

import (
	"context"
	"errors"
	"time"

	sgo "github.com/gagliardetto/solana-go"
	log "github.com/sirupsen/logrus"
	"github.com/solpipe/solpipe-crank/meter"
	"github.com/solpipe/solpipe-crank/state/shared"
)

type compiledRoute struct {
	index   int
	route   Route
	matched map[sgo.PublicKey]bool
	// latest write per matched account, only kept for heartbeat routes
	latest map[sgo.PublicKey]AccountWrite
}

type routeTable struct {
	routes []*compiledRoute
	// account -> routes matching it, read only after compile
	byPubkey map[sgo.PublicKey][]*compiledRoute
}

func compile(routes []Route) (*routeTable, error) {
	if len(routes) == 0 {
		return nil, errors.New("no routes")
	}
	table := &routeTable{
		routes:   make([]*compiledRoute, len(routes)),
		byPubkey: make(map[sgo.PublicKey][]*compiledRoute),
	}
	for i, r := range routes {
		if r.Handler == nil {
			return nil, errors.New("route has no handler")
		}
		if len(r.MatchedPubkeys) == 0 {
			return nil, errors.New("route matches no accounts")
		}
		cr := &compiledRoute{
			index:   i,
			route:   r,
			matched: make(map[sgo.PublicKey]bool, len(r.MatchedPubkeys)),
		}
		if 0 < r.TimeoutInterval {
			cr.latest = make(map[sgo.PublicKey]AccountWrite)
		}
		for _, pk := range r.MatchedPubkeys {
			if cr.matched[pk] {
				continue
			}
			cr.matched[pk] = true
			table.byPubkey[pk] = append(table.byPubkey[pk], cr)
		}
		table.routes[i] = cr
	}
	return table, nil
}

type internal struct {
	ctx              context.Context
	closeSignalCList []chan<- error
	table            *routeTable
	state            *shared.State
	metrics          meter.Metrics
	stats            Stats
}

func loopInternal(
	ctx context.Context,
	cancel context.CancelFunc,
	internalC <-chan func(*internal),
	writeC <-chan AccountWrite,
	slotC <-chan SlotUpdate,
	table *routeTable,
	state *shared.State,
	metrics meter.Metrics,
) {
	defer cancel()
	var err error
	doneC := ctx.Done()

	in := new(internal)
	in.ctx = ctx
	in.closeSignalCList = make([]chan<- error, 0)
	in.table = table
	in.state = state
	in.metrics = metrics

	heartbeatC := make(chan int, len(table.routes))
	for _, cr := range table.routes {
		if 0 < cr.route.TimeoutInterval {
			go loopHeartbeat(ctx, heartbeatC, cr.index, cr.route.TimeoutInterval)
		}
	}

out:
	for {
		select {
		case <-doneC:
			break out
		case req := <-internalC:
			req(in)
		case w := <-writeC:
			in.on_write(w)
		case s := <-slotC:
			in.on_slot(s)
		case i := <-heartbeatC:
			in.on_heartbeat(i)
		}
	}
drain:
	for {
		select {
		case req := <-internalC:
			req(in)
		default:
			break drain
		}
	}

	in.finish(err)
}

func loopHeartbeat(
	ctx context.Context,
	heartbeatC chan<- int,
	index int,
	interval time.Duration,
) {
	doneC := ctx.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
out:
	for {
		select {
		case <-doneC:
			break out
		case <-ticker.C:
			select {
			case <-doneC:
				break out
			case heartbeatC <- index:
			}
		}
	}
}

func (in *internal) finish(err error) {
	if err != nil {
		log.Debug(err)
	}
	for i := 0; i < len(in.closeSignalCList); i++ {
		in.closeSignalCList[i] <- err
	}
}

// unmatched writes are dropped silently
func (in *internal) on_write(w AccountWrite) {
	in.stats.WritesReceived++
	in.metrics.Incr(meter.WriteReceived)
	list, present := in.table.byPubkey[w.Pubkey]
	if !present {
		in.stats.WritesUnmatched++
		return
	}
	in.stats.WritesMatched++
	for _, cr := range list {
		if cr.latest != nil {
			old, ok := cr.latest[w.Pubkey]
			if !ok || w.newer(old) {
				cr.latest[w.Pubkey] = w
			}
		}
		in.metrics.Incr(meter.RouteMatched)
		in.stats.Deliveries++
		cr.route.Handler.Process(w)
	}
}

func (in *internal) on_heartbeat(index int) {
	if index < 0 || len(in.table.routes) <= index {
		return
	}
	cr := in.table.routes[index]
	for _, w := range cr.latest {
		in.stats.Heartbeats++
		cr.route.Handler.Process(w)
	}
}

// stale slots are a no-op
func (in *internal) on_slot(s SlotUpdate) {
	if !in.state.AdvanceSlot(s.Slot) {
		in.stats.SlotStale++
		in.metrics.Incr(meter.SlotStale)
		return
	}
	in.stats.SlotAdvanced++
	in.metrics.Incr(meter.SlotUpdate)
	if s.Slot%500 == 0 {
		log.Debugf("router slot=%d status=%s", s.Slot, s.Status)
	}
	for _, cr := range in.table.routes {
		sh, ok := cr.route.Handler.(SlotHandler)
		if ok {
			sh.OnSlot(s)
		}
	}
}
