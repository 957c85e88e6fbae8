package tpu

import (
	"context"
	"errors"
	"fmt"

	sgo "github.com/gagliardetto/solana-go"
	sgorpc "github.com/gagliardetto/solana-go/rpc"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
	"go.uber.org/ratelimit"
)

var ErrNoEndpoints = errors.New("no broadcast endpoints")

// Transport forwards a signed transaction toward the current leaders.  The
// bool reports whether the endpoint accepted it.  No retries happen here.
type Transport interface {
	Send(ctx context.Context, tx *sgo.Transaction) (bool, error)
}

type endpoint struct {
	url      string
	rpc      *sgorpc.Client
	accepted *atomic.Uint64
	rejected *atomic.Uint64
}

type EndpointStats struct {
	Url      string
	Accepted uint64
	Rejected uint64
}

// Pool sends round robin over a set of rpc endpoints with preflight
// disabled.
type Pool struct {
	list    []*endpoint
	next    *atomic.Uint64
	limiter ratelimit.Limiter
}

// CreatePool builds a pool.  sendRate is in transactions per second, 0 means
// no limit.
func CreatePool(urls []string, sendRate int) (*Pool, error) {
	if len(urls) == 0 {
		return nil, ErrNoEndpoints
	}
	p := &Pool{
		list: make([]*endpoint, len(urls)),
		next: atomic.NewUint64(0),
	}
	for i, u := range urls {
		if len(u) == 0 {
			return nil, fmt.Errorf("endpoint %d is blank", i)
		}
		p.list[i] = &endpoint{
			url:      u,
			rpc:      sgorpc.New(u),
			accepted: atomic.NewUint64(0),
			rejected: atomic.NewUint64(0),
		}
	}
	if 0 < sendRate {
		p.limiter = ratelimit.New(sendRate)
	} else {
		p.limiter = ratelimit.NewUnlimited()
	}
	return p, nil
}

func (p *Pool) pick() *endpoint {
	i := p.next.Inc() - 1
	return p.list[i%uint64(len(p.list))]
}

func (p *Pool) Send(ctx context.Context, tx *sgo.Transaction) (bool, error) {
	if tx == nil {
		return false, errors.New("blank transaction")
	}
	p.limiter.Take()
	e := p.pick()
	var maxRetries uint = 0
	sig, err := e.rpc.SendTransactionWithOpts(ctx, tx, sgorpc.TransactionOpts{
		SkipPreflight: true,
		MaxRetries:    &maxRetries,
	})
	if err != nil {
		e.rejected.Inc()
		return false, fmt.Errorf("%s: %w", e.url, err)
	}
	e.accepted.Inc()
	log.Tracef("endpoint=%s accepted sig=%s", e.url, sig)
	return true, nil
}

func (p *Pool) Stats() []EndpointStats {
	ans := make([]EndpointStats, len(p.list))
	for i, e := range p.list {
		ans[i] = EndpointStats{
			Url:      e.url,
			Accepted: e.accepted.Load(),
			Rejected: e.rejected.Load(),
		}
	}
	return ans
}
