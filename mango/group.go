package mango

import (
	"errors"
	"fmt"

	sgo "github.com/gagliardetto/solana-go"
	"github.com/solpipe/solpipe-crank/util"
)

var ErrNoMarkets = errors.New("group has no perp markets")

// GroupConfig mirrors a group entry of the mango ids file.
type GroupConfig struct {
	Name           string             `yaml:"name" json:"name"`
	PublicKey      string             `yaml:"publicKey" json:"publicKey"`
	CacheKey       string             `yaml:"cacheKey" json:"cacheKey"`
	MangoProgramId string             `yaml:"mangoProgramId" json:"mangoProgramId"`
	PerpMarkets    []PerpMarketConfig `yaml:"perpMarkets" json:"perpMarkets"`
}

type PerpMarketConfig struct {
	Name      string `yaml:"name" json:"name"`
	PublicKey string `yaml:"publicKey" json:"publicKey"`
	EventsKey string `yaml:"eventsKey" json:"eventsKey"`
}

type MarketQueue struct {
	Name       string
	Market     sgo.PublicKey
	EventQueue sgo.PublicKey
}

// GroupContext holds the parsed identifiers.  It is never modified after
// Context() returns.
type GroupContext struct {
	Name      string
	ProgramId sgo.PublicKey
	GroupId   sgo.PublicKey
	CacheId   sgo.PublicKey
	Markets   []MarketQueue
}

// Context parses every identifier.  Any malformed id is an error; the agent
// must not start with bad routing targets.
func (gc GroupConfig) Context() (*GroupContext, error) {
	var err error
	ans := new(GroupContext)
	ans.Name = gc.Name
	ans.ProgramId, err = parseKey("mangoProgramId", gc.MangoProgramId)
	if err != nil {
		return nil, err
	}
	ans.GroupId, err = parseKey("publicKey", gc.PublicKey)
	if err != nil {
		return nil, err
	}
	ans.CacheId, err = parseKey("cacheKey", gc.CacheKey)
	if err != nil {
		return nil, err
	}
	if len(gc.PerpMarkets) == 0 {
		return nil, ErrNoMarkets
	}
	seen := make(map[sgo.PublicKey]bool)
	ans.Markets = make([]MarketQueue, len(gc.PerpMarkets))
	for i, m := range gc.PerpMarkets {
		mq := MarketQueue{Name: m.Name}
		mq.Market, err = parseKey(fmt.Sprintf("perpMarkets[%d].publicKey", i), m.PublicKey)
		if err != nil {
			return nil, err
		}
		mq.EventQueue, err = parseKey(fmt.Sprintf("perpMarkets[%d].eventsKey", i), m.EventsKey)
		if err != nil {
			return nil, err
		}
		if seen[mq.EventQueue] {
			return nil, fmt.Errorf("event queue %s listed twice", mq.EventQueue)
		}
		seen[mq.EventQueue] = true
		ans.Markets[i] = mq
	}
	return ans, nil
}

func parseKey(field string, s string) (sgo.PublicKey, error) {
	if len(s) == 0 {
		return sgo.PublicKey{}, fmt.Errorf("%s: missing", field)
	}
	id, err := sgo.PublicKeyFromBase58(s)
	if err != nil {
		return sgo.PublicKey{}, fmt.Errorf("%s: %w", field, err)
	}
	if id.Equals(util.Zero()) {
		return sgo.PublicKey{}, fmt.Errorf("%s: zero key", field)
	}
	return id, nil
}

func (g *GroupContext) EventQueueIds() []sgo.PublicKey {
	ans := make([]sgo.PublicKey, len(g.Markets))
	for i, m := range g.Markets {
		ans[i] = m.EventQueue
	}
	return ans
}

// MarketByEventQueue finds the market draining the given event queue.
func (g *GroupContext) MarketByEventQueue(evq sgo.PublicKey) (MarketQueue, bool) {
	for _, m := range g.Markets {
		if m.EventQueue.Equals(evq) {
			return m, true
		}
	}
	return MarketQueue{}, false
}
