package test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// Subscribed is reported for every subscribe request a FakePubsub answers.
type Subscribed struct {
	Conn    int
	Method  string
	Account string
	Id      uint64
}

type pubsubRequest struct {
	Id     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

type pubsubConn struct {
	m    sync.Mutex
	conn *websocket.Conn
	// account -> subscription id
	accounts map[string]uint64
	slot     uint64
}

// FakePubsub is a websocket endpoint speaking the account and slot
// subscription methods of the validator pubsub api.  Connections are numbered
// from 0 in the order they arrive.
type FakePubsub struct {
	Server      *httptest.Server
	SubscribedC chan Subscribed
	upgrader    websocket.Upgrader
	m           sync.Mutex
	conns       []*pubsubConn
	nextId      uint64
}

func CreateFakePubsub(t *testing.T) *FakePubsub {
	f := &FakePubsub{
		SubscribedC: make(chan Subscribed, 100),
		conns:       make([]*pubsubConn, 0),
		nextId:      1,
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(func() {
		f.m.Lock()
		for _, c := range f.conns {
			c.conn.Close()
		}
		f.m.Unlock()
		f.Server.Close()
	})
	return f
}

func (f *FakePubsub) Url() string {
	return "ws" + strings.TrimPrefix(f.Server.URL, "http")
}

func (f *FakePubsub) Connections() int {
	f.m.Lock()
	defer f.m.Unlock()
	return len(f.conns)
}

func (f *FakePubsub) get(index int) (*pubsubConn, error) {
	f.m.Lock()
	defer f.m.Unlock()
	if index < 0 || len(f.conns) <= index {
		return nil, errors.New("no such connection")
	}
	return f.conns[index], nil
}

// Drop closes connection index without a close handshake.
func (f *FakePubsub) Drop(index int) error {
	c, err := f.get(index)
	if err != nil {
		return err
	}
	return c.conn.Close()
}

// NotifyAccount sends an accountNotification for account on connection index.
func (f *FakePubsub) NotifyAccount(index int, account string, slot uint64, value interface{}) error {
	c, err := f.get(index)
	if err != nil {
		return err
	}
	c.m.Lock()
	defer c.m.Unlock()
	id, present := c.accounts[account]
	if !present {
		return errors.New("account not subscribed")
	}
	return c.conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "accountNotification",
		"params": map[string]interface{}{
			"result": map[string]interface{}{
				"context": map[string]interface{}{"slot": slot},
				"value":   value,
			},
			"subscription": id,
		},
	})
}

// NotifySlot sends a slotNotification on connection index.
func (f *FakePubsub) NotifySlot(index int, slot uint64, parent uint64) error {
	c, err := f.get(index)
	if err != nil {
		return err
	}
	c.m.Lock()
	defer c.m.Unlock()
	if c.slot == 0 {
		return errors.New("slot not subscribed")
	}
	return c.conn.WriteJSON(map[string]interface{}{
		"jsonrpc": "2.0",
		"method":  "slotNotification",
		"params": map[string]interface{}{
			"result":       map[string]interface{}{"slot": slot, "parent": parent, "root": parent},
			"subscription": c.slot,
		},
	})
}

func (f *FakePubsub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &pubsubConn{conn: conn, accounts: make(map[string]uint64)}
	f.m.Lock()
	index := len(f.conns)
	f.conns = append(f.conns, c)
	f.m.Unlock()
	defer conn.Close()

	for {
		req := new(pubsubRequest)
		err = conn.ReadJSON(req)
		if err != nil {
			return
		}
		if !strings.HasSuffix(req.Method, "Subscribe") {
			continue
		}
		f.m.Lock()
		subId := f.nextId
		f.nextId++
		f.m.Unlock()

		s := Subscribed{Conn: index, Method: req.Method, Id: subId}
		c.m.Lock()
		switch req.Method {
		case "accountSubscribe":
			if 0 < len(req.Params) {
				json.Unmarshal(req.Params[0], &s.Account)
			}
			c.accounts[s.Account] = subId
		case "slotSubscribe":
			c.slot = subId
		}
		err = conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"result":  subId,
			"id":      req.Id,
		})
		c.m.Unlock()
		if err != nil {
			return
		}
		select {
		case f.SubscribedC <- s:
		default:
		}
	}
}
