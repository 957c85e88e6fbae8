package test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// RpcHandler answers one JSON-RPC method.  A non-nil *RpcError is sent back as
// the error member.
type RpcHandler func(params json.RawMessage) (interface{}, *RpcError)

type RpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcRequest struct {
	Version string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	Version string          `json:"jsonrpc"`
	Id      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RpcError       `json:"error,omitempty"`
}

// FakeRpc is an http JSON-RPC endpoint standing in for a validator.
type FakeRpc struct {
	Server   *httptest.Server
	m        sync.Mutex
	handlers map[string]RpcHandler
	calls    map[string]int
}

// CreateFakeRpc starts the server; it is shut down by t.Cleanup.
func CreateFakeRpc(t *testing.T) *FakeRpc {
	f := &FakeRpc{
		handlers: make(map[string]RpcHandler),
		calls:    make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

func (f *FakeRpc) Url() string {
	return f.Server.URL
}

func (f *FakeRpc) Handle(method string, h RpcHandler) {
	f.m.Lock()
	f.handlers[method] = h
	f.m.Unlock()
}

func (f *FakeRpc) Calls(method string) int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.calls[method]
}

func (f *FakeRpc) serve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req := new(rpcRequest)
	err = json.Unmarshal(body, req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.m.Lock()
	f.calls[req.Method]++
	h, present := f.handlers[req.Method]
	f.m.Unlock()

	resp := rpcResponse{Version: "2.0", Id: req.Id}
	if !present {
		resp.Error = &RpcError{Code: -32601, Message: "Method not found"}
	} else {
		resp.Result, resp.Error = h(req.Params)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
