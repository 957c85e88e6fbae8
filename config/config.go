package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	sgo "github.com/gagliardetto/solana-go"
	sgorpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/solpipe/solpipe-crank/mango"
	"github.com/solpipe/solpipe-crank/util"
	"gopkg.in/yaml.v3"
)

var ErrNoMarkets = mango.ErrNoMarkets

const (
	DEFAULT_QUEUE_CAPACITY     = 64
	DEFAULT_BLOCKHASH_INTERVAL = 5 * time.Second
	DEFAULT_SLOT_INTERVAL      = 2 * time.Second
	DEFAULT_METRICS_INTERVAL   = 30 * time.Second
	DEFAULT_LISTEN             = ":9091"
	DEFAULT_RECONNECT_BASE     = 500 * time.Millisecond
	DEFAULT_RECONNECT_MAX      = 30 * time.Second
	DEFAULT_SEND_TIMEOUT       = 10 * time.Second
)

type Configuration struct {
	RpcUrl string `yaml:"rpc_url"`
	WsUrl  string `yaml:"ws_url"`
	// sent with every rpc and websocket request, for authenticated endpoints
	RpcHeaders map[string]string `yaml:"rpc_headers"`
	TpuUrls    []string          `yaml:"tpu_urls"`
	Identity   string            `yaml:"identity"`
	// micro-lamports per compute unit
	PriorityFee       uint64        `yaml:"priority_fee"`
	ComputeUnitLimit  uint32        `yaml:"compute_unit_limit"`
	SendRate          int           `yaml:"send_rate"`
	QueueCapacity     int           `yaml:"queue_capacity"`
	BlockhashInterval time.Duration `yaml:"blockhash_interval"`
	SlotInterval      time.Duration `yaml:"slot_interval"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	MetricsInterval   time.Duration `yaml:"metrics_interval"`
	// wait before reopening a dropped websocket, doubling up to the max
	ReconnectBaseDelay time.Duration `yaml:"reconnect_base_delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect_max_delay"`
	// bound on a single broadcast, shutdown does not cut it short
	SendTimeout  time.Duration `yaml:"send_timeout"`
	Commitment   string        `yaml:"commitment"`
	Listen       string        `yaml:"listen"`
	HealthListen string        `yaml:"health_listen"`
	LogLevel     string        `yaml:"log_level"`
	LogJson      bool          `yaml:"log_json"`
	// either an inline group or a mango ids file plus the group name
	Group     *mango.GroupConfig `yaml:"group"`
	GroupFile string             `yaml:"group_file"`
	GroupName string             `yaml:"group_name"`
}

// Load reads a yaml file, expanding ${VAR} references, then applies defaults
// and validates.
func Load(fp string) (*Configuration, error) {
	data, err := os.ReadFile(fp)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Configuration, error) {
	return ParseWith(data, nil)
}

// ParseWith lets the caller override fields, from command line flags for
// example, before defaults and validation run.
func ParseWith(data []byte, override func(*Configuration)) (*Configuration, error) {
	expanded := os.ExpandEnv(string(data))
	config := new(Configuration)
	d := yaml.NewDecoder(bytes.NewBufferString(expanded))
	d.KnownFields(true)
	err := d.Decode(config)
	if err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if override != nil {
		override(config)
	}
	config.applyDefaults()
	err = config.Check()
	if err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return config, nil
}

func (c *Configuration) applyDefaults() {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DEFAULT_QUEUE_CAPACITY
	}
	if c.BlockhashInterval <= 0 {
		c.BlockhashInterval = DEFAULT_BLOCKHASH_INTERVAL
	}
	if c.SlotInterval <= 0 {
		c.SlotInterval = DEFAULT_SLOT_INTERVAL
	}
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = DEFAULT_METRICS_INTERVAL
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = DEFAULT_RECONNECT_BASE
	}
	if c.ReconnectMaxDelay < c.ReconnectBaseDelay {
		c.ReconnectMaxDelay = DEFAULT_RECONNECT_MAX
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DEFAULT_SEND_TIMEOUT
	}
	if len(c.Commitment) == 0 {
		c.Commitment = string(sgorpc.CommitmentProcessed)
	}
	if len(c.Listen) == 0 {
		c.Listen = DEFAULT_LISTEN
	}
	if len(c.LogLevel) == 0 {
		c.LogLevel = "info"
	}
}

func (c *Configuration) Check() error {
	if len(c.RpcUrl) == 0 {
		return errors.New("no rpc_url")
	}
	if len(c.WsUrl) == 0 {
		return errors.New("no ws_url")
	}
	if len(c.Identity) == 0 {
		return errors.New("no identity")
	}
	if c.SendRate < 0 {
		return errors.New("send_rate is negative")
	}
	switch sgorpc.CommitmentType(c.Commitment) {
	case sgorpc.CommitmentProcessed, sgorpc.CommitmentConfirmed, sgorpc.CommitmentFinalized:
	default:
		return fmt.Errorf("unknown commitment %s", c.Commitment)
	}
	if c.Group == nil && len(c.GroupFile) == 0 {
		return errors.New("no group")
	}
	if c.Group != nil && 0 < len(c.GroupFile) {
		return errors.New("set either group or group_file, not both")
	}
	return nil
}

func (c *Configuration) CommitmentType() sgorpc.CommitmentType {
	return sgorpc.CommitmentType(c.Commitment)
}

func (c *Configuration) Rpc() *util.RpcConfig {
	headers := make(http.Header)
	for k, v := range c.RpcHeaders {
		headers.Set(k, v)
	}
	return &util.RpcConfig{Rpc: c.RpcUrl, Ws: c.WsUrl, Headers: headers}
}

// BroadcastUrls is the rpc url followed by every distinct extra endpoint.
func (c *Configuration) BroadcastUrls() []string {
	seen := map[string]bool{c.RpcUrl: true}
	ans := []string{c.RpcUrl}
	for _, u := range c.TpuUrls {
		if seen[u] || len(u) == 0 {
			continue
		}
		seen[u] = true
		ans = append(ans, u)
	}
	return ans
}

func (c *Configuration) Keypair() (sgo.PrivateKey, error) {
	key, err := sgo.PrivateKeyFromSolanaKeygenFile(c.Identity)
	if err != nil {
		return nil, fmt.Errorf("identity %s: %w", c.Identity, err)
	}
	return key, nil
}

type idsFile struct {
	Groups []mango.GroupConfig `json:"groups"`
}

// GroupContext resolves the configured group and parses every identifier.
func (c *Configuration) GroupContext() (*mango.GroupContext, error) {
	if c.Group != nil {
		return c.Group.Context()
	}
	data, err := os.ReadFile(c.GroupFile)
	if err != nil {
		return nil, fmt.Errorf("read group file: %w", err)
	}
	ids := new(idsFile)
	err = json.Unmarshal(data, ids)
	if err != nil {
		return nil, fmt.Errorf("parse group file: %w", err)
	}
	for _, g := range ids.Groups {
		if g.Name == c.GroupName {
			return g.Context()
		}
	}
	return nil, fmt.Errorf("group %s not in %s", c.GroupName, c.GroupFile)
}
