package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	sgo "github.com/gagliardetto/solana-go"
	sgorpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/solpipe/solpipe-crank/config"
	"github.com/stretchr/testify/require"
)

func randomKey(t *testing.T) string {
	key, err := sgo.NewRandomPrivateKey()
	require.NoError(t, err)
	return key.PublicKey().String()
}

func inlineYaml(t *testing.T, markets string) string {
	return `
rpc_url: http://localhost:8899
ws_url: ${CRANK_TEST_WS}
tpu_urls: [http://localhost:8899, http://tpu:8899]
identity: /tmp/id.json
priority_fee: 5000
blockhash_interval: 3s
group:
  name: devnet.2
  publicKey: ` + randomKey(t) + `
  cacheKey: ` + randomKey(t) + `
  mangoProgramId: ` + randomKey(t) + `
  perpMarkets:` + markets + `
`
}

func TestParseInline(t *testing.T) {
	t.Setenv("CRANK_TEST_WS", "ws://localhost:8900")
	market := `
    - name: BTC-PERP
      publicKey: ` + randomKey(t) + `
      eventsKey: ` + randomKey(t)
	c, err := config.Parse([]byte(inlineYaml(t, market)))
	require.NoError(t, err)
	require.Equal(t, "ws://localhost:8900", c.WsUrl)
	require.Equal(t, uint64(5000), c.PriorityFee)
	require.Equal(t, 3*time.Second, c.BlockhashInterval)
	require.Equal(t, config.DEFAULT_SLOT_INTERVAL, c.SlotInterval)
	require.Equal(t, config.DEFAULT_QUEUE_CAPACITY, c.QueueCapacity)
	require.Equal(t, config.DEFAULT_RECONNECT_BASE, c.ReconnectBaseDelay)
	require.Equal(t, config.DEFAULT_RECONNECT_MAX, c.ReconnectMaxDelay)
	require.Equal(t, config.DEFAULT_SEND_TIMEOUT, c.SendTimeout)
	require.Equal(t, sgorpc.CommitmentProcessed, c.CommitmentType())
	require.Equal(t, []string{"http://localhost:8899", "http://tpu:8899"}, c.BroadcastUrls())

	group, err := c.GroupContext()
	require.NoError(t, err)
	require.Len(t, group.Markets, 1)
	require.Equal(t, "BTC-PERP", group.Markets[0].Name)
}

func TestBadIdentifiersAreFatal(t *testing.T) {
	t.Setenv("CRANK_TEST_WS", "ws://localhost:8900")
	market := `
    - name: BTC-PERP
      publicKey: not-base58
      eventsKey: ` + randomKey(t)
	c, err := config.Parse([]byte(inlineYaml(t, market)))
	require.NoError(t, err)
	_, err = c.GroupContext()
	require.Error(t, err)

	c, err = config.Parse([]byte(inlineYaml(t, " []")))
	require.NoError(t, err)
	_, err = c.GroupContext()
	require.ErrorIs(t, err, config.ErrNoMarkets)
}

func TestCheck(t *testing.T) {
	_, err := config.Parse([]byte("rpc_url: http://localhost:8899\n"))
	require.Error(t, err)
	_, err = config.Parse([]byte("unknown_field: 1\n"))
	require.Error(t, err)

	t.Setenv("CRANK_TEST_WS", "ws://localhost:8900")
	bad := inlineYaml(t, " []") + "commitment: eventually\n"
	_, err = config.Parse([]byte(bad))
	require.Error(t, err)
}

func TestGroupFile(t *testing.T) {
	dir := t.TempDir()
	groupFp := filepath.Join(dir, "ids.json")
	ids := `{"groups":[{"name":"mainnet.1","publicKey":"` + randomKey(t) +
		`","cacheKey":"` + randomKey(t) +
		`","mangoProgramId":"` + randomKey(t) +
		`","perpMarkets":[{"name":"SOL-PERP","publicKey":"` + randomKey(t) +
		`","eventsKey":"` + randomKey(t) + `"}]}]}`
	require.NoError(t, os.WriteFile(groupFp, []byte(ids), 0o600))

	configFp := filepath.Join(dir, "crank.yaml")
	body := "rpc_url: http://localhost:8899\nws_url: ws://localhost:8900\nidentity: /tmp/id.json\n" +
		"group_file: " + groupFp + "\ngroup_name: mainnet.1\n"
	require.NoError(t, os.WriteFile(configFp, []byte(body), 0o600))

	c, err := config.Load(configFp)
	require.NoError(t, err)
	group, err := c.GroupContext()
	require.NoError(t, err)
	require.Equal(t, "mainnet.1", group.Name)
	require.Equal(t, "SOL-PERP", group.Markets[0].Name)

	c.GroupName = "missing"
	_, err = c.GroupContext()
	require.Error(t, err)
}

func TestParseWithOverride(t *testing.T) {
	body := "identity: /tmp/id.json\ngroup_file: /tmp/ids.json\ngroup_name: x\n"
	_, err := config.Parse([]byte(body))
	require.Error(t, err)
	c, err := config.ParseWith([]byte(body+"rpc_headers:\n  x-api-key: secret\n"), func(c *config.Configuration) {
		c.RpcUrl = "http://rpc:8899"
		c.WsUrl = "ws://rpc:8900"
	})
	require.NoError(t, err)
	require.Equal(t, "http://rpc:8899", c.RpcUrl)
	require.Equal(t, "secret", c.Rpc().Headers.Get("X-Api-Key"))
}
