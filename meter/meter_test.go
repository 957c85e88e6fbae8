package meter_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/solpipe/solpipe-crank/meter"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCounts(t *testing.T) {
	p, err := meter.CreatePrometheus("test")
	require.NoError(t, err)
	p.Incr(meter.RouteMatched)
	p.Incr(meter.RouteMatched)
	p.Observe(meter.TxSendLatency, 3*time.Millisecond)
	require.Equal(t, 2.0, testutil.ToFloat64(p.Counter(meter.RouteMatched)))
	require.Equal(t, 0.0, testutil.ToFloat64(p.Counter(meter.TxSent)))
}

func TestTee(t *testing.T) {
	a := meter.CreateLog("a")
	b := meter.CreateLog("b")
	m := meter.Tee(a, b, meter.Discard())
	m.Incr(meter.BatchEmitted)
	m.Observe(meter.TxSendLatency, time.Second)
	require.Equal(t, uint64(1), a.Value(meter.BatchEmitted))
	require.Equal(t, uint64(1), b.Value(meter.BatchEmitted))
	require.Equal(t, uint64(0), a.Value(meter.TxSent))
}
