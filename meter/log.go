package meter

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Log counts in memory and prints a summary line every interval.
type Log struct {
	service  string
	counters map[Stage]*atomic.Uint64
}

func CreateLog(service string) *Log {
	l := &Log{service: service, counters: make(map[Stage]*atomic.Uint64)}
	for _, s := range AllStages {
		l.counters[s] = atomic.NewUint64(0)
	}
	return l
}

func (l *Log) Incr(stage Stage) {
	c, present := l.counters[stage]
	if present {
		c.Inc()
	}
}

func (l *Log) Observe(Stage, time.Duration) {}

func (l *Log) Value(stage Stage) uint64 {
	c, present := l.counters[stage]
	if !present {
		return 0
	}
	return c.Load()
}

// Snapshot returns a copy of all counters.
func (l *Log) Snapshot() map[Stage]uint64 {
	ans := make(map[Stage]uint64, len(l.counters))
	for k, v := range l.counters {
		ans[k] = v.Load()
	}
	return ans
}

// Run prints counters until ctx is done.
func (l *Log) Run(ctx context.Context, interval time.Duration) error {
	doneC := ctx.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
out:
	for {
		select {
		case <-doneC:
			break out
		case <-ticker.C:
			log.WithField("service", l.service).Info(l.line())
		}
	}
	return nil
}

func (l *Log) line() string {
	snap := l.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if 0 < i {
			b.WriteString(" ")
		}
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(strconv.FormatUint(snap[Stage(k)], 10))
	}
	return b.String()
}
