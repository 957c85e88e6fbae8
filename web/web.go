package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/solpipe/solpipe-crank/agent/cranker"
	dssub "github.com/solpipe/solpipe-crank/ds/sub"
	"github.com/solpipe/solpipe-crank/state/shared"
	"google.golang.org/grpc/health"
)

// Agent is the part of the cranker the endpoints read from.
type Agent interface {
	OnRecord(ctx context.Context, bufferSize int) (dssub.Subscription[cranker.Record], error)
	Shared() *shared.State
	CloseSignal() <-chan error
}

type Configuration struct {
	ListenUrl string
	// grpc health service, disabled when blank
	HealthListenUrl string
	Registry        *prometheus.Registry
	SlotInterval    time.Duration
}

type Server struct {
	ctx          context.Context
	healthC      chan func(*healthInternal)
	agent        Agent
	metrics      http.Handler
	grpcHealth   *health.Server
	slotInterval time.Duration
}

// Create builds the handler and starts watching the agent.  Nothing listens
// until Run or an external http server is pointed at it.
func Create(
	ctx context.Context,
	config *Configuration,
	agent Agent,
) (Server, error) {
	if agent == nil {
		return Server{}, errors.New("no agent")
	}
	s := Server{
		ctx:          ctx,
		healthC:      make(chan func(*healthInternal), 10),
		agent:        agent,
		grpcHealth:   health.NewServer(),
		slotInterval: config.SlotInterval,
	}
	if s.slotInterval <= 0 {
		s.slotInterval = time.Second
	}
	if config.Registry != nil {
		s.metrics = promhttp.HandlerFor(config.Registry, promhttp.HandlerOpts{})
	}
	s.set_serving(false)
	go loopHealth(ctx, s.healthC)
	go s.loopWatch()
	return s, nil
}

// Run serves http, and grpc health when configured, until ctx is done.
func Run(
	ctx context.Context,
	config *Configuration,
	agent Agent,
) (signalC <-chan error) {
	errorC := make(chan error, 2)
	signalC = errorC
	s, err := Create(ctx, config, agent)
	if err != nil {
		errorC <- err
		return
	}

	server := &http.Server{
		Addr:        config.ListenUrl,
		Handler:     s,
		ReadTimeout: 5 * time.Second,
	}
	go loopClose(ctx, server)
	go loopServe(server, errorC)

	if 0 < len(config.HealthListenUrl) {
		l, err := net.Listen("tcp", config.HealthListenUrl)
		if err != nil {
			errorC <- err
			return
		}
		go func() {
			errorC <- <-s.ServeHealth(ctx, l)
		}()
	}

	s.Started()
	log.Infof("serving http on %s", config.ListenUrl)
	return
}

func loopServe(server *http.Server, errorC chan<- error) {
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	errorC <- err
}

func loopClose(ctx context.Context, server *http.Server) {
	<-ctx.Done()
	server.Shutdown(context.Background())
}

// loopWatch marks the agent unhealthy once any of its tasks has exited.
func (s Server) loopWatch() {
	select {
	case <-s.ctx.Done():
	case err := <-s.agent.CloseSignal():
		if err != nil {
			log.Debugf("agent exited: %s", err)
		}
		s.health(false)
		s.set_serving(false)
	}
}

func (s Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/health/startup":
		s.startup(w)
	case "/health/liveness":
		s.liveness(w)
	case "/metrics":
		if s.metrics == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		s.metrics.ServeHTTP(w, r)
	case "/records":
		if r.Header.Get("Upgrade") == "websocket" {
			s.ws_server_http(w, r)
		} else {
			w.WriteHeader(http.StatusBadRequest)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}
