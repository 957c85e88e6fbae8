package web

import (
	"context"
	"errors"
	"net"
	"net/http"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

const HEALTH_SERVICE = "crank"

type healthInternal struct {
	hasStarted bool
	isHealthy  bool
}

func loopHealth(
	ctx context.Context,
	healthC <-chan func(*healthInternal),
) {
	doneC := ctx.Done()
	in := new(healthInternal)

out:
	for {
		select {
		case <-doneC:
			break out
		case req := <-healthC:
			req(in)
		}
	}
}

func (s Server) health(status bool) {
	doneC := s.ctx.Done()
	select {
	case <-doneC:
	case s.healthC <- func(hi *healthInternal) {
		hi.isHealthy = status
	}:
	}
}

// Started marks the agent as up.  It has no effect once the agent has exited.
func (s Server) Started() {
	doneC := s.ctx.Done()
	select {
	case <-doneC:
	case s.healthC <- func(hi *healthInternal) {
		if hi.hasStarted {
			return
		}
		hi.hasStarted = true
		hi.isHealthy = true
	}:
	}
	// the watcher may already have seen the agent exit
	select {
	case <-s.agent.Shared().Done():
		s.health(false)
	default:
		s.set_serving(true)
	}
}

func (s Server) set_serving(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.grpcHealth.SetServingStatus("", status)
	s.grpcHealth.SetServingStatus(HEALTH_SERVICE, status)
}

func (s Server) ask(check func(*healthInternal) bool) bool {
	doneC := s.ctx.Done()
	ansC := make(chan bool, 1)
	select {
	case <-doneC:
		return false
	case s.healthC <- func(hi *healthInternal) {
		ansC <- check(hi)
	}:
	}
	select {
	case <-doneC:
		return false
	case ok := <-ansC:
		return ok
	}
}

func writeStatus(w http.ResponseWriter, ok bool) {
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (s Server) startup(w http.ResponseWriter) {
	writeStatus(w, s.ask(func(hi *healthInternal) bool { return hi.hasStarted }))
}

func (s Server) liveness(w http.ResponseWriter) {
	writeStatus(w, s.ask(func(hi *healthInternal) bool { return hi.isHealthy }))
}

// ServeHealth runs the grpc health service on l until ctx is done.
func (s Server) ServeHealth(ctx context.Context, l net.Listener) <-chan error {
	signalC := make(chan error, 1)
	if l == nil {
		signalC <- errors.New("no listener")
		return signalC
	}
	gs := grpc.NewServer()
	healthpb.RegisterHealthServer(gs, s.grpcHealth)
	reflection.Register(gs)
	go loopGrpcShutdown(ctx, gs)
	go func() {
		log.Debugf("grpc health on %s", l.Addr())
		signalC <- gs.Serve(l)
	}()
	return signalC
}

func loopGrpcShutdown(ctx context.Context, gs *grpc.Server) {
	<-ctx.Done()
	gs.GracefulStop()
}
