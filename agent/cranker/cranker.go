package cranker

import (
	"context"
	"errors"
	"fmt"
	"time"

	sgo "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/smallnest/chanx"
	"github.com/solpipe/solpipe-crank/ds/queue"
	dssub "github.com/solpipe/solpipe-crank/ds/sub"
	"github.com/solpipe/solpipe-crank/mango"
	"github.com/solpipe/solpipe-crank/meter"
	"github.com/solpipe/solpipe-crank/proxy/tpu"
	rtr "github.com/solpipe/solpipe-crank/state/router"
	"github.com/solpipe/solpipe-crank/state/shared"
	"github.com/solpipe/solpipe-crank/state/sub"
	"golang.org/x/sync/errgroup"
)

const DEFAULT_QUEUE_CAPACITY = 64

type Configuration struct {
	Group    *mango.GroupContext
	Dispatch DispatcherConfig
	// <= 0 uses DEFAULT_QUEUE_CAPACITY
	QueueCapacity int
	// when set, the latest event queue write is routed again every interval
	HeartbeatInterval time.Duration
}

// Task is a long running loop supervised next to the crank pipeline.  A task
// returning before shutdown takes the whole agent down.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Dependencies struct {
	// created when nil
	State     *shared.State
	Transport tpu.Transport
	Metrics   meter.Metrics
	// optional, writes can also be injected through Router()
	Sources []sub.Source
	Tasks   []Task
}

type Cranker struct {
	ctx        context.Context
	internalC  chan<- func(*internal)
	state      *shared.State
	router     rtr.Router
	queue      *BatchQueue
	recordReqC chan<- dssub.ResponseChannel[Record]
}

// Create wires queue, sink, router and dispatcher together and starts every
// task.
func Create(
	ctx context.Context,
	config Configuration,
	deps Dependencies,
) (Cranker, error) {
	if config.Group == nil {
		return Cranker{}, errors.New("no group")
	}
	if deps.Transport == nil {
		return Cranker{}, tpu.ErrNoEndpoints
	}
	if deps.Metrics == nil {
		deps.Metrics = meter.Discard()
	}
	state := deps.State
	if state == nil {
		state = shared.Create()
	}
	capacity := config.QueueCapacity
	if capacity <= 0 {
		capacity = DEFAULT_QUEUE_CAPACITY
	}

	ctx2, cancel := context.WithCancel(ctx)
	q := queue.Create[sgo.PublicKey, Batch](capacity)
	sink, err := CreatePerpCrankSink(config.Group, q, deps.Metrics)
	if err != nil {
		cancel()
		return Cranker{}, err
	}
	route := sink.Route()
	route.TimeoutInterval = config.HeartbeatInterval
	router, err := rtr.Init(ctx2, []rtr.Route{route}, state, deps.Metrics)
	if err != nil {
		cancel()
		return Cranker{}, err
	}
	// closed by the dispatcher task, so the record of a last send still
	// reaches subscribers after cancel
	recordC := chanx.NewUnboundedChan[Record](context.Background(), 64)
	dispatcher, err := CreateDispatcher(
		config.Dispatch,
		q,
		state,
		deps.Transport,
		deps.Metrics,
		recordC.In,
	)
	if err != nil {
		cancel()
		return Cranker{}, err
	}
	home := dssub.CreateSubHome[Record]()
	dispatcherDoneC := make(chan struct{})

	tasks := []Task{
		{Name: "router", Run: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return nil
			case err := <-router.CloseSignal():
				return err
			}
		}},
		{Name: "dispatcher", Run: func(ctx context.Context) error {
			defer close(dispatcherDoneC)
			defer close(recordC.In)
			return dispatcher.Run(ctx)
		}},
		{Name: "record", Run: func(ctx context.Context) error {
			return loopRecord(recordC.Out, home)
		}},
	}
	for i, source := range deps.Sources {
		source := source
		tasks = append(tasks, Task{Name: fmt.Sprintf("source/%d", i), Run: func(ctx context.Context) error {
			return source.Run(ctx, router.WriteC, router.SlotC)
		}})
	}
	tasks = append(tasks, deps.Tasks...)

	internalC := make(chan func(*internal), 10)
	go loopInternal(ctx2, cancel, internalC, state, q, dispatcherDoneC, tasks)

	return Cranker{
		ctx:        ctx2,
		internalC:  internalC,
		state:      state,
		router:     router,
		queue:      q,
		recordReqC: home.ReqC,
	}, nil
}

// Close sets the shutdown flag.  A send already in progress finishes and its
// record is delivered before the returned channel fires.
func (e1 Cranker) Close() <-chan error {
	signalC := e1.CloseSignal()
	e1.state.Shutdown()
	return signalC
}

// CloseSignal reports the error of the first task that exited unexpectedly,
// or nil after a clean shutdown.
func (e1 Cranker) CloseSignal() <-chan error {
	signalC := make(chan error, 1)
	select {
	case <-e1.ctx.Done():
		signalC <- errors.New("canceled")
	case e1.internalC <- func(in *internal) {
		in.closeSignalCList = append(in.closeSignalCList, signalC)
	}:
	}
	return signalC
}

func (e1 Cranker) Shared() *shared.State {
	return e1.state
}

// Router exposes the ingestion endpoints.
func (e1 Cranker) Router() rtr.Router {
	return e1.router
}

func (e1 Cranker) QueueLength() int {
	return e1.queue.Len()
}

func (e1 Cranker) OnRecord(ctx context.Context, bufferSize int) (dssub.Subscription[Record], error) {
	return dssub.SubscriptionRequest(ctx, e1.recordReqC, bufferSize, nil)
}

type internal struct {
	ctx              context.Context
	closeSignalCList []chan<- error
	state            *shared.State
}

type taskExit struct {
	name string
	id   uuid.UUID
	err  error
}

func loopInternal(
	ctx context.Context,
	cancel context.CancelFunc,
	internalC <-chan func(*internal),
	state *shared.State,
	q *BatchQueue,
	dispatcherDoneC <-chan struct{},
	tasks []Task,
) {
	defer cancel()
	var err error
	doneC := ctx.Done()
	shutdownC := state.Done()

	in := new(internal)
	in.ctx = ctx
	in.closeSignalCList = make([]chan<- error, 0)
	in.state = state

	exitC := make(chan taskExit, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		t := t
		id := uuid.New()
		log.Debugf("starting task=%s id=%s", t.Name, id)
		g.Go(func() error {
			taskErr := t.Run(gctx)
			if taskErr == nil && gctx.Err() == nil && !state.IsShutdown() {
				taskErr = errors.New("exited early")
			}
			if gctx.Err() != nil || state.IsShutdown() {
				return nil
			}
			exitC <- taskExit{name: t.Name, id: id, err: taskErr}
			return taskErr
		})
	}
	groupDoneC := make(chan struct{})
	go func() {
		g.Wait()
		close(groupDoneC)
	}()

out:
	for {
		select {
		case <-doneC:
			break out
		case <-shutdownC:
			break out
		case x := <-exitC:
			log.Errorf("task=%s id=%s exited: %s", x.name, x.id, x.err)
			err = x.err
			break out
		case req := <-internalC:
			req(in)
		}
	}

	// the dispatcher finishes its current send before anything is cancelled
	state.Shutdown()
	q.Close()
	<-dispatcherDoneC
	cancel()
	<-groupDoneC
drain:
	for {
		select {
		case req := <-internalC:
			req(in)
		default:
			break drain
		}
	}
	in.finish(err)
}

func (in *internal) finish(err error) {
	for i := 0; i < len(in.closeSignalCList); i++ {
		in.closeSignalCList[i] <- err
	}
}
