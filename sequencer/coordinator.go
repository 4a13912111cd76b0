package sequencer

import (
	"sync"
	"sync/atomic"
	"time"

	"go-murmel/debug"
	"go-murmel/errs"
	"go-murmel/event"
	"go-murmel/generator"
)

// Coordinator messages. Send them with Coordinator.Send; they are handled
// one at a time in arrival order.
type (
	LoadMoreEvents struct{ Until time.Duration }

	// ReloadFromNextMarker replaces the generator with a fresh instance of
	// the same entrypoint and cuts the buffer at its first Marker.
	ReloadFromNextMarker struct{}

	// Exit stops the receiving actor. Understood by both the Coordinator
	// and the Player.
	Exit struct{}
)

// MarkerPolicy decides what a reload does when no Marker is buffered.
type MarkerPolicy string

const (
	// MissingMarkerClear drops the whole buffer; playback may go silent
	// until the new generator's events arrive.
	MissingMarkerClear MarkerPolicy = "clear"
	// MissingMarkerKeep leaves the stale continuation in place and appends
	// the new generator's events after it.
	MissingMarkerKeep MarkerPolicy = "keep"
)

const (
	DefaultLowWater  = 100
	DefaultLookAhead = time.Second
)

type CoordinatorOptions struct {
	Entrypoint    string
	Open          generator.Opener // defaults to generator.Open
	Limits        generator.Limits
	LowWater      int           // refill when fewer events remain
	LookAhead     time.Duration // budget of each refill
	MissingMarker MarkerPolicy
}

// Coordinator owns the event buffer and the current generator actor.
type Coordinator struct {
	opts   CoordinatorOptions
	buffer *Buffer
	inbox  *mailbox[any]

	// only touched on the coordinator goroutine
	current *generator.Actor

	retiring      sync.WaitGroup
	refillPending atomic.Bool
	generatorID   atomic.Value // string
	reloads       atomic.Int64

	started atomic.Bool
	done    chan struct{}
	err     error
}

// CoordinatorStatus is a snapshot for display
type CoordinatorStatus struct {
	Buffered    int
	GeneratorID string
	Reloads     int64
}

// NewCoordinator creates the first generator and loads an initial batch.
// A generator that fails to start is logged and the coordinator runs
// without one until a reload succeeds.
func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	if opts.Open == nil {
		opts.Open = generator.Open
	}
	if opts.LowWater <= 0 {
		opts.LowWater = DefaultLowWater
	}
	if opts.LookAhead <= 0 {
		opts.LookAhead = DefaultLookAhead
	}
	if opts.MissingMarker == "" {
		opts.MissingMarker = MissingMarkerClear
	}

	c := &Coordinator{
		opts:   opts,
		buffer: NewBuffer(),
		inbox:  newMailbox[any](),
		done:   make(chan struct{}),
	}
	c.generatorID.Store("")

	a, err := generator.NewActor(opts.Entrypoint, opts.Open, opts.Limits)
	if err != nil {
		debug.Warn("coordinator", "could not initialize generator: %v", err)
	} else {
		c.setCurrent(a)
	}

	c.loadMore(opts.LookAhead)
	return c
}

// Start runs the message loop on its own goroutine.
func (c *Coordinator) Start() {
	if c.started.CompareAndSwap(false, true) {
		go c.run()
	}
}

// Send queues a message; it never blocks.
func (c *Coordinator) Send(msg any) { c.inbox.Put(msg) }

func (c *Coordinator) LoadMoreEvents(until time.Duration) { c.Send(LoadMoreEvents{Until: until}) }
func (c *Coordinator) ReloadFromNextMarker()              { c.Send(ReloadFromNextMarker{}) }
func (c *Coordinator) Exit()                              { c.Send(Exit{}) }

// Wait blocks until the loop has exited and every generator thread has
// been joined.
func (c *Coordinator) Wait() error {
	<-c.done
	return c.err
}

// Buffer exposes the event buffer (read-mostly; tests and display).
func (c *Coordinator) Buffer() *Buffer { return c.buffer }

func (c *Coordinator) Status() CoordinatorStatus {
	return CoordinatorStatus{
		Buffered:    c.buffer.Len(),
		GeneratorID: c.generatorID.Load().(string),
		Reloads:     c.reloads.Load(),
	}
}

// Next pops the front event for the player. When the remaining count
// drops under the low-water mark a single refill is requested; no other
// is queued until that one has been handled.
func (c *Coordinator) Next() (event.Event, bool) {
	ev, remaining, ok := c.buffer.Pop()
	if remaining < c.opts.LowWater && c.refillPending.CompareAndSwap(false, true) {
		c.LoadMoreEvents(c.opts.LookAhead)
	}
	return ev, ok
}

// Appended receives when new events have been buffered.
func (c *Coordinator) Appended() <-chan struct{} { return c.buffer.Appended() }

func (c *Coordinator) run() {
	defer close(c.done)
	debug.Log("coordinator", "started")

	for range c.inbox.Ready() {
		for {
			msg, ok := c.inbox.Take()
			if !ok {
				break
			}
			debug.Log("coordinator", "received %T", msg)

			switch m := msg.(type) {
			case LoadMoreEvents:
				c.loadMore(m.Until)
				c.refillPending.Store(false)
			case ReloadFromNextMarker:
				c.reload()
			case Exit:
				c.shutdown()
				debug.Log("coordinator", "exited")
				return
			default:
				debug.Warn("coordinator", "ignoring unknown message %T", msg)
			}
		}
	}
}

func (c *Coordinator) loadMore(until time.Duration) {
	if c.current == nil {
		debug.LogEvery(50, "coordinator", "no generator initialized, cannot load events")
		return
	}

	evs, err := c.current.GetEvents(until)
	if err != nil {
		if errs.Is(err, errs.Link) {
			debug.Error("coordinator", "generator %s is gone: %v", c.current.ShortID(), err)
			c.retire(c.current)
			c.setCurrent(nil)
			return
		}
		debug.Warn("coordinator", "error while retrieving more events: %v", err)
		return
	}

	c.buffer.Append(evs...)
}

func (c *Coordinator) reload() {
	next, err := generator.NewActor(c.opts.Entrypoint, c.opts.Open, c.opts.Limits)
	if err != nil {
		debug.Warn("coordinator", "could not initialize new generator, keeping the current one: %v", err)
		return
	}

	if dropped, found := c.buffer.TruncateAtMarker(); found {
		debug.Info("coordinator", "reload: dropped %d events from the next marker", dropped)
	} else if c.opts.MissingMarker == MissingMarkerKeep {
		debug.Warn("coordinator", "reload: no marker buffered, keeping %d events", c.buffer.Len())
	} else {
		debug.Warn("coordinator", "reload: no marker buffered, cleared %d events", c.buffer.Clear())
	}

	old := c.current
	c.setCurrent(next)
	c.reloads.Add(1)

	if old != nil {
		old.Exit()
		c.retire(old)
	}

	// get new events into the system right away
	c.loadMore(c.opts.LookAhead)
}

// retire joins a generator on a throwaway goroutine so slow script teardown
// never holds up the coordinator.
func (c *Coordinator) retire(a *generator.Actor) {
	c.retiring.Add(1)
	go func() {
		defer c.retiring.Done()
		if err := a.Wait(); err != nil {
			debug.Warn("coordinator", "generator %s exited with error: %v", a.ShortID(), err)
			return
		}
		debug.Log("coordinator", "generator %s retired", a.ShortID())
	}()
}

func (c *Coordinator) shutdown() {
	if c.current != nil {
		c.current.Exit()
		c.err = c.current.Wait()
		c.setCurrent(nil)
	}
	c.retiring.Wait()
}

func (c *Coordinator) setCurrent(a *generator.Actor) {
	c.current = a
	if a == nil {
		c.generatorID.Store("")
		return
	}
	c.generatorID.Store(a.ShortID())
	debug.Info("coordinator", "generator %s is current", a.ShortID())
}
