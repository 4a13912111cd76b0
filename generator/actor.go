package generator

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"go-murmel/debug"
	"go-murmel/errs"
	"go-murmel/event"
)

var ErrActorGone = errors.New("generator actor is gone")

type request struct {
	until time.Duration
	reply chan result
}

type result struct {
	events []event.Event
	err    error
}

// Actor owns one Generator on a dedicated OS thread. All access goes through
// GetEvents, which hands the request over an unbuffered channel and blocks
// for the reply, so at most one request is in flight.
type Actor struct {
	id       string
	requests chan request
	quit     chan struct{}
	done     chan struct{}
	quitOnce sync.Once
	err      error // written before done is closed
}

// NewActor starts the actor thread and waits until the source has been
// opened there, which takes at most limits.Deadline for script sources. Construction errors are returned here rather than on the
// first request.
func NewActor(entrypoint string, open Opener, limits Limits) (*Actor, error) {
	a := &Actor{
		id:       uuid.NewString(),
		requests: make(chan request),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	initialized := make(chan error)
	go a.run(entrypoint, open, limits, initialized)

	if err := <-initialized; err != nil {
		<-a.done
		return nil, err
	}
	return a, nil
}

// ID is a unique identifier for this instance, used in logs.
func (a *Actor) ID() string { return a.id }

// ShortID is the first block of ID.
func (a *Actor) ShortID() string { return a.id[:8] }

func (a *Actor) run(entrypoint string, open Opener, limits Limits, initialized chan<- error) {
	// The thread is never unlocked, so it exits with the goroutine and is
	// not reused by the scheduler.
	runtime.LockOSThread()
	defer close(a.done)

	reported := false
	defer func() {
		if r := recover(); r != nil {
			a.err = errs.New(errs.Link, fmt.Sprintf("generator %s panicked: %v", a.ShortID(), r))
			debug.Error("generator", "%v", a.err)
			if !reported {
				initialized <- a.err
			}
		}
	}()

	debug.Log("generator", "%s: thread started, opening %s", a.ShortID(), entrypoint)
	src, err := open(entrypoint, limits.Deadline)
	if err != nil {
		reported = true
		initialized <- err
		return
	}
	gen := New(src, limits)
	defer func() {
		if err := gen.Close(); err != nil {
			debug.Warn("generator", "%s: close source: %v", a.ShortID(), err)
		}
		debug.Log("generator", "%s: thread exited", a.ShortID())
	}()

	reported = true
	initialized <- nil

	for {
		select {
		case <-a.quit:
			return
		case req := <-a.requests:
			evs, err := gen.Request(req.until)
			req.reply <- result{events: evs, err: err}
		}
	}
}

// GetEvents asks the generator for events covering until and blocks for
// the answer.
func (a *Actor) GetEvents(until time.Duration) ([]event.Event, error) {
	reply := make(chan result, 1)

	select {
	case a.requests <- request{until: until, reply: reply}:
	case <-a.quit:
		return nil, errs.Wrap(ErrActorGone, errs.Link, "send request")
	case <-a.done:
		return nil, errs.Wrap(ErrActorGone, errs.Link, "send request")
	}

	select {
	case res := <-reply:
		return res.events, res.err
	case <-a.done:
		select {
		case res := <-reply:
			return res.events, res.err
		default:
		}
		return nil, errs.Wrap(ErrActorGone, errs.Link, "await reply")
	}
}

// Exit asks the thread to stop once the request it is serving, if any, is
// answered. It does not wait; use Wait for that. Safe to call repeatedly.
func (a *Actor) Exit() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// Done is closed when the actor thread has exited.
func (a *Actor) Done() <-chan struct{} { return a.done }

// Wait blocks until the thread has exited and reports a panic, if one
// killed it.
func (a *Actor) Wait() error {
	<-a.done
	return a.err
}
