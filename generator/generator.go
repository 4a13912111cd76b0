// Package generator pulls events out of a script-driven source in batches
// sized by a time budget. A Generator is not safe for concurrent use; wrap it
// in an Actor to give it a dedicated thread.
package generator

import (
	"errors"
	"fmt"
	"time"

	"go-murmel/debug"
	"go-murmel/errs"
	"go-murmel/event"
)

// Source is the scripting capability: a stateful producer of events.
// Next returns done=true once the source is exhausted.
type Source interface {
	Next() (ev event.Event, done bool, err error)
	Close() error
}

// Interrupter is implemented by sources whose Next can be aborted from
// another goroutine.
type Interrupter interface {
	Interrupt(reason string)
	ClearInterrupt()
}

var ErrNoSource = errors.New("generator has no source")

// Limits bound a single Request
type Limits struct {
	MaxEvents int           // stop after this many events (0 = unlimited)
	Deadline  time.Duration // interrupt the source after this much wall time (0 = none)
}

var DefaultLimits = Limits{
	MaxEvents: 10000,
	Deadline:  2 * time.Second,
}

type Generator struct {
	source Source
	limits Limits
	done   bool
}

func New(source Source, limits Limits) *Generator {
	return &Generator{source: source, limits: limits}
}

// Request pulls events until their cumulative Wait duration, measured at
// the nominal tempo, reaches until. Fewer events are returned if the source
// ends or the event cap is hit. On error the partial batch is discarded.
func (g *Generator) Request(until time.Duration) ([]event.Event, error) {
	if g.source == nil {
		return nil, errs.Wrap(ErrNoSource, errs.Production, "request events")
	}
	if g.done {
		return nil, nil
	}

	if it, ok := g.source.(Interrupter); ok && g.limits.Deadline > 0 {
		fired := make(chan struct{})
		timer := time.AfterFunc(g.limits.Deadline, func() {
			it.Interrupt(fmt.Sprintf("request exceeded %v", g.limits.Deadline))
			close(fired)
		})
		defer func() {
			if !timer.Stop() {
				<-fired
			}
			it.ClearInterrupt()
		}()
	}

	var (
		events  []event.Event
		elapsed time.Duration
	)
	for elapsed < until {
		if g.limits.MaxEvents > 0 && len(events) >= g.limits.MaxEvents {
			debug.Warn("generator", "batch capped at %d events after %v of %v", len(events), elapsed, until)
			break
		}

		ev, done, err := g.source.Next()
		if err != nil {
			return nil, errs.Wrap(err, errs.Production, "source next")
		}
		if done {
			debug.Log("generator", "source finished")
			g.done = true
			break
		}

		if ev.IsWait() {
			elapsed += event.NominalDuration(ev.Ticks)
		}
		events = append(events, ev)
	}

	debug.Log("generator", "produced %d events covering %v (asked %v)", len(events), elapsed, until)
	return events, nil
}

// Close releases the source.
func (g *Generator) Close() error {
	if g.source == nil {
		return nil
	}
	return g.source.Close()
}
