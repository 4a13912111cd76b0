// Package script runs a JavaScript sequence on goja. The script's completion
// value, or its global `sequence`, must be an iterator (or a function
// returning one, such as a generator function) yielding event objects:
//
//	const note = function* (n, ticks) {
//	    yield { type: 'NoteOn', note: n }
//	    yield { type: 'Wait', ticks }
//	    yield { type: 'NoteOff', note: n }
//	}
//	const sequence = function* () {
//	    while (true) {
//	        yield { type: 'Marker' }
//	        yield* note(60, TICKS_PER_BEAT / 2)
//	    }
//	}
//
// A Source must only be used from one goroutine, except for Interrupt.
package script

import (
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"

	"go-murmel/event"
)

type Source struct {
	name string
	vm   *goja.Runtime
	iter goja.Value
	next goja.Callable
}

// Open reads and evaluates the script at path.
func Open(path string) (*Source, error) {
	return OpenWithin(path, 0)
}

// OpenWithin is Open with a limit on evaluation time, see LoadWithin.
func OpenWithin(path string, deadline time.Duration) (*Source, error) {
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return LoadWithin(path, string(code), deadline)
}

// Load evaluates code; name is used in stack traces.
func Load(name, code string) (*Source, error) {
	return LoadWithin(name, code, 0)
}

// LoadWithin evaluates code and creates the iterator, interrupting the
// runtime once deadline has passed (0 = no limit).
func LoadWithin(name, code string, deadline time.Duration) (*Source, error) {
	vm := goja.New()
	vm.Set("TICKS_PER_BEAT", event.TicksPerBeat)
	vm.Set("BPM_NOMINAL", event.NominalBPM)

	if deadline > 0 {
		fired := make(chan struct{})
		timer := time.AfterFunc(deadline, func() {
			vm.Interrupt(fmt.Sprintf("load exceeded %v", deadline))
			close(fired)
		})
		defer func() {
			if !timer.Stop() {
				<-fired
			}
			vm.ClearInterrupt()
		}()
	}

	v, err := vm.RunScript(name, code)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", name, err)
	}
	if missing(v) {
		v = vm.Get("sequence")
	}
	if missing(v) {
		return nil, fmt.Errorf("%s: script must evaluate to an iterator or define `sequence`", name)
	}

	if fn, ok := goja.AssertFunction(v); ok {
		v, err = fn(goja.Undefined())
		if err != nil {
			return nil, fmt.Errorf("%s: create iterator: %w", name, err)
		}
		if missing(v) {
			return nil, fmt.Errorf("%s: sequence function returned nothing", name)
		}
	}

	next, ok := goja.AssertFunction(v.ToObject(vm).Get("next"))
	if !ok {
		return nil, fmt.Errorf("%s: sequence has no next() method", name)
	}

	return &Source{name: name, vm: vm, iter: v, next: next}, nil
}

// Next advances the iterator by one step.
func (s *Source) Next() (event.Event, bool, error) {
	res, err := s.next(s.iter)
	if err != nil {
		return event.Event{}, false, err
	}
	if missing(res) {
		return event.Event{}, false, fmt.Errorf("%s: next() returned %v", s.name, res)
	}

	obj := res.ToObject(s.vm)
	if done := obj.Get("done"); done != nil && done.ToBoolean() {
		return event.Event{}, true, nil
	}

	value := obj.Get("value")
	if value == nil {
		return event.Event{}, false, fmt.Errorf("%s: next() result has no value", s.name)
	}
	ev, err := event.Decode(value.Export())
	if err != nil {
		return event.Event{}, false, err
	}
	return ev, false, nil
}

// Interrupt aborts a running Next; it is safe to call from any goroutine.
func (s *Source) Interrupt(reason string) {
	s.vm.Interrupt(reason)
}

func (s *Source) ClearInterrupt() {
	s.vm.ClearInterrupt()
}

func (s *Source) Close() error {
	s.vm.Interrupt("closed")
	return nil
}

func missing(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}
