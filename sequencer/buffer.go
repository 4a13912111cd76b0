package sequencer

import (
	"slices"
	"sync"

	"go-murmel/event"
)

// Buffer is the FIFO of generated events shared by the coordinator
// (appending and truncating) and the player (popping). The lock is only
// held for the duration of each operation.
type Buffer struct {
	mu       sync.Mutex
	events   []event.Event
	appended chan struct{}
}

func NewBuffer() *Buffer {
	return &Buffer{appended: make(chan struct{}, 1)}
}

// Append adds events at the back, in order.
func (b *Buffer) Append(evs ...event.Event) {
	if len(evs) == 0 {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evs...)
	b.mu.Unlock()

	select {
	case b.appended <- struct{}{}:
	default:
	}
}

// Appended receives after events have been added.
func (b *Buffer) Appended() <-chan struct{} { return b.appended }

// Pop removes the front event and reports how many remain.
func (b *Buffer) Pop() (ev event.Event, remaining int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return ev, 0, false
	}
	ev = b.events[0]
	b.events[0] = event.Event{}
	b.events = b.events[1:]
	if len(b.events) == 0 {
		b.events = nil
	}
	return ev, len(b.events), true
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// TruncateAtMarker drops the first Marker and everything after it. found is
// false, and the buffer untouched, when no Marker is buffered.
func (b *Buffer) TruncateAtMarker() (dropped int, found bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := slices.IndexFunc(b.events, event.Event.IsMarker)
	if i < 0 {
		return 0, false
	}
	dropped = len(b.events) - i
	clear(b.events[i:])
	b.events = b.events[:i]
	return dropped, true
}

// Clear empties the buffer and reports how many events were dropped.
func (b *Buffer) Clear() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.events)
	b.events = nil
	return n
}

// Snapshot copies the buffered events.
func (b *Buffer) Snapshot() []event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.events)
}
