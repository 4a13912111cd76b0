// Package pattern is a static event source read from YAML:
//
//	bpm: 100
//	loop: true
//	events:
//	  - {type: Marker}
//	  - {type: NoteOn, note: 60}
//	  - {type: Wait, ticks: 27720}
//	  - {type: NoteOff, note: 60}
//
// A looping pattern repeats its events forever.
package pattern

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"go-murmel/event"
)

type file struct {
	Bpm    uint16           `yaml:"bpm"`
	Loop   bool             `yaml:"loop"`
	Events []map[string]any `yaml:"events"`
}

type Source struct {
	prelude []event.Event
	events  []event.Event
	loop    bool
	pos     int
}

// Open reads a pattern file.
func Open(path string) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern: %w", err)
	}
	return Parse(data)
}

// Parse decodes a pattern document.
func Parse(data []byte) (*Source, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse pattern: %w", err)
	}

	s := &Source{loop: f.Loop}
	if f.Bpm > 0 {
		s.prelude = append(s.prelude, event.ChangeBpm(f.Bpm))
	}

	var waits uint64
	for i, raw := range f.Events {
		ev, err := event.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if ev.IsWait() {
			waits += uint64(ev.Ticks)
		}
		s.events = append(s.events, ev)
	}

	if s.loop && waits == 0 {
		return nil, fmt.Errorf("looping pattern needs at least one Wait with ticks > 0")
	}
	return s, nil
}

func (s *Source) Next() (event.Event, bool, error) {
	if len(s.prelude) > 0 {
		ev := s.prelude[0]
		s.prelude = s.prelude[1:]
		return ev, false, nil
	}
	if s.pos >= len(s.events) {
		if !s.loop || len(s.events) == 0 {
			return event.Event{}, true, nil
		}
		s.pos = 0
	}
	ev := s.events[s.pos]
	s.pos++
	return ev, false, nil
}

func (s *Source) Close() error { return nil }
