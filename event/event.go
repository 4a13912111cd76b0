package event

import (
	"fmt"
	"time"
)

// TicksPerBeat is the number of ticks in one beat at any tempo. It is
// divisible by every integer from 1 to 12, so common subdivisions
// (triplets, quintuplets, septuplets) land on whole ticks.
const TicksPerBeat = 55440

// NominalBPM is the tempo used when a duration has to be derived from ticks
// without knowing the live playback tempo.
const NominalBPM = 120

// Type identifies which variant of the Event union a value holds
type Type uint8

const (
	TypeNoteOn Type = iota + 1
	TypeNoteOff
	TypeAllNotesOff
	TypeChangeBpm
	TypeWait
	TypePrint
	TypeMarker
)

var typeNames = map[Type]string{
	TypeNoteOn:      "NoteOn",
	TypeNoteOff:     "NoteOff",
	TypeAllNotesOff: "AllNotesOff",
	TypeChangeBpm:   "ChangeBpm",
	TypeWait:        "Wait",
	TypePrint:       "Print",
	TypeMarker:      "Marker",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Event is a single command flowing from a generator to the player. Only the
// payload field matching Type is meaningful; use the constructors below
// rather than building values by hand.
type Event struct {
	Type  Type
	Note  uint8  // NoteOn, NoteOff (0-127)
	Bpm   uint16 // ChangeBpm
	Ticks uint32 // Wait
	Value string // Print
}

func NoteOn(note uint8) Event { return Event{Type: TypeNoteOn, Note: note} }
func NoteOff(note uint8) Event { return Event{Type: TypeNoteOff, Note: note} }
func AllNotesOff() Event { return Event{Type: TypeAllNotesOff} }
func ChangeBpm(bpm uint16) Event { return Event{Type: TypeChangeBpm, Bpm: bpm} }
func Wait(ticks uint32) Event { return Event{Type: TypeWait, Ticks: ticks} }
func Print(value string) Event { return Event{Type: TypePrint, Value: value} }
func Marker() Event { return Event{Type: TypeMarker} }
func (e Event) IsMarker() bool { return e.Type == TypeMarker }
func (e Event) IsWait() bool { return e.Type == TypeWait }

func (e Event) String() string {
	switch e.Type {
	case TypeNoteOn, TypeNoteOff:
		return fmt.Sprintf("%s(%d)", e.Type, e.Note)
	case TypeChangeBpm:
		return fmt.Sprintf("%s(%d)", e.Type, e.Bpm)
	case TypeWait:
		return fmt.Sprintf("%s(%d)", e.Type, e.Ticks)
	case TypePrint:
		return fmt.Sprintf("%s(%q)", e.Type, e.Value)
	default:
		return e.Type.String()
	}
}

// TicksToDuration converts ticks to wall-clock time at the given tempo.
// A beat lasts 60000/bpm ms and a tick is 1/TicksPerBeat of a beat.
// bpm must be positive.
func TicksToDuration(ticks uint32, bpm uint16) time.Duration {
	// ticks * 60s in nanoseconds can overflow uint64, so divide in
	// microseconds and carry the remainder.
	num := uint64(ticks) * uint64(time.Minute/time.Microsecond)
	den := uint64(bpm) * TicksPerBeat
	us := num / den
	rem := num % den
	return time.Duration(us)*time.Microsecond + time.Duration(rem*uint64(time.Microsecond)/den)
}

// NominalDuration is TicksToDuration at NominalBPM.
func NominalDuration(ticks uint32) time.Duration {
	return TicksToDuration(ticks, NominalBPM)
}
