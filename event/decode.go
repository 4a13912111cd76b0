package event

import (
	"fmt"
	"math"

	"github.com/mitchellh/mapstructure"

	"go-murmel/errs"
)

// wireEvent is the loose shape scripts and pattern files produce, e.g.
// {type: "NoteOn", note: 60} or {type: "Wait", ticks: 27720}.
type wireEvent struct {
	Type  string   `mapstructure:"type"`
	Note  *float64 `mapstructure:"note"`
	Bpm   *float64 `mapstructure:"bpm"`
	Ticks *float64 `mapstructure:"ticks"`
	Value any      `mapstructure:"value"`
}

var typesByName = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t, name := range typeNames {
		m[name] = t
	}
	return m
}()

// Decode converts a dynamically typed value (a map exported from the script
// engine or parsed from YAML) into an Event. Unknown types, missing fields
// and out-of-range numbers are reported as errs.Invalid.
func Decode(raw any) (Event, error) {
	if raw == nil {
		return Event{}, errs.New(errs.Invalid, "event is null")
	}

	var w wireEvent
	if err := mapstructure.Decode(raw, &w); err != nil {
		return Event{}, errs.Wrap(err, errs.Invalid, "decode event")
	}

	t, ok := typesByName[w.Type]
	if !ok {
		return Event{}, errs.New(errs.Invalid, fmt.Sprintf("unknown event type %q", w.Type))
	}

	switch t {
	case TypeNoteOn, TypeNoteOff:
		n, err := integral(w.Note, "note", 0, 127)
		if err != nil {
			return Event{}, err
		}
		return Event{Type: t, Note: uint8(n)}, nil

	case TypeChangeBpm:
		n, err := integral(w.Bpm, "bpm", 1, math.MaxUint16)
		if err != nil {
			return Event{}, err
		}
		return ChangeBpm(uint16(n)), nil

	case TypeWait:
		n, err := integral(w.Ticks, "ticks", 0, math.MaxUint32)
		if err != nil {
			return Event{}, err
		}
		return Wait(uint32(n)), nil

	case TypePrint:
		if w.Value == nil {
			return Print(""), nil
		}
		if s, ok := w.Value.(string); ok {
			return Print(s), nil
		}
		return Print(fmt.Sprint(w.Value)), nil

	default:
		return Event{Type: t}, nil
	}
}

func integral(v *float64, field string, min, max float64) (uint64, error) {
	if v == nil {
		return 0, errs.New(errs.Invalid, fmt.Sprintf("missing %s", field))
	}
	f := *v
	if f != math.Trunc(f) || f < min || f > max {
		return 0, errs.New(errs.Invalid, fmt.Sprintf("%s %v out of range [%v, %v]", field, f, min, max))
	}
	return uint64(f), nil
}
