package midi

import (
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-murmel/event"
)

// Controller number of the channel mode message "all notes off".
const ccAllNotesOff = 123

// Encode translates an event to a 3-byte channel-voice message on the
// given channel (0-15). Events with no wire form report false.
func Encode(ev event.Event, channel, velocity uint8) ([]byte, bool) {
	switch ev.Type {
	case event.TypeNoteOn:
		return gomidi.NoteOn(channel, ev.Note, velocity), true
	case event.TypeNoteOff:
		return gomidi.NoteOff(channel, ev.Note), true
	case event.TypeAllNotesOff:
		return gomidi.ControlChange(channel, ccAllNotesOff, 0), true
	}
	return nil, false
}

// Describe renders a channel-voice message for logs, e.g. "NoteOn channel: 0 key: 60 velocity: 100".
func Describe(msg []byte) string {
	return gomidi.Message(msg).String()
}
