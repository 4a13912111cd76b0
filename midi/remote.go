package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-murmel/debug"
	"go-murmel/errs"
)

// System realtime status bytes.
const (
	rtStart    byte = 0xFA
	rtContinue byte = 0xFB
	rtStop     byte = 0xFC
)

// Transport receives remote start and stop requests.
type Transport interface {
	Play()
	Stop()
}

// Remote follows realtime Start/Continue/Stop from a MIDI input so an
// external clock master or DAW can drive playback.
type Remote struct {
	port     drivers.In
	stopFunc func()
}

// ListenRemote opens the input port matching name.
func ListenRemote(name string, t Transport) (*Remote, error) {
	ports, err := ScanPorts()
	if err != nil {
		return nil, err
	}
	port, ok := ports.FindIn(name)
	if !ok {
		return nil, errs.New(errs.Transport, fmt.Sprintf("no MIDI input matching %q", name))
	}

	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		handleRealtime(msg, t)
	})
	if err != nil {
		return nil, errs.Wrap(err, errs.Transport, fmt.Sprintf("open input %q", port.String()))
	}
	debug.Info("midi", "remote control on %q", port.String())
	return &Remote{port: port, stopFunc: stop}, nil
}

func handleRealtime(msg gomidi.Message, t Transport) {
	if len(msg) != 1 {
		return
	}
	switch msg[0] {
	case rtStart, rtContinue:
		debug.Log("midi", "remote start")
		t.Play()
	case rtStop:
		debug.Log("midi", "remote stop")
		t.Stop()
	}
}

func (r *Remote) Close() error {
	if r.stopFunc != nil {
		r.stopFunc()
	}
	return r.port.Close()
}
