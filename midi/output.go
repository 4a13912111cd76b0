package midi

import (
	"fmt"
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-murmel/debug"
	"go-murmel/errs"
)

// PortOutput writes to an open MIDI output port.
type PortOutput struct {
	name   string
	port   drivers.Out
	send   func(gomidi.Message) error
	driver *rtmididrv.Driver // only set for virtual ports
}

// OpenOutput opens the output port matching name (see Ports.FindOut).
func OpenOutput(name string) (*PortOutput, error) {
	ports, err := ScanPorts()
	if err != nil {
		return nil, err
	}
	port, ok := ports.FindOut(name)
	if !ok {
		return nil, errs.New(errs.Transport, fmt.Sprintf("no MIDI output matching %q", name))
	}
	return openPort(port, nil)
}

// OpenVirtualOutput creates a virtual output port other programs can
// connect to. Not supported on Windows.
func OpenVirtualOutput(name string) (*PortOutput, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, errs.Wrap(err, errs.Transport, "open rtmidi driver")
	}
	port, err := drv.OpenVirtualOut(name)
	if err != nil {
		drv.Close()
		return nil, errs.Wrap(err, errs.Transport, fmt.Sprintf("create virtual output %q", name))
	}
	return openPort(port, drv)
}

func openPort(port drivers.Out, drv *rtmididrv.Driver) (*PortOutput, error) {
	send, err := gomidi.SendTo(port)
	if err != nil {
		if drv != nil {
			drv.Close()
		}
		return nil, errs.Wrap(err, errs.Transport, fmt.Sprintf("open output %q", port.String()))
	}
	debug.Info("midi", "output %q open", port.String())
	return &PortOutput{name: port.String(), port: port, send: send, driver: drv}, nil
}

func (o *PortOutput) Name() string { return o.name }

func (o *PortOutput) Send(msg []byte) error {
	return o.send(gomidi.Message(msg))
}

func (o *PortOutput) Close() error {
	err := o.port.Close()
	if o.driver != nil {
		if derr := o.driver.Close(); err == nil {
			err = derr
		}
	}
	debug.Log("midi", "output %q closed", o.name)
	return err
}

// LogOutput writes messages to the debug log instead of a port.
type LogOutput struct {
	sent   atomic.Int64
	closed atomic.Bool
}

func (o *LogOutput) Name() string { return "dry-run" }

func (o *LogOutput) Send(msg []byte) error {
	if o.closed.Load() {
		return errs.New(errs.Transport, "dry-run output closed")
	}
	o.sent.Add(1)
	debug.Info("midi", "%s", Describe(msg))
	return nil
}

func (o *LogOutput) Close() error {
	o.closed.Store(true)
	return nil
}

// Sent counts the messages written so far.
func (o *LogOutput) Sent() int64 { return o.sent.Load() }
