package midi

import (
	"strings"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"go-murmel/errs"
)

// Port listing can hang on some drivers (CoreMIDI).
const scanTimeout = 3 * time.Second

// Ports is one scan of the registered driver.
type Ports struct {
	Ins  []drivers.In
	Outs []drivers.Out
}

// ScanPorts lists input and output ports, giving up after a few seconds.
func ScanPorts() (Ports, error) {
	ch := make(chan Ports, 1)
	go func() {
		ch <- Ports{Ins: gomidi.GetInPorts(), Outs: gomidi.GetOutPorts()}
	}()

	select {
	case p := <-ch:
		return p, nil
	case <-time.After(scanTimeout):
		// User needs to run: sudo killall coreaudiod midiserver
		return Ports{}, errs.New(errs.Transport, "MIDI port scan timed out")
	}
}

// FindOut returns the first output whose name starts with or contains name,
// ignoring case. An empty name takes the first port.
func (p Ports) FindOut(name string) (drivers.Out, bool) { return find(p.Outs, name) }

// FindIn is FindOut for inputs.
func (p Ports) FindIn(name string) (drivers.In, bool) { return find(p.Ins, name) }

func find[P interface{ String() string }](ports []P, name string) (P, bool) {
	var zero P
	if len(ports) == 0 {
		return zero, false
	}
	if name == "" {
		return ports[0], true
	}

	name = strings.ToLower(name)
	for _, port := range ports {
		if strings.HasPrefix(strings.ToLower(port.String()), name) {
			return port, true
		}
	}
	for _, port := range ports {
		if strings.Contains(strings.ToLower(port.String()), name) {
			return port, true
		}
	}
	return zero, false
}

// Names lists port names.
func Names[P interface{ String() string }](ports []P) []string {
	names := make([]string, len(ports))
	for i, port := range ports {
		names[i] = port.String()
	}
	return names
}
