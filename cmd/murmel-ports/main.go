package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go-murmel/event"
	"go-murmel/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		err = listPorts()
	case "note":
		err = sendNote(os.Args[2:])
	case "monitor":
		err = monitor(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("murmel MIDI port tool")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                 - List all MIDI ports")
	fmt.Println("  note <port> [note]   - Play a test note (default 60) on an output")
	fmt.Println("  monitor <port>       - Print Start/Stop received on an input")
}

func listPorts() error {
	fmt.Println("(waiting up to 3 seconds...)")

	ports, err := midi.ScanPorts()
	if err != nil {
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return err
	}

	fmt.Println("=== MIDI Input Ports ===")
	for i, name := range midi.Names(ports.Ins) {
		fmt.Printf("  %d: %s\n", i, name)
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, name := range midi.Names(ports.Outs) {
		fmt.Printf("  %d: %s\n", i, name)
	}
	return nil
}

func sendNote(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("note needs a port name")
	}

	note := uint8(60)
	if len(args) > 1 {
		n, err := strconv.ParseUint(args[1], 10, 7)
		if err != nil {
			return fmt.Errorf("note %q: %w", args[1], err)
		}
		note = uint8(n)
	}

	out, err := midi.OpenOutput(args[0])
	if err != nil {
		return err
	}
	defer out.Close()

	fmt.Printf("Playing %s on %s\n", event.NoteOn(note), out.Name())
	on, _ := midi.Encode(event.NoteOn(note), 0, 100)
	if err := out.Send(on); err != nil {
		return err
	}
	time.Sleep(500 * time.Millisecond)

	off, _ := midi.Encode(event.NoteOff(note), 0, 100)
	return out.Send(off)
}

type printer struct{}

func (printer) Play() { fmt.Println("start") }
func (printer) Stop() { fmt.Println("stop") }

func monitor(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("monitor needs a port name")
	}

	remote, err := midi.ListenRemote(args[0], printer{})
	if err != nil {
		return err
	}
	defer remote.Close()

	fmt.Println("Listening, press Enter to quit...")
	fmt.Scanln()
	return nil
}
