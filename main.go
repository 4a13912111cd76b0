package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"go-murmel/config"
	"go-murmel/debug"
	"go-murmel/generator"
	"go-murmel/midi"
	"go-murmel/sequencer"
	"go-murmel/theme"
	"go-murmel/tui"
)

type flags struct {
	config      string
	port        string
	virtual     string
	palette     string
	headless    bool
	dryRun      bool
	debug       bool
	writeConfig bool
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "config file (default ~/.config/murmel/config.yml)")
	flag.StringVar(&f.port, "port", "", "MIDI output port name or prefix")
	flag.StringVar(&f.virtual, "virtual", "", "create a virtual MIDI output with this name")
	flag.StringVar(&f.palette, "palette", "", "GIMP palette (.gpl) for the TUI")
	flag.BoolVar(&f.headless, "headless", false, "start playing without the TUI, stop on SIGINT/SIGTERM")
	flag.BoolVar(&f.dryRun, "dry-run", false, "log MIDI messages instead of sending them")
	flag.BoolVar(&f.debug, "debug", false, "write a debug log to ~/.config/murmel/debug.log")
	flag.BoolVar(&f.writeConfig, "write-config", false, "write the effective config and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: murmel [flags] [entrypoint.js|pattern.yml]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if err := run(f, flag.Arg(0)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags, entrypoint string) error {
	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	if entrypoint != "" {
		cfg.Entrypoint = entrypoint
	}
	if f.port != "" {
		cfg.Output.Port = f.port
	}
	if f.virtual != "" {
		cfg.Output.Virtual = f.virtual
	}
	if f.debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if f.writeConfig {
		if err := cfg.Save(f.config); err != nil {
			return err
		}
		fmt.Println("config written")
		return nil
	}

	if cfg.Debug {
		if err := debug.Enable(); err != nil {
			fmt.Fprintf(os.Stderr, "debug log disabled: %v\n", err)
		}
		defer debug.Disable()
	}

	if f.headless {
		cancel := debug.Subscribe(debug.LevelInfo, func(e debug.Entry) {
			fmt.Fprintln(os.Stderr, e)
		})
		defer cancel()
	}

	out, err := openOutput(cfg, f.dryRun)
	if err != nil {
		return err
	}

	mgr := sequencer.NewManager(out, managerOptions(cfg))

	if cfg.Remote.Port != "" {
		remote, err := midi.ListenRemote(cfg.Remote.Port, mgr)
		if err != nil {
			debug.Warn("main", "remote control disabled: %v", err)
		} else {
			defer remote.Close()
		}
	}

	mgr.StartRuntime()

	if f.headless {
		return runHeadless(mgr)
	}
	return runTUI(mgr, cfg, f.palette)
}

func runHeadless(mgr *sequencer.Manager) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr.Play()

	select {
	case <-ctx.Done():
		debug.Info("main", "shutting down")
	case <-mgr.Done():
	}
	mgr.Quit()
	return mgr.Wait()
}

func runTUI(mgr *sequencer.Manager, cfg *config.Config, palettePath string) error {
	th := theme.Default()
	if palettePath != "" {
		palette, err := theme.LoadGPL(palettePath)
		if err != nil {
			debug.Warn("main", "using the default palette: %v", err)
		} else {
			th = theme.New(palette)
		}
	}

	m := tui.NewModel(mgr, th, cfg.Entrypoint)
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, err := p.Run()
	mgr.Quit()
	if werr := mgr.Wait(); err == nil {
		err = werr
	}
	return err
}

func openOutput(cfg *config.Config, dryRun bool) (sequencer.Output, error) {
	switch {
	case dryRun:
		return &midi.LogOutput{}, nil
	case cfg.Output.Virtual != "":
		return midi.OpenVirtualOutput(cfg.Output.Virtual)
	default:
		return midi.OpenOutput(cfg.Output.Port)
	}
}

func managerOptions(cfg *config.Config) sequencer.ManagerOptions {
	return sequencer.ManagerOptions{
		Coordinator: sequencer.CoordinatorOptions{
			Entrypoint: cfg.Entrypoint,
			Limits: generator.Limits{
				MaxEvents: cfg.Generator.MaxEvents,
				Deadline:  cfg.Generator.Deadline.Std(),
			},
			LowWater:      cfg.Buffer.LowWater,
			LookAhead:     cfg.Buffer.LookAhead.Std(),
			MissingMarker: sequencer.MarkerPolicy(cfg.Reload.MissingMarker),
		},
		Player: sequencer.PlayerOptions{
			Channel:      uint8(cfg.Output.Channel - 1),
			Velocity:     uint8(cfg.Output.Velocity),
			Bpm:          uint16(cfg.Player.Bpm),
			Realtime:     cfg.Player.Realtime,
			StallTimeout: cfg.Player.StallTimeout.Std(),
			StallPolicy:  sequencer.StallPolicy(cfg.Player.StallPolicy),
		},
	}
}
