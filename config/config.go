package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"go-murmel/errs"
)

// Duration reads and writes as a Go duration string ("250ms", "1s").
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// OutputConfig selects where notes go. Virtual wins over Port.
type OutputConfig struct {
	Port     string `yaml:"port,omitempty"`    // name prefix, empty takes the first port
	Virtual  string `yaml:"virtual,omitempty"` // create a virtual port with this name
	Channel  int    `yaml:"channel"`           // 1-16
	Velocity int    `yaml:"velocity"`
}

// RemoteConfig names a MIDI input whose Start/Stop drive playback
type RemoteConfig struct {
	Port string `yaml:"port,omitempty"`
}

type BufferConfig struct {
	LowWater  int      `yaml:"lowWater"`
	LookAhead Duration `yaml:"lookAhead"`
}

type GeneratorConfig struct {
	MaxEvents int      `yaml:"maxEvents"`
	Deadline  Duration `yaml:"deadline"`
}

type PlayerConfig struct {
	Bpm          int      `yaml:"bpm"`
	Realtime     bool     `yaml:"realtime"`
	StallTimeout Duration `yaml:"stallTimeout"`
	StallPolicy  string   `yaml:"stallPolicy"` // stop, wait
}

type ReloadConfig struct {
	MissingMarker string `yaml:"missingMarker"` // clear, keep
}

// Config is the main configuration structure
type Config struct {
	Entrypoint string          `yaml:"entrypoint,omitempty"`
	Output     OutputConfig    `yaml:"output"`
	Remote     RemoteConfig    `yaml:"remote,omitempty"`
	Buffer     BufferConfig    `yaml:"buffer"`
	Generator  GeneratorConfig `yaml:"generator"`
	Player     PlayerConfig    `yaml:"player"`
	Reload     ReloadConfig    `yaml:"reload"`
	Debug      bool            `yaml:"debug,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Entrypoint: "main.js",
		Output: OutputConfig{
			Channel:  1,
			Velocity: 100,
		},
		Buffer: BufferConfig{
			LowWater:  100,
			LookAhead: Duration(time.Second),
		},
		Generator: GeneratorConfig{
			MaxEvents: 10000,
			Deadline:  Duration(2 * time.Second),
		},
		Player: PlayerConfig{
			Bpm:          120,
			Realtime:     true,
			StallTimeout: Duration(250 * time.Millisecond),
			StallPolicy:  "stop",
		},
		Reload: ReloadConfig{
			MissingMarker: "clear",
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "murmel"), nil
}

// ConfigPath returns the full path to config.yml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Load reads the config at path, or the default location when path is
// empty. A missing file yields defaults; keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errs.Wrap(err, errs.Invalid, fmt.Sprintf("parse %s", path))
	}
	return cfg, nil
}

// Validate clamps the tempo into 20..300 and rejects values the sequencer
// cannot run with.
func (c *Config) Validate() error {
	c.Player.Bpm = min(max(c.Player.Bpm, 20), 300)

	var problems []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, errs.New(errs.Invalid, fmt.Sprintf(format, args...)))
		}
	}

	check(c.Entrypoint != "", "entrypoint is empty")
	check(c.Output.Channel >= 1 && c.Output.Channel <= 16, "output.channel %d not in 1..16", c.Output.Channel)
	check(c.Output.Velocity >= 1 && c.Output.Velocity <= 127, "output.velocity %d not in 1..127", c.Output.Velocity)
	check(c.Buffer.LowWater >= 1, "buffer.lowWater must be at least 1")
	check(c.Buffer.LookAhead > 0, "buffer.lookAhead must be positive")
	check(c.Generator.MaxEvents >= 1, "generator.maxEvents must be at least 1")
	check(c.Generator.Deadline >= 0, "generator.deadline must not be negative")
	check(c.Player.StallTimeout > 0, "player.stallTimeout must be positive")
	check(c.Player.StallPolicy == "stop" || c.Player.StallPolicy == "wait",
		"player.stallPolicy %q is not stop or wait", c.Player.StallPolicy)
	check(c.Reload.MissingMarker == "clear" || c.Reload.MissingMarker == "keep",
		"reload.missingMarker %q is not clear or keep", c.Reload.MissingMarker)

	return errors.Join(problems...)
}

// Save writes the config to path, or the default location when path is empty.
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
