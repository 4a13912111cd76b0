package debug

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "debug"
	}
}

// Entry is one log line as handed to subscribers
type Entry struct {
	Time     time.Time
	Level    Level
	Category string
	Message  string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%s] %-5s %-10s %s", e.Time.Format("15:04:05.000"), e.Level, e.Category, e.Message)
}

type subscriber struct {
	min Level
	fn  func(Entry)
}

var (
	file        *os.File
	mu          sync.Mutex
	enabled     bool
	subscribers = make(map[int]subscriber)
	nextSub     int
)

// DefaultPath is ~/.config/murmel/debug.log
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "murmel", "debug.log")
}

// Enable starts writing every entry, including debug level, to DefaultPath.
func Enable() error {
	return EnableAt(DefaultPath())
}

// EnableAt starts file logging to path, truncating it.
func EnableAt(path string) error {
	mu.Lock()
	defer mu.Unlock()

	if enabled {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}

	file = f
	enabled = true

	// Write directly (can't call Log - we hold the mutex)
	fmt.Fprintln(file, Entry{Time: time.Now(), Level: LevelInfo, Category: "debug", Message: "=== Debug logging started ==="})
	file.Sync()

	return nil
}

// Disable stops file logging
func Disable() {
	mu.Lock()
	defer mu.Unlock()

	if file != nil {
		file.Close()
		file = nil
	}
	enabled = false
}

// Subscribe registers fn for entries at or above min. fn is called on the
// logging goroutine and must not block. The returned func unsubscribes.
func Subscribe(min Level, fn func(Entry)) (cancel func()) {
	mu.Lock()
	defer mu.Unlock()

	id := nextSub
	nextSub++
	subscribers[id] = subscriber{min: min, fn: fn}

	return func() {
		mu.Lock()
		delete(subscribers, id)
		mu.Unlock()
	}
}

func write(level Level, category, format string, args ...any) {
	mu.Lock()
	toFile := enabled && file != nil
	var fns []func(Entry)
	for _, s := range subscribers {
		if level >= s.min {
			fns = append(fns, s.fn)
		}
	}
	mu.Unlock()

	if !toFile && len(fns) == 0 {
		return
	}

	e := Entry{
		Time:     time.Now(),
		Level:    level,
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}

	if toFile {
		mu.Lock()
		if file != nil {
			fmt.Fprintln(file, e)
			file.Sync() // flush immediately so we see logs even on crash
		}
		mu.Unlock()
	}

	for _, fn := range fns {
		fn(e)
	}
}

// Log writes a debug-level message
func Log(category, format string, args ...any) {
	write(LevelDebug, category, format, args...)
}

func Info(category, format string, args ...any) {
	write(LevelInfo, category, format, args...)
}

func Warn(category, format string, args ...any) {
	write(LevelWarn, category, format, args...)
}

func Error(category, format string, args ...any) {
	write(LevelError, category, format, args...)
}

// LogEvery logs only every N calls (use for high-frequency events)
var counters = make(map[string]int)

func LogEvery(n int, category, format string, args ...any) {
	mu.Lock()
	key := category + format
	counters[key]++
	count := counters[key]
	mu.Unlock()

	if count%n == 0 {
		Warn(category, format+" (every %d, count=%d)", append(args, n, count)...)
	}
}
