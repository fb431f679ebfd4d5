// Package logrecorder writes bus traffic to a rotating trace file in a
// candump-like text format, one line per frame.
package logrecorder

import (
	"fmt"
	"io"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/virtual-hil/vecu/canbus"
)

// FileConfig describes the rotating trace file.
type FileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// DefaultFileConfig keeps a week of traces capped at 50 MB per file.
func DefaultFileConfig(path string) FileConfig {
	return FileConfig{
		Path:       path,
		MaxSizeMB:  50,
		MaxBackups: 5,
		MaxAgeDays: 7,
		Compress:   true,
	}
}

// Recorder subscribes to every frame on a bus and appends one line per
// frame to its output.
type Recorder struct {
	bus     *canbus.Bus
	channel string
	sub     *canbus.Subscription

	mu  sync.Mutex
	out io.Writer
	c   io.Closer
}

// New attaches a recorder writing to a rotating file described by cfg.
func New(bus *canbus.Bus, channel string, cfg FileConfig) *Recorder {
	lj := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	return newRecorder(bus, channel, lj, lj)
}

// NewWithWriter attaches a recorder writing to w. Used by tests and by
// callers that manage their own output.
func NewWithWriter(bus *canbus.Bus, channel string, w io.Writer) *Recorder {
	return newRecorder(bus, channel, w, nil)
}

func newRecorder(bus *canbus.Bus, channel string, w io.Writer, c io.Closer) *Recorder {
	r := &Recorder{bus: bus, channel: channel, out: w, c: c}
	r.sub = bus.Subscribe(canbus.Wildcard, r.onFrame)
	return r
}

func (r *Recorder) onFrame(f canbus.Frame) error {
	ts := float64(f.Timestamp.UnixNano()) / 1e9
	line := fmt.Sprintf("(%.6f) %s %03X#%X\n", ts, r.channel, f.ID, f.Data)

	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := io.WriteString(r.out, line)
	return err
}

// Close detaches the recorder from the bus and closes the underlying file.
func (r *Recorder) Close() error {
	r.bus.Unsubscribe(r.sub)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return r.c.Close()
	}
	return nil
}
