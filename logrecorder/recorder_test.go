package logrecorder

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/virtual-hil/vecu/canbus"
)

func TestRecorderWritesCandumpLines(t *testing.T) {
	now := time.Unix(1700000000, 500000000)
	bus := canbus.New(canbus.Config{
		Logger: canbus.NopLogger(),
		Now:    func() time.Time { return now },
	})
	defer bus.Close()

	var buf bytes.Buffer
	rec := NewWithWriter(bus, "virtual0", &buf)

	bus.Transmit(0x7E0, []byte{0x02, 0x10, 0x03}, false)
	bus.Transmit(0x100, []byte{0xAB}, false)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines: %q", len(lines), buf.String())
	}
	want := fmt.Sprintf("(%.6f) virtual0 7E0#021003", 1700000000.5)
	if lines[0] != want {
		t.Errorf("line %q, want %q", lines[0], want)
	}
	if !strings.HasSuffix(lines[1], "virtual0 100#AB") {
		t.Errorf("line %q", lines[1])
	}

	// After Close no further frames are recorded.
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	bus.Transmit(0x100, []byte{0xCD}, false)
	if got := len(strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")); got != 2 {
		t.Fatalf("recorder wrote after Close: %q", buf.String())
	}
}

func TestDefaultFileConfig(t *testing.T) {
	cfg := DefaultFileConfig("/tmp/trace.log")
	if cfg.Path != "/tmp/trace.log" {
		t.Errorf("path %q", cfg.Path)
	}
	if cfg.MaxSizeMB <= 0 || cfg.MaxBackups <= 0 || cfg.MaxAgeDays <= 0 {
		t.Errorf("rotation limits not set: %+v", cfg)
	}
}
