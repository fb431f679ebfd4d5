package canbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
)

// DefaultTraceCapacity bounds the trace log; the oldest frame is evicted
// once the bus has recorded this many.
const DefaultTraceCapacity = 10000

// frameOverheadBits is the per-frame protocol overhead (arbitration,
// control, CRC, ack, interframe space) added to the payload bits when
// estimating bus load for a standard frame.
const frameOverheadBits = 47

// Handler consumes one frame. Returning an error does not stop delivery to
// later subscribers; the failure is reported to the bus logger and
// swallowed.
type Handler func(Frame) error

// Subscription is the capability returned by Subscribe and accepted by
// Unsubscribe.
type Subscription struct {
	id uint32
	fn Handler
}

// Config collects the bus settings.
type Config struct {
	// Channel names the virtual channel in statistics and trace output.
	Channel string
	// Bitrate is the configured bus speed in bits per second, used only
	// for load estimation.
	Bitrate uint32
	// TraceCapacity overrides DefaultTraceCapacity when positive.
	TraceCapacity int
	// Logger receives subscriber failures and rejected transmits.
	Logger Logger
	// Now supplies timestamps; defaults to time.Now. Tests inject a fixed
	// clock here to make load and eviction checks deterministic.
	Now func() time.Time
}

// DefaultConfig mirrors the channel defaults of the original bench setup.
func DefaultConfig() Config {
	return Config{Channel: "virtual0", Bitrate: 500000}
}

// Statistics is a point-in-time snapshot of the bus counters.
//
// RxCount stays zero in this design: the loopback model unifies send and
// deliver, so there is no distinct reception path to count.
type Statistics struct {
	TxCount uint64
	RxCount uint64
	BusLoad float64
	Channel string
	Bitrate uint32
}

// Bus is the virtual frame bus. All methods are safe for concurrent use;
// shared state is guarded by one coarse mutex, which is sufficient for the
// small bounded-time operations involved.
type Bus struct {
	cfg Config

	mu    sync.Mutex
	subs  map[uint32][]*Subscription
	trace *traceRing

	txCount atomic.Uint64
	rxCount atomic.Uint64

	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a bus from cfg, filling unset fields with defaults.
func New(cfg Config) *Bus {
	if cfg.Channel == "" {
		cfg.Channel = "virtual0"
	}
	if cfg.Bitrate == 0 {
		cfg.Bitrate = 500000
	}
	if cfg.TraceCapacity <= 0 {
		cfg.TraceCapacity = DefaultTraceCapacity
	}
	if cfg.Logger == nil {
		cfg.Logger = NewStdLogger("[canbus] ")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Bus{
		cfg:    cfg,
		subs:   make(map[uint32][]*Subscription),
		trace:  newTraceRing(cfg.TraceCapacity),
		closed: make(chan struct{}),
	}
}

// Subscribe registers fn for frames carrying id, or for every frame when id
// is Wildcard. Handlers for the same id run in registration order.
func (b *Bus) Subscribe(id uint32, fn Handler) *Subscription {
	sub := &Subscription{id: id, fn: fn}
	b.mu.Lock()
	b.subs[id] = append(b.subs[id], sub)
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes a subscription. Removing one that is absent (or nil)
// is a no-op.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[sub.id]
	for i, s := range list {
		if s == sub {
			b.subs[sub.id] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Transmit sends a frame on the bus. It reports false, with no state
// change, when the payload exceeds MaxPayload. Otherwise the frame is
// timestamped, counted, recorded in the trace log and delivered
// synchronously to every handler registered for id and then every wildcard
// handler, in registration order. A failing handler does not abort delivery
// to the rest.
func (b *Bus) Transmit(id uint32, data []byte, extended bool) bool {
	if len(data) > MaxPayload {
		b.cfg.Logger.Errorf("payload too long on 0x%X: %d bytes", id, len(data))
		return false
	}

	frame := NewFrame(id, data, extended, b.cfg.Now())
	b.txCount.Inc()

	b.mu.Lock()
	b.trace.Append(frame)
	targets := make([]*Subscription, 0, len(b.subs[id])+len(b.subs[Wildcard]))
	targets = append(targets, b.subs[id]...)
	if id != Wildcard {
		targets = append(targets, b.subs[Wildcard]...)
	}
	b.mu.Unlock()

	b.cfg.Logger.Debugf("TX 0x%03X %x", id, frame.Data)

	// Deliver outside the lock so a handler may itself transmit.
	for _, sub := range targets {
		if err := b.deliver(sub, frame); err != nil {
			b.cfg.Logger.Errorf("subscriber error for 0x%X: %v", id, err)
		}
	}
	return true
}

// deliver invokes one handler, converting a panic into an error so one
// misbehaving subscriber cannot stop delivery to the others.
func (b *Bus) deliver(sub *Subscription, frame Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{value: r}
		}
	}()
	return sub.fn(frame)
}

// AwaitFrame blocks for up to timeout and reports that no frame arrived.
//
// The bus is push-only: delivery happens synchronously at transmit time via
// subscriber callbacks, and this pull-style wait is intentionally not wired
// into that path. It exists as a bounded idle wait for callback-driven
// consumers and returns early when ctx is cancelled or the bus is closed.
func (b *Bus) AwaitFrame(ctx context.Context, timeout time.Duration) (Frame, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-b.closed:
	case <-timer.C:
	}
	return Frame{}, false
}

// Statistics reports the counters and the rolling bus load. The load is
// recomputed on every call from trace entries timestamped within the
// trailing second: each contributes dlc*8+47 bits against the configured
// bitrate.
func (b *Bus) Statistics() Statistics {
	now := b.cfg.Now()

	b.mu.Lock()
	frames := b.trace.Snapshot()
	b.mu.Unlock()

	var bits float64
	for _, f := range frames {
		if now.Sub(f.Timestamp) < time.Second {
			bits += float64(int(f.DLC)*8 + frameOverheadBits)
		}
	}

	return Statistics{
		TxCount: b.txCount.Load(),
		RxCount: b.rxCount.Load(),
		BusLoad: bits / float64(b.cfg.Bitrate) * 100,
		Channel: b.cfg.Channel,
		Bitrate: b.cfg.Bitrate,
	}
}

// Trace returns a copy of the trace log in arrival order.
func (b *Bus) Trace() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trace.Snapshot()
}

// TraceByID returns the trace entries carrying id, in arrival order.
func (b *Bus) TraceByID(id uint32) []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Frame
	for _, f := range b.trace.Snapshot() {
		if f.ID == id {
			out = append(out, f)
		}
	}
	return out
}

// ClearLog truncates the trace log. Counters are not reset.
func (b *Bus) ClearLog() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trace.Clear()
}

// Close releases waiters blocked in AwaitFrame. It does not tear down
// subscriptions; a closed bus still delivers transmits, matching the
// loopback model where shutdown is owned by the embedding process.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}

type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("subscriber panic: %v", e.value)
}
