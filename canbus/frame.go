// Package canbus implements the virtual CAN bus used by the ECU simulation:
// a loopback transport with observation. Transmitted frames are delivered
// synchronously to subscribers, recorded in a bounded trace log and counted
// for load estimation. There is no medium simulation: no arbitration, no
// collisions, no retransmission.
package canbus

import "time"

// Wildcard subscribes a handler to every identifier on the bus.
const Wildcard uint32 = 0xFFFFFFFF

// MaxPayload is the classic CAN payload limit enforced by Transmit.
const MaxPayload = 8

// Frame is a single message observed on the bus.
//
// Frames are immutable after construction: the bus hands each subscriber
// and each trace reader its own copy of the payload, so no shared mutable
// aliasing occurs.
type Frame struct {
	ID        uint32
	Extended  bool
	DLC       uint8
	Data      []byte
	Timestamp time.Time
}

// NewFrame builds a frame from a payload, copying the data. The declared
// length is always derived from the actual payload, which keeps the
// DLC/payload invariant by construction.
func NewFrame(id uint32, data []byte, extended bool, ts time.Time) Frame {
	payload := make([]byte, len(data))
	copy(payload, data)
	return Frame{
		ID:        id,
		Extended:  extended,
		DLC:       uint8(len(payload)),
		Data:      payload,
		Timestamp: ts,
	}
}
