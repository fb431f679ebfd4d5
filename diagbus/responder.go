package diagbus

import (
	"github.com/virtual-hil/vecu/canbus"
	"github.com/virtual-hil/vecu/uds"
)

// Responder binds a diagnostic server to the bus. It subscribes to the
// request identifier, feeds unpacked payloads to the dispatcher and
// transmits the response on the response identifier. Suppressed responses
// transmit nothing.
type Responder struct {
	bus    *canbus.Bus
	server *uds.Server
	reqID  uint32
	respID uint32
	sub    *canbus.Subscription
}

// NewResponder attaches a responder to the bus. Zero identifiers fall back
// to the defaults.
func NewResponder(bus *canbus.Bus, server *uds.Server, reqID, respID uint32) *Responder {
	if reqID == 0 {
		reqID = DefaultRequestID
	}
	if respID == 0 {
		respID = DefaultResponseID
	}
	r := &Responder{bus: bus, server: server, reqID: reqID, respID: respID}
	r.sub = bus.Subscribe(reqID, r.onFrame)
	return r
}

// RequestID returns the identifier the responder listens on.
func (r *Responder) RequestID() uint32 { return r.reqID }

// ResponseID returns the identifier responses are transmitted on.
func (r *Responder) ResponseID() uint32 { return r.respID }

// Close detaches the responder from the bus.
func (r *Responder) Close() {
	r.bus.Unsubscribe(r.sub)
}

func (r *Responder) onFrame(f canbus.Frame) error {
	payload, err := UnpackSingleFrame(f.Data)
	if err != nil {
		return err
	}

	resp := r.server.ProcessRequest(payload)
	if resp.Suppressed {
		return nil
	}

	wire := resp.Bytes()
	if len(wire) > MaxPayload {
		// A response that does not fit a single frame is replaced by
		// a negative response so the client still hears back.
		wire = uds.NegativeResponse(resp.SID, uds.NRCResponseTooLong).Bytes()
	}

	frame, err := PackSingleFrame(wire)
	if err != nil {
		return err
	}
	r.bus.Transmit(r.respID, frame, false)
	return nil
}
