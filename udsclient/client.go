// Package udsclient is the tester side of the diagnostic stack: it sends
// UDS requests over the virtual bus and validates the responses, including
// negative response decoding and security-access key derivation.
package udsclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/virtual-hil/vecu/canbus"
	"github.com/virtual-hil/vecu/diagbus"
	"github.com/virtual-hil/vecu/uds"
)

// responseBufferSize bounds how many unread responses the client keeps.
const responseBufferSize = 16

// DefaultTimeout is the per-request response deadline.
const DefaultTimeout = 500 * time.Millisecond

// UDSError is a decoded negative response.
type UDSError struct {
	ServiceID byte
	NRC       byte
	Message   string
}

func (e *UDSError) Error() string {
	return fmt.Sprintf("negative response: SID=0x%02X, NRC=0x%02X (%s)", e.ServiceID, e.NRC, e.Message)
}

// NRCDescription returns a human-readable description for a negative
// response code.
func NRCDescription(nrc byte) string {
	descriptions := map[byte]string{
		uds.NRCGeneralReject:           "general reject",
		uds.NRCServiceNotSupported:     "service not supported",
		uds.NRCSubFunctionNotSupported: "sub-function not supported",
		uds.NRCResponseTooLong:         "response too long",
		uds.NRCConditionsNotCorrect:    "conditions not correct",
		uds.NRCRequestSequenceError:    "request sequence error",
		uds.NRCRequestOutOfRange:       "request out of range",
		uds.NRCSecurityAccessDenied:    "security access denied",
		uds.NRCInvalidKey:              "invalid key",
	}
	if desc, ok := descriptions[nrc]; ok {
		return desc
	}
	return "unknown error"
}

// Client sends requests on the request identifier and collects responses
// from the response identifier. Responses arrive through the bus callback
// during Transmit, so a Request call normally completes without waiting.
type Client struct {
	bus     *canbus.Bus
	reqID   uint32
	respID  uint32
	sub     *canbus.Subscription
	respCh  chan []byte
	timeout time.Duration
}

// NewClient attaches a client to the bus. Zero identifiers fall back to the
// defaults.
func NewClient(bus *canbus.Bus, reqID, respID uint32) *Client {
	if reqID == 0 {
		reqID = diagbus.DefaultRequestID
	}
	if respID == 0 {
		respID = diagbus.DefaultResponseID
	}
	c := &Client{
		bus:     bus,
		reqID:   reqID,
		respID:  respID,
		respCh:  make(chan []byte, responseBufferSize),
		timeout: DefaultTimeout,
	}
	c.sub = bus.Subscribe(respID, c.onFrame)
	return c
}

// Close detaches the client from the bus.
func (c *Client) Close() {
	c.bus.Unsubscribe(c.sub)
}

func (c *Client) onFrame(f canbus.Frame) error {
	payload, err := diagbus.UnpackSingleFrame(f.Data)
	if err != nil {
		return err
	}
	select {
	case c.respCh <- payload:
	default:
		// Buffer full, drop the oldest to keep the newest response.
		select {
		case <-c.respCh:
		default:
		}
		c.respCh <- payload
	}
	return nil
}

// Request sends a raw UDS payload and returns the positive response
// payload, response SID included. A negative response is returned as a
// *UDSError. A request whose response is suppressed times out.
func (c *Client) Request(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errors.New("empty request payload")
	}
	expected := payload[0] + 0x40

	// Drop responses left over from earlier requests.
	for {
		select {
		case <-c.respCh:
			continue
		default:
		}
		break
	}

	frame, err := diagbus.PackSingleFrame(payload)
	if err != nil {
		return nil, err
	}
	if !c.bus.Transmit(c.reqID, frame, false) {
		return nil, errors.New("transmit rejected")
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("no response within %v", c.timeout)
	case resp := <-c.respCh:
		if len(resp) >= 2 && resp[0] == uds.NegativeResponseSID {
			var nrc byte
			if len(resp) >= 3 {
				nrc = resp[2]
			} else {
				nrc = resp[1]
			}
			return nil, &UDSError{
				ServiceID: resp[1],
				NRC:       nrc,
				Message:   NRCDescription(nrc),
			}
		}
		if len(resp) == 0 || resp[0] != expected {
			return nil, fmt.Errorf("response SID mismatch: want 0x%02X, got % X", expected, resp)
		}
		return resp, nil
	}
}

// ChangeSession switches the server into the given diagnostic session.
func (c *Client) ChangeSession(ctx context.Context, session uds.SessionType) error {
	_, err := c.Request(ctx, []byte{uds.SIDDiagnosticSessionControl, byte(session)})
	return err
}

// ReadDataByIdentifier reads one identifier and returns its value without
// the response SID and echoed identifier.
func (c *Client) ReadDataByIdentifier(ctx context.Context, did uint16) ([]byte, error) {
	resp, err := c.Request(ctx, []byte{uds.SIDReadDataByIdentifier, byte(did >> 8), byte(did)})
	if err != nil {
		return nil, err
	}
	if len(resp) < 3 {
		return nil, fmt.Errorf("short read response % X", resp)
	}
	return resp[3:], nil
}

// WriteDataByIdentifier writes a value to one identifier.
func (c *Client) WriteDataByIdentifier(ctx context.Context, did uint16, value []byte) error {
	req := append([]byte{uds.SIDWriteDataByIdentifier, byte(did >> 8), byte(did)}, value...)
	_, err := c.Request(ctx, req)
	return err
}

// TesterPresent sends a keep-alive. With suppress set the server sends no
// response and the call returns once the request is on the bus.
func (c *Client) TesterPresent(ctx context.Context, suppress bool) error {
	if suppress {
		frame, err := diagbus.PackSingleFrame([]byte{uds.SIDTesterPresent, 0x80})
		if err != nil {
			return err
		}
		if !c.bus.Transmit(c.reqID, frame, false) {
			return errors.New("transmit rejected")
		}
		return nil
	}
	_, err := c.Request(ctx, []byte{uds.SIDTesterPresent, 0x00})
	return err
}

// Unlock performs the two-step security access handshake for a level: it
// requests the seed with sub-function 2*level-1, derives the key and sends
// it with sub-function 2*level.
func (c *Client) Unlock(ctx context.Context, level byte) error {
	if level == 0 {
		return errors.New("security level must be positive")
	}
	seedSub := 2*level - 1

	resp, err := c.Request(ctx, []byte{uds.SIDSecurityAccess, seedSub})
	if err != nil {
		return fmt.Errorf("request seed: %w", err)
	}
	if len(resp) < 3 {
		return fmt.Errorf("seed response too short: % X", resp)
	}
	seed := resp[2:]

	key, err := KeyFromSeed(seed)
	if err != nil {
		return fmt.Errorf("derive key: %w", err)
	}

	req := append([]byte{uds.SIDSecurityAccess, seedSub + 1}, key...)
	if _, err := c.Request(ctx, req); err != nil {
		return fmt.Errorf("send key: %w", err)
	}
	return nil
}
