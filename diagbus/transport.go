// Package diagbus carries UDS payloads over the virtual frame bus using
// single-frame transport: one request or response per frame, a one-byte
// length PCI in front of up to seven payload bytes.
package diagbus

import (
	"fmt"
)

const (
	// pciTypeSingleFrame (SF) is 0 in the high nibble.
	pciTypeSingleFrame = 0x00

	// MaxPayload is the largest UDS payload a single frame carries.
	MaxPayload = 7
)

// Default diagnostic identifiers of the simulated ECU.
const (
	DefaultRequestID  uint32 = 0x7E0
	DefaultResponseID uint32 = 0x7E8
)

// PackSingleFrame prepends the single-frame PCI to a UDS payload.
func PackSingleFrame(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("payload of %d bytes does not fit a single frame", len(payload))
	}
	out := make([]byte, 0, 1+len(payload))
	out = append(out, pciTypeSingleFrame|byte(len(payload)))
	return append(out, payload...), nil
}

// UnpackSingleFrame extracts the UDS payload from a single-frame payload.
// Frames with a non-SF PCI type or a length that overruns the frame are
// rejected.
func UnpackSingleFrame(data []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("empty frame payload")
	}
	pci := data[0]
	if pci&0xF0 != pciTypeSingleFrame {
		return nil, fmt.Errorf("unexpected PCI type 0x%X", pci>>4)
	}
	length := int(pci & 0x0F)
	if length > len(data)-1 {
		return nil, fmt.Errorf("declared length %d exceeds frame payload of %d bytes", length, len(data)-1)
	}
	payload := make([]byte, length)
	copy(payload, data[1:1+length])
	return payload, nil
}
