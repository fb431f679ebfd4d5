package ecu

import (
	"fmt"
	"os"

	"github.com/marcinbor85/gohex"

	"github.com/virtual-hil/vecu/uds"
)

// FirmwareVerifyRoutineID is the routine identifier for firmware image
// verification.
const FirmwareVerifyRoutineID uint16 = 0xFF00

// FirmwareVerifyRoutine returns a routine that parses the Intel HEX image
// at path and reports the number of data segments followed by a 16-bit
// checksum over all data bytes, big endian.
func FirmwareVerifyRoutine(path string) uds.RoutineFunc {
	return func(controlType byte, params []byte) ([]byte, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open firmware image: %w", err)
		}
		defer f.Close()

		mem := gohex.NewMemory()
		if err := mem.ParseIntelHex(f); err != nil {
			return nil, fmt.Errorf("parse firmware image: %w", err)
		}

		segments := mem.GetDataSegments()
		var sum uint16
		for _, seg := range segments {
			for _, b := range seg.Data {
				sum += uint16(b)
			}
		}
		return []byte{byte(len(segments)), byte(sum >> 8), byte(sum)}, nil
	}
}
