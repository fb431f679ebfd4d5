// Package codec contains the fixed CAN payload layouts exchanged by the
// simulated ECUs. All transforms are pure encode/decode pairs: encoding is
// total for values inside the documented ranges, and decoding a buffer that
// is too short reports absence instead of an error.
package codec

import "encoding/binary"

// BatteryStatusLength is the size of the battery status payload.
const BatteryStatusLength = 8

// BatteryStatus is the decoded form of the battery status frame.
//
// Wire layout (8 bytes):
//
//	byte 0    state of charge, percent, scaled x2 (0.5% steps)
//	byte 1    state of health, percent
//	bytes 2-3 pack voltage, little-endian unsigned, scaled x10
//	bytes 4-5 pack current, little-endian signed, scaled x10
//	byte 6    average temperature, Celsius, offset +40 (-40..215)
//	byte 7    status flags, reserved (always 0 in the simulation)
type BatteryStatus struct {
	SOC         float64
	SOH         float64
	Voltage     float64
	Current     float64
	Temperature float64
	Flags       byte
}

// EncodeBatteryStatus packs a status record into its 8-byte wire form.
func EncodeBatteryStatus(s BatteryStatus) []byte {
	buf := make([]byte, BatteryStatusLength)
	buf[0] = byte(s.SOC * 2)
	buf[1] = byte(s.SOH)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(s.Voltage*10))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(int16(s.Current*10)))
	buf[6] = byte(s.Temperature + 40)
	buf[7] = s.Flags
	return buf
}

// DecodeBatteryStatus is the exact inverse of EncodeBatteryStatus. It
// reports false when the buffer is shorter than BatteryStatusLength.
func DecodeBatteryStatus(data []byte) (BatteryStatus, bool) {
	if len(data) < BatteryStatusLength {
		return BatteryStatus{}, false
	}
	return BatteryStatus{
		SOC:         float64(data[0]) / 2,
		SOH:         float64(data[1]),
		Voltage:     float64(binary.LittleEndian.Uint16(data[2:4])) / 10,
		Current:     float64(int16(binary.LittleEndian.Uint16(data[4:6]))) / 10,
		Temperature: float64(data[6]) - 40,
		Flags:       data[7],
	}, true
}
