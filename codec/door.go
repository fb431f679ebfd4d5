package codec

// DoorStatusLength is the size of the door status payload.
const DoorStatusLength = 4

// DoorStatus is the decoded form of the door status frame. Byte 0 carries
// the open flags (bits 0-3, front-left through rear-right), byte 1 the lock
// flags in the same order; bytes 2-3 are reserved and always zero on encode.
type DoorStatus struct {
	FrontLeftOpen  bool
	FrontRightOpen bool
	RearLeftOpen   bool
	RearRightOpen  bool

	FrontLeftLocked  bool
	FrontRightLocked bool
	RearLeftLocked   bool
	RearRightLocked  bool
}

// EncodeDoorStatus packs a status record into its 4-byte wire form.
func EncodeDoorStatus(s DoorStatus) []byte {
	var open, locked byte
	if s.FrontLeftOpen {
		open |= 0x01
	}
	if s.FrontRightOpen {
		open |= 0x02
	}
	if s.RearLeftOpen {
		open |= 0x04
	}
	if s.RearRightOpen {
		open |= 0x08
	}
	if s.FrontLeftLocked {
		locked |= 0x01
	}
	if s.FrontRightLocked {
		locked |= 0x02
	}
	if s.RearLeftLocked {
		locked |= 0x04
	}
	if s.RearRightLocked {
		locked |= 0x08
	}
	return []byte{open, locked, 0, 0}
}

// DecodeDoorStatus maps each bit back to its named flag. Absent bits decode
// to false; it reports false when the buffer is shorter than
// DoorStatusLength.
func DecodeDoorStatus(data []byte) (DoorStatus, bool) {
	if len(data) < DoorStatusLength {
		return DoorStatus{}, false
	}
	return DoorStatus{
		FrontLeftOpen:  data[0]&0x01 != 0,
		FrontRightOpen: data[0]&0x02 != 0,
		RearLeftOpen:   data[0]&0x04 != 0,
		RearRightOpen:  data[0]&0x08 != 0,

		FrontLeftLocked:  data[1]&0x01 != 0,
		FrontRightLocked: data[1]&0x02 != 0,
		RearLeftLocked:   data[1]&0x04 != 0,
		RearRightLocked:  data[1]&0x08 != 0,
	}, true
}
