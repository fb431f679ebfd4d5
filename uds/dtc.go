package uds

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// DTCRecord is one stored diagnostic trouble code.
type DTCRecord struct {
	// Code in OBD-II text form, e.g. "P0171".
	Code string
	// Status byte reported alongside the code.
	Status byte
	// Snapshot holds optional freeze-frame data captured when the fault
	// was stored, serialized as CBOR.
	Snapshot []byte
}

// NewDTCRecord builds a record without snapshot data.
func NewDTCRecord(code string, status byte) DTCRecord {
	return DTCRecord{Code: code, Status: status}
}

// NewDTCRecordWithSnapshot builds a record and serializes snapshot as the
// freeze frame. The snapshot must be CBOR-encodable.
func NewDTCRecordWithSnapshot(code string, status byte, snapshot any) (DTCRecord, error) {
	buf, err := cbor.Marshal(snapshot)
	if err != nil {
		return DTCRecord{}, fmt.Errorf("encode snapshot for %s: %w", code, err)
	}
	return DTCRecord{Code: code, Status: status, Snapshot: buf}, nil
}

// DecodeSnapshot deserializes the freeze frame into out.
func (r DTCRecord) DecodeSnapshot(out any) error {
	if len(r.Snapshot) == 0 {
		return fmt.Errorf("no snapshot stored for %s", r.Code)
	}
	return cbor.Unmarshal(r.Snapshot, out)
}

// EncodeDTC converts an OBD-II code to its three-byte wire form. Codes
// shorter than five characters encode as three zero bytes; a malformed
// digit is an error.
func EncodeDTC(code string) ([]byte, error) {
	if len(code) < 5 {
		return make([]byte, 3), nil
	}

	var b0 byte
	switch code[0] {
	case 'P':
		b0 = 0x02
	case 'B':
		b0 = 0x08
	case 'C':
		b0 = 0x01
	case 'U':
		b0 = 0x00
	}

	digits := make([]byte, 4)
	for i := 0; i < 4; i++ {
		v, err := strconv.ParseUint(string(code[1+i]), 16, 8)
		if err != nil {
			return nil, fmt.Errorf("bad DTC digit %q in %s", code[1+i], code)
		}
		digits[i] = byte(v)
	}

	return []byte{b0, digits[0]<<4 | digits[1], digits[2]<<4 | digits[3]}, nil
}

// DecodeDTC converts a three-byte wire form back to OBD-II text.
func DecodeDTC(raw []byte) (string, error) {
	if len(raw) != 3 {
		return "", fmt.Errorf("DTC wire form needs 3 bytes, got %d", len(raw))
	}
	var system string
	switch raw[0] {
	case 0x02:
		system = "P"
	case 0x08:
		system = "B"
	case 0x01:
		system = "C"
	case 0x00:
		system = "U"
	default:
		return "", fmt.Errorf("unknown DTC system byte 0x%02X", raw[0])
	}
	var sb strings.Builder
	sb.WriteString(system)
	fmt.Fprintf(&sb, "%X%X%X%X", raw[1]>>4, raw[1]&0x0F, raw[2]>>4, raw[2]&0x0F)
	return sb.String(), nil
}

// dtcStore keeps stored codes in insertion order so read-out is
// deterministic. Re-storing an existing code updates it in place.
type dtcStore struct {
	order   []string
	records map[string]DTCRecord
}

func newDTCStore() *dtcStore {
	return &dtcStore{records: make(map[string]DTCRecord)}
}

func (s *dtcStore) put(rec DTCRecord) {
	if _, ok := s.records[rec.Code]; !ok {
		s.order = append(s.order, rec.Code)
	}
	s.records[rec.Code] = rec
}

func (s *dtcStore) remove(code string) {
	if _, ok := s.records[code]; !ok {
		return
	}
	delete(s.records, code)
	for i, c := range s.order {
		if c == code {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
}

func (s *dtcStore) clear() {
	s.order = nil
	s.records = make(map[string]DTCRecord)
}

func (s *dtcStore) all() []DTCRecord {
	out := make([]DTCRecord, 0, len(s.order))
	for _, code := range s.order {
		out = append(out, s.records[code])
	}
	return out
}
