package uds

import (
	"bytes"
	"errors"
	"io"
	"log"
	"testing"
)

func newTestServer() *Server {
	return NewServer(ServerConfig{Logger: log.New(io.Discard, "", 0)})
}

func TestSessionControl(t *testing.T) {
	s := newTestServer()

	resp := s.ProcessRequest([]byte{0x10, 0x03})
	if !bytes.Equal(resp.Bytes(), []byte{0x50, 0x03, 0x00, 0x00}) {
		t.Fatalf("unexpected response %x", resp.Bytes())
	}
	if s.Session() != SessionExtended {
		t.Errorf("session is %s, want extended", s.Session())
	}

	// Re-entering the active session succeeds.
	resp = s.ProcessRequest([]byte{0x10, 0x03})
	if resp.Negative {
		t.Fatalf("re-entry rejected: %x", resp.Bytes())
	}

	// Unknown session type.
	resp = s.ProcessRequest([]byte{0x10, 0xFF})
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x10, 0x12}) {
		t.Fatalf("unexpected response %x", resp.Bytes())
	}
	if s.Session() != SessionExtended {
		t.Errorf("session changed on rejected request")
	}

	// Truncated request.
	resp = s.ProcessRequest([]byte{0x10})
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x10, 0x35}) {
		t.Fatalf("unexpected response %x", resp.Bytes())
	}
}

func TestEmptyRequest(t *testing.T) {
	s := newTestServer()
	resp := s.ProcessRequest(nil)
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x10}) {
		t.Fatalf("unexpected response %x", resp.Bytes())
	}
}

func TestUnknownService(t *testing.T) {
	s := newTestServer()
	resp := s.ProcessRequest([]byte{0x34, 0x00})
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x34, 0x11}) {
		t.Fatalf("unexpected response %x", resp.Bytes())
	}
}

func TestReadStandardDID(t *testing.T) {
	s := newTestServer()
	resp := s.ProcessRequest([]byte{0x22, 0xF1, 0x0C})
	want := append([]byte{0x62, 0xF1, 0x0C}, []byte("Virtual ECU v1.0")...)
	if !bytes.Equal(resp.Bytes(), want) {
		t.Fatalf("got %x, want %x", resp.Bytes(), want)
	}
}

func TestReadMultipleDIDs(t *testing.T) {
	s := newTestServer()
	resp := s.ProcessRequest([]byte{0x22, 0xF1, 0x87, 0xF1, 0x9E})
	want := append([]byte{0x62, 0xF1, 0x87}, []byte("VIRTECU")...)
	want = append(want, 0xF1, 0x9E)
	want = append(want, []byte("1.0.0")...)
	if !bytes.Equal(resp.Bytes(), want) {
		t.Fatalf("got %x, want %x", resp.Bytes(), want)
	}
}

func TestReadUnknownDIDEchoesFirstRequested(t *testing.T) {
	s := newTestServer()

	// 0xDEAD is unknown; the read stops there and echoes the first
	// requested identifier even though it was readable.
	resp := s.ProcessRequest([]byte{0x22, 0xF1, 0x0C, 0xDE, 0xAD})
	if !bytes.Equal(resp.Bytes(), []byte{0x62, 0xF1, 0x0C}) {
		t.Fatalf("got %x, want 62 f1 0c", resp.Bytes())
	}

	// Leading unknown identifier echoes itself.
	resp = s.ProcessRequest([]byte{0x22, 0xDE, 0xAD, 0xF1, 0x0C})
	if !bytes.Equal(resp.Bytes(), []byte{0x62, 0xDE, 0xAD}) {
		t.Fatalf("got %x, want 62 de ad", resp.Bytes())
	}
}

func TestReadDIDTooShort(t *testing.T) {
	s := newTestServer()
	resp := s.ProcessRequest([]byte{0x22, 0xF1})
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x22, 0x35}) {
		t.Fatalf("got %x", resp.Bytes())
	}
}

func TestWriteThenReadDID(t *testing.T) {
	s := newTestServer()

	resp := s.ProcessRequest([]byte{0x2E, 0xF1, 0x23, 0xCA, 0xFE})
	if !bytes.Equal(resp.Bytes(), []byte{0x6E, 0xF1, 0x23}) {
		t.Fatalf("write response %x", resp.Bytes())
	}

	resp = s.ProcessRequest([]byte{0x22, 0xF1, 0x23})
	if !bytes.Equal(resp.Bytes(), []byte{0x62, 0xF1, 0x23, 0xCA, 0xFE}) {
		t.Fatalf("read-back response %x", resp.Bytes())
	}
}

func TestReadDTCByStatus(t *testing.T) {
	s := newTestServer()
	s.StoreDTC("P0171", 0x01)

	resp := s.ProcessRequest([]byte{0x19, 0x02, 0xFF})
	want := []byte{0x59, 0x59, 0x02, 0x00, 0x02, 0x01, 0x71, 0x01}
	if !bytes.Equal(resp.Bytes(), want) {
		t.Fatalf("got %x, want %x", resp.Bytes(), want)
	}

	code, err := DecodeDTC(resp.Bytes()[4:7])
	if err != nil {
		t.Fatal(err)
	}
	if code != "P0171" {
		t.Errorf("decoded %q, want P0171", code)
	}
}

func TestReadDTCOrderIsStable(t *testing.T) {
	s := newTestServer()
	s.StoreDTC("P0171", 0x01)
	s.StoreDTC("B1234", 0x02)
	s.StoreDTC("C0300", 0x03)

	resp := s.ProcessRequest([]byte{0x19, 0x02, 0xFF})
	payload := resp.Bytes()[4:]
	if len(payload) != 12 {
		t.Fatalf("payload %x, want 3 records of 4 bytes", payload)
	}
	wantCodes := []string{"P0171", "B1234", "C0300"}
	for i, want := range wantCodes {
		code, err := DecodeDTC(payload[i*4 : i*4+3])
		if err != nil {
			t.Fatal(err)
		}
		if code != want {
			t.Errorf("record %d decoded as %q, want %q", i, code, want)
		}
	}
}

func TestReadDTCAvailability(t *testing.T) {
	s := newTestServer()
	resp := s.ProcessRequest([]byte{0x19, 0x0A})
	if !bytes.Equal(resp.Bytes(), []byte{0x59, 0x0A, 0x00, 0x00, 0xFF}) {
		t.Fatalf("got %x", resp.Bytes())
	}
}

func TestReadDTCUnknownSubFunction(t *testing.T) {
	s := newTestServer()
	resp := s.ProcessRequest([]byte{0x19, 0x42})
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x19, 0x12}) {
		t.Fatalf("got %x", resp.Bytes())
	}
}

func TestMalformedDTCGeneralReject(t *testing.T) {
	s := newTestServer()
	s.StoreDTC("PXYZW", 0x01)

	resp := s.ProcessRequest([]byte{0x19, 0x02, 0xFF})
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x19, 0x10}) {
		t.Fatalf("got %x", resp.Bytes())
	}
}

func TestClearDTCGatedBySetting(t *testing.T) {
	s := newTestServer()
	s.StoreDTC("P0171", 0x01)

	// Disable fault storage, then clearing must be refused.
	resp := s.ProcessRequest([]byte{0x85, 0x00})
	if !bytes.Equal(resp.Bytes(), []byte{0xC5, 0x00}) {
		t.Fatalf("setting response %x", resp.Bytes())
	}
	if s.DTCSettingEnabled() {
		t.Fatal("DTC setting still enabled")
	}
	resp = s.ProcessRequest([]byte{0x14})
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x14, 0x22}) {
		t.Fatalf("clear while disabled: %x", resp.Bytes())
	}
	if len(s.DTCs()) != 1 {
		t.Fatal("DTCs cleared despite refusal")
	}

	// Re-enable and clear.
	s.ProcessRequest([]byte{0x85, 0x01})
	resp = s.ProcessRequest([]byte{0x14})
	if !bytes.Equal(resp.Bytes(), []byte{0x54, 0x00, 0x00}) {
		t.Fatalf("clear response %x", resp.Bytes())
	}
	if len(s.DTCs()) != 0 {
		t.Fatal("DTCs survived a clear")
	}
}

func TestSecurityAccess(t *testing.T) {
	s := newTestServer()

	resp := s.ProcessRequest([]byte{0x27, 0x01})
	if !bytes.Equal(resp.Bytes(), []byte{0x67, 0x01, 0x01, 0x02, 0x03, 0x04}) {
		t.Fatalf("seed response %x", resp.Bytes())
	}
	if s.SecurityLevel() != 0 {
		t.Error("seed request changed the security level")
	}

	// Any key unlocks; the level is half the sub-function.
	resp = s.ProcessRequest([]byte{0x27, 0x02, 0xDE, 0xAD, 0xBE, 0xEF})
	if !bytes.Equal(resp.Bytes(), []byte{0x67, 0x02}) {
		t.Fatalf("key response %x", resp.Bytes())
	}
	if s.SecurityLevel() != 1 {
		t.Errorf("security level %d, want 1", s.SecurityLevel())
	}
}

func TestRoutineControl(t *testing.T) {
	s := newTestServer()

	s.RegisterRoutine(0x0203, func(controlType byte, params []byte) ([]byte, error) {
		if controlType != 0x01 {
			t.Errorf("control type %#x, want 0x01", controlType)
		}
		if !bytes.Equal(params, []byte{0xAA}) {
			t.Errorf("params %x, want aa", params)
		}
		return []byte{0x55}, nil
	})

	resp := s.ProcessRequest([]byte{0x31, 0x01, 0x02, 0x03, 0xAA})
	if !bytes.Equal(resp.Bytes(), []byte{0x71, 0x01, 0x02, 0x03, 0x55}) {
		t.Fatalf("got %x", resp.Bytes())
	}
}

func TestRoutineErrors(t *testing.T) {
	s := newTestServer()

	s.RegisterRoutine(0x0001, func(byte, []byte) ([]byte, error) {
		return nil, errors.New("hardware absent")
	})
	s.RegisterRoutine(0x0002, func(byte, []byte) ([]byte, error) {
		panic("routine bug")
	})

	// Failing routine.
	resp := s.ProcessRequest([]byte{0x31, 0x01, 0x00, 0x01})
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x31, 0x22}) {
		t.Fatalf("error routine: %x", resp.Bytes())
	}

	// Panicking routine is contained and reported the same way.
	resp = s.ProcessRequest([]byte{0x31, 0x01, 0x00, 0x02})
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x31, 0x22}) {
		t.Fatalf("panic routine: %x", resp.Bytes())
	}

	// Unregistered routine.
	resp = s.ProcessRequest([]byte{0x31, 0x01, 0xEE, 0xEE})
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x31, 0x24}) {
		t.Fatalf("unregistered routine: %x", resp.Bytes())
	}

	// Truncated request.
	resp = s.ProcessRequest([]byte{0x31, 0x01, 0x00})
	if !bytes.Equal(resp.Bytes(), []byte{0x7F, 0x31, 0x35}) {
		t.Fatalf("short routine request: %x", resp.Bytes())
	}
}

func TestTesterPresent(t *testing.T) {
	s := newTestServer()

	resp := s.ProcessRequest([]byte{0x3E, 0x00})
	if !bytes.Equal(resp.Bytes(), []byte{0x7E, 0x00}) {
		t.Fatalf("got %x", resp.Bytes())
	}

	// Suppress positive response.
	resp = s.ProcessRequest([]byte{0x3E, 0x80})
	if !resp.Suppressed {
		t.Fatal("response not suppressed")
	}
	if resp.Bytes() != nil {
		t.Fatalf("suppressed response rendered bytes %x", resp.Bytes())
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newTestServer()

	type freezeFrame struct {
		Voltage float64 `cbor:"voltage"`
		SOC     float64 `cbor:"soc"`
	}
	in := freezeFrame{Voltage: 398.7, SOC: 81.5}
	if err := s.StoreDTCWithSnapshot("P0A80", 0x09, in); err != nil {
		t.Fatal(err)
	}

	records := s.DTCs()
	if len(records) != 1 {
		t.Fatalf("%d records, want 1", len(records))
	}
	var out freezeFrame
	if err := records[0].DecodeSnapshot(&out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}

	// A record without snapshot data refuses to decode.
	s.StoreDTC("P0172", 0x01)
	records = s.DTCs()
	if err := records[1].DecodeSnapshot(&out); err == nil {
		t.Fatal("expected an error for a record without snapshot")
	}
}

func TestClearStoredDTC(t *testing.T) {
	s := newTestServer()
	s.StoreDTC("P0171", 0x01)
	s.StoreDTC("P0172", 0x01)

	s.ClearStoredDTC("P0171")
	records := s.DTCs()
	if len(records) != 1 || records[0].Code != "P0172" {
		t.Fatalf("unexpected records %+v", records)
	}

	// Removing an absent code is a no-op.
	s.ClearStoredDTC("P9999")
	if len(s.DTCs()) != 1 {
		t.Fatal("no-op removal changed the store")
	}
}

func TestEncodeDTCShortCode(t *testing.T) {
	wire, err := EncodeDTC("P01")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(wire, []byte{0, 0, 0}) {
		t.Fatalf("got %x, want three zero bytes", wire)
	}
}

func TestDecodeDTCErrors(t *testing.T) {
	if _, err := DecodeDTC([]byte{0x02, 0x01}); err == nil {
		t.Error("short wire form accepted")
	}
	if _, err := DecodeDTC([]byte{0x07, 0x01, 0x71}); err == nil {
		t.Error("unknown system byte accepted")
	}
}
