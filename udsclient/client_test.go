package udsclient

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/virtual-hil/vecu/canbus"
	"github.com/virtual-hil/vecu/diagbus"
	"github.com/virtual-hil/vecu/uds"
)

func newTestPair(t *testing.T) (*Client, *uds.Server) {
	t.Helper()
	bus := canbus.New(canbus.Config{Logger: canbus.NopLogger()})
	t.Cleanup(bus.Close)
	server := uds.NewServer(uds.ServerConfig{Logger: log.New(io.Discard, "", 0)})
	responder := diagbus.NewResponder(bus, server, 0, 0)
	t.Cleanup(responder.Close)
	client := NewClient(bus, 0, 0)
	t.Cleanup(client.Close)
	client.timeout = 50 * time.Millisecond
	return client, server
}

func TestChangeSession(t *testing.T) {
	client, server := newTestPair(t)

	if err := client.ChangeSession(context.Background(), uds.SessionExtended); err != nil {
		t.Fatal(err)
	}
	if server.Session() != uds.SessionExtended {
		t.Fatalf("server session %s", server.Session())
	}
}

func TestNegativeResponseDecoding(t *testing.T) {
	client, _ := newTestPair(t)

	err := client.ChangeSession(context.Background(), uds.SessionType(0xFF))
	if err == nil {
		t.Fatal("invalid session accepted")
	}
	var udsErr *UDSError
	if !errors.As(err, &udsErr) {
		t.Fatalf("error is %T, want *UDSError", err)
	}
	if udsErr.ServiceID != uds.SIDDiagnosticSessionControl {
		t.Errorf("service ID 0x%02X", udsErr.ServiceID)
	}
	if udsErr.NRC != uds.NRCSubFunctionNotSupported {
		t.Errorf("NRC 0x%02X", udsErr.NRC)
	}
	if udsErr.Message != "sub-function not supported" {
		t.Errorf("message %q", udsErr.Message)
	}
}

func TestWriteAndReadShortDID(t *testing.T) {
	client, _ := newTestPair(t)
	ctx := context.Background()

	// Two value bytes keep the read response within a single frame.
	if err := client.WriteDataByIdentifier(ctx, 0xF123, []byte{0xCA, 0xFE}); err != nil {
		t.Fatal(err)
	}
	value, err := client.ReadDataByIdentifier(ctx, 0xF123)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(value, []byte{0xCA, 0xFE}) {
		t.Fatalf("got %x", value)
	}
}

func TestReadOversizedDID(t *testing.T) {
	client, _ := newTestPair(t)

	// The serial number does not fit a single frame; the responder turns
	// that into a response-too-long negative.
	_, err := client.ReadDataByIdentifier(context.Background(), uds.DIDSerialNumber)
	var udsErr *UDSError
	if !errors.As(err, &udsErr) {
		t.Fatalf("error is %T (%v), want *UDSError", err, err)
	}
	if udsErr.NRC != uds.NRCResponseTooLong {
		t.Errorf("NRC 0x%02X, want response too long", udsErr.NRC)
	}
}

func TestTesterPresent(t *testing.T) {
	client, _ := newTestPair(t)
	ctx := context.Background()

	if err := client.TesterPresent(ctx, false); err != nil {
		t.Fatal(err)
	}
	// Suppressed keep-alive completes without a response.
	if err := client.TesterPresent(ctx, true); err != nil {
		t.Fatal(err)
	}
}

func TestSuppressedResponseTimesOutRawRequest(t *testing.T) {
	client, _ := newTestPair(t)

	_, err := client.Request(context.Background(), []byte{uds.SIDTesterPresent, 0x80})
	if err == nil {
		t.Fatal("expected a timeout")
	}
	var udsErr *UDSError
	if errors.As(err, &udsErr) {
		t.Fatalf("got a negative response: %v", err)
	}
}

func TestUnlock(t *testing.T) {
	client, server := newTestPair(t)

	if err := client.Unlock(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if server.SecurityLevel() != 1 {
		t.Fatalf("security level %d, want 1", server.SecurityLevel())
	}
}

func TestRequestContextCancel(t *testing.T) {
	bus := canbus.New(canbus.Config{Logger: canbus.NopLogger()})
	defer bus.Close()
	// No responder attached, so nothing ever answers.
	client := NewClient(bus, 0, 0)
	defer client.Close()
	client.timeout = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Request(ctx, []byte{uds.SIDTesterPresent, 0x00})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestEmptyRequestRejected(t *testing.T) {
	client, _ := newTestPair(t)
	if _, err := client.Request(context.Background(), nil); err == nil {
		t.Fatal("empty payload accepted")
	}
}

func TestKeyFromSeed(t *testing.T) {
	seed := []byte{0x01, 0x02, 0x03, 0x04}
	key, err := KeyFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	if len(key) != keyLength {
		t.Fatalf("key length %d, want %d", len(key), keyLength)
	}

	// The derivation is deterministic and seed dependent.
	again, err := KeyFromSeed(seed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(key, again) {
		t.Fatal("derivation is not deterministic")
	}
	other, err := KeyFromSeed([]byte{0x05, 0x06, 0x07, 0x08})
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(key, other) {
		t.Fatal("different seeds produced the same key")
	}

	if _, err := KeyFromSeed(nil); err == nil {
		t.Fatal("empty seed accepted")
	}
}
