package uds

import (
	"log"
	"os"
	"sync"
	"time"
)

// handlerFunc processes one request payload. The payload is non-empty and
// payload[0] is the SID the handler is registered for.
type handlerFunc func(request []byte) Response

// ServerConfig collects the dispatcher settings.
type ServerConfig struct {
	// ECUName labels log output; defaults to "VirtualECU".
	ECUName string
	// Logger receives dispatcher log output; defaults to a stderr logger.
	Logger *log.Logger
	// Now supplies the tester-present activity clock; defaults to time.Now.
	Now func() time.Time
}

// Server is the UDS diagnostic service dispatcher. It is transport
// independent: requests arrive as raw payloads through ProcessRequest and
// responses are returned as values, never transmitted directly.
//
// All methods are safe for concurrent use.
type Server struct {
	cfg      ServerConfig
	handlers map[byte]handlerFunc

	mu              sync.Mutex
	session         *sessionMachine
	securityLevel   byte
	dataIdentifiers map[uint16][]byte
	dtcs            *dtcStore
	routines        map[uint16]RoutineFunc
	dtcSettingOn    bool
	lastActivity    time.Time
}

// NewServer creates a dispatcher with the standard data identifiers
// provisioned and DTC setting enabled.
func NewServer(cfg ServerConfig) *Server {
	if cfg.ECUName == "" {
		cfg.ECUName = "VirtualECU"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[uds] ", log.LstdFlags|log.Lmicroseconds)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		cfg:             cfg,
		session:         newSessionMachine(),
		dataIdentifiers: standardDataIdentifiers(),
		dtcs:            newDTCStore(),
		routines:        make(map[uint16]RoutineFunc),
		dtcSettingOn:    true,
		lastActivity:    cfg.Now(),
	}
	s.handlers = map[byte]handlerFunc{
		SIDDiagnosticSessionControl: s.handleSessionControl,
		SIDClearDiagnosticInfo:      s.handleClearDTC,
		SIDReadDTCInformation:       s.handleReadDTC,
		SIDReadDataByIdentifier:     s.handleReadDID,
		SIDSecurityAccess:           s.handleSecurityAccess,
		SIDWriteDataByIdentifier:    s.handleWriteDID,
		SIDRoutineControl:           s.handleRoutineControl,
		SIDTesterPresent:            s.handleTesterPresent,
		SIDControlDTCSetting:        s.handleDTCSetting,
	}
	return s
}

// ProcessRequest dispatches one raw request payload and returns the
// response. An empty request yields a bare general reject without an echoed
// SID. A handler panic is converted into a general reject for the SID.
func (s *Server) ProcessRequest(request []byte) Response {
	if len(request) < 1 {
		return Response{Negative: true, NRC: NRCGeneralReject, omitSID: true}
	}

	sid := request[0]

	// Any addressed request counts as tester activity, not just 0x3E.
	s.mu.Lock()
	s.lastActivity = s.cfg.Now()
	s.mu.Unlock()

	handler, ok := s.handlers[sid]
	if !ok {
		return NegativeResponse(sid, NRCServiceNotSupported)
	}
	return s.dispatch(sid, handler, request)
}

func (s *Server) dispatch(sid byte, handler handlerFunc, request []byte) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			s.cfg.Logger.Printf("%s: error processing request 0x%02X: %v", s.cfg.ECUName, sid, r)
			resp = NegativeResponse(sid, NRCGeneralReject)
		}
	}()
	return handler(request)
}

// handleSessionControl implements diagnostic session control (0x10). The
// positive response echoes the session type followed by two zero timing
// bytes.
func (s *Server) handleSessionControl(request []byte) Response {
	if len(request) < 2 {
		return NegativeResponse(SIDDiagnosticSessionControl, NRCInvalidKey)
	}
	target := SessionType(request[1])

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.session.Enter(target); err != nil {
		return NegativeResponse(SIDDiagnosticSessionControl, NRCSubFunctionNotSupported)
	}
	s.cfg.Logger.Printf("%s: session changed to %s", s.cfg.ECUName, target)
	return positiveResponse(SIDDiagnosticSessionControl, []byte{byte(target), 0x00, 0x00})
}

// handleReadDID implements read data by identifier (0x22). Identifiers are
// read in request order; the first unknown identifier short-circuits into a
// positive response echoing the first requested identifier with no data.
func (s *Server) handleReadDID(request []byte) Response {
	if len(request) < 3 {
		return NegativeResponse(SIDReadDataByIdentifier, NRCInvalidKey)
	}

	var dids []uint16
	for i := 1; i+1 < len(request); i += 2 {
		dids = append(dids, uint16(request[i])<<8|uint16(request[i+1]))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var data []byte
	for _, did := range dids {
		value, ok := s.dataIdentifiers[did]
		if !ok {
			return positiveResponse(SIDReadDataByIdentifier,
				[]byte{byte(dids[0] >> 8), byte(dids[0])})
		}
		data = append(data, byte(did>>8), byte(did))
		data = append(data, value...)
	}
	return positiveResponse(SIDReadDataByIdentifier, data)
}

// handleWriteDID implements write data by identifier (0x2E). Any identifier
// may be written; the value replaces whatever was stored.
func (s *Server) handleWriteDID(request []byte) Response {
	if len(request) < 3 {
		return NegativeResponse(SIDWriteDataByIdentifier, NRCInvalidKey)
	}
	did := uint16(request[1])<<8 | uint16(request[2])
	value := make([]byte, len(request)-3)
	copy(value, request[3:])

	s.mu.Lock()
	s.dataIdentifiers[did] = value
	s.mu.Unlock()
	s.cfg.Logger.Printf("%s: wrote DID 0x%04X: %x", s.cfg.ECUName, did, value)

	return positiveResponse(SIDWriteDataByIdentifier, []byte{byte(did >> 8), byte(did)})
}

// handleReadDTC implements read DTC information (0x19). Sub-function 0x02
// reports stored codes by status mask; the payload repeats the response SID
// before the sub-function, preserving the wire layout of the bench ECU.
// Sub-function 0x0A reports full status availability.
func (s *Server) handleReadDTC(request []byte) Response {
	if len(request) < 2 {
		return NegativeResponse(SIDReadDTCInformation, NRCInvalidKey)
	}

	switch request[1] {
	case 0x02:
		data := []byte{0x59, 0x02, 0x00}
		s.mu.Lock()
		records := s.dtcs.all()
		s.mu.Unlock()
		for _, rec := range records {
			wire, err := EncodeDTC(rec.Code)
			if err != nil {
				panic(err)
			}
			data = append(data, wire...)
			data = append(data, rec.Status)
		}
		return positiveResponse(SIDReadDTCInformation, data)
	case 0x0A:
		return positiveResponse(SIDReadDTCInformation, []byte{0x0A, 0x00, 0x00, 0xFF})
	default:
		return NegativeResponse(SIDReadDTCInformation, NRCSubFunctionNotSupported)
	}
}

// handleClearDTC implements clear diagnostic information (0x14). Clearing
// is refused while DTC setting is disabled.
func (s *Server) handleClearDTC(request []byte) Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dtcSettingOn {
		return NegativeResponse(SIDClearDiagnosticInfo, NRCConditionsNotCorrect)
	}
	s.dtcs.clear()
	s.cfg.Logger.Printf("%s: all DTCs cleared", s.cfg.ECUName)
	return positiveResponse(SIDClearDiagnosticInfo, []byte{0x00, 0x00})
}

// handleSecurityAccess implements security access (0x27). Odd sub-functions
// request a seed, even sub-functions send a key. The simulated ECU hands
// out a fixed seed and accepts any key, granting level sub-function/2.
func (s *Server) handleSecurityAccess(request []byte) Response {
	if len(request) < 2 {
		return NegativeResponse(SIDSecurityAccess, NRCInvalidKey)
	}
	sub := request[1]
	if sub%2 == 1 {
		return positiveResponse(SIDSecurityAccess, []byte{sub, 0x01, 0x02, 0x03, 0x04})
	}
	s.mu.Lock()
	s.securityLevel = sub / 2
	s.mu.Unlock()
	return positiveResponse(SIDSecurityAccess, []byte{sub})
}

// handleRoutineControl implements routine control (0x31). A routine error
// maps to conditions not correct; an unregistered routine to request
// sequence error.
func (s *Server) handleRoutineControl(request []byte) Response {
	if len(request) < 4 {
		return NegativeResponse(SIDRoutineControl, NRCInvalidKey)
	}
	controlType := request[1]
	routineID := uint16(request[2])<<8 | uint16(request[3])

	s.mu.Lock()
	fn, ok := s.routines[routineID]
	s.mu.Unlock()
	if !ok {
		return NegativeResponse(SIDRoutineControl, NRCRequestSequenceError)
	}

	result, err := runRoutine(fn, controlType, request[4:])
	if err != nil {
		s.cfg.Logger.Printf("%s: routine 0x%04X error: %v", s.cfg.ECUName, routineID, err)
		return NegativeResponse(SIDRoutineControl, NRCConditionsNotCorrect)
	}
	data := append([]byte{controlType, byte(routineID >> 8), byte(routineID)}, result...)
	return positiveResponse(SIDRoutineControl, data)
}

// handleTesterPresent implements tester present (0x3E). Sub-function 0x80
// suppresses the positive response entirely.
func (s *Server) handleTesterPresent(request []byte) Response {
	if len(request) > 1 && request[1] == 0x80 {
		return suppressedResponse(SIDTesterPresent)
	}
	return positiveResponse(SIDTesterPresent, []byte{0x00})
}

// handleDTCSetting implements control DTC setting (0x85). Zero disables
// fault storage, any other value enables it; the setting byte is echoed.
func (s *Server) handleDTCSetting(request []byte) Response {
	if len(request) < 2 {
		return NegativeResponse(SIDControlDTCSetting, NRCInvalidKey)
	}
	setting := request[1]

	s.mu.Lock()
	s.dtcSettingOn = setting != 0
	on := s.dtcSettingOn
	s.mu.Unlock()
	if on {
		s.cfg.Logger.Printf("%s: DTC setting ON", s.cfg.ECUName)
	} else {
		s.cfg.Logger.Printf("%s: DTC setting OFF", s.cfg.ECUName)
	}

	return positiveResponse(SIDControlDTCSetting, []byte{setting})
}

// StoreDTC records a trouble code without freeze-frame data. Re-storing an
// existing code updates its status.
func (s *Server) StoreDTC(code string, status byte) {
	s.mu.Lock()
	s.dtcs.put(NewDTCRecord(code, status))
	s.mu.Unlock()
	s.cfg.Logger.Printf("%s: DTC stored: %s", s.cfg.ECUName, code)
}

// StoreDTCWithSnapshot records a trouble code with freeze-frame data.
func (s *Server) StoreDTCWithSnapshot(code string, status byte, snapshot any) error {
	rec, err := NewDTCRecordWithSnapshot(code, status, snapshot)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.dtcs.put(rec)
	s.mu.Unlock()
	s.cfg.Logger.Printf("%s: DTC stored: %s", s.cfg.ECUName, code)
	return nil
}

// ClearStoredDTC removes a single trouble code. Removing an absent code is
// a no-op.
func (s *Server) ClearStoredDTC(code string) {
	s.mu.Lock()
	s.dtcs.remove(code)
	s.mu.Unlock()
}

// DTCs returns the stored trouble codes in storage order.
func (s *Server) DTCs() []DTCRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dtcs.all()
}

// RegisterRoutine registers fn under routineID, replacing any previous
// registration.
func (s *Server) RegisterRoutine(routineID uint16, fn RoutineFunc) {
	s.mu.Lock()
	s.routines[routineID] = fn
	s.mu.Unlock()
}

// SetDataIdentifier stores a data identifier value directly, bypassing the
// write service.
func (s *Server) SetDataIdentifier(did uint16, value []byte) {
	buf := make([]byte, len(value))
	copy(buf, value)
	s.mu.Lock()
	s.dataIdentifiers[did] = buf
	s.mu.Unlock()
}

// DataIdentifier returns the stored value for did.
func (s *Server) DataIdentifier(did uint16) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.dataIdentifiers[did]
	if !ok {
		return nil, false
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	return buf, true
}

// Session returns the active diagnostic session.
func (s *Server) Session() SessionType {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Current()
}

// SecurityLevel returns the unlocked security level, zero when locked.
func (s *Server) SecurityLevel() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.securityLevel
}

// DTCSettingEnabled reports whether fault storage is enabled.
func (s *Server) DTCSettingEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dtcSettingOn
}

// LastActivity returns the time of the most recent request.
func (s *Server) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}
