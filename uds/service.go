// Package uds implements the diagnostic service dispatcher: a UDS server
// that accepts raw request payloads, routes them by service identifier and
// produces positive or negative responses with the exact byte layout of the
// simulated bench ECU.
package uds

// Service identifiers handled by the dispatcher.
const (
	SIDDiagnosticSessionControl = 0x10
	SIDClearDiagnosticInfo      = 0x14
	SIDReadDTCInformation       = 0x19
	SIDReadDataByIdentifier     = 0x22
	SIDSecurityAccess           = 0x27
	SIDWriteDataByIdentifier    = 0x2E
	SIDRoutineControl           = 0x31
	SIDTesterPresent            = 0x3E
	SIDControlDTCSetting        = 0x85
)

// NegativeResponseSID marks a negative response payload.
const NegativeResponseSID = 0x7F

// Negative response codes produced by the dispatcher.
const (
	NRCGeneralReject           = 0x10
	NRCServiceNotSupported     = 0x11
	NRCSubFunctionNotSupported = 0x12
	NRCResponseTooLong         = 0x14
	NRCConditionsNotCorrect    = 0x22
	NRCRequestSequenceError    = 0x24
	NRCRequestOutOfRange       = 0x31
	NRCSecurityAccessDenied    = 0x33
	NRCInvalidKey              = 0x35
)

// responseSID maps a request SID to its positive response SID.
func responseSID(sid byte) byte { return sid + 0x40 }
