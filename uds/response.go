package uds

// Response is the outcome of dispatching one request.
type Response struct {
	// SID is the request service identifier the response belongs to.
	SID byte
	// Data carries the positive response payload after the response SID.
	Data []byte
	// Negative marks a negative response; NRC holds the code.
	Negative bool
	NRC      byte
	// Suppressed marks a request whose positive response must not be sent.
	Suppressed bool

	// omitSID drops the echoed service identifier from the wire form.
	// Used only for requests too short to carry a SID at all.
	omitSID bool
}

// NegativeResponse builds a negative response for sid with the given code.
func NegativeResponse(sid, nrc byte) Response {
	return Response{SID: sid, Negative: true, NRC: nrc}
}

func positiveResponse(sid byte, data []byte) Response {
	return Response{SID: sid, Data: data}
}

func suppressedResponse(sid byte) Response {
	return Response{SID: sid, Suppressed: true}
}

// Bytes renders the response as a wire payload. A suppressed response
// renders as nil, meaning nothing is transmitted.
func (r Response) Bytes() []byte {
	if r.Suppressed {
		return nil
	}
	if r.Negative {
		if r.omitSID {
			return []byte{NegativeResponseSID, r.NRC}
		}
		return []byte{NegativeResponseSID, r.SID, r.NRC}
	}
	out := make([]byte, 0, 1+len(r.Data))
	out = append(out, responseSID(r.SID))
	return append(out, r.Data...)
}
