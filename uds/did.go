package uds

// Standard data identifiers provisioned at startup.
const (
	DIDSessionStatus   = 0xF10B
	DIDSerialNumber    = 0xF10C
	DIDHardwareNumber  = 0xF187
	DIDSupplier        = 0xF198
	DIDSoftwareVersion = 0xF19E
)

// standardDataIdentifiers returns the identification records every
// simulated ECU exposes before any write has happened.
func standardDataIdentifiers() map[uint16][]byte {
	return map[uint16][]byte{
		DIDSerialNumber:    []byte("Virtual ECU v1.0"),
		DIDHardwareNumber:  []byte("VIRTECU"),
		DIDSoftwareVersion: []byte("1.0.0"),
		DIDSupplier:        []byte("Virtual HIL Framework"),
		DIDSessionStatus:   {0x01},
	}
}
