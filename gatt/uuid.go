package gatt

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
)

// UUID is a BLE UUID, stored little-endian as it travels on the wire.
// LE Audio only ever deals in 16-bit SIG-assigned values, but 128-bit
// vendor UUIDs can appear in the peer's attribute table.
type UUID []byte

// UUID16 converts a SIG-assigned 16-bit value to a UUID.
func UUID16(i uint16) UUID {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, i)
	return UUID(b)
}

// ParseUUID parses "1850" or a full 128-bit hyphenated form.
func ParseUUID(s string) (UUID, error) {
	s = strings.ReplaceAll(s, "-", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != 2 && len(b) != 16 {
		return nil, fmt.Errorf("UUIDs must have length 2 or 16, got %d", len(b))
	}
	// Reverse into wire order.
	u := make(UUID, len(b))
	for i := range b {
		u[i] = b[len(b)-1-i]
	}
	return u, nil
}

// Equal reports whether two UUIDs are the same value.
func (u UUID) Equal(v UUID) bool {
	if len(u) != len(v) {
		return false
	}
	for i := range u {
		if u[i] != v[i] {
			return false
		}
	}
	return true
}

// String hex-encodes the UUID big-endian.
func (u UUID) String() string {
	b := make([]byte, len(u))
	for i := range u {
		b[i] = u[len(u)-1-i]
	}
	return hex.EncodeToString(b)
}

// LE Audio services.
var (
	// UUIDPublishedAudioCapabilityService is PACS.
	UUIDPublishedAudioCapabilityService = UUID16(0x1850)
	// UUIDAudioStreamControlService is ASCS.
	UUIDAudioStreamControlService = UUID16(0x184E)
	// UUIDCoordinatedSetIdentificationService is CSIS.
	UUIDCoordinatedSetIdentificationService = UUID16(0x1846)
	// UUIDCommonAudioService is CAS.
	UUIDCommonAudioService = UUID16(0x1853)
)

// PACS characteristics.
var (
	UUIDSinkPAC                = UUID16(0x2BC9)
	UUIDSinkAudioLocations     = UUID16(0x2BCA)
	UUIDSourcePAC              = UUID16(0x2BCB)
	UUIDSourceAudioLocations   = UUID16(0x2BCC)
	UUIDAvailableAudioContexts = UUID16(0x2BCD)
	UUIDSupportedAudioContexts = UUID16(0x2BCE)
)

// ASCS characteristics.
var (
	UUIDSinkASE         = UUID16(0x2BC4)
	UUIDSourceASE       = UUID16(0x2BC5)
	UUIDASEControlPoint = UUID16(0x2BC6)
)

// UUIDClientCharacteristicConfig is the CCC descriptor.
var UUIDClientCharacteristicConfig = UUID16(0x2902)
