// Package gatt defines the attribute-protocol client surface the core
// drives, and the per-connection request queue that serializes every
// outstanding operation toward a peer.
//
// The transport itself is an external collaborator: the platform stack
// implements Client and feeds completions back through EventHandler on
// the main loop.
package gatt

import (
	"encoding/hex"
	"fmt"
)

// Address is a 48-bit Bluetooth device address.
type Address [6]byte

// String renders the address in the usual colon form.
func (a Address) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		a[0], a[1], a[2], a[3], a[4], a[5])
}

// ParseAddress parses "AA:BB:CC:DD:EE:FF".
func ParseAddress(s string) (Address, error) {
	var a Address
	clean := make([]byte, 0, 12)
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			continue
		}
		clean = append(clean, s[i])
	}
	raw, err := hex.DecodeString(string(clean))
	if err != nil || len(raw) != 6 {
		return a, fmt.Errorf("invalid address %q", s)
	}
	copy(a[:], raw)
	return a, nil
}

// ConnID identifies an open attribute connection.
type ConnID uint16

// InvalidConnID marks a device without an open connection.
const InvalidConnID ConnID = 0xFFFF

// Status is an attribute-protocol operation status.
type Status uint8

// Attribute operation statuses.
const (
	StatusSuccess Status = 0x00
	StatusError   Status = 0x01
)

// WriteMode selects the ATT write flavor.
type WriteMode uint8

// Write modes.
const (
	WriteRequest WriteMode = iota
	WriteCommand
)

// CCCValue is the value written to a Client Characteristic
// Configuration descriptor.
type CCCValue uint16

// CCC descriptor values.
const (
	CCCNone         CCCValue = 0x0000
	CCCNotification CCCValue = 0x0001
	CCCIndication   CCCValue = 0x0002
)

// DisconnectReason distinguishes a locally requested close from a peer
// or link-loss disconnection.
type DisconnectReason uint8

// Disconnect reasons.
const (
	DisconnectLocalHost DisconnectReason = iota
	DisconnectRemote
	DisconnectTimeout
)

// DefaultMTU is the ATT MTU before any exchange.
const DefaultMTU = 23

// Service is a discovered attribute service.
type Service struct {
	UUID            UUID
	Handle          uint16
	EndHandle       uint16
	Primary         bool
	Characteristics []Characteristic
	IncludedUUIDs   []UUID
	IncludedHandles []uint16
}

// Characteristic is a discovered characteristic with its descriptors.
type Characteristic struct {
	UUID        UUID
	ValueHandle uint16
	Descriptors []Descriptor
}

// Descriptor is a discovered characteristic descriptor.
type Descriptor struct {
	UUID   UUID
	Handle uint16
}

// CCCHandle returns the characteristic's CCC descriptor handle, or 0
// when the peer exposes none.
func (c *Characteristic) CCCHandle() uint16 {
	for _, d := range c.Descriptors {
		if d.UUID.Equal(UUIDClientCharacteristicConfig) {
			return d.Handle
		}
	}
	return 0
}

// Client is the downcall surface toward the platform attribute client.
// Every method is non-blocking; results arrive via EventHandler.
type Client interface {
	// Open initiates a connection. Background opens are used for
	// autoconnect and reconnection; they do not time out.
	Open(addr Address, background bool)
	// CancelOpen withdraws a pending Open. direct selects whether the
	// active or the background request is cancelled.
	CancelOpen(addr Address, direct bool)
	// Close tears down the attribute connection.
	Close(conn ConnID)
	// ConfigureMTU requests an MTU exchange.
	ConfigureMTU(conn ConnID, mtu uint16)
	// ServiceSearch discovers services matching uuid.
	ServiceSearch(conn ConnID, uuid UUID)
	// Services returns the discovery result after OnSearchComplete.
	Services(conn ConnID) []Service
	// Read issues a characteristic read. tag is returned opaquely in
	// OnReadResponse.
	Read(conn ConnID, handle uint16, tag uint32)
	// Write issues a characteristic write.
	Write(conn ConnID, handle uint16, value []byte, mode WriteMode)
	// WriteDescriptor issues a descriptor write (CCC subscriptions).
	WriteDescriptor(conn ConnID, handle uint16, value []byte)
	// RegisterNotify enrolls handle for notification dispatch.
	RegisterNotify(addr Address, handle uint16) error
	// DeregisterNotify removes a notification registration.
	DeregisterNotify(addr Address, handle uint16)
	// StartEncryption kicks link encryption; completion arrives via
	// OnEncryptionComplete.
	StartEncryption(addr Address) error
	// IsEncrypted reports whether the link is already encrypted.
	IsEncrypted(addr Address) bool
}

// EventHandler is the upcall surface. The platform adapter posts every
// event to the main loop before invoking it.
type EventHandler interface {
	OnOpen(status Status, conn ConnID, addr Address, mtu uint16)
	OnClose(conn ConnID, addr Address, reason DisconnectReason)
	OnEncryptionComplete(addr Address, status Status)
	OnSearchComplete(conn ConnID, status Status)
	OnNotify(conn ConnID, handle uint16, value []byte)
	OnReadResponse(conn ConnID, handle uint16, status Status, value []byte, tag uint32)
	OnWriteResponse(conn ConnID, handle uint16, status Status)
	OnWriteDescriptorResponse(conn ConnID, handle uint16, status Status)
	OnMTUChanged(conn ConnID, mtu uint16)
	OnServiceChanged(addr Address)
	OnServiceDiscoveryDone(addr Address)
}
