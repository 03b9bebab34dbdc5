// Package iso defines the HCI/ISO manager surface the unicast client
// drives for the isochronous audio plane: CIG and CIS lifecycle, data
// paths, SDU transfer and link quality.
//
// The manager itself is an external collaborator; completions arrive
// through CIGCallbacks on the main loop. SDU ingress may arrive on a
// controller I/O goroutine and is posted to the main loop before any
// group or device state is touched.
package iso

import (
	"fmt"
	"io"
	"sync"

	"go.uber.org/atomic"

	"github.com/opd-ai/leaudio/gatt"
)

// HCI status values the core inspects.
const (
	StatusSuccess uint8 = 0x00
)

// Data path directions, as seen from the controller.
const (
	DataPathDirectionInput  uint8 = 0x00 // host to controller (sink ASEs)
	DataPathDirectionOutput uint8 = 0x01 // controller to host (source ASEs)
)

// DataPathIDHCI selects the HCI transport for the data path.
const DataPathIDHCI uint8 = 0x00

// Packing and framing values for Create CIG.
const (
	PackingSequential uint8 = 0x00
	PackingInterleaved uint8 = 0x01
	FramingUnframed    uint8 = 0x00
	FramingFramed      uint8 = 0x01
)

// PHY bits.
const (
	PHY1M    uint8 = 0x01
	PHY2M    uint8 = 0x02
	PHYCoded uint8 = 0x04
)

// CISParams is one CIS entry of a Create CIG command.
type CISParams struct {
	CISID      uint8
	MaxSDUMToS uint16
	MaxSDUSToM uint16
	PHYMToS    uint8
	PHYSToM    uint8
	RTNMToS    uint8
	RTNSToM    uint8
}

// CIGParams is the Create CIG parameter block. One CIS entry per
// device slot, in allocation order, a device's sink and source ASEs
// sharing one bidirectional CIS; the completion returns CIS
// connection handles in the same order.
type CIGParams struct {
	SDUIntervalMToSUs   uint32
	SDUIntervalSToMUs   uint32
	SCA                 uint8
	Packing             uint8
	Framing             uint8
	MaxTransLatMToSMs   uint16
	MaxTransLatSToMMs   uint16
	CIS                 []CISParams
}

// CISPair binds a CIS connection handle to the ACL of the device it
// is established on.
type CISPair struct {
	CISConnHandle uint16
	ACLAddress    gatt.Address
}

// DataPathParams configures one direction of a CIS data path.
type DataPathParams struct {
	Direction         uint8
	DataPathID        uint8
	CodecFormat       uint8
	CompanyID         uint16
	VendorCodecID     uint16
	ControllerDelayUs uint32
}

// CISEstablishedEvent reports CIS establishment.
type CISEstablishedEvent struct {
	Status             uint8
	CISConnHandle      uint16
	TransLatencyMToSUs uint32
	TransLatencySToMUs uint32
	MaxPDUMToS         uint16
	MaxPDUSToM         uint16
}

// CISDisconnectedEvent reports CIS teardown.
type CISDisconnectedEvent struct {
	CISConnHandle uint16
	Reason        uint8
}

// LinkQualityEvent carries the ISO link quality counters of one CIS.
type LinkQualityEvent struct {
	CISConnHandle        uint16
	CIGID                uint8
	TxUnackedPackets     uint32
	TxFlushedPackets     uint32
	TxLastSubeventPackets uint32
	RetransmittedPackets uint32
	CRCErrorPackets      uint32
	RxUnreceivedPackets  uint32
	DuplicatePackets     uint32
}

// CIGCallbacks is the completion surface registered with the manager.
type CIGCallbacks interface {
	OnCIGCreated(status uint8, cigID uint8, connHandles []uint16)
	OnCIGRemoved(status uint8, cigID uint8)
	OnCISEstablished(evt *CISEstablishedEvent)
	OnCISDisconnected(evt *CISDisconnectedEvent)
	OnSetupIsoDataPath(status uint8, cisConnHandle uint16, cigID uint8)
	OnRemoveIsoDataPath(status uint8, cisConnHandle uint16, cigID uint8)
	OnIsoLinkQualityRead(evt *LinkQualityEvent)
	// OnIsoDataReceived delivers an uplink SDU. May be invoked from
	// the controller I/O goroutine; the receiver owns the handoff to
	// the main loop or a dedicated audio goroutine.
	OnIsoDataReceived(cisConnHandle uint16, timestamp uint32, payload []byte)
}

// Manager is the downcall surface toward the HCI/ISO manager.
type Manager interface {
	RegisterCIGCallbacks(cb CIGCallbacks)
	CreateCIG(cigID uint8, params CIGParams)
	RemoveCIG(cigID uint8)
	EstablishCIS(pairs []CISPair)
	DisconnectCIS(cisConnHandle uint16, reason uint8)
	SetupIsoDataPath(cisConnHandle uint16, params DataPathParams)
	RemoveIsoDataPath(cisConnHandle uint16, directionMask uint8)
	SendIsoData(cisConnHandle uint16, payload []byte)
	ReadIsoLinkQuality(cisConnHandle uint16)
	// RequestPeerSCA asks for the peer's sleep clock accuracy hint.
	RequestPeerSCA(addr gatt.Address)
	// SetPreferredPHY requests 2M PHY on the ACL when the controller
	// supports it.
	SetPreferredPHY(addr gatt.Address, txPHY, rxPHY uint8)
	// DisconnectACL force-closes the ACL link of a stuck peer.
	DisconnectACL(addr gatt.Address)
}

// LinkStats accumulates per-CIS quality counters. Counters use atomic
// values so the controller I/O goroutine can bump SDU totals without
// taking the main loop.
type LinkStats struct {
	SDUsSent     atomic.Uint64
	SDUsReceived atomic.Uint64

	TxUnacked    atomic.Uint64
	Retransmits  atomic.Uint64
	CRCErrors    atomic.Uint64
	RxUnreceived atomic.Uint64
}

// Update folds a link quality event into the counters.
func (s *LinkStats) Update(evt *LinkQualityEvent) {
	s.TxUnacked.Store(uint64(evt.TxUnackedPackets))
	s.Retransmits.Store(uint64(evt.RetransmittedPackets))
	s.CRCErrors.Store(uint64(evt.CRCErrorPackets))
	s.RxUnreceived.Store(uint64(evt.RxUnreceivedPackets))
}

// StatsBook tracks LinkStats per CIS handle.
type StatsBook struct {
	mu    sync.Mutex
	byCIS map[uint16]*LinkStats
}

// NewStatsBook creates an empty stats book.
func NewStatsBook() *StatsBook {
	return &StatsBook{byCIS: make(map[uint16]*LinkStats)}
}

// For returns the stats record of a CIS, creating it on first use.
func (b *StatsBook) For(cisConnHandle uint16) *LinkStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.byCIS[cisConnHandle]
	if !ok {
		s = &LinkStats{}
		b.byCIS[cisConnHandle] = s
	}
	return s
}

// Drop forgets a CIS.
func (b *StatsBook) Drop(cisConnHandle uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byCIS, cisConnHandle)
}

// Dump writes the counters for DebugDump.
func (b *StatsBook) Dump(w io.Writer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for cis, s := range b.byCIS {
		fmt.Fprintf(w, "    cis 0x%04x: sent %d received %d retransmits %d crc_errors %d unreceived %d\n",
			cis, s.SDUsSent.Load(), s.SDUsReceived.Load(),
			s.Retransmits.Load(), s.CRCErrors.Load(), s.RxUnreceived.Load())
	}
}
