// Package device maintains the per-peer state of the unicast client:
// discovered attribute handles, PAC records, audio locations, context
// bitmaps and the ASE list with its per-endpoint stream state.
//
// Devices refer to their owning group by id only; the group registry
// resolves the id back to the group.
package device

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/gatt"
	"github.com/opd-ai/leaudio/pacs"
)

// GroupUnknown marks a device not assigned to any group.
const GroupUnknown = -1

// DataPathState tracks one ASE's isochronous plumbing.
type DataPathState uint8

// Data path states.
const (
	DataPathIdle DataPathState = iota
	DataPathCISAssigned
	DataPathCISPending
	DataPathCISEstablished
	DataPathEstablished
	DataPathCISDisconnecting
	DataPathRemoving
)

// String names the data path state for logs.
func (s DataPathState) String() string {
	switch s {
	case DataPathIdle:
		return "IDLE"
	case DataPathCISAssigned:
		return "CIS_ASSIGNED"
	case DataPathCISPending:
		return "CIS_PENDING"
	case DataPathCISEstablished:
		return "CIS_ESTABLISHED"
	case DataPathEstablished:
		return "DATA_PATH_ESTABLISHED"
	case DataPathCISDisconnecting:
		return "CIS_DISCONNECTING"
	case DataPathRemoving:
		return "DATA_PATH_REMOVING"
	default:
		return "UNKNOWN"
	}
}

// HandlePair is a characteristic value handle with its CCC descriptor
// handle; CCC is zero when the peer exposes none.
type HandlePair struct {
	Value uint16
	CCC   uint16
}

// ASE is one Audio Stream Endpoint of a device.
type ASE struct {
	// ID is the peer-assigned ASE id, learned from the first state
	// read; zero until then.
	ID        uint8
	Handles   HandlePair
	Direction ascs.Direction

	State ascs.State
	// Active marks the ASE as participating in the current stream
	// configuration.
	Active bool

	CodecConfig ascs.CodecConfig
	QoS         ascs.QoSConfig

	CISID         uint8
	CISConnHandle uint16
	DataPath      DataPathState
}

// PACRecords pairs a PAC characteristic's handles with its parsed
// records.
type PACRecords struct {
	Handles HandlePair
	Records []pacs.Record
}

// Device is one LE Audio peer.
type Device struct {
	Address   gatt.Address
	ConnID    gatt.ConnID
	MTU       uint16
	Encrypted bool

	GroupID int

	KnownServiceHandles      bool
	CsisMember               bool
	ConnectingActively       bool
	RemovingDevice           bool
	FirstConnection          bool
	NotifyConnectedAfterRead bool

	// AudioDirections is the OR of directions whose locations have
	// been learned.
	AudioDirections uint8

	SinkPACs   []PACRecords
	SourcePACs []PACRecords

	SinkLocations         pacs.AudioLocations
	SourceLocations       pacs.AudioLocations
	SinkLocationsHandles  HandlePair
	SourceLocationsHandles HandlePair

	SinkAvailableContexts   pacs.AudioContexts
	SourceAvailableContexts pacs.AudioContexts
	SinkSupportedContexts   pacs.AudioContexts
	SourceSupportedContexts pacs.AudioContexts

	AvailableContextsHandles HandlePair
	SupportedContextsHandles HandlePair
	ControlPointHandles      HandlePair

	ASEs []*ASE
}

// New creates a device record. firstConnection distinguishes an
// explicit Connect from a storage restore.
func New(addr gatt.Address, firstConnection bool) *Device {
	logrus.WithFields(logrus.Fields{
		"function":         "New",
		"address":          addr.String(),
		"first_connection": firstConnection,
	}).Info("Creating LE Audio device")

	return &Device{
		Address:         addr,
		ConnID:          gatt.InvalidConnID,
		GroupID:         GroupUnknown,
		FirstConnection: firstConnection,
	}
}

// Connected reports whether the device has an open attribute
// connection.
func (d *Device) Connected() bool {
	return d.ConnID != gatt.InvalidConnID
}

// AseByValueHandle resolves an ASE from its characteristic value
// handle.
func (d *Device) AseByValueHandle(handle uint16) *ASE {
	for _, a := range d.ASEs {
		if a.Handles.Value == handle {
			return a
		}
	}
	return nil
}

// AseByID resolves an ASE from the peer-assigned id.
func (d *Device) AseByID(id uint8) *ASE {
	for _, a := range d.ASEs {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// AseByCISHandle resolves an ASE from its CIS connection handle.
func (d *Device) AseByCISHandle(cisHandle uint16) *ASE {
	for _, a := range d.ASEs {
		if a.Active && a.CISConnHandle == cisHandle {
			return a
		}
	}
	return nil
}

// ActiveASEs returns the ASEs participating in the current stream.
func (d *Device) ActiveASEs() []*ASE {
	var out []*ASE
	for _, a := range d.ASEs {
		if a.Active {
			out = append(out, a)
		}
	}
	return out
}

// ActiveASEsByDirection filters active ASEs by direction.
func (d *Device) ActiveASEsByDirection(dir ascs.Direction) []*ASE {
	var out []*ASE
	for _, a := range d.ASEs {
		if a.Active && a.Direction == dir {
			out = append(out, a)
		}
	}
	return out
}

// InactiveASEsByDirection returns endpoints of a direction not yet
// bound to the stream, used when allocating a configuration.
func (d *Device) InactiveASEsByDirection(dir ascs.Direction) []*ASE {
	var out []*ASE
	for _, a := range d.ASEs {
		if !a.Active && a.Direction == dir {
			out = append(out, a)
		}
	}
	return out
}

// HaveActiveAse reports whether any ASE participates in the stream.
func (d *Device) HaveActiveAse() bool {
	for _, a := range d.ASEs {
		if a.Active {
			return true
		}
	}
	return false
}

// AllActiveAsesInState reports whether every active ASE reached the
// state.
func (d *Device) AllActiveAsesInState(state ascs.State) bool {
	any := false
	for _, a := range d.ASEs {
		if !a.Active {
			continue
		}
		any = true
		if a.State != state {
			return false
		}
	}
	return any
}

// DeactivateASEs drops every ASE out of the stream configuration and
// clears its isochronous binding.
func (d *Device) DeactivateASEs() {
	for _, a := range d.ASEs {
		a.Active = false
		a.CISConnHandle = 0
		a.CISID = 0
		a.DataPath = DataPathIdle
	}
}

// ClearPACs drops all discovered PAC state before re-discovery.
func (d *Device) ClearPACs() {
	d.SinkPACs = nil
	d.SourcePACs = nil
	d.SinkLocationsHandles = HandlePair{}
	d.SourceLocationsHandles = HandlePair{}
	d.AvailableContextsHandles = HandlePair{}
	d.SupportedContextsHandles = HandlePair{}
}

// RegisterSinkPACs stores parsed records for the sink PAC instance at
// the given value handle.
func (d *Device) RegisterSinkPACs(valueHandle uint16, records []pacs.Record) bool {
	return registerPACs(d.SinkPACs, valueHandle, records)
}

// RegisterSourcePACs stores parsed records for the source PAC
// instance at the given value handle.
func (d *Device) RegisterSourcePACs(valueHandle uint16, records []pacs.Record) bool {
	return registerPACs(d.SourcePACs, valueHandle, records)
}

func registerPACs(sets []PACRecords, valueHandle uint16, records []pacs.Record) bool {
	for i := range sets {
		if sets[i].Handles.Value == valueHandle {
			sets[i].Records = records
			return true
		}
	}
	return false
}

// AllSinkRecords flattens every sink PAC instance's records.
func (d *Device) AllSinkRecords() []pacs.Record {
	var out []pacs.Record
	for _, s := range d.SinkPACs {
		out = append(out, s.Records...)
	}
	return out
}

// AllSourceRecords flattens every source PAC instance's records.
func (d *Device) AllSourceRecords() []pacs.Record {
	var out []pacs.Record
	for _, s := range d.SourcePACs {
		out = append(out, s.Records...)
	}
	return out
}

// SetAvailableContexts updates the (sink, source) available contexts
// and returns the union of bits that changed.
func (d *Device) SetAvailableContexts(sink, source pacs.AudioContexts) pacs.AudioContexts {
	changed := (d.SinkAvailableContexts ^ sink) | (d.SourceAvailableContexts ^ source)
	d.SinkAvailableContexts = sink
	d.SourceAvailableContexts = source
	return changed
}

// AvailableContexts is the union of sink and source available
// contexts.
func (d *Device) AvailableContexts() pacs.AudioContexts {
	return d.SinkAvailableContexts | d.SourceAvailableContexts
}

// SetSupportedContexts stores the supported contexts pair.
func (d *Device) SetSupportedContexts(sink, source pacs.AudioContexts) {
	d.SinkSupportedContexts = sink
	d.SourceSupportedContexts = source
}
