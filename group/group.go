// Package group maintains the coordinated device groups of the
// unicast client: membership, aggregated audio capabilities and the
// group-level stream state the orchestrator drives.
package group

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/codec"
	"github.com/opd-ai/leaudio/device"
	"github.com/opd-ai/leaudio/pacs"
)

// IDUnknown marks "no group".
const IDUnknown = device.GroupUnknown

// StreamStatus is the group stream status reported to the audio
// coordinator.
type StreamStatus uint8

// Group stream statuses.
const (
	StatusIdle StreamStatus = iota
	StatusStreaming
	StatusReleasing
	StatusSuspending
	StatusSuspended
	StatusConfiguredAutonomous
	StatusConfiguredByUser
	StatusDestroyed
)

// String names the status for logs.
func (s StreamStatus) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusStreaming:
		return "STREAMING"
	case StatusReleasing:
		return "RELEASING"
	case StatusSuspending:
		return "SUSPENDING"
	case StatusSuspended:
		return "SUSPENDED"
	case StatusConfiguredAutonomous:
		return "CONFIGURED_AUTONOMOUS"
	case StatusConfiguredByUser:
		return "CONFIGURED_BY_USER"
	case StatusDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

// CISEntry binds a CIS connection handle to its audio channel
// allocation.
type CISEntry struct {
	CISHandle  uint16
	Allocation pacs.AudioLocations
}

// DirectionStreams aggregates one direction of the active stream
// configuration.
type DirectionStreams struct {
	Streams         []CISEntry
	NumDevices      int
	NumChannels     int
	Allocation      pacs.AudioLocations
	SampleRateHz    uint32
	FrameDurationUs uint32
	OctetsPerFrame  uint16
	BlocksPerSDU    uint8
}

// StreamConfiguration is the chosen per-direction codec and channel
// layout of the active group.
type StreamConfiguration struct {
	Conf   *codec.AudioSetConfiguration
	Sink   DirectionStreams
	Source DirectionStreams
}

// Clear resets the descriptor when the stream tears down.
func (s *StreamConfiguration) Clear() {
	*s = StreamConfiguration{}
}

// Group is one coordinated set of devices.
type Group struct {
	ID int

	members []*device.Device

	SinkLocations   pacs.AudioLocations
	SourceLocations pacs.AudioLocations
	// AudioDirections is the OR of directions any member supports.
	AudioDirections uint8

	activeContexts pacs.AudioContexts

	currentState ascs.State
	targetState  ascs.State

	CIGCreated           bool
	PendingConfiguration bool

	// PendingAvailableContexts stashes a contexts update that arrived
	// while the group was in transition or streaming; only the latest
	// value matters.
	PendingAvailableContexts *pacs.AudioContexts

	// CurrentContext is the context the stream was configured for.
	CurrentContext pacs.ContextType

	StreamConf StreamConfiguration

	// SpareCISHandles pools CIS handles provisioned by Create CIG but
	// not yet bound to an ASE, so a late joiner can attach without a
	// CIG rebuild.
	SpareCISHandles []uint16

	TransportLatencySinkUs   uint32
	TransportLatencySourceUs uint32
}

// New creates an empty group.
func New(id int) *Group {
	logrus.WithFields(logrus.Fields{
		"function": "New",
		"group_id": id,
	}).Info("Creating device group")

	return &Group{
		ID:           id,
		currentState: ascs.StateIdle,
		targetState:  ascs.StateIdle,
	}
}

// AddNode appends a member; duplicates are rejected.
func (g *Group) AddNode(d *device.Device) bool {
	if g.IsDeviceInGroup(d) {
		return false
	}
	g.members = append(g.members, d)
	d.GroupID = g.ID
	return true
}

// RemoveNode drops a member and unassigns its group id.
func (g *Group) RemoveNode(d *device.Device) {
	for i, m := range g.members {
		if m == d {
			g.members = append(g.members[:i], g.members[i+1:]...)
			d.GroupID = device.GroupUnknown
			return
		}
	}
}

// IsDeviceInGroup reports membership.
func (g *Group) IsDeviceInGroup(d *device.Device) bool {
	for _, m := range g.members {
		if m == d {
			return true
		}
	}
	return false
}

// IsEmpty reports an empty member list.
func (g *Group) IsEmpty() bool { return len(g.members) == 0 }

// Size is the member count.
func (g *Group) Size() int { return len(g.members) }

// Members returns members in insertion order.
func (g *Group) Members() []*device.Device { return g.members }

// ConnectedDevices returns the members with an open connection.
func (g *Group) ConnectedDevices() []*device.Device {
	var out []*device.Device
	for _, m := range g.members {
		if m.Connected() {
			out = append(out, m)
		}
	}
	return out
}

// IsAnyDeviceConnected reports whether any member is connected.
func (g *Group) IsAnyDeviceConnected() bool {
	return len(g.ConnectedDevices()) > 0
}

// NumOfConnected is the connected member count.
func (g *Group) NumOfConnected() int {
	return len(g.ConnectedDevices())
}

// ActiveDevices returns connected members with at least one ASE bound
// to the stream.
func (g *Group) ActiveDevices() []*device.Device {
	var out []*device.Device
	for _, m := range g.members {
		if m.Connected() && m.HaveActiveAse() {
			out = append(out, m)
		}
	}
	return out
}

// State is the group's current state: the least-advanced state across
// active members.
func (g *Group) State() ascs.State { return g.currentState }

// SetState records the group state.
func (g *Group) SetState(s ascs.State) {
	if s != g.currentState {
		logrus.WithFields(logrus.Fields{
			"function": "SetState",
			"group_id": g.ID,
			"from":     g.currentState.String(),
			"to":       s.String(),
		}).Debug("Group state changed")
	}
	g.currentState = s
}

// TargetState is the destination of the ongoing transition.
func (g *Group) TargetState() ascs.State { return g.targetState }

// SetTargetState records the transition destination.
func (g *Group) SetTargetState(s ascs.State) { g.targetState = s }

// IsInTransition reports current != target.
func (g *Group) IsInTransition() bool {
	return g.currentState != g.targetState
}

// RefreshState recomputes the group state as the minimum state across
// active members and returns it. With no active member the group is
// IDLE.
func (g *Group) RefreshState() ascs.State {
	active := g.ActiveDevices()
	if len(active) == 0 {
		g.currentState = ascs.StateIdle
		return g.currentState
	}

	min := ascs.StateStreaming
	for _, d := range active {
		for _, a := range d.ActiveASEs() {
			if stateRank(a.State) < stateRank(min) {
				min = a.State
			}
		}
	}
	g.currentState = min
	return min
}

// stateRank orders states along the setup ladder; teardown states rank
// below their setup counterparts so a releasing member drags the group
// back.
func stateRank(s ascs.State) int {
	switch s {
	case ascs.StateIdle, ascs.StateReleasing:
		return 0
	case ascs.StateCodecConfigured:
		return 1
	case ascs.StateQoSConfigured:
		return 2
	case ascs.StateEnabling, ascs.StateDisabling:
		return 3
	case ascs.StateStreaming:
		return 4
	default:
		return 0
	}
}

// ActiveContexts is the group's active context bitmap.
func (g *Group) ActiveContexts() pacs.AudioContexts { return g.activeContexts }

// UpdateActiveContexts recomputes the active-context bitmap from the
// members' available contexts. Returns the new bitmap when it changed,
// nil when unchanged (the caller treats unchanged as a no-op, it never
// dereferences blindly).
func (g *Group) UpdateActiveContexts() *pacs.AudioContexts {
	var merged pacs.AudioContexts
	for _, m := range g.members {
		merged |= m.AvailableContexts()
	}

	if merged == g.activeContexts {
		return nil
	}
	g.activeContexts = merged

	logrus.WithFields(logrus.Fields{
		"function": "UpdateActiveContexts",
		"group_id": g.ID,
		"contexts": uint16(merged),
	}).Debug("Group active contexts updated")

	return &merged
}

// ReloadAudioLocations recomputes the aggregated sink/source location
// bitmaps and supported directions. Returns true when anything
// changed.
func (g *Group) ReloadAudioLocations() bool {
	var sink, source pacs.AudioLocations
	var directions uint8

	for _, m := range g.members {
		sink |= m.SinkLocations
		source |= m.SourceLocations
		directions |= m.AudioDirections
	}

	changed := sink != g.SinkLocations || source != g.SourceLocations ||
		directions != g.AudioDirections
	g.SinkLocations = sink
	g.SourceLocations = source
	g.AudioDirections = directions
	return changed
}

// RemoteDelayMs is the render delay hint for a direction: the
// configured presentation delay plus the CIS transport latency.
func (g *Group) RemoteDelayMs(dir ascs.Direction) uint16 {
	latency := g.TransportLatencySinkUs
	if dir == ascs.DirectionSource {
		latency = g.TransportLatencySourceUs
	}
	return uint16((codec.PresentationDelayUs + latency) / 1000)
}

// SetTransportLatency stores the CIS transport latency for a
// direction, reported with CIS establishment.
func (g *Group) SetTransportLatency(dir ascs.Direction, latencyUs uint32) {
	if dir == ascs.DirectionSource {
		g.TransportLatencySourceUs = latencyUs
		return
	}
	g.TransportLatencySinkUs = latencyUs
}
