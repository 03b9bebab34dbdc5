// Package stream implements the group state machine: it drives every
// member's ASEs through the ASCS ladder so the group as a whole moves
// IDLE → CODEC_CONFIGURED → QOS_CONFIGURED → ENABLING → STREAMING and
// back, interleaving the attribute writes with the HCI CIG/CIS and
// data-path commands.
//
// The machine is event driven and only runs on the main loop. Each
// stage is initiated by a call and completed by a later callback;
// duplicate events are absorbed by idempotent state updates.
package stream

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/codec"
	"github.com/opd-ai/leaudio/device"
	"github.com/opd-ai/leaudio/gatt"
	"github.com/opd-ai/leaudio/group"
	"github.com/opd-ai/leaudio/internal/loop"
	"github.com/opd-ai/leaudio/iso"
	"github.com/opd-ai/leaudio/pacs"
)

// Callbacks is the machine's upward reporting surface.
type Callbacks interface {
	// StatusReport publishes group stream status changes.
	StatusReport(groupID int, status group.StreamStatus)
	// OnStateTransitionTimeout fires when a transition missed its
	// deadline; the owner cancels audio requests and force-disconnects
	// the group's active members.
	OnStateTransitionTimeout(groupID int)
}

// Machine is the group stream orchestrator.
type Machine struct {
	queue   *gatt.Queue
	isoMgr  iso.Manager
	groups  *group.Registry
	devices *device.Registry
	cb      Callbacks

	timer   *loop.Timer
	timeout time.Duration

	// pendingDataPaths queues the ASEs awaiting a data path setup
	// completion, per CIS handle. Setup runs one direction at a time.
	pendingDataPaths map[uint16][]*device.ASE

	stats *iso.StatsBook
}

// NewMachine wires the orchestrator.
func NewMachine(q *gatt.Queue, isoMgr iso.Manager, groups *group.Registry,
	devices *device.Registry, cb Callbacks, l *loop.Loop, timeout time.Duration) *Machine {
	return &Machine{
		queue:            q,
		isoMgr:           isoMgr,
		groups:           groups,
		devices:          devices,
		cb:               cb,
		timer:            loop.NewTimer(l, "GroupSetStateTimeout"),
		timeout:          timeout,
		pendingDataPaths: make(map[uint16][]*device.ASE),
		stats:            iso.NewStatsBook(),
	}
}

// Stats exposes the per-CIS link counters for DebugDump.
func (m *Machine) Stats() *iso.StatsBook { return m.stats }

// Cleanup cancels the transition guard.
func (m *Machine) Cleanup() {
	m.timer.Cancel()
	m.pendingDataPaths = make(map[uint16][]*device.ASE)
}

func (m *Machine) startTransition(g *group.Group, target ascs.State) {
	g.SetTargetState(target)
	gid := g.ID
	m.timer.Set(m.timeout, func() { m.onTransitionTimeout(gid) })
}

func (m *Machine) transitionComplete(g *group.Group) {
	m.timer.Cancel()
}

func (m *Machine) onTransitionTimeout(groupID int) {
	g := m.groups.FindByID(groupID)
	if g == nil {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "onTransitionTimeout",
		"group_id": groupID,
		"current":  g.State().String(),
		"target":   g.TargetState().String(),
	}).Error("State not achieved on time")

	g.SetTargetState(ascs.StateIdle)
	m.cb.OnStateTransitionTimeout(groupID)
}

// StartStream drives the group toward STREAMING for the context. The
// caller has already validated context support, connectivity and the
// global single-transition rule. Returns false when the group cannot
// start from its current state.
func (m *Machine) StartStream(g *group.Group, ctx pacs.ContextType) bool {
	logrus.WithFields(logrus.Fields{
		"function": "StartStream",
		"group_id": g.ID,
		"context":  ctx.String(),
		"state":    g.State().String(),
	}).Info("Starting group stream")

	switch g.State() {
	case ascs.StateIdle:
		if !m.configureAses(g, ctx) {
			return false
		}
		m.startTransition(g, ascs.StateStreaming)
		m.sendConfigCodec(g, g.ActiveDevices())
		return true

	case ascs.StateCodecConfigured:
		m.startTransition(g, ascs.StateStreaming)
		if !g.CIGCreated {
			m.createCIG(g)
		} else {
			m.sendConfigQoS(g, g.ActiveDevices())
		}
		return true

	case ascs.StateQoSConfigured:
		m.startTransition(g, ascs.StateStreaming)
		m.sendEnable(g, g.ActiveDevices())
		return true

	case ascs.StateStreaming:
		// Double start with the same context is a no-op.
		return g.CurrentContext == ctx

	default:
		logrus.WithFields(logrus.Fields{
			"function": "StartStream",
			"group_id": g.ID,
			"state":    g.State().String(),
		}).Error("Group in invalid state for stream start")
		return false
	}
}

// ConfigureStream drives an idle group to CODEC_CONFIGURED for the
// context without starting the stream; used to complete a pending
// reconfiguration.
func (m *Machine) ConfigureStream(g *group.Group, ctx pacs.ContextType) bool {
	if g.State() != ascs.StateIdle && g.State() != ascs.StateCodecConfigured {
		return false
	}

	g.PendingConfiguration = false
	if !m.configureAses(g, ctx) {
		return false
	}

	m.startTransition(g, ascs.StateCodecConfigured)
	m.sendConfigCodec(g, g.ActiveDevices())
	return true
}

// SuspendStream disables every active ASE; the group lands in
// QOS_CONFIGURED with the CIG intact.
func (m *Machine) SuspendStream(g *group.Group) {
	m.startTransition(g, ascs.StateQoSConfigured)
	m.cb.StatusReport(g.ID, group.StatusSuspending)

	for _, d := range g.ActiveDevices() {
		var ids []uint8
		for _, a := range d.ActiveASEs() {
			ids = append(ids, a.ID)
		}
		m.queue.WriteCharacteristic(d.ConnID, d.ControlPointHandles.Value,
			ascs.SerializeDisable(ids), gatt.WriteRequest)
	}
}

// StopStream releases every active ASE and removes the CIG once the
// group drained.
func (m *Machine) StopStream(g *group.Group) {
	if g.State() == ascs.StateIdle && !g.IsInTransition() {
		return
	}

	m.startTransition(g, ascs.StateIdle)
	m.cb.StatusReport(g.ID, group.StatusReleasing)

	for _, d := range g.ActiveDevices() {
		var ids []uint8
		for _, a := range d.ActiveASEs() {
			ids = append(ids, a.ID)
		}
		if len(ids) == 0 {
			continue
		}
		m.queue.WriteCharacteristic(d.ConnID, d.ControlPointHandles.Value,
			ascs.SerializeRelease(ids), gatt.WriteRequest)
	}
}

// UpdateMetadata rewrites the streaming contexts of the in-stream
// ASEs, for context changes that keep the same configuration.
func (m *Machine) UpdateMetadata(g *group.Group, ctx pacs.ContextType) {
	g.CurrentContext = ctx
	meta := ascs.Metadata{StreamingContexts: pacs.AudioContexts(ctx)}

	for _, d := range g.ActiveDevices() {
		var entries []ascs.MetadataEntry
		for _, a := range d.ActiveASEs() {
			if a.State == ascs.StateStreaming || a.State == ascs.StateEnabling {
				entries = append(entries, ascs.MetadataEntry{AseID: a.ID, Metadata: meta})
			}
		}
		if len(entries) == 0 {
			continue
		}
		m.queue.WriteCharacteristic(d.ConnID, d.ControlPointHandles.Value,
			ascs.SerializeUpdateMetadata(entries), gatt.WriteRequest)
	}
}

// AttachToStream joins a late-connecting member to the group's running
// stream, reusing the existing CIG. The caller already decided attach
// over reconfigure (spare capacity exists in the configuration).
// Returns false when no spare CIS or no matching ASE is available.
func (m *Machine) AttachToStream(g *group.Group, d *device.Device) bool {
	conf := g.StreamConf.Conf
	if conf == nil || g.State() != ascs.StateStreaming {
		return false
	}

	if !m.allocateDeviceAses(g, d, conf) {
		logrus.WithFields(logrus.Fields{
			"function": "AttachToStream",
			"group_id": g.ID,
			"address":  d.Address.String(),
		}).Info("Could not allocate endpoints for late joiner")
		return false
	}

	if !m.assignSpareCISHandles(g, d) {
		d.DeactivateASEs()
		return false
	}

	m.startTransition(g, ascs.StateStreaming)
	m.sendConfigCodec(g, []*device.Device{d})

	logrus.WithFields(logrus.Fields{
		"function": "AttachToStream",
		"group_id": g.ID,
		"address":  d.Address.String(),
	}).Info("Attaching device to running stream")

	return true
}

// sendConfigCodec writes Config Codec to each device's control point.
func (m *Machine) sendConfigCodec(g *group.Group, devs []*device.Device) {
	for _, d := range devs {
		var entries []ascs.ConfigCodecEntry
		for _, a := range d.ActiveASEs() {
			entries = append(entries, ascs.ConfigCodecEntry{
				AseID:         a.ID,
				TargetLatency: ascs.TargetLatencyBalanced,
				TargetPHY:     iso.PHY2M,
				Config:        a.CodecConfig,
			})
		}
		if len(entries) == 0 {
			continue
		}
		m.queue.WriteCharacteristic(d.ConnID, d.ControlPointHandles.Value,
			ascs.SerializeConfigCodec(entries), gatt.WriteRequest)
	}
}

// sendConfigQoS writes Config QoS once CIS handles are assigned.
func (m *Machine) sendConfigQoS(g *group.Group, devs []*device.Device) {
	conf := g.StreamConf.Conf
	if conf == nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendConfigQoS",
			"group_id": g.ID,
		}).Error("No stream configuration selected")
		return
	}

	for _, d := range devs {
		var entries []ascs.ConfigQoSEntry
		for _, a := range d.ActiveASEs() {
			entry := conf.EntryByDirection(a.Direction)
			if entry == nil {
				continue
			}
			blocks := uint32(a.CodecConfig.FrameBlocksPerSDU)
			if blocks == 0 {
				blocks = 1
			}
			a.QoS = ascs.QoSConfig{
				CIGID:               uint8(g.ID),
				CISID:               a.CISID,
				SDUIntervalUs:       entry.FrameDurationUs * blocks,
				Framing:             iso.FramingUnframed,
				PHY:                 iso.PHY2M,
				MaxSDU:              a.CodecConfig.OctetsPerFrame * uint16(blocks) * uint16(a.CodecConfig.ChannelCount()),
				RetransmissionCount: entry.RetransmissionCount,
				MaxTransportLatency: entry.MaxTransportLatency,
				PresentationDelayUs: uint32(codec.PresentationDelayUs),
			}
			entries = append(entries, ascs.ConfigQoSEntry{AseID: a.ID, QoS: a.QoS})
		}
		if len(entries) == 0 {
			continue
		}
		m.queue.WriteCharacteristic(d.ConnID, d.ControlPointHandles.Value,
			ascs.SerializeConfigQoS(entries), gatt.WriteRequest)
	}
}

// sendEnable writes Enable carrying the streaming context metadata.
func (m *Machine) sendEnable(g *group.Group, devs []*device.Device) {
	meta := ascs.Metadata{StreamingContexts: pacs.AudioContexts(g.CurrentContext)}

	for _, d := range devs {
		var entries []ascs.MetadataEntry
		for _, a := range d.ActiveASEs() {
			entries = append(entries, ascs.MetadataEntry{AseID: a.ID, Metadata: meta})
		}
		if len(entries) == 0 {
			continue
		}
		m.queue.WriteCharacteristic(d.ConnID, d.ControlPointHandles.Value,
			ascs.SerializeEnable(entries), gatt.WriteRequest)
	}
}
