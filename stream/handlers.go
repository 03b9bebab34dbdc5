package stream

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/device"
	"github.com/opd-ai/leaudio/gatt"
	"github.com/opd-ai/leaudio/group"
	"github.com/opd-ai/leaudio/iso"
)

// ErrPeerProtocol marks a malformed peer notification; the owner
// force-disconnects the offending peer.
var ErrPeerProtocol = errors.New("stream: peer protocol error")

// ProcessGattNotifEvent folds an ASE state notification into the
// machine. Returns ErrPeerProtocol when the notification cannot be
// parsed.
func (m *Machine) ProcessGattNotifEvent(value []byte, a *device.ASE, d *device.Device, g *group.Group) error {
	ntf, err := ascs.ParseNotification(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPeerProtocol, err)
	}

	if a.ID == 0 {
		a.ID = ntf.AseID
	}

	oldState := a.State
	a.State = ntf.State

	switch ntf.State {
	case ascs.StateCodecConfigured:
		if !a.Active {
			// Autonomous configuration by the peer; record it.
			a.CodecConfig = ntf.CodecConfig
		}
	case ascs.StateQoSConfigured:
		a.QoS = ntf.QoS
	}

	logrus.WithFields(logrus.Fields{
		"function": "ProcessGattNotifEvent",
		"address":  d.Address.String(),
		"ase_id":   a.ID,
		"from":     oldState.String(),
		"to":       a.State.String(),
	}).Debug("ASE state notification")

	if g == nil {
		return nil
	}

	// Re-entrancy guard: duplicate notifications re-run the checks
	// below, which are all idempotent.
	switch ntf.State {
	case ascs.StateCodecConfigured:
		m.onAseCodecConfigured(g, d)
	case ascs.StateQoSConfigured:
		m.onAseQoSConfigured(g, d)
	case ascs.StateEnabling:
		m.onAseEnabling(g, d)
	case ascs.StateStreaming:
		m.checkStreamingComplete(g)
	case ascs.StateDisabling:
		m.onAseDisabling(g, d)
	case ascs.StateReleasing:
		m.onAseReleasing(g, a)
	case ascs.StateIdle:
		m.checkReleaseComplete(g)
	}

	// Completion handlers above settle the group state themselves;
	// mid-transition the aggregate follows the least-advanced member.
	if g.IsInTransition() {
		g.RefreshState()
	}
	return nil
}

func (m *Machine) onAseCodecConfigured(g *group.Group, d *device.Device) {
	if !d.HaveActiveAse() {
		return
	}

	// Late attach: the rest of the group streams already, push this
	// device on toward QoS with the CIS handle it inherited.
	if g.CIGCreated && m.groupStreamsWithoutDevice(g, d) {
		if d.AllActiveAsesInState(ascs.StateCodecConfigured) {
			m.sendConfigQoS(g, []*device.Device{d})
		}
		return
	}

	if !m.allActiveAsesInState(g, ascs.StateCodecConfigured) {
		return
	}

	switch g.TargetState() {
	case ascs.StateStreaming:
		if !g.CIGCreated {
			m.createCIG(g)
		} else {
			m.sendConfigQoS(g, g.ActiveDevices())
		}
	case ascs.StateCodecConfigured:
		g.SetState(ascs.StateCodecConfigured)
		m.transitionComplete(g)
		m.cb.StatusReport(g.ID, group.StatusConfiguredByUser)
	}
}

func (m *Machine) onAseQoSConfigured(g *group.Group, d *device.Device) {
	switch g.TargetState() {
	case ascs.StateStreaming:
		if g.CIGCreated && m.groupStreamsWithoutDevice(g, d) {
			if d.AllActiveAsesInState(ascs.StateQoSConfigured) {
				m.sendEnable(g, []*device.Device{d})
			}
			return
		}
		if m.allActiveAsesInState(g, ascs.StateQoSConfigured) {
			m.sendEnable(g, g.ActiveDevices())
		}

	case ascs.StateQoSConfigured:
		// Suspend completion.
		if m.allActiveAsesInState(g, ascs.StateQoSConfigured) {
			g.SetState(ascs.StateQoSConfigured)
			m.transitionComplete(g)
			m.cb.StatusReport(g.ID, group.StatusSuspended)
		}
	}
}

func (m *Machine) onAseEnabling(g *group.Group, d *device.Device) {
	// Once every active ASE of the device is at least enabling,
	// request CIS establishment for its assigned handles.
	var pairs []iso.CISPair
	seen := map[uint16]bool{}

	for _, a := range d.ActiveASEs() {
		if a.State != ascs.StateEnabling && a.State != ascs.StateStreaming {
			return
		}
	}
	for _, a := range d.ActiveASEs() {
		if a.DataPath != device.DataPathCISAssigned || seen[a.CISConnHandle] {
			continue
		}
		seen[a.CISConnHandle] = true
		a.DataPath = device.DataPathCISPending
		pairs = append(pairs, iso.CISPair{
			CISConnHandle: a.CISConnHandle,
			ACLAddress:    d.Address,
		})
	}
	// Mark shared-CIS companions pending as well.
	for _, a := range d.ActiveASEs() {
		if seen[a.CISConnHandle] {
			a.DataPath = device.DataPathCISPending
		}
	}

	if len(pairs) > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "onAseEnabling",
			"address":  d.Address.String(),
			"cis":      len(pairs),
		}).Info("Establishing CIS")
		m.isoMgr.EstablishCIS(pairs)
	}
}

func (m *Machine) onAseDisabling(g *group.Group, d *device.Device) {
	// Source ASEs wait for Receiver Stop Ready before leaving
	// DISABLING.
	var ids []uint8
	for _, a := range d.ActiveASEs() {
		if a.Direction == ascs.DirectionSource && a.State == ascs.StateDisabling {
			ids = append(ids, a.ID)
		}
	}
	if len(ids) == 0 {
		return
	}
	m.queue.WriteCharacteristic(d.ConnID, d.ControlPointHandles.Value,
		ascs.SerializeReceiverStopReady(ids), gatt.WriteRequest)
}

func (m *Machine) onAseReleasing(g *group.Group, a *device.ASE) {
	// A peer-initiated release drags the group toward IDLE.
	if g.TargetState() != ascs.StateIdle {
		m.startTransition(g, ascs.StateIdle)
		m.cb.StatusReport(g.ID, group.StatusReleasing)
	}

	switch a.DataPath {
	case device.DataPathEstablished:
		a.DataPath = device.DataPathRemoving
		m.isoMgr.RemoveIsoDataPath(a.CISConnHandle, dataPathDirectionMask(a))
	case device.DataPathCISEstablished:
		a.DataPath = device.DataPathCISDisconnecting
		m.isoMgr.DisconnectCIS(a.CISConnHandle, 0x13)
	}
}

// checkReleaseComplete finishes a stop once every active ASE reached
// IDLE or fell back to its cached CODEC_CONFIGURED state.
func (m *Machine) checkReleaseComplete(g *group.Group) {
	if g.TargetState() != ascs.StateIdle {
		return
	}
	for _, d := range g.ActiveDevices() {
		for _, a := range d.ActiveASEs() {
			if a.State != ascs.StateIdle && a.State != ascs.StateCodecConfigured {
				return
			}
		}
	}

	if g.CIGCreated {
		m.isoMgr.RemoveCIG(uint8(g.ID))
		return
	}
	m.finishRelease(g)
}

// finishRelease drops the stream bookkeeping and reports the terminal
// status: CONFIGURED_AUTONOMOUS when the peers kept their cached codec
// configuration, IDLE otherwise.
func (m *Machine) finishRelease(g *group.Group) {
	cached := false
	for _, d := range g.ActiveDevices() {
		for _, a := range d.ActiveASEs() {
			if a.State == ascs.StateCodecConfigured {
				cached = true
			}
			m.stats.Drop(a.CISConnHandle)
			delete(m.pendingDataPaths, a.CISConnHandle)
		}
	}

	for _, d := range g.Members() {
		d.DeactivateASEs()
	}
	g.StreamConf.Clear()
	g.SpareCISHandles = nil

	m.transitionComplete(g)
	if cached {
		g.SetState(ascs.StateCodecConfigured)
		g.SetTargetState(ascs.StateCodecConfigured)
		m.cb.StatusReport(g.ID, group.StatusConfiguredAutonomous)
		return
	}
	g.SetState(ascs.StateIdle)
	g.SetTargetState(ascs.StateIdle)
	m.cb.StatusReport(g.ID, group.StatusIdle)
}

func (m *Machine) checkStreamingComplete(g *group.Group) {
	if g.TargetState() != ascs.StateStreaming {
		return
	}
	for _, d := range g.ActiveDevices() {
		for _, a := range d.ActiveASEs() {
			if a.State != ascs.StateStreaming || a.DataPath != device.DataPathEstablished {
				return
			}
		}
	}

	g.SetState(ascs.StateStreaming)
	m.transitionComplete(g)
	m.cb.StatusReport(g.ID, group.StatusStreaming)
}

func (m *Machine) allActiveAsesInState(g *group.Group, s ascs.State) bool {
	any := false
	for _, d := range g.ActiveDevices() {
		for _, a := range d.ActiveASEs() {
			any = true
			if a.State != s {
				return false
			}
		}
	}
	return any
}

// groupStreamsWithoutDevice reports whether every active device other
// than d already streams; true marks d as a late joiner.
func (m *Machine) groupStreamsWithoutDevice(g *group.Group, d *device.Device) bool {
	others := false
	for _, other := range g.ActiveDevices() {
		if other == d {
			continue
		}
		others = true
		if !other.AllActiveAsesInState(ascs.StateStreaming) {
			return false
		}
	}
	return others
}

func dataPathDirectionMask(a *device.ASE) uint8 {
	if a.Direction == ascs.DirectionSource {
		return 1 << iso.DataPathDirectionOutput
	}
	return 1 << iso.DataPathDirectionInput
}

// ProcessCIGCreated handles the Create CIG completion.
func (m *Machine) ProcessCIGCreated(g *group.Group, status uint8, handles []uint16) {
	if g == nil {
		return
	}
	if status != iso.StatusSuccess {
		logrus.WithFields(logrus.Fields{
			"function": "ProcessCIGCreated",
			"group_id": g.ID,
			"status":   status,
		}).Error("CIG creation failed")
		m.StopStream(g)
		return
	}

	g.CIGCreated = true
	if !m.assignCISHandles(g, handles) {
		m.StopStream(g)
		return
	}
	m.sendConfigQoS(g, g.ActiveDevices())
}

// ProcessCIGRemoved handles the Remove CIG completion and finishes the
// release.
func (m *Machine) ProcessCIGRemoved(g *group.Group, status uint8) {
	if g == nil {
		return
	}
	g.CIGCreated = false
	m.finishRelease(g)
}

// ProcessCISEstablished handles CIS establishment: records transport
// latency and starts the data path setup ladder for the ASEs on the
// CIS.
func (m *Machine) ProcessCISEstablished(g *group.Group, d *device.Device, evt *iso.CISEstablishedEvent) {
	if evt.Status != iso.StatusSuccess {
		logrus.WithFields(logrus.Fields{
			"function": "ProcessCISEstablished",
			"address":  d.Address.String(),
			"cis":      evt.CISConnHandle,
			"status":   evt.Status,
		}).Error("CIS establishment failed")
		m.StopStream(g)
		return
	}

	if evt.MaxPDUMToS > 0 {
		g.SetTransportLatency(ascs.DirectionSink, evt.TransLatencyMToSUs)
	}
	if evt.MaxPDUSToM > 0 {
		g.SetTransportLatency(ascs.DirectionSource, evt.TransLatencySToMUs)
	}

	var queue []*device.ASE
	for _, a := range d.ActiveASEs() {
		if a.CISConnHandle == evt.CISConnHandle {
			a.DataPath = device.DataPathCISEstablished
			queue = append(queue, a)
		}
	}
	if len(queue) == 0 {
		return
	}

	m.pendingDataPaths[evt.CISConnHandle] = queue
	m.setupNextDataPath(evt.CISConnHandle)
}

func (m *Machine) setupNextDataPath(cisHandle uint16) {
	queue := m.pendingDataPaths[cisHandle]
	if len(queue) == 0 {
		delete(m.pendingDataPaths, cisHandle)
		return
	}
	a := queue[0]

	dir := iso.DataPathDirectionInput
	if a.Direction == ascs.DirectionSource {
		dir = iso.DataPathDirectionOutput
	}
	m.isoMgr.SetupIsoDataPath(cisHandle, iso.DataPathParams{
		Direction:   dir,
		DataPathID:  iso.DataPathIDHCI,
		CodecFormat: 0x06, // LC3 over the controller transport
	})
}

// ProcessSetupIsoDataPath handles a data path setup completion.
func (m *Machine) ProcessSetupIsoDataPath(g *group.Group, d *device.Device, status uint8, cisHandle uint16) {
	queue := m.pendingDataPaths[cisHandle]
	if len(queue) == 0 {
		return
	}
	a := queue[0]
	m.pendingDataPaths[cisHandle] = queue[1:]

	if status != iso.StatusSuccess {
		logrus.WithFields(logrus.Fields{
			"function": "ProcessSetupIsoDataPath",
			"cis":      cisHandle,
			"status":   status,
		}).Error("ISO data path setup failed")
		delete(m.pendingDataPaths, cisHandle)
		m.StopStream(g)
		return
	}

	a.DataPath = device.DataPathEstablished

	// A source ASE is told to start pushing once its path is up.
	if a.Direction == ascs.DirectionSource {
		m.queue.WriteCharacteristic(d.ConnID, d.ControlPointHandles.Value,
			ascs.SerializeReceiverStartReady([]uint8{a.ID}), gatt.WriteRequest)
	}

	m.setupNextDataPath(cisHandle)
	m.checkStreamingComplete(g)
}

// ProcessRemoveIsoDataPath handles a data path removal completion
// during release.
func (m *Machine) ProcessRemoveIsoDataPath(g *group.Group, d *device.Device, status uint8, cisHandle uint16) {
	for _, a := range d.ActiveASEs() {
		if a.CISConnHandle != cisHandle || a.DataPath != device.DataPathRemoving {
			continue
		}
		a.DataPath = device.DataPathCISDisconnecting
		m.isoMgr.DisconnectCIS(cisHandle, 0x13)
		return
	}
}

// ProcessCISDisconnected handles CIS teardown.
func (m *Machine) ProcessCISDisconnected(g *group.Group, d *device.Device, evt *iso.CISDisconnectedEvent) {
	delete(m.pendingDataPaths, evt.CISConnHandle)
	m.stats.Drop(evt.CISConnHandle)

	for _, a := range d.ActiveASEs() {
		if a.CISConnHandle == evt.CISConnHandle {
			a.DataPath = device.DataPathCISAssigned
		}
	}
	m.checkReleaseComplete(g)
}

// ProcessLinkQualityRead folds link quality counters into the stats
// book.
func (m *Machine) ProcessLinkQualityRead(evt *iso.LinkQualityEvent) {
	m.stats.For(evt.CISConnHandle).Update(evt)
}

// ProcessACLDisconnected reacts to an ACL loss of a member: its ASEs
// drop out of the stream and the group either continues on the
// remaining members or winds down.
func (m *Machine) ProcessACLDisconnected(g *group.Group, d *device.Device) {
	for _, a := range d.ActiveASEs() {
		delete(m.pendingDataPaths, a.CISConnHandle)
		m.stats.Drop(a.CISConnHandle)
	}
	d.DeactivateASEs()

	if g == nil {
		return
	}

	if g.State() == ascs.StateIdle && !g.IsInTransition() && !g.CIGCreated {
		// Nothing was streaming; membership bookkeeping only.
		return
	}

	if len(g.ActiveDevices()) == 0 {
		m.transitionComplete(g)
		g.SetTargetState(ascs.StateIdle)
		if g.CIGCreated {
			m.isoMgr.RemoveCIG(uint8(g.ID))
			return
		}
		m.finishRelease(g)
		return
	}

	// Stream continues on the remaining members; refresh the
	// descriptor so the data plane stops addressing the dead CIS.
	g.RebuildDirection(ascs.DirectionSink)
	g.RebuildDirection(ascs.DirectionSource)
	g.RefreshState()
}
