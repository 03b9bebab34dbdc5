package leaudio

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/audio"
	"github.com/opd-ai/leaudio/device"
	"github.com/opd-ai/leaudio/gatt"
	"github.com/opd-ai/leaudio/pacs"
	"github.com/opd-ai/leaudio/stream"
)

// tagNotifyConnected marks the last initial ASE read; its completion
// defers the "connected" upcall until every initial read returned.
const tagNotifyConnected uint32 = 1

// gattEvents adapts the transport callbacks onto the main loop.
type gattEvents struct{ c *Client }

func (e gattEvents) OnOpen(status gatt.Status, conn gatt.ConnID, addr gatt.Address, mtu uint16) {
	e.c.loop.Post(func() { e.c.onGattConnected(status, conn, addr, mtu) })
}

func (e gattEvents) OnClose(conn gatt.ConnID, addr gatt.Address, reason gatt.DisconnectReason) {
	e.c.loop.Post(func() { e.c.onGattDisconnected(conn, addr, reason) })
}

func (e gattEvents) OnEncryptionComplete(addr gatt.Address, status gatt.Status) {
	e.c.loop.Post(func() { e.c.onEncryptionComplete(addr, status) })
}

func (e gattEvents) OnSearchComplete(conn gatt.ConnID, status gatt.Status) {
	e.c.loop.Post(func() { e.c.onServiceSearchComplete(conn, status) })
}

func (e gattEvents) OnNotify(conn gatt.ConnID, handle uint16, value []byte) {
	e.c.loop.Post(func() { e.c.charValueHandle(conn, handle, value) })
}

func (e gattEvents) OnReadResponse(conn gatt.ConnID, handle uint16, status gatt.Status, value []byte, tag uint32) {
	e.c.loop.Post(func() { e.c.onGattReadRsp(conn, handle, status, value, tag) })
}

func (e gattEvents) OnWriteResponse(conn gatt.ConnID, handle uint16, status gatt.Status) {
	e.c.loop.Post(func() { e.c.onGattWriteRsp(conn, handle, status) })
}

func (e gattEvents) OnWriteDescriptorResponse(conn gatt.ConnID, handle uint16, status gatt.Status) {
	e.c.loop.Post(func() { e.c.onGattWriteCCC(conn, handle, status) })
}

func (e gattEvents) OnMTUChanged(conn gatt.ConnID, mtu uint16) {
	e.c.loop.Post(func() { e.c.onMTUChanged(conn, mtu) })
}

func (e gattEvents) OnServiceChanged(addr gatt.Address) {
	e.c.loop.Post(func() { e.c.onServiceChanged(addr) })
}

func (e gattEvents) OnServiceDiscoveryDone(addr gatt.Address) {
	e.c.loop.Post(func() { e.c.onServiceDiscoveryDone(addr) })
}

func (c *Client) onGattConnected(status gatt.Status, conn gatt.ConnID, addr gatt.Address, mtu uint16) {
	d := c.devices.FindByAddress(addr)
	if d == nil {
		return
	}

	if status != gatt.StatusSuccess {
		// Autoconnect connection failure is routine.
		if !d.ConnectingActively {
			return
		}
		logrus.WithFields(logrus.Fields{
			"function": "onGattConnected",
			"address":  addr.String(),
			"status":   status,
		}).Error("Failed to connect to LE Audio device")
		c.callbacks.OnConnectionState(ConnectionDisconnected, addr)
		return
	}

	c.isoMgr.SetPreferredPHY(addr, 0x02, 0x02)
	c.isoMgr.RequestPeerSCA(addr)

	d.ConnectingActively = false
	d.ConnID = conn
	d.MTU = mtu

	if mtu == gatt.DefaultMTU {
		logrus.WithFields(logrus.Fields{
			"function": "onGattConnected",
			"address":  addr.String(),
		}).Info("Configuring MTU")
		c.queue.ConfigureMTU(conn, c.cfg.PreferredMTU)
	}

	// On reconnection the handles survive; get notifications flowing
	// before encryption completes.
	if d.KnownServiceHandles {
		c.registerKnownNotifications(d)
	}

	if c.gattClient.IsEncrypted(addr) {
		c.onEncryptionComplete(addr, gatt.StatusSuccess)
		return
	}

	if err := c.gattClient.StartEncryption(addr); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "onGattConnected",
			"address":  addr.String(),
			"error":    err.Error(),
		}).Error("Encryption error")
	}
}

func (c *Client) onMTUChanged(conn gatt.ConnID, mtu uint16) {
	c.queue.OperationComplete(conn)
	if d := c.devices.FindByConnID(conn); d != nil {
		d.MTU = mtu
	}
}

func (c *Client) onEncryptionComplete(addr gatt.Address, status gatt.Status) {
	d := c.devices.FindByAddress(addr)
	if d == nil {
		logrus.WithFields(logrus.Fields{
			"function": "onEncryptionComplete",
			"address":  addr.String(),
		}).Warn("Skipping unknown device")
		return
	}

	if status != gatt.StatusSuccess {
		logrus.WithFields(logrus.Fields{
			"function": "onEncryptionComplete",
			"address":  addr.String(),
			"status":   status,
		}).Error("Encryption failed")
		c.gattClient.Close(d.ConnID)
		if d.ConnectingActively {
			c.callbacks.OnConnectionState(ConnectionDisconnected, addr)
		}
		return
	}

	if d.Encrypted {
		logrus.WithFields(logrus.Fields{
			"function": "onEncryptionComplete",
			"address":  addr.String(),
		}).Info("Link already encrypted, nothing to do")
		return
	}
	d.Encrypted = true

	// Reconnection with known handles and no read in flight: the
	// device is ready as-is.
	if d.KnownServiceHandles && !d.NotifyConnectedAfterRead {
		c.connectionReady(d)
		return
	}

	c.gattClient.ServiceSearch(d.ConnID, gatt.UUIDPublishedAudioCapabilityService)
}

// subscribe registers for notifications and enables them on the CCC.
func (c *Client) subscribe(d *device.Device, valueHandle, cccHandle uint16) bool {
	if err := c.gattClient.RegisterNotify(d.Address, valueHandle); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "subscribe",
			"handle":   valueHandle,
			"error":    err.Error(),
		}).Error("Cannot register for notification")
		return false
	}
	c.queue.SubscribeCCC(d.ConnID, cccHandle, gatt.CCCNotification)
	return true
}

// onServiceSearchComplete walks the discovered services, records every
// relevant handle pair, subscribes and schedules the initial reads.
// Missing mandatory services or CCCs disconnect the device with no
// partial state retained.
func (c *Client) onServiceSearchComplete(conn gatt.ConnID, status gatt.Status) {
	d := c.devices.FindByConnID(conn)
	if d == nil {
		return
	}

	if status != gatt.StatusSuccess {
		logrus.WithFields(logrus.Fields{
			"function": "onServiceSearchComplete",
			"address":  d.Address.String(),
		}).Error("Service discovery failed")
		c.disconnectDevice(d, false)
		return
	}

	// abort drops the subscriptions and handles recorded so far, then
	// disconnects.
	abort := func() {
		c.deregisterNotifications(d)
		d.ClearPACs()
		d.ASEs = nil
		d.ControlPointHandles = device.HandlePair{}
		d.CsisMember = false
		c.disconnectDevice(d, false)
	}

	services := c.gattClient.Services(conn)

	var pacSvc, aseSvc *gatt.Service
	var csisPrimaryHandles []uint16
	var casCsisIncludedHandle uint16

	for i := range services {
		svc := &services[i]
		switch {
		case svc.UUID.Equal(gatt.UUIDPublishedAudioCapabilityService):
			pacSvc = svc
		case svc.UUID.Equal(gatt.UUIDAudioStreamControlService):
			aseSvc = svc
		case svc.UUID.Equal(gatt.UUIDCoordinatedSetIdentificationService):
			if svc.Primary {
				csisPrimaryHandles = append(csisPrimaryHandles, svc.Handle)
			}
		case svc.UUID.Equal(gatt.UUIDCommonAudioService):
			for j, inc := range svc.IncludedUUIDs {
				if inc.Equal(gatt.UUIDCoordinatedSetIdentificationService) &&
					j < len(svc.IncludedHandles) {
					casCsisIncludedHandle = svc.IncludedHandles[j]
					break
				}
			}
		}
	}

	// A set member carries a primary CSIS instance included by CAS.
	if casCsisIncludedHandle != 0 {
		for _, h := range csisPrimaryHandles {
			if h == casCsisIncludedHandle {
				d.CsisMember = true
				break
			}
		}
	}

	if pacSvc == nil || aseSvc == nil {
		logrus.WithFields(logrus.Fields{
			"function": "onServiceSearchComplete",
			"address":  d.Address.String(),
		}).Error("No mandatory le audio services found")
		abort()
		return
	}

	d.ClearPACs()

	for i := range pacSvc.Characteristics {
		if !c.recordPACSCharacteristic(d, &pacSvc.Characteristics[i]) {
			abort()
			return
		}
	}

	d.ASEs = nil
	for i := range aseSvc.Characteristics {
		if !c.recordASCSCharacteristic(d, &aseSvc.Characteristics[i]) {
			abort()
			return
		}
	}

	d.KnownServiceHandles = true
	d.NotifyConnectedAfterRead = true

	if d.GroupID != device.GroupUnknown {
		c.aseInitialStateReadRequest(d)
		return
	}

	// Not grouped yet: either the membership service already knows
	// the set, CSIS will resolve it, or the device forms a group of
	// its own.
	if c.groupService != nil {
		if id := c.groupService.GetGroupID(d.Address); id != device.GroupUnknown {
			c.groupAddNode(id, d.Address, false)
			return
		}
		if d.CsisMember {
			logrus.WithFields(logrus.Fields{
				"function": "onServiceSearchComplete",
				"address":  d.Address.String(),
			}).Info("Waiting for CSIS to create group for device")
			return
		}
		c.groupService.AddDevice(d.Address, device.GroupUnknown)
	}
}

// recordPACSCharacteristic wires one PACS characteristic: handles,
// subscription and initial read. Returns false when a mandatory CCC is
// missing or subscription fails.
func (c *Client) recordPACSCharacteristic(d *device.Device, ch *gatt.Characteristic) bool {
	ccc := ch.CCCHandle()
	pair := device.HandlePair{Value: ch.ValueHandle, CCC: ccc}

	switch {
	case ch.UUID.Equal(gatt.UUIDSinkPAC):
		if ccc == 0 {
			logrus.WithFields(logrus.Fields{
				"function": "recordPACSCharacteristic",
			}).Error("Sink PAC characteristic doesn't have ccc")
			return false
		}
		if !c.subscribe(d, ch.ValueHandle, ccc) {
			return false
		}
		d.SinkPACs = append(d.SinkPACs, device.PACRecords{Handles: pair})
		c.queue.ReadCharacteristic(d.ConnID, ch.ValueHandle, 0)

	case ch.UUID.Equal(gatt.UUIDSourcePAC):
		if ccc == 0 {
			logrus.WithFields(logrus.Fields{
				"function": "recordPACSCharacteristic",
			}).Error("Source PAC characteristic doesn't have ccc")
			return false
		}
		if !c.subscribe(d, ch.ValueHandle, ccc) {
			return false
		}
		d.SourcePACs = append(d.SourcePACs, device.PACRecords{Handles: pair})
		c.queue.ReadCharacteristic(d.ConnID, ch.ValueHandle, 0)

	case ch.UUID.Equal(gatt.UUIDSinkAudioLocations):
		// CCC is optional on audio locations.
		d.SinkLocationsHandles = pair
		if ccc != 0 && !c.subscribe(d, ch.ValueHandle, ccc) {
			return false
		}
		c.queue.ReadCharacteristic(d.ConnID, ch.ValueHandle, 0)

	case ch.UUID.Equal(gatt.UUIDSourceAudioLocations):
		d.SourceLocationsHandles = pair
		if ccc != 0 && !c.subscribe(d, ch.ValueHandle, ccc) {
			return false
		}
		c.queue.ReadCharacteristic(d.ConnID, ch.ValueHandle, 0)

	case ch.UUID.Equal(gatt.UUIDAvailableAudioContexts):
		if ccc == 0 {
			logrus.WithFields(logrus.Fields{
				"function": "recordPACSCharacteristic",
			}).Error("Available contexts characteristic doesn't have ccc")
			return false
		}
		if !c.subscribe(d, ch.ValueHandle, ccc) {
			return false
		}
		d.AvailableContextsHandles = pair
		c.queue.ReadCharacteristic(d.ConnID, ch.ValueHandle, 0)

	case ch.UUID.Equal(gatt.UUIDSupportedAudioContexts):
		// CCC optional.
		d.SupportedContextsHandles = pair
		if ccc != 0 && !c.subscribe(d, ch.ValueHandle, ccc) {
			return false
		}
		c.queue.ReadCharacteristic(d.ConnID, ch.ValueHandle, 0)
	}
	return true
}

// recordASCSCharacteristic wires one ASCS characteristic.
func (c *Client) recordASCSCharacteristic(d *device.Device, ch *gatt.Characteristic) bool {
	ccc := ch.CCCHandle()

	switch {
	case ch.UUID.Equal(gatt.UUIDSinkASE), ch.UUID.Equal(gatt.UUIDSourceASE):
		if ccc == 0 {
			logrus.WithFields(logrus.Fields{
				"function": "recordASCSCharacteristic",
			}).Error("ASE characteristic doesn't have ccc")
			return false
		}
		if !c.subscribe(d, ch.ValueHandle, ccc) {
			return false
		}

		dir := ascs.DirectionSink
		if ch.UUID.Equal(gatt.UUIDSourceASE) {
			dir = ascs.DirectionSource
		}
		d.ASEs = append(d.ASEs, &device.ASE{
			Handles:   device.HandlePair{Value: ch.ValueHandle, CCC: ccc},
			Direction: dir,
		})

	case ch.UUID.Equal(gatt.UUIDASEControlPoint):
		if ccc == 0 {
			logrus.WithFields(logrus.Fields{
				"function": "recordASCSCharacteristic",
			}).Error("ASE control point doesn't have ccc")
			return false
		}
		if !c.subscribe(d, ch.ValueHandle, ccc) {
			return false
		}
		d.ControlPointHandles = device.HandlePair{Value: ch.ValueHandle, CCC: ccc}
	}
	return true
}

// aseInitialStateReadRequest reads every ASE's state; the last read
// carries the connected-notification sentinel.
func (c *Client) aseInitialStateReadRequest(d *device.Device) {
	for i, a := range d.ASEs {
		tag := uint32(0)
		if d.NotifyConnectedAfterRead && i == len(d.ASEs)-1 {
			tag = tagNotifyConnected
		}
		c.queue.ReadCharacteristic(d.ConnID, a.Handles.Value, tag)
	}
}

func (c *Client) onGattReadRsp(conn gatt.ConnID, handle uint16, status gatt.Status, value []byte, tag uint32) {
	c.queue.OperationComplete(conn)

	if status == gatt.StatusSuccess {
		c.charValueHandle(conn, handle, value)
	}

	if tag == tagNotifyConnected {
		d := c.devices.FindByConnID(conn)
		if d == nil {
			return
		}
		d.NotifyConnectedAfterRead = false
		c.connectionReady(d)
	}
}

// charValueHandle dispatches a read response or notification to the
// in-memory entity owning the handle.
func (c *Client) charValueHandle(conn gatt.ConnID, handle uint16, value []byte) {
	d := c.devices.FindByConnID(conn)
	if d == nil {
		logrus.WithFields(logrus.Fields{
			"function": "charValueHandle",
			"conn_id":  conn,
		}).Error("No device assigned to connection id")
		return
	}

	if a := d.AseByValueHandle(handle); a != nil {
		g := c.groups.FindByID(d.GroupID)
		if err := c.machine.ProcessGattNotifEvent(value, a, d, g); err != nil {
			if errors.Is(err, stream.ErrPeerProtocol) {
				logrus.WithFields(logrus.Fields{
					"function": "charValueHandle",
					"address":  d.Address.String(),
					"error":    err.Error(),
				}).Error("Malformed ASE notification, disconnecting peer")
				c.disconnectDevice(d, false)
			}
		}
		return
	}

	if c.handlePACValue(d, handle, value) {
		return
	}

	switch handle {
	case d.SinkLocationsHandles.Value:
		c.handleSinkLocations(d, value)
	case d.SourceLocationsHandles.Value:
		c.handleSourceLocations(d, value)
	case d.AvailableContextsHandles.Value:
		c.handleAvailableContexts(d, value)
	case d.SupportedContextsHandles.Value:
		sink, source, err := pacs.ParseSupportedContexts(value)
		if err != nil {
			return
		}
		d.SetSupportedContexts(sink, source)
	case d.ControlPointHandles.Value:
		ntf, err := ascs.ParseControlPointNotification(value)
		if err != nil {
			return
		}
		c.controlPointNotificationHandler(ntf)
	default:
		logrus.WithFields(logrus.Fields{
			"function": "charValueHandle",
			"handle":   handle,
		}).Error("Unknown attribute read")
	}
}

// handlePACValue parses and registers a PAC record update. A record
// that fails parsing is discarded without state change.
func (c *Client) handlePACValue(d *device.Device, handle uint16, value []byte) bool {
	isSink := false
	found := false
	for _, s := range d.SinkPACs {
		if s.Handles.Value == handle {
			isSink = true
			found = true
			break
		}
	}
	if !found {
		for _, s := range d.SourcePACs {
			if s.Handles.Value == handle {
				found = true
				break
			}
		}
	}
	if !found {
		return false
	}

	records, err := pacs.ParseRecords(value)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "handlePACValue",
			"address":  d.Address.String(),
			"error":    err.Error(),
		}).Warn("Discarding unparsable PAC record")
		return true
	}

	if isSink {
		logrus.WithFields(logrus.Fields{
			"function": "handlePACValue",
			"records":  len(records),
		}).Info("Registering sink PACs")
		d.RegisterSinkPACs(handle, records)
	} else {
		logrus.WithFields(logrus.Fields{
			"function": "handlePACValue",
			"records":  len(records),
		}).Info("Registering source PACs")
		d.RegisterSourcePACs(handle, records)
	}

	if g := c.groups.FindByID(d.GroupID); g != nil {
		g.UpdateActiveContexts()
	}
	return true
}

func (c *Client) handleSinkLocations(d *device.Device, value []byte) {
	locations, err := pacs.ParseAudioLocations(value)
	if err != nil {
		return
	}

	// Value may not change; a repeat must not refire OnAudioConf.
	if d.AudioDirections&uint8(ascs.DirectionSink) != 0 && d.SinkLocations == locations {
		return
	}

	d.AudioDirections |= uint8(ascs.DirectionSink)
	d.SinkLocations = locations

	c.callbacks.OnSinkAudioLocationAvailable(d.Address, uint32(locations))

	if g := c.groups.FindByID(d.GroupID); g != nil && g.ReloadAudioLocations() {
		c.emitAudioConf(g)
	}
}

func (c *Client) handleSourceLocations(d *device.Device, value []byte) {
	locations, err := pacs.ParseAudioLocations(value)
	if err != nil {
		return
	}

	if d.AudioDirections&uint8(ascs.DirectionSource) != 0 && d.SourceLocations == locations {
		return
	}

	d.AudioDirections |= uint8(ascs.DirectionSource)
	d.SourceLocations = locations

	if g := c.groups.FindByID(d.GroupID); g != nil && g.ReloadAudioLocations() {
		c.emitAudioConf(g)
	}
}

// handleAvailableContexts applies or defers an available-contexts
// update: while the group transitions or streams, only the latest
// value is stashed and applied on the next idle.
func (c *Client) handleAvailableContexts(d *device.Device, value []byte) {
	sink, source, err := pacs.ParseAvailableContexts(value)
	if err != nil {
		return
	}

	changed := d.SetAvailableContexts(sink, source)
	if !changed.Any() {
		return
	}

	g := c.groups.FindByID(d.GroupID)
	if g == nil {
		return
	}

	if g.IsInTransition() || g.State() == ascs.StateStreaming {
		pending := d.AvailableContexts()
		g.PendingAvailableContexts = &pending
		return
	}

	if updated := g.UpdateActiveContexts(); updated != nil {
		c.emitAudioConf(g)
	}
}

func (c *Client) controlPointNotificationHandler(ntf *ascs.ControlPointNotification) {
	for _, entry := range ntf.Entries {
		if entry.Response == ascs.ResponseInvalidConfigParameterValue &&
			entry.Reason == ascs.ReasonInvalidAseCisMapping {
			c.coordinator.CancelStreamingRequest()
		}
		// Success and everything else is advisory; state changes
		// arrive via ASE notifications.
	}
}

func (c *Client) onGattWriteRsp(conn gatt.ConnID, handle uint16, status gatt.Status) {
	c.queue.OperationComplete(conn)

	if status != gatt.StatusSuccess {
		logrus.WithFields(logrus.Fields{
			"function": "onGattWriteRsp",
			"conn_id":  conn,
			"handle":   handle,
			"status":   status,
		}).Error("Characteristic write failed")
	}
}

func (c *Client) onGattWriteCCC(conn gatt.ConnID, handle uint16, status gatt.Status) {
	c.queue.OperationComplete(conn)

	d := c.devices.FindByConnID(conn)
	if d == nil {
		logrus.WithFields(logrus.Fields{
			"function": "onGattWriteCCC",
			"conn_id":  conn,
		}).Error("Unknown connection id")
		return
	}

	if status == gatt.StatusSuccess {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "onGattWriteCCC",
		"handle":   handle,
		"status":   status,
	}).Error("Failed to register for indications")

	// A failed ASE subscription drops that endpoint's notifications;
	// the rest of the device keeps running.
	for _, a := range d.ASEs {
		if a.Handles.CCC == handle {
			c.gattClient.DeregisterNotify(d.Address, a.Handles.Value)
			return
		}
	}
}

func (c *Client) onServiceChanged(addr gatt.Address) {
	d := c.devices.FindByAddress(addr)
	if d == nil {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "onServiceChanged",
		"address":  addr.String(),
	}).Info("Service changed, dropping cached handles")

	d.KnownServiceHandles = false
	d.CsisMember = false
	c.queue.Clean(d.ConnID)
	c.deregisterNotifications(d)
}

func (c *Client) onServiceDiscoveryDone(addr gatt.Address) {
	d := c.devices.FindByAddress(addr)
	if d == nil {
		return
	}
	if !d.KnownServiceHandles {
		c.gattClient.ServiceSearch(d.ConnID, gatt.UUIDPublishedAudioCapabilityService)
	}
}

func (c *Client) registerKnownNotifications(d *device.Device) {
	for _, s := range d.SinkPACs {
		c.gattClient.RegisterNotify(d.Address, s.Handles.Value)
	}
	for _, s := range d.SourcePACs {
		c.gattClient.RegisterNotify(d.Address, s.Handles.Value)
	}
	for _, pair := range []device.HandlePair{
		d.SinkLocationsHandles, d.SourceLocationsHandles,
		d.AvailableContextsHandles, d.SupportedContextsHandles,
		d.ControlPointHandles,
	} {
		if pair.Value != 0 {
			c.gattClient.RegisterNotify(d.Address, pair.Value)
		}
	}
	for _, a := range d.ASEs {
		c.gattClient.RegisterNotify(d.Address, a.Handles.Value)
	}
}

func (c *Client) deregisterNotifications(d *device.Device) {
	for _, s := range d.SinkPACs {
		c.gattClient.DeregisterNotify(d.Address, s.Handles.Value)
	}
	for _, s := range d.SourcePACs {
		c.gattClient.DeregisterNotify(d.Address, s.Handles.Value)
	}
	for _, pair := range []device.HandlePair{
		d.SinkLocationsHandles, d.SourceLocationsHandles,
		d.AvailableContextsHandles, d.SupportedContextsHandles,
		d.ControlPointHandles,
	} {
		if pair.Value != 0 {
			c.gattClient.DeregisterNotify(d.Address, pair.Value)
		}
	}
	for _, a := range d.ASEs {
		c.gattClient.DeregisterNotify(d.Address, a.Handles.Value)
	}
}

// connectionReady fires once every initial read returned: the device
// is connected from the consumer's point of view.
func (c *Client) connectionReady(d *device.Device) {
	c.callbacks.OnConnectionState(ConnectionConnected, d.Address)

	if d.GroupID != device.GroupUnknown {
		if g := c.groups.FindByID(d.GroupID); g != nil {
			c.updateContextAndLocations(g, d)
			c.attachToStreamingGroupIfNeeded(d)
		}
	}

	if d.FirstConnection {
		if c.storage != nil {
			c.storage.SetAutoconnect(d.Address, true)
		}
		d.FirstConnection = false
	}
}

// attachToStreamingGroupIfNeeded joins a freshly connected member to
// the active group's stream: seamlessly when the running configuration
// still has room, else through a stop-and-reconfigure. The selection
// criterion is strictly numInConfiguration < numConnected.
func (c *Client) attachToStreamingGroupIfNeeded(d *device.Device) {
	if d.GroupID != c.coordinator.ActiveGroupID() {
		logrus.WithFields(logrus.Fields{
			"function": "attachToStreamingGroupIfNeeded",
			"group_id": d.GroupID,
		}).Info("Group is not streaming, nothing to do")
		return
	}

	g := c.groups.FindByID(d.GroupID)
	if g == nil {
		return
	}

	sender, receiver := c.coordinator.States()
	if sender == audio.StateIdle && receiver == audio.StateIdle {
		logrus.WithFields(logrus.Fields{
			"function": "attachToStreamingGroupIfNeeded",
			"address":  d.Address.String(),
		}).Debug("Device not streaming but active, nothing to do")
		return
	}

	conf := g.StreamConf.Conf
	if conf == nil {
		return
	}

	if conf.DevicesInConfiguration() < g.NumOfConnected() {
		// The configuration no longer covers the connected set;
		// rebuild the CIG around the newcomer.
		g.PendingConfiguration = true
		c.machine.StopStream(g)
		return
	}

	c.machine.AttachToStream(g, d)
}

func (c *Client) onGattDisconnected(conn gatt.ConnID, addr gatt.Address, reason gatt.DisconnectReason) {
	d := c.devices.FindByAddress(addr)
	if d == nil {
		logrus.WithFields(logrus.Fields{
			"function": "onGattDisconnected",
			"address":  addr.String(),
		}).Error("Skipping unknown device")
		return
	}

	g := c.groups.FindByID(d.GroupID)
	c.machine.ProcessACLDisconnected(g, d)

	c.queue.Clean(conn)
	c.deregisterNotifications(d)

	c.callbacks.OnConnectionState(ConnectionDisconnected, addr)
	d.ConnID = gatt.InvalidConnID
	d.Encrypted = false

	if d.RemovingDevice {
		if g != nil {
			c.groupRemoveNode(g, addr, true)
		}
		c.devices.Remove(addr)
		return
	}

	// Reconnect in background unless the disconnect was local intent.
	if reason != gatt.DisconnectLocalHost {
		c.gattClient.Open(addr, true)
	}
}

// disconnectDevice tears the connection down; force cuts the ACL to
// recover from an unresponsive peer.
func (c *Client) disconnectDevice(d *device.Device, force bool) {
	if d.ConnID == gatt.InvalidConnID {
		return
	}

	if force {
		c.isoMgr.DisconnectACL(d.Address)
		return
	}

	c.queue.Clean(d.ConnID)
	c.gattClient.Close(d.ConnID)
	d.ConnID = gatt.InvalidConnID
}
