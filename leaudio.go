// Package leaudio implements the core of a Bluetooth LE Audio unicast
// central: attribute-server discovery and subscription for each
// peripheral, group-wide ASE state orchestration, and the isochronous
// audio plane binding coordinated sets of earbuds or speakers into a
// coherent streaming session.
//
// Example:
//
//	client, err := leaudio.New(&leaudio.Options{
//	    GattClient:  platformGatt,
//	    IsoManager:  platformIso,
//	    LC3:         lc3Library,
//	    AudioSource: audioSource,
//	    AudioSink:   audioSink,
//	    Storage:     bondedStorage,
//	    Groups:      csisService,
//	}, callbacks)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	client.Connect(addr)
//	client.GroupSetActive(groupID)
//	// The audio framework drives streaming through resume/suspend.
package leaudio

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/audio"
	"github.com/opd-ai/leaudio/codec"
	"github.com/opd-ai/leaudio/config"
	"github.com/opd-ai/leaudio/device"
	"github.com/opd-ai/leaudio/gatt"
	"github.com/opd-ai/leaudio/group"
	"github.com/opd-ai/leaudio/internal/loop"
	"github.com/opd-ai/leaudio/iso"
	"github.com/opd-ai/leaudio/pacs"
	"github.com/opd-ai/leaudio/stream"
)

// GroupIDUnknown marks "no group" in the public API.
const GroupIDUnknown = group.IDUnknown

// Client is the LE Audio unicast central core. All state lives on the
// single main loop; the public methods post onto it and return
// immediately.
type Client struct {
	loop *loop.Loop
	cfg  *config.Config

	callbacks Callbacks

	gattClient   gatt.Client
	queue        *gatt.Queue
	isoMgr       iso.Manager
	storage      Storage
	groupService GroupService

	devices *device.Registry
	groups  *group.Registry

	machine     *stream.Machine
	engine      *codec.Engine
	coordinator *audio.Coordinator
}

// New creates and initializes the client: registers the ISO callback
// surface, hooks the group-membership service and starts the main
// loop.
func New(opts *Options, callbacks Callbacks) (*Client, error) {
	if callbacks == nil {
		return nil, ErrNoCallbacks
	}
	if opts == nil {
		return nil, ErrNoGattClient
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	c := &Client{
		loop:         loop.New(),
		cfg:          cfg,
		callbacks:    callbacks,
		gattClient:   opts.GattClient,
		isoMgr:       opts.IsoManager,
		storage:      opts.Storage,
		groupService: opts.Groups,
		devices:      device.NewRegistry(),
		groups:       group.NewRegistry(),
	}

	c.queue = gatt.NewQueue(opts.GattClient)
	c.engine = codec.NewEngine(opts.LC3)
	c.machine = stream.NewMachine(c.queue, opts.IsoManager, c.groups, c.devices,
		machineCallbacks{c}, c.loop, cfg.SetStateTimeout)
	c.coordinator = audio.NewCoordinator(cfg, c.engine, c.machine, c.groups,
		opts.IsoManager, opts.AudioSource, opts.AudioSink, c.loop)

	opts.IsoManager.RegisterCIGCallbacks(isoEvents{c})
	if c.groupService != nil {
		c.groupService.Initialize(groupEvents{c})
	}

	logrus.WithFields(logrus.Fields{
		"function": "New",
	}).Info("LE Audio client initialized")

	return c, nil
}

// GattEvents returns the handler the platform attribute client feeds;
// events are posted onto the main loop.
func (c *Client) GattEvents() gatt.EventHandler {
	return gattEvents{c}
}

// Connect initiates a direct connection to a peer.
func (c *Client) Connect(addr gatt.Address) {
	c.loop.Post(func() {
		d := c.devices.FindByAddress(addr)
		if d == nil {
			c.devices.Add(addr, true)
		} else {
			d.ConnectingActively = true
		}
		c.gattClient.Open(addr, false)
	})
}

// AddFromStorage restores a bonded device, optionally arming a
// background autoconnect.
func (c *Client) AddFromStorage(addr gatt.Address, autoconnect bool) {
	c.loop.Post(func() {
		logrus.WithFields(logrus.Fields{
			"function": "AddFromStorage",
			"address":  addr.String(),
		}).Info("Restoring device")

		c.devices.Add(addr, false)

		if c.groupService != nil {
			if id := c.groupService.GetGroupID(addr); id != GroupIDUnknown {
				c.groupAddNode(id, addr, false)
			}
		}

		if autoconnect {
			c.gattClient.Open(addr, true)
		}
	})
}

// Disconnect closes the connection; a grouped device whose group is
// still up falls back to background connect instead.
func (c *Client) Disconnect(addr gatt.Address) {
	c.loop.Post(func() {
		d := c.devices.FindByAddress(addr)
		if d == nil {
			logrus.WithFields(logrus.Fields{
				"function": "Disconnect",
				"address":  addr.String(),
			}).Error("Device not connected")
			return
		}

		if d.ConnectingActively {
			c.gattClient.CancelOpen(addr, true)
			d.ConnectingActively = false
		}
		c.gattClient.CancelOpen(addr, false)

		if d.Connected() {
			c.disconnectDevice(d, false)
			return
		}

		c.backgroundConnectIfGroupConnected(d)
	})
}

func (c *Client) backgroundConnectIfGroupConnected(d *device.Device) {
	g := c.groups.FindByID(d.GroupID)
	if g == nil || !g.IsAnyDeviceConnected() {
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "backgroundConnectIfGroupConnected",
		"address":  d.Address.String(),
		"group_id": d.GroupID,
	}).Info("Adding device to background connect for connected group")

	c.gattClient.Open(d.Address, true)
}

// RemoveDevice forgets a device; a connected one is disconnected
// first and removed when the close completes.
func (c *Client) RemoveDevice(addr gatt.Address) {
	c.loop.Post(func() {
		d := c.devices.FindByAddress(addr)
		if d == nil {
			return
		}

		if d.Connected() {
			d.RemovingDevice = true
			c.queue.Clean(d.ConnID)
			c.gattClient.Close(d.ConnID)
			return
		}

		if d.GroupID != GroupIDUnknown {
			if g := c.groups.FindByID(d.GroupID); g != nil {
				c.groupRemoveNode(g, addr, true)
			}
		}
		c.devices.Remove(addr)
	})
}

// GroupAddNode asks the membership service to bind a device to a
// group; the registry follows through the service callbacks.
func (c *Client) GroupAddNode(groupID int, addr gatt.Address) {
	c.loop.Post(func() {
		if c.groupService == nil {
			c.groupAddNode(groupID, addr, false)
			return
		}
		id := c.groupService.GetGroupID(addr)
		if id == groupID {
			return
		}
		if id != GroupIDUnknown {
			c.groupService.RemoveDevice(addr, id)
		}
		c.groupService.AddDevice(addr, groupID)
	})
}

// GroupRemoveNode detaches a device from its group.
func (c *Client) GroupRemoveNode(groupID int, addr gatt.Address) {
	c.loop.Post(func() {
		d := c.devices.FindByAddress(addr)
		g := c.groups.FindByID(groupID)

		if d == nil {
			logrus.WithFields(logrus.Fields{
				"function": "GroupRemoveNode",
				"address":  addr.String(),
			}).Error("Skipping unknown device")
			return
		}
		if d.GroupID != groupID || g == nil {
			logrus.WithFields(logrus.Fields{
				"function": "GroupRemoveNode",
				"group_id": groupID,
				"actual":   d.GroupID,
			}).Error("Device is not in group")
			return
		}

		c.groupRemoveNode(g, addr, true)
	})
}

// groupAddNode performs the registry-side group join.
func (c *Client) groupAddNode(groupID int, addr gatt.Address, updateGroupModule bool) {
	d := c.devices.FindByAddress(addr)
	if d == nil {
		if groupID == GroupIDUnknown {
			return
		}
		// Set member joining ahead of connection.
		d = c.devices.Add(addr, true)
	}

	var oldGroup *group.Group
	if d.GroupID != GroupIDUnknown {
		oldGroup = c.groups.FindByID(d.GroupID)
	}

	g := c.groups.FindByID(groupID)
	if g == nil {
		g = c.groups.Add(groupID)
		if g == nil {
			return
		}
	} else if g.IsDeviceInGroup(d) {
		return
	}

	if oldGroup != nil {
		c.groupRemoveNode(oldGroup, addr, updateGroupModule)
	}

	g.AddNode(d)
	c.callbacks.OnGroupNodeStatus(addr, g.ID, GroupNodeAdded)

	// A connected joiner gets its ASE states read right away.
	if d.Connected() {
		c.aseInitialStateReadRequest(d)
	}

	c.updateContextAndLocations(g, d)
}

// groupRemoveNode performs the registry-side group leave.
func (c *Client) groupRemoveNode(g *group.Group, addr gatt.Address, updateGroupModule bool) {
	d := c.devices.FindByAddress(addr)
	if d == nil {
		return
	}
	groupID := g.ID
	g.RemoveNode(d)

	if updateGroupModule && c.groupService != nil {
		if c.groupService.GetGroupID(addr) == groupID {
			c.groupService.RemoveDevice(addr, groupID)
		}
	}

	c.callbacks.OnGroupNodeStatus(addr, groupID, GroupNodeRemoved)

	if g.IsEmpty() {
		c.groups.RemoveIfPossible(g)
		return
	}

	// Removing a node touches the group's context integrity.
	updated := g.UpdateActiveContexts()
	if updated != nil || g.ReloadAudioLocations() {
		c.emitAudioConf(g)
	}
}

// GroupSetActive binds a group to the audio framework, or releases
// the binding with GroupIDUnknown. At most one group is active.
func (c *Client) GroupSetActive(groupID int) {
	c.loop.Post(func() {
		active := c.coordinator.ActiveGroupID()

		if groupID == GroupIDUnknown {
			if active == GroupIDUnknown {
				return
			}
			c.coordinator.ClearActiveGroup()
			c.callbacks.OnGroupStatus(active, GroupInactive)
			return
		}

		g := c.groups.FindByID(groupID)
		if g == nil {
			logrus.WithFields(logrus.Fields{
				"function": "GroupSetActive",
				"group_id": groupID,
			}).Error("Invalid group")
			return
		}

		if active != GroupIDUnknown {
			if active == groupID {
				logrus.WithFields(logrus.Fields{
					"function": "GroupSetActive",
					"group_id": groupID,
				}).Info("Group is already active")
				c.callbacks.OnGroupStatus(groupID, GroupActive)
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "GroupSetActive",
				"group_id": groupID,
			}).Info("Switching active group")
		}

		if !c.coordinator.SetActiveGroup(groupID) {
			return
		}
		c.callbacks.OnGroupStatus(groupID, GroupActive)
	})
}

// GroupStream starts streaming the group with the requested context
// bitmap.
func (c *Client) GroupStream(groupID int, contextBitmap uint16) {
	c.loop.Post(func() {
		c.coordinator.InternalGroupStream(groupID, pacs.ContextType(contextBitmap))
	})
}

// GroupSuspend pauses the group's stream, keeping the CIG.
func (c *Client) GroupSuspend(groupID int) {
	c.loop.Post(func() {
		g := c.groups.FindByID(groupID)
		if g == nil {
			logrus.WithFields(logrus.Fields{
				"function": "GroupSuspend",
				"group_id": groupID,
			}).Error("Unknown group id")
			return
		}
		if !g.IsAnyDeviceConnected() {
			logrus.WithFields(logrus.Fields{
				"function": "GroupSuspend",
				"group_id": groupID,
			}).Error("Group is not connected")
			return
		}
		if g.IsInTransition() {
			logrus.WithFields(logrus.Fields{
				"function": "GroupSuspend",
				"from":     g.State().String(),
				"to":       g.TargetState().String(),
			}).Info("Group is in transition")
			return
		}
		if g.State() != ascs.StateStreaming {
			logrus.WithFields(logrus.Fields{
				"function": "GroupSuspend",
				"state":    g.State().String(),
			}).Error("Invalid current state of group")
			return
		}

		c.machine.SuspendStream(g)
	})
}

// GroupStop releases the group's stream and tears the CIG down.
func (c *Client) GroupStop(groupID int) {
	c.loop.Post(func() {
		c.coordinator.GroupStop(groupID)
	})
}

// GroupDestroy disconnects and removes every member of the group.
func (c *Client) GroupDestroy(groupID int) {
	c.loop.Post(func() {
		g := c.groups.FindByID(groupID)
		if g == nil {
			logrus.WithFields(logrus.Fields{
				"function": "GroupDestroy",
				"group_id": groupID,
			}).Error("Unknown group id")
			return
		}

		members := append([]*device.Device(nil), g.Members()...)
		for _, d := range members {
			c.removeDeviceOnLoop(d)
		}
	})
}

func (c *Client) removeDeviceOnLoop(d *device.Device) {
	if d.Connected() {
		d.RemovingDevice = true
		c.queue.Clean(d.ConnID)
		c.gattClient.Close(d.ConnID)
		return
	}
	if d.GroupID != GroupIDUnknown {
		if g := c.groups.FindByID(d.GroupID); g != nil {
			c.groupRemoveNode(g, d.Address, true)
		}
	}
	c.devices.Remove(d.Address)
}

// GetGroupDevices returns the member addresses of a group.
func (c *Client) GetGroupDevices(groupID int) []gatt.Address {
	var out []gatt.Address
	c.loop.PostAndWait(func() {
		if g := c.groups.FindByID(groupID); g != nil {
			for _, d := range g.Members() {
				out = append(out, d.Address)
			}
		}
	})
	return out
}

// Cleanup tears the client down and invokes done once the main loop
// drained.
func (c *Client) Cleanup(done func()) {
	c.loop.Post(func() {
		c.coordinator.CancelSuspendTimeout()
		c.machine.Cleanup()
		c.coordinator.ClearActiveGroup()
		c.devices.Cleanup()
		c.groups.Cleanup()
	})
	c.loop.Stop()
	if done != nil {
		done()
	}
}

// DebugDump writes the client state for bug reports.
func (c *Client) DebugDump(w io.Writer) {
	c.loop.PostAndWait(func() {
		fmt.Fprintf(w, "  Active group: %d\n", c.coordinator.ActiveGroupID())
		fmt.Fprintf(w, "    current context type: %s\n", c.coordinator.CurrentContext())
		fmt.Fprintf(w, "    stream setup time if started: %v\n", c.coordinator.StreamSetupTime())

		sender, receiver := c.coordinator.States()
		fwSource, fwSink, btSource, btSink := c.coordinator.Configs()
		fmt.Fprintf(w, "    audio sender state: %s\n", sender)
		fmt.Fprintf(w, "    audio receiver state: %s\n", receiver)
		fmt.Fprintf(w, "    framework source: %+v\n", fwSource)
		fmt.Fprintf(w, "    framework sink: %+v\n", fwSink)
		fmt.Fprintf(w, "    bt source: %+v\n", btSource)
		fmt.Fprintf(w, "    bt sink: %+v\n", btSink)

		enc, dec := c.engine.LiveInstances()
		fmt.Fprintf(w, "    codec instances: encoders %d decoders %d\n", enc, dec)

		fmt.Fprintf(w, "  ----------------\n")
		fmt.Fprintf(w, "  LE Audio Groups:\n")
		c.groups.Dump(w)
		fmt.Fprintf(w, "  Not grouped devices:\n")
		c.devices.Dump(w, GroupIDUnknown)
		fmt.Fprintf(w, "  ISO link stats:\n")
		c.machine.Stats().Dump(w)
	})
}

// updateContextAndLocations refreshes the group aggregates after a
// member change and emits OnAudioConf when something moved. An
// unchanged contexts update is a no-op, never a crash.
func (c *Client) updateContextAndLocations(g *group.Group, d *device.Device) {
	updated := g.UpdateActiveContexts()
	reloaded := g.ReloadAudioLocations()
	if updated != nil || reloaded {
		c.emitAudioConf(g)
	}
}

func (c *Client) emitAudioConf(g *group.Group) {
	c.callbacks.OnAudioConf(g.AudioDirections, g.ID,
		uint32(g.SinkLocations), uint32(g.SourceLocations),
		uint16(g.ActiveContexts()))
}

// handlePendingAvailableContexts applies a deferred contexts update
// once the group went idle; one OnAudioConf fires when the active
// contexts changed, none otherwise.
func (c *Client) handlePendingAvailableContexts(g *group.Group) {
	if g == nil || g.PendingAvailableContexts == nil {
		return
	}

	g.PendingAvailableContexts = nil
	if updated := g.UpdateActiveContexts(); updated != nil {
		c.emitAudioConf(g)
	}
}

// machineCallbacks adapts the stream machine's reporting onto the
// client.
type machineCallbacks struct{ c *Client }

func (m machineCallbacks) StatusReport(groupID int, status group.StreamStatus) {
	c := m.c
	g := c.groups.FindByID(groupID)

	reconfiguring := c.coordinator.HandleGroupStatus(groupID, status)

	switch status {
	case group.StatusIdle, group.StatusConfiguredAutonomous, group.StatusConfiguredByUser:
		if !reconfiguring {
			c.handlePendingAvailableContexts(g)
		}
	}
}

func (m machineCallbacks) OnStateTransitionTimeout(groupID int) {
	c := m.c
	g := c.groups.FindByID(groupID)
	if g == nil {
		return
	}

	c.coordinator.OnStateTransitionTimeout()

	// The peer is unresponsive at the attribute layer; cut the ACLs
	// to recover.
	targets := g.ActiveDevices()
	if len(targets) == 0 {
		targets = g.ConnectedDevices()
	}
	for _, d := range targets {
		c.disconnectDevice(d, true)
	}
}

// groupEvents adapts the membership service callbacks onto the main
// loop.
type groupEvents struct{ c *Client }

func (e groupEvents) OnGroupAdded(addr gatt.Address, groupID int) {
	e.c.loop.Post(func() {
		d := e.c.devices.FindByAddress(addr)
		if d == nil || d.GroupID != GroupIDUnknown {
			return
		}
		e.c.groupAddNode(groupID, addr, false)
	})
}

func (e groupEvents) OnGroupMemberAdded(addr gatt.Address, groupID int) {
	e.c.loop.Post(func() {
		d := e.c.devices.FindByAddress(addr)
		if d == nil || d.GroupID != GroupIDUnknown {
			return
		}
		e.c.groupAddNode(groupID, addr, false)
	})
}

func (e groupEvents) OnGroupMemberRemoved(addr gatt.Address, groupID int) {
	e.c.loop.Post(func() {
		d := e.c.devices.FindByAddress(addr)
		if d == nil || d.GroupID == GroupIDUnknown {
			return
		}
		g := e.c.groups.FindByID(groupID)
		if g == nil {
			return
		}
		e.c.groupRemoveNode(g, addr, false)
	})
}

// isoEvents adapts the HCI/ISO completions onto the main loop and
// resolves the (group, device) binding by lookup, never by sequence
// assumption.
type isoEvents struct{ c *Client }

func (e isoEvents) OnCIGCreated(status uint8, cigID uint8, connHandles []uint16) {
	e.c.loop.Post(func() {
		g := e.c.groups.FindByID(int(cigID))
		e.c.machine.ProcessCIGCreated(g, status, connHandles)
	})
}

func (e isoEvents) OnCIGRemoved(status uint8, cigID uint8) {
	e.c.loop.Post(func() {
		g := e.c.groups.FindByID(int(cigID))
		e.c.machine.ProcessCIGRemoved(g, status)
		e.c.groups.RemoveIfPossible(g)
	})
}

func (e isoEvents) OnCISEstablished(evt *iso.CISEstablishedEvent) {
	e.c.loop.Post(func() {
		d := e.c.devices.FindByCISHandle(evt.CISConnHandle)
		if d == nil {
			logrus.WithFields(logrus.Fields{
				"function": "OnCISEstablished",
				"cis":      evt.CISConnHandle,
			}).Error("No bonded LE Audio device with CIS")
			return
		}
		g := e.c.groups.FindByID(d.GroupID)
		if g == nil {
			return
		}
		e.c.machine.ProcessCISEstablished(g, d, evt)
	})
}

func (e isoEvents) OnCISDisconnected(evt *iso.CISDisconnectedEvent) {
	e.c.loop.Post(func() {
		d := e.c.devices.FindByCISHandle(evt.CISConnHandle)
		if d == nil {
			return
		}
		g := e.c.groups.FindByID(d.GroupID)
		e.c.machine.ProcessCISDisconnected(g, d, evt)
	})
}

func (e isoEvents) OnSetupIsoDataPath(status uint8, cisConnHandle uint16, cigID uint8) {
	e.c.loop.Post(func() {
		d := e.c.devices.FindByCISHandle(cisConnHandle)
		if d == nil {
			return
		}
		g := e.c.groups.FindByID(d.GroupID)
		e.c.machine.ProcessSetupIsoDataPath(g, d, status, cisConnHandle)
	})
}

func (e isoEvents) OnRemoveIsoDataPath(status uint8, cisConnHandle uint16, cigID uint8) {
	e.c.loop.Post(func() {
		d := e.c.devices.FindByCISHandle(cisConnHandle)
		if d == nil {
			return
		}
		g := e.c.groups.FindByID(d.GroupID)
		e.c.machine.ProcessRemoveIsoDataPath(g, d, status, cisConnHandle)
	})
}

func (e isoEvents) OnIsoLinkQualityRead(evt *iso.LinkQualityEvent) {
	e.c.loop.Post(func() {
		if d := e.c.devices.FindByCISHandle(evt.CISConnHandle); d == nil {
			logrus.WithFields(logrus.Fields{
				"function": "OnIsoLinkQualityRead",
				"cis":      evt.CISConnHandle,
			}).Warn("Device under connection handle has been disconnected in meantime")
			return
		}
		e.c.machine.ProcessLinkQualityRead(evt)
	})
}

func (e isoEvents) OnIsoDataReceived(cisConnHandle uint16, timestamp uint32, payload []byte) {
	// SDU ingress may arrive on the controller I/O goroutine; hand it
	// to the main loop before touching any state.
	data := make([]byte, len(payload))
	copy(data, payload)
	e.c.loop.Post(func() {
		e.c.coordinator.HandleIsoData(cisConnHandle, timestamp, data)
	})
}
