package leaudio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/audio"
	"github.com/opd-ai/leaudio/codec"
	"github.com/opd-ai/leaudio/gatt"
	"github.com/opd-ai/leaudio/iso"
	"github.com/opd-ai/leaudio/pacs"
)

// --- transport fake -------------------------------------------------

type fakeOp struct {
	kind   string // "read", "write", "desc", "mtu"
	conn   gatt.ConnID
	handle uint16
	value  []byte
	tag    uint32
}

type fakeTransport struct {
	mu sync.Mutex

	opens    []gatt.Address
	searches []gatt.ConnID
	services []gatt.Service
	values   map[uint16][]byte

	pending []fakeOp
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{values: make(map[uint16][]byte)}
}

func (f *fakeTransport) Open(addr gatt.Address, background bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, addr)
}
func (f *fakeTransport) CancelOpen(addr gatt.Address, direct bool) {}
func (f *fakeTransport) Close(conn gatt.ConnID)                    {}
func (f *fakeTransport) ConfigureMTU(conn gatt.ConnID, mtu uint16) {
	f.push(fakeOp{kind: "mtu", conn: conn})
}
func (f *fakeTransport) ServiceSearch(conn gatt.ConnID, uuid gatt.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, conn)
}
func (f *fakeTransport) Services(conn gatt.ConnID) []gatt.Service { return f.services }
func (f *fakeTransport) Read(conn gatt.ConnID, handle uint16, tag uint32) {
	f.push(fakeOp{kind: "read", conn: conn, handle: handle, tag: tag})
}
func (f *fakeTransport) Write(conn gatt.ConnID, handle uint16, value []byte, mode gatt.WriteMode) {
	f.push(fakeOp{kind: "write", conn: conn, handle: handle, value: value})
}
func (f *fakeTransport) WriteDescriptor(conn gatt.ConnID, handle uint16, value []byte) {
	f.push(fakeOp{kind: "desc", conn: conn, handle: handle, value: value})
}
func (f *fakeTransport) RegisterNotify(addr gatt.Address, handle uint16) error { return nil }
func (f *fakeTransport) DeregisterNotify(addr gatt.Address, handle uint16)     {}
func (f *fakeTransport) StartEncryption(addr gatt.Address) error               { return nil }
func (f *fakeTransport) IsEncrypted(addr gatt.Address) bool                    { return true }

func (f *fakeTransport) push(op fakeOp) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, op)
}

func (f *fakeTransport) pop() (fakeOp, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return fakeOp{}, false
	}
	op := f.pending[0]
	f.pending = f.pending[1:]
	return op, true
}

// --- other collaborator fakes ----------------------------------------

type fakeIsoMgr struct{}

func (f *fakeIsoMgr) RegisterCIGCallbacks(cb iso.CIGCallbacks)                         {}
func (f *fakeIsoMgr) CreateCIG(cigID uint8, params iso.CIGParams)                      {}
func (f *fakeIsoMgr) RemoveCIG(cigID uint8)                                            {}
func (f *fakeIsoMgr) EstablishCIS(pairs []iso.CISPair)                                 {}
func (f *fakeIsoMgr) DisconnectCIS(cisConnHandle uint16, reason uint8)                 {}
func (f *fakeIsoMgr) SetupIsoDataPath(cisConnHandle uint16, params iso.DataPathParams) {}
func (f *fakeIsoMgr) RemoveIsoDataPath(cisConnHandle uint16, directionMask uint8)      {}
func (f *fakeIsoMgr) SendIsoData(cisConnHandle uint16, payload []byte)                 {}
func (f *fakeIsoMgr) ReadIsoLinkQuality(cisConnHandle uint16)                          {}
func (f *fakeIsoMgr) RequestPeerSCA(addr gatt.Address)                                 {}
func (f *fakeIsoMgr) SetPreferredPHY(addr gatt.Address, txPHY, rxPHY uint8)            {}
func (f *fakeIsoMgr) DisconnectACL(addr gatt.Address)                                  {}

type fakeLC3 struct{}

type nopEncoder struct{}

func (nopEncoder) Encode(pcm []int16, stride int, out []byte) error { return nil }

type nopDecoder struct{}

func (nopDecoder) Decode(in []byte, stride int, out []int16) error { return nil }

func (f *fakeLC3) FrameSamples(intervalUs, hz int) int           { return intervalUs * hz / 1000000 }
func (f *fakeLC3) NewEncoder(i, s, p int) (codec.Encoder, error) { return nopEncoder{}, nil }
func (f *fakeLC3) NewDecoder(i, s, p int) (codec.Decoder, error) { return nopDecoder{}, nil }

type fakeAudioSession struct{}

func (fakeAudioSession) Acquire() bool                { return true }
func (fakeAudioSession) Release()                     {}
func (fakeAudioSession) Stop()                        {}
func (fakeAudioSession) ConfirmStreamingRequest()     {}
func (fakeAudioSession) CancelStreamingRequest()      {}
func (fakeAudioSession) SuspendedForReconfiguration() {}
func (fakeAudioSession) UpdateRemoteDelay(ms uint16)  {}

type fakeAudioSource struct{ fakeAudioSession }

func (fakeAudioSource) Start(conf codec.PCMConfig, cb audio.SourceCallbacks) bool { return true }

type fakeAudioSink struct{ fakeAudioSession }

func (fakeAudioSink) Start(conf codec.PCMConfig, cb audio.SinkCallbacks) bool { return true }
func (fakeAudioSink) SendData(pcm []byte) int                                 { return len(pcm) }

type fakeStorage struct {
	mu          sync.Mutex
	autoconnect map[gatt.Address]bool
}

func (f *fakeStorage) SetAutoconnect(addr gatt.Address, v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.autoconnect == nil {
		f.autoconnect = make(map[gatt.Address]bool)
	}
	f.autoconnect[addr] = v
}

type fakeGroupService struct {
	mu     sync.Mutex
	ids    map[gatt.Address]int
	cb     GroupCallbacks
}

func (f *fakeGroupService) Initialize(cb GroupCallbacks) { f.cb = cb }
func (f *fakeGroupService) AddDevice(addr gatt.Address, groupID int) {
	f.mu.Lock()
	if groupID == GroupIDUnknown {
		groupID = 1
	}
	f.ids[addr] = groupID
	cb := f.cb
	f.mu.Unlock()

	if cb != nil {
		cb.OnGroupAdded(addr, groupID)
	}
}
func (f *fakeGroupService) RemoveDevice(addr gatt.Address, groupID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, addr)
}
func (f *fakeGroupService) GetGroupID(addr gatt.Address) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.ids[addr]; ok {
		return id
	}
	return GroupIDUnknown
}

type callbackRecorder struct {
	mu            sync.Mutex
	connections   []ConnectionState
	audioConfs    []uint16
	sinkLocations []uint32
	nodeEvents    []GroupNodeStatus
	groupStatuses []GroupStatus
}

func (r *callbackRecorder) OnConnectionState(state ConnectionState, addr gatt.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections = append(r.connections, state)
}

func (r *callbackRecorder) OnGroupStatus(groupID int, status GroupStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groupStatuses = append(r.groupStatuses, status)
}

func (r *callbackRecorder) OnGroupNodeStatus(addr gatt.Address, groupID int, status GroupNodeStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodeEvents = append(r.nodeEvents, status)
}

func (r *callbackRecorder) OnAudioConf(directions uint8, groupID int, sink, source uint32, contexts uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audioConfs = append(r.audioConfs, contexts)
}

func (r *callbackRecorder) OnSinkAudioLocationAvailable(addr gatt.Address, loc uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinkLocations = append(r.sinkLocations, loc)
}

// --- peer attribute table -------------------------------------------

// Attribute handles of the simulated earbud.
const (
	hdlSinkPACVal  = 0x10
	hdlSinkPACCCC  = 0x11
	hdlSnkLocVal   = 0x12
	hdlSnkLocCCC   = 0x13
	hdlAvailVal    = 0x14
	hdlAvailCCC    = 0x15
	hdlSuppVal     = 0x16
	hdlSuppCCC     = 0x17
	hdlSinkASEVal  = 0x20
	hdlSinkASECCC  = 0x21
	hdlCtpVal      = 0x22
	hdlCtpCCC      = 0x23
)

func earbudServices() []gatt.Service {
	ccc := func(h uint16) []gatt.Descriptor {
		return []gatt.Descriptor{{UUID: gatt.UUIDClientCharacteristicConfig, Handle: h}}
	}
	return []gatt.Service{
		{
			UUID: gatt.UUIDPublishedAudioCapabilityService, Handle: 0x01, Primary: true,
			Characteristics: []gatt.Characteristic{
				{UUID: gatt.UUIDSinkPAC, ValueHandle: hdlSinkPACVal, Descriptors: ccc(hdlSinkPACCCC)},
				{UUID: gatt.UUIDSinkAudioLocations, ValueHandle: hdlSnkLocVal, Descriptors: ccc(hdlSnkLocCCC)},
				{UUID: gatt.UUIDAvailableAudioContexts, ValueHandle: hdlAvailVal, Descriptors: ccc(hdlAvailCCC)},
				{UUID: gatt.UUIDSupportedAudioContexts, ValueHandle: hdlSuppVal, Descriptors: ccc(hdlSuppCCC)},
			},
		},
		{
			UUID: gatt.UUIDAudioStreamControlService, Handle: 0x02, Primary: true,
			Characteristics: []gatt.Characteristic{
				{UUID: gatt.UUIDSinkASE, ValueHandle: hdlSinkASEVal, Descriptors: ccc(hdlSinkASECCC)},
				{UUID: gatt.UUIDASEControlPoint, ValueHandle: hdlCtpVal, Descriptors: ccc(hdlCtpCCC)},
			},
		},
	}
}

func earbudValues() map[uint16][]byte {
	pac := pacs.SerializeRecords([]pacs.Record{{
		Codec: pacs.LC3CodecID,
		Capabilities: pacs.CodecCapabilities{
			SamplingFrequencies: pacs.SamplingFreq48000Hz,
			FrameDurations:      pacs.FrameDuration10000Us,
			ChannelCounts:       pacs.ChannelCountOne,
			MinOctetsPerFrame:   40,
			MaxOctetsPerFrame:   120,
		},
		PreferredContexts: pacs.AudioContexts(pacs.ContextMedia),
	}})

	return map[uint16][]byte{
		hdlSinkPACVal: pac,
		hdlSnkLocVal:  pacs.SerializeAudioLocations(pacs.LocationFrontLeft),
		hdlAvailVal:   pacs.SerializeContexts(pacs.AudioContexts(pacs.ContextMedia), 0),
		hdlSuppVal:    pacs.SerializeContexts(pacs.AudioContexts(pacs.ContextMedia|pacs.ContextConversational), 0),
		hdlSinkASEVal: {0x01, byte(ascs.StateIdle)},
	}
}

// --- harness --------------------------------------------------------

type clientHarness struct {
	client    *Client
	transport *fakeTransport
	storage   *fakeStorage
	groups    *fakeGroupService
	cb        *callbackRecorder
	events    gatt.EventHandler
}

func newClientHarness(t *testing.T) *clientHarness {
	t.Helper()

	h := &clientHarness{
		transport: newFakeTransport(),
		storage:   &fakeStorage{},
		groups:    &fakeGroupService{ids: make(map[gatt.Address]int)},
		cb:        &callbackRecorder{},
	}
	h.transport.services = earbudServices()
	h.transport.values = earbudValues()

	client, err := New(&Options{
		GattClient:  h.transport,
		IsoManager:  &fakeIsoMgr{},
		LC3:         &fakeLC3{},
		AudioSource: fakeAudioSource{},
		AudioSink:   fakeAudioSink{},
		Storage:     h.storage,
		Groups:      h.groups,
	}, h.cb)
	require.NoError(t, err)
	h.client = client
	h.events = client.GattEvents()

	t.Cleanup(func() { client.Cleanup(nil) })
	return h
}

func (h *clientHarness) flush() {
	h.client.loop.PostAndWait(func() {})
}

// pump answers queued transport operations the way a peer would until
// the queue drains.
func (h *clientHarness) pump(conn gatt.ConnID) {
	for i := 0; i < 256; i++ {
		h.flush()
		op, ok := h.transport.pop()
		if !ok {
			return
		}
		switch op.kind {
		case "read":
			h.events.OnReadResponse(op.conn, op.handle, gatt.StatusSuccess,
				h.transport.values[op.handle], op.tag)
		case "write":
			h.events.OnWriteResponse(op.conn, op.handle, gatt.StatusSuccess)
		case "desc":
			h.events.OnWriteDescriptorResponse(op.conn, op.handle, gatt.StatusSuccess)
		case "mtu":
			h.events.OnMTUChanged(op.conn, 240)
		}
	}
}

// connectEarbud drives the full discovery ladder for one peer.
func (h *clientHarness) connectEarbud(t *testing.T, addr gatt.Address, conn gatt.ConnID) {
	t.Helper()

	h.client.Connect(addr)
	h.flush()
	require.NotEmpty(t, h.transport.opens, "Connect should open the transport")

	h.events.OnOpen(gatt.StatusSuccess, conn, addr, 240)
	h.flush()
	require.NotEmpty(t, h.transport.searches, "Encrypted link should trigger service search")

	h.events.OnSearchComplete(conn, gatt.StatusSuccess)
	h.pump(conn)
}

// TestDiscoveryToConnected walks open → encrypted → discovery →
// initial reads → connected.
func TestDiscoveryToConnected(t *testing.T) {
	h := newClientHarness(t)
	addr := gatt.Address{0xAA, 0, 0, 0, 0, 1}

	h.connectEarbud(t, addr, 1)

	h.cb.mu.Lock()
	defer h.cb.mu.Unlock()

	require.Len(t, h.cb.connections, 1, "Exactly one connection callback")
	assert.Equal(t, ConnectionConnected, h.cb.connections[0])

	assert.Equal(t, []uint32{uint32(pacs.LocationFrontLeft)}, h.cb.sinkLocations)
	assert.NotEmpty(t, h.cb.nodeEvents, "Device should have joined a group")
	assert.NotEmpty(t, h.cb.audioConfs, "Audio configuration should be reported")
}

// TestConnectedSetsAutoconnect verifies the first-connection storage
// write.
func TestConnectedSetsAutoconnect(t *testing.T) {
	h := newClientHarness(t)
	addr := gatt.Address{0xAA, 0, 0, 0, 0, 1}

	h.connectEarbud(t, addr, 1)

	h.storage.mu.Lock()
	defer h.storage.mu.Unlock()
	assert.True(t, h.storage.autoconnect[addr], "First connection should persist autoconnect")
}

// TestRepeatedLocationNotifyDoesNotRefire verifies an unchanged audio
// location notification is swallowed.
func TestRepeatedLocationNotifyDoesNotRefire(t *testing.T) {
	h := newClientHarness(t)
	addr := gatt.Address{0xAA, 0, 0, 0, 0, 1}
	h.connectEarbud(t, addr, 1)

	h.cb.mu.Lock()
	confsBefore := len(h.cb.audioConfs)
	locsBefore := len(h.cb.sinkLocations)
	h.cb.mu.Unlock()

	h.events.OnNotify(1, hdlSnkLocVal, pacs.SerializeAudioLocations(pacs.LocationFrontLeft))
	h.flush()

	h.cb.mu.Lock()
	defer h.cb.mu.Unlock()
	assert.Equal(t, confsBefore, len(h.cb.audioConfs), "Unchanged locations must not refire OnAudioConf")
	assert.Equal(t, locsBefore, len(h.cb.sinkLocations))
}

// TestAvailableContextsDeferredWhileStreaming verifies the stash-and-
// apply-on-idle contract with exactly one OnAudioConf.
func TestAvailableContextsDeferredWhileStreaming(t *testing.T) {
	h := newClientHarness(t)
	addr := gatt.Address{0xAA, 0, 0, 0, 0, 1}
	h.connectEarbud(t, addr, 1)

	// Mark the group streaming, white box.
	h.client.loop.PostAndWait(func() {
		d := h.client.devices.FindByAddress(addr)
		g := h.client.groups.FindByID(d.GroupID)
		require.NotNil(t, g)
		g.SetState(ascs.StateStreaming)
		g.SetTargetState(ascs.StateStreaming)
	})

	h.cb.mu.Lock()
	confsBefore := len(h.cb.audioConfs)
	h.cb.mu.Unlock()

	newContexts := pacs.SerializeContexts(
		pacs.AudioContexts(pacs.ContextMedia|pacs.ContextConversational), 0)
	h.events.OnNotify(1, hdlAvailVal, newContexts)
	h.flush()

	h.client.loop.PostAndWait(func() {
		d := h.client.devices.FindByAddress(addr)
		g := h.client.groups.FindByID(d.GroupID)
		require.NotNil(t, g.PendingAvailableContexts, "Update must be stashed")
	})

	h.cb.mu.Lock()
	assert.Equal(t, confsBefore, len(h.cb.audioConfs), "No OnAudioConf while streaming")
	h.cb.mu.Unlock()

	// Back to idle: the stash applies with exactly one OnAudioConf.
	h.client.loop.PostAndWait(func() {
		d := h.client.devices.FindByAddress(addr)
		g := h.client.groups.FindByID(d.GroupID)
		g.SetState(ascs.StateIdle)
		g.SetTargetState(ascs.StateIdle)
		h.client.handlePendingAvailableContexts(g)
	})

	h.cb.mu.Lock()
	defer h.cb.mu.Unlock()
	require.Equal(t, confsBefore+1, len(h.cb.audioConfs), "Exactly one deferred OnAudioConf")
	last := h.cb.audioConfs[len(h.cb.audioConfs)-1]
	assert.NotZero(t, last&uint16(pacs.ContextConversational))
}

// TestMissingMandatoryServiceDisconnects verifies discovery without
// ASCS drops the device.
func TestMissingMandatoryServiceDisconnects(t *testing.T) {
	h := newClientHarness(t)
	h.transport.services = earbudServices()[:1] // PACS only

	addr := gatt.Address{0xAA, 0, 0, 0, 0, 2}
	h.client.Connect(addr)
	h.flush()
	h.events.OnOpen(gatt.StatusSuccess, 2, addr, 240)
	h.flush()
	h.events.OnSearchComplete(2, gatt.StatusSuccess)
	h.flush()

	h.client.loop.PostAndWait(func() {
		d := h.client.devices.FindByAddress(addr)
		require.NotNil(t, d)
		assert.False(t, d.Connected(), "Device must be disconnected")
		assert.False(t, d.KnownServiceHandles, "No partial discovery state retained")
	})
}

// TestGroupSetActive verifies activation status callbacks.
func TestGroupSetActive(t *testing.T) {
	h := newClientHarness(t)
	addr := gatt.Address{0xAA, 0, 0, 0, 0, 1}
	h.connectEarbud(t, addr, 1)

	var groupID int
	h.client.loop.PostAndWait(func() {
		groupID = h.client.devices.FindByAddress(addr).GroupID
	})
	require.NotEqual(t, GroupIDUnknown, groupID)

	h.client.GroupSetActive(groupID)
	h.flush()

	h.cb.mu.Lock()
	require.NotEmpty(t, h.cb.groupStatuses)
	assert.Equal(t, GroupActive, h.cb.groupStatuses[len(h.cb.groupStatuses)-1])
	h.cb.mu.Unlock()

	h.client.GroupSetActive(GroupIDUnknown)
	h.flush()

	h.cb.mu.Lock()
	defer h.cb.mu.Unlock()
	assert.Equal(t, GroupInactive, h.cb.groupStatuses[len(h.cb.groupStatuses)-1])
}

// TestGetGroupDevices verifies the membership query.
func TestGetGroupDevices(t *testing.T) {
	h := newClientHarness(t)
	addr := gatt.Address{0xAA, 0, 0, 0, 0, 1}
	h.connectEarbud(t, addr, 1)

	var groupID int
	h.client.loop.PostAndWait(func() {
		groupID = h.client.devices.FindByAddress(addr).GroupID
	})

	members := h.client.GetGroupDevices(groupID)
	require.Len(t, members, 1)
	assert.Equal(t, addr, members[0])

	assert.Empty(t, h.client.GetGroupDevices(42))
}
