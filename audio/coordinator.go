package audio

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/codec"
	"github.com/opd-ai/leaudio/config"
	"github.com/opd-ai/leaudio/group"
	"github.com/opd-ai/leaudio/internal/loop"
	"github.com/opd-ai/leaudio/iso"
	"github.com/opd-ai/leaudio/pacs"
	"github.com/opd-ai/leaudio/stream"
)

// Coordinator interlocks the audio framework sessions with the group
// state machine. It owns the LC3 engine, the two sub-state-machines
// and the keep-alive suspend timer. Main loop only.
type Coordinator struct {
	cfg     *config.Config
	engine  *codec.Engine
	machine *stream.Machine
	groups  *group.Registry
	isoMgr  iso.Manager

	source SourceSession
	sink   SinkSession

	sourceAcquired bool
	sinkAcquired   bool

	activeGroupID  int
	currentContext pacs.ContextType

	// senderState tracks the speaker path, receiverState the
	// microphone path.
	senderState   State
	receiverState State

	suspendTimeout *loop.Timer

	// Bluetooth-side stream configs per direction of the local
	// session: the source config feeds the peers' sink ASEs.
	currentSourceCodecConf codec.PCMConfig
	currentSinkCodecConf   codec.PCMConfig

	// Static framework session configs; resampling happens inside the
	// stack, only the interval follows the stream.
	frameworkSourceConf codec.PCMConfig
	frameworkSinkConf   codec.PCMConfig

	// Microphone channel cache for pairing left/right uplink frames.
	cachedChannelData      []int16
	cachedChannelTimestamp uint32
	cachedChannelIsLeft    bool

	streamSetupStart time.Time
	streamSetupEnd   time.Time
}

// NewCoordinator wires the coordinator.
func NewCoordinator(cfg *config.Config, engine *codec.Engine, machine *stream.Machine,
	groups *group.Registry, isoMgr iso.Manager, source SourceSession, sink SinkSession,
	l *loop.Loop) *Coordinator {
	return &Coordinator{
		cfg:            cfg,
		engine:         engine,
		machine:        machine,
		groups:         groups,
		isoMgr:         isoMgr,
		source:         source,
		sink:           sink,
		activeGroupID:  group.IDUnknown,
		currentContext: pacs.ContextMedia,
		suspendTimeout: loop.NewTimer(l, "AudioSuspendKeepAlive"),
		frameworkSourceConf: codec.PCMConfig{
			NumChannels: 2, SampleRateHz: 48000, BitsPerSample: 16, IntervalUs: 10000,
		},
		frameworkSinkConf: codec.PCMConfig{
			NumChannels: 1, SampleRateHz: 16000, BitsPerSample: 16, IntervalUs: 10000,
		},
	}
}

// ActiveGroupID is the group bound to the audio framework, or
// IDUnknown.
func (c *Coordinator) ActiveGroupID() int { return c.activeGroupID }

// CurrentContext is the context the session is configured for.
func (c *Coordinator) CurrentContext() pacs.ContextType { return c.currentContext }

// States reports (sender, receiver) for DebugDump and tests.
func (c *Coordinator) States() (State, State) {
	return c.senderState, c.receiverState
}

// SourceCallbacks returns the receiver the source session is started
// with.
func (c *Coordinator) SourceCallbacks() SourceCallbacks { return sourceReceiver{c} }

// SinkCallbacks returns the receiver the sink session is started with.
func (c *Coordinator) SinkCallbacks() SinkCallbacks { return sinkReceiver{c} }

type sourceReceiver struct{ c *Coordinator }

func (r sourceReceiver) OnAudioDataReady(pcm []byte) { r.c.OnAudioDataReady(pcm) }
func (r sourceReceiver) OnAudioSuspend(done func()) {
	r.c.OnSinkSuspend()
	done()
}
func (r sourceReceiver) OnAudioResume() { r.c.OnSinkResume() }
func (r sourceReceiver) OnAudioMetadataUpdate(tracks []TrackMetadata) {
	r.c.OnMetadataUpdate(tracks)
}

type sinkReceiver struct{ c *Coordinator }

func (r sinkReceiver) OnAudioSuspend(done func()) {
	r.c.OnSourceSuspend()
	done()
}
func (r sinkReceiver) OnAudioResume() { r.c.OnSourceResume() }

// InternalGroupStream validates and launches a stream start for the
// group: unsupported contexts fall back to UNSPECIFIED, and no new
// transition may start while any group is mid-transition.
func (c *Coordinator) InternalGroupStream(groupID int, ctx pacs.ContextType) bool {
	g := c.groups.FindByID(groupID)
	if g == nil {
		logrus.WithFields(logrus.Fields{
			"function": "InternalGroupStream",
			"group_id": groupID,
		}).Error("Unknown group")
		return false
	}

	if ctx >= pacs.ContextRFU {
		logrus.WithFields(logrus.Fields{
			"function": "InternalGroupStream",
			"context":  uint16(ctx),
		}).Error("Stream context type not supported")
		return false
	}

	final := ctx
	if !g.ActiveContexts().Has(ctx) {
		logrus.WithFields(logrus.Fields{
			"function": "InternalGroupStream",
			"group_id": groupID,
			"context":  ctx.String(),
		}).Error("Context unsupported by remote devices, switching to unspecified")
		final = pacs.ContextUnspecified
	}

	if !g.IsAnyDeviceConnected() {
		logrus.WithFields(logrus.Fields{
			"function": "InternalGroupStream",
			"group_id": groupID,
		}).Error("Group is not connected")
		return false
	}

	if c.groups.IsAnyInTransition() {
		logrus.WithFields(logrus.Fields{
			"function": "InternalGroupStream",
		}).Info("Some group is already in the transition state")
		return false
	}

	if c.machine.StartStream(g, final) {
		c.streamSetupStart = time.Now()
		c.streamSetupEnd = time.Time{}
		return true
	}
	return false
}

// GroupStop releases the group's stream, used by the suspend
// keep-alive expiry and the facade.
func (c *Coordinator) GroupStop(groupID int) {
	g := c.groups.FindByID(groupID)
	if g == nil || g.IsEmpty() {
		return
	}
	if g.State() == ascs.StateIdle && !g.IsInTransition() {
		return
	}
	c.machine.StopStream(g)
}

func (c *Coordinator) onAudioResume(g *group.Group) bool {
	if g.TargetState() == ascs.StateStreaming {
		return true
	}
	return c.InternalGroupStream(c.activeGroupID, c.currentContext)
}

// onAudioSuspend arms the keep-alive: the group keeps streaming for
// the configured window so a prompt resume does not rebuild the CIG.
func (c *Coordinator) onAudioSuspend() {
	if c.activeGroupID == group.IDUnknown {
		logrus.WithFields(logrus.Fields{
			"function": "onAudioSuspend",
		}).Warn("There is no longer active group")
		return
	}

	timeout := c.cfg.EffectiveSuspendTimeout()
	gid := c.activeGroupID

	c.suspendTimeout.Cancel()
	c.suspendTimeout.Set(timeout, func() {
		c.GroupStop(gid)
	})
}

// OnSinkResume handles the framework wanting the speaker path up.
func (c *Coordinator) OnSinkResume() {
	g := c.groups.FindByID(c.activeGroupID)
	if g == nil {
		logrus.WithFields(logrus.Fields{
			"function": "OnSinkResume",
			"group_id": c.activeGroupID,
		}).Error("Invalid group")
		return
	}

	// The resume must map to a configuration carrying the sink
	// direction for the current context.
	if !c.contextHasDirection(g, c.currentContext, ascs.DirectionSink) {
		logrus.WithFields(logrus.Fields{
			"function": "OnSinkResume",
			"context":  c.currentContext.String(),
		}).Error("Invalid resume request for context type")
		c.source.CancelStreamingRequest()
		return
	}

	switch c.senderState {
	case StateStarted:
		// Previous confirm did not reach the framework.
		c.source.ConfirmStreamingRequest()

	case StateIdle:
		switch c.receiverState {
		case StateIdle:
			if c.onAudioResume(g) {
				c.senderState = StateReadyToStart
			} else {
				c.source.CancelStreamingRequest()
			}
		case StateReadyToStart, StateStarted:
			c.senderState = StateReadyToStart
			if g.State() == ascs.StateStreaming {
				c.StartSendingAudio(c.activeGroupID)
			}
		case StateReleasing, StateReadyToRelease:
			if g.PendingConfiguration {
				c.senderState = c.receiverState
				return
			}
			c.source.CancelStreamingRequest()
		}

	case StateReadyToStart:
		logrus.WithFields(logrus.Fields{
			"function":       "OnSinkResume",
			"sender_state":   c.senderState.String(),
			"receiver_state": c.receiverState.String(),
		}).Warn("Called in wrong state")

	case StateReadyToRelease:
		switch c.receiverState {
		case StateStarted, StateIdle, StateReadyToRelease:
			// Stream is up, just restore it.
			c.senderState = StateStarted
			c.suspendTimeout.Cancel()
			c.source.ConfirmStreamingRequest()
		default:
			c.source.CancelStreamingRequest()
		}

	case StateReleasing:
		// Wait the release out.
		c.source.CancelStreamingRequest()
	}
}

// OnSinkSuspend handles the framework suspending the speaker path.
func (c *Coordinator) OnSinkSuspend() {
	switch c.senderState {
	case StateReadyToStart, StateStarted:
		c.senderState = StateReadyToRelease
	case StateReleasing:
		return
	case StateIdle:
		if c.receiverState == StateReadyToRelease {
			c.onAudioSuspend()
		}
		return
	case StateReadyToRelease:
	}

	// Last suspending direction triggers the group keep-alive.
	if c.receiverState == StateIdle || c.receiverState == StateReadyToRelease {
		c.onAudioSuspend()
	}
}

// OnSourceResume handles the framework wanting the microphone path up.
func (c *Coordinator) OnSourceResume() {
	g := c.groups.FindByID(c.activeGroupID)
	if g == nil {
		logrus.WithFields(logrus.Fields{
			"function": "OnSourceResume",
			"group_id": c.activeGroupID,
		}).Error("Invalid group")
		return
	}

	if !c.contextHasDirection(g, c.currentContext, ascs.DirectionSource) {
		logrus.WithFields(logrus.Fields{
			"function": "OnSourceResume",
			"context":  c.currentContext.String(),
		}).Error("Invalid resume request for context type")
		c.sink.CancelStreamingRequest()
		return
	}

	switch c.receiverState {
	case StateStarted:
		c.sink.ConfirmStreamingRequest()

	case StateIdle:
		switch c.senderState {
		case StateIdle:
			if c.onAudioResume(g) {
				c.receiverState = StateReadyToStart
			} else {
				c.sink.CancelStreamingRequest()
			}
		case StateReadyToStart, StateStarted:
			c.receiverState = StateReadyToStart
			if g.State() == ascs.StateStreaming {
				c.StartReceivingAudio(c.activeGroupID)
			}
		case StateReleasing, StateReadyToRelease:
			if g.PendingConfiguration {
				c.receiverState = c.senderState
				return
			}
			c.sink.CancelStreamingRequest()
		}

	case StateReadyToStart:
		logrus.WithFields(logrus.Fields{
			"function":       "OnSourceResume",
			"sender_state":   c.senderState.String(),
			"receiver_state": c.receiverState.String(),
		}).Warn("Called in wrong state")

	case StateReadyToRelease:
		switch c.senderState {
		case StateStarted, StateIdle, StateReadyToRelease:
			c.receiverState = StateStarted
			c.suspendTimeout.Cancel()
			c.sink.ConfirmStreamingRequest()
		default:
			c.sink.CancelStreamingRequest()
		}

	case StateReleasing:
		c.sink.CancelStreamingRequest()
	}
}

// OnSourceSuspend handles the framework suspending the microphone
// path.
func (c *Coordinator) OnSourceSuspend() {
	switch c.receiverState {
	case StateReadyToStart, StateStarted:
		c.receiverState = StateReadyToRelease
	case StateReleasing:
		return
	case StateIdle:
		if c.senderState == StateReadyToRelease {
			c.onAudioSuspend()
		}
		return
	case StateReadyToRelease:
	}

	if c.senderState == StateIdle || c.senderState == StateReadyToRelease {
		c.onAudioSuspend()
	}
}

// contextHasDirection reports whether a configuration for the context
// carries the direction on this group.
func (c *Coordinator) contextHasDirection(g *group.Group, ctx pacs.ContextType, dir ascs.Direction) bool {
	conf := stream.ChooseConfiguration(g, ctx)
	return conf != nil && conf.EntryByDirection(dir) != nil
}

// StartSendingAudio brings up the encoder plane and confirms the
// framework's pending resume.
func (c *Coordinator) StartSendingAudio(groupID int) bool {
	g := c.groups.FindByID(groupID)
	if g == nil {
		return false
	}

	if g.RebuildDirection(ascs.DirectionSink) == nil {
		logrus.WithFields(logrus.Fields{
			"function": "StartSendingAudio",
			"group_id": groupID,
		}).Error("Could not get sink configuration")
		return false
	}

	err := c.engine.SetupEncoders(
		int(c.currentSourceCodecConf.IntervalUs),
		int(c.currentSourceCodecConf.SampleRateHz),
		int(c.frameworkSourceConf.SampleRateHz))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "StartSendingAudio",
			"error":    err.Error(),
		}).Error("Encoder setup failed")
		c.source.CancelStreamingRequest()
		return false
	}

	c.source.UpdateRemoteDelay(g.RemoteDelayMs(ascs.DirectionSink))
	c.source.ConfirmStreamingRequest()
	c.senderState = StateStarted
	return true
}

// StartReceivingAudio brings up the decoder plane.
func (c *Coordinator) StartReceivingAudio(groupID int) {
	g := c.groups.FindByID(groupID)
	if g == nil {
		return
	}

	if g.RebuildDirection(ascs.DirectionSource) == nil {
		logrus.WithFields(logrus.Fields{
			"function": "StartReceivingAudio",
			"group_id": groupID,
		}).Warn("Could not get source configuration, probably microphone not configured")
		return
	}

	c.cleanCachedMicrophoneData()

	err := c.engine.SetupDecoders(
		int(c.currentSinkCodecConf.IntervalUs),
		int(c.currentSinkCodecConf.SampleRateHz),
		int(c.frameworkSinkConf.SampleRateHz))
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "StartReceivingAudio",
			"error":    err.Error(),
		}).Error("Decoder setup failed")
		c.sink.CancelStreamingRequest()
		return
	}

	c.sink.UpdateRemoteDelay(g.RemoteDelayMs(ascs.DirectionSource))
	c.sink.ConfirmStreamingRequest()
	c.receiverState = StateStarted
}

// SuspendAudio parks both directions and releases the codec
// instances. The framework sessions stay acquired.
func (c *Coordinator) SuspendAudio() {
	c.senderState = StateIdle
	c.receiverState = StateIdle
	c.engine.ReleaseEncoders()
	c.engine.ReleaseDecoders()
}

// StopAudio is a full audio-plane stop.
func (c *Coordinator) StopAudio() { c.SuspendAudio() }

// CancelStreamingRequest cancels the framework's pending resumes on
// both directions.
func (c *Coordinator) CancelStreamingRequest() {
	if c.senderState >= StateReadyToStart {
		c.source.CancelStreamingRequest()
		c.senderState = StateIdle
	}
	if c.receiverState >= StateReadyToStart {
		c.sink.CancelStreamingRequest()
		c.receiverState = StateIdle
	}
}

// SuspendedForReconfiguration tells the framework the stream pauses
// for a configuration change and will come back.
func (c *Coordinator) SuspendedForReconfiguration() {
	if c.senderState > StateIdle {
		c.source.SuspendedForReconfiguration()
	}
	if c.receiverState > StateIdle {
		c.sink.SuspendedForReconfiguration()
	}
}

// HandleGroupStatus folds a group stream status into the audio plane.
// Returns true when a reconfiguration was launched and the owner
// should not yet apply deferred context updates.
func (c *Coordinator) HandleGroupStatus(groupID int, status group.StreamStatus) bool {
	logrus.WithFields(logrus.Fields{
		"function":       "HandleGroupStatus",
		"group_id":       groupID,
		"status":         status.String(),
		"sender_state":   c.senderState.String(),
		"receiver_state": c.receiverState.String(),
	}).Info("Group stream status")

	g := c.groups.FindByID(groupID)

	switch status {
	case group.StatusStreaming:
		if groupID != c.activeGroupID {
			logrus.WithFields(logrus.Fields{
				"function":        "HandleGroupStatus",
				"group_id":        groupID,
				"active_group_id": c.activeGroupID,
			}).Error("Streaming status for inactive group")
			return false
		}
		if c.senderState == StateReadyToStart {
			c.StartSendingAudio(groupID)
		}
		if c.receiverState == StateReadyToStart {
			c.StartReceivingAudio(groupID)
		}
		c.streamSetupEnd = time.Now()

	case group.StatusSuspended:
		c.streamSetupStart = time.Time{}
		c.streamSetupEnd = time.Time{}
		// Stop the audio plane but keep the session resources.
		c.SuspendAudio()

	case group.StatusConfiguredByUser:
		c.CancelStreamingRequest()

	case group.StatusConfiguredAutonomous, group.StatusIdle:
		c.streamSetupStart = time.Time{}
		c.streamSetupEnd = time.Time{}

		if g != nil && g.PendingConfiguration {
			c.SuspendedForReconfiguration()
			if c.machine.ConfigureStream(g, c.currentContext) {
				// Wait for the new status.
				return true
			}
		}
		c.CancelStreamingRequest()

	case group.StatusReleasing, group.StatusSuspending:
		if c.senderState != StateIdle {
			c.senderState = StateReleasing
		}
		if c.receiverState != StateIdle {
			c.receiverState = StateReleasing
		}
	}
	return false
}

// OnMetadataUpdate reclassifies the stream context from fresh track
// metadata and reconfigures or updates metadata as needed.
func (c *Coordinator) OnMetadataUpdate(tracks []TrackMetadata) {
	var contexts []pacs.ContextType
	for _, t := range tracks {
		if t.Content == ContentUnknown && t.Usage == UsageUnknown {
			continue
		}
		contexts = append(contexts, classifyTrack(c.currentContext, t.Content, t.Usage))
	}
	if len(contexts) == 0 {
		logrus.WithFields(logrus.Fields{
			"function": "OnMetadataUpdate",
		}).Debug("Invalid metadata update")
		return
	}

	newContext := chooseContext(contexts)

	g := c.groups.FindByID(c.activeGroupID)
	if g == nil {
		logrus.WithFields(logrus.Fields{
			"function": "OnMetadataUpdate",
			"group_id": c.activeGroupID,
		}).Error("Invalid group")
		return
	}

	if newContext == c.currentContext {
		logrus.WithFields(logrus.Fields{
			"function": "OnMetadataUpdate",
		}).Info("Context did not change")
		return
	}

	c.currentContext = newContext
	if c.StopStreamIfNeeded(g, newContext) {
		return
	}

	if g.TargetState() == ascs.StateStreaming {
		// Same configuration serves the new context, refresh the
		// stream metadata in place.
		c.machine.UpdateMetadata(g, newContext)
	}
}

// StopStreamIfNeeded stops a streaming group whose configuration no
// longer fits the new context, latching the pending reconfiguration.
func (c *Coordinator) StopStreamIfNeeded(g *group.Group, newContext pacs.ContextType) bool {
	if !c.UpdateConfigAndCheckIfReconfigurationIsNeeded(g.ID, newContext) {
		return false
	}
	if g.State() != ascs.StateStreaming {
		return false
	}

	c.suspendTimeout.Cancel()
	g.PendingConfiguration = true
	c.machine.StopStream(g)
	return true
}

// UpdateConfigAndCheckIfReconfigurationIsNeeded recomputes both
// Bluetooth-side codec configs for the context and reports whether
// either changed.
func (c *Coordinator) UpdateConfigAndCheckIfReconfigurationIsNeeded(groupID int, ctx pacs.ContextType) bool {
	g := c.groups.FindByID(groupID)
	if g == nil {
		return false
	}

	needed := false
	conf := stream.ChooseConfiguration(g, ctx)

	// The local audio source feeds the peers' sink ASEs and vice
	// versa.
	sourceConf := directionPCMConfig(conf, ascs.DirectionSink)
	sinkConf := directionPCMConfig(conf, ascs.DirectionSource)

	if sourceConf != c.currentSourceCodecConf {
		c.currentSourceCodecConf = sourceConf
		needed = true
	}
	if sinkConf != c.currentSinkCodecConf {
		c.currentSinkCodecConf = sinkConf
		needed = true
	}

	if needed {
		logrus.WithFields(logrus.Fields{
			"function": "UpdateConfigAndCheckIfReconfigurationIsNeeded",
			"group_id": groupID,
			"context":  ctx.String(),
		}).Info("Session reconfiguration needed")
	}

	c.currentContext = ctx
	return needed
}

func directionPCMConfig(conf *codec.AudioSetConfiguration, dir ascs.Direction) codec.PCMConfig {
	if conf == nil {
		return codec.PCMConfig{}
	}
	e := conf.EntryByDirection(dir)
	if e == nil {
		return codec.PCMConfig{}
	}
	return codec.PCMConfig{
		NumChannels:   uint8(e.DeviceCount * e.AseCount * int(e.ChannelCount)),
		SampleRateHz:  e.SampleRateHz,
		BitsPerSample: 16,
		IntervalUs:    e.FrameDurationUs,
	}
}

// SetActiveGroup binds the group to the audio framework. Returns
// false when audio resources cannot be acquired or the group has no
// usable configuration.
func (c *Coordinator) SetActiveGroup(groupID int) bool {
	if !c.sourceAcquired {
		if !c.source.Acquire() {
			logrus.WithFields(logrus.Fields{
				"function": "SetActiveGroup",
			}).Error("Could not acquire audio source interface")
			return false
		}
		c.sourceAcquired = true
	}
	if !c.sinkAcquired {
		if !c.sink.Acquire() {
			logrus.WithFields(logrus.Fields{
				"function": "SetActiveGroup",
			}).Error("Could not acquire audio sink interface")
			c.source.Release()
			c.sourceAcquired = false
			return false
		}
		c.sinkAcquired = true
	}

	// Configure the sessions with the most frequent context; invalid
	// configs in both directions mean the context is unsupported.
	c.UpdateConfigAndCheckIfReconfigurationIsNeeded(groupID, pacs.ContextMedia)
	if c.currentSourceCodecConf.IsInvalid() && c.currentSinkCodecConf.IsInvalid() {
		logrus.WithFields(logrus.Fields{
			"function": "SetActiveGroup",
			"group_id": groupID,
		}).Warn("Unsupported device configurations")
		return false
	}

	if c.activeGroupID == group.IDUnknown {
		c.frameworkSourceConf.IntervalUs = c.currentSourceCodecConf.IntervalUs
		c.source.Start(c.frameworkSourceConf, c.SourceCallbacks())

		c.frameworkSinkConf.IntervalUs = c.currentSourceCodecConf.IntervalUs
		c.sink.Start(c.frameworkSinkConf, c.SinkCallbacks())
	} else {
		// A previous group was active; stop its stream first.
		c.GroupStop(c.activeGroupID)
	}

	c.activeGroupID = groupID
	return true
}

// ClearActiveGroup unbinds the audio framework entirely.
func (c *Coordinator) ClearActiveGroup() {
	c.suspendTimeout.Cancel()
	c.StopAudio()

	if c.sourceAcquired {
		c.source.Stop()
		c.source.Release()
		c.sourceAcquired = false
	}
	if c.sinkAcquired {
		c.sink.Stop()
		c.sink.Release()
		c.sinkAcquired = false
	}

	c.GroupStop(c.activeGroupID)
	c.activeGroupID = group.IDUnknown
}

// OnStateTransitionTimeout cancels pending framework requests after a
// stuck transition.
func (c *Coordinator) OnStateTransitionTimeout() {
	c.CancelStreamingRequest()
}

// CancelSuspendTimeout disarms the keep-alive, used on deactivate and
// cleanup.
func (c *Coordinator) CancelSuspendTimeout() {
	c.suspendTimeout.Cancel()
}

// StreamSetupTime is the duration of the last stream bring-up, zero
// when unknown; for DebugDump.
func (c *Coordinator) StreamSetupTime() time.Duration {
	if c.streamSetupStart.IsZero() || c.streamSetupEnd.IsZero() {
		return 0
	}
	return c.streamSetupEnd.Sub(c.streamSetupStart)
}

// Configs reports the four PCM configs for DebugDump.
func (c *Coordinator) Configs() (frameworkSource, frameworkSink, btSource, btSink codec.PCMConfig) {
	return c.frameworkSourceConf, c.frameworkSinkConf,
		c.currentSourceCodecConf, c.currentSinkCodecConf
}
