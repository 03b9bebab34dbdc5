package audio

import (
	"encoding/binary"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/codec"
	"github.com/opd-ai/leaudio/group"
)

// pcmFromBytes converts little-endian S16 bytes to samples.
func pcmFromBytes(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
	}
	return out
}

// pcmToBytes converts samples to little-endian S16 bytes.
func pcmToBytes(pcm []int16) []byte {
	out := make([]byte, 2*len(pcm))
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}
	return out
}

// OnAudioDataReady consumes one framework delivery of interleaved
// stereo S16 PCM and fans it out to the sink CISes.
func (c *Coordinator) OnAudioDataReady(data []byte) {
	if c.activeGroupID == group.IDUnknown || c.senderState != StateStarted {
		return
	}

	g := c.groups.FindByID(c.activeGroupID)
	if g == nil {
		logrus.WithFields(logrus.Fields{
			"function": "OnAudioDataReady",
		}).Error("There is no streaming group available")
		return
	}

	sink := &g.StreamConf.Sink
	if sink.NumDevices > 2 || sink.NumDevices == 0 || len(sink.Streams) == 0 {
		logrus.WithFields(logrus.Fields{
			"function":    "OnAudioDataReady",
			"num_devices": sink.NumDevices,
		}).Error("Stream configuration is not valid")
		return
	}

	pcm := pcmFromBytes(data)
	required := c.engine.FrameSamples()
	if len(pcm) < 2*required {
		logrus.WithFields(logrus.Fields{
			"function":  "OnAudioDataReady",
			"data_size": len(data),
			"expected":  2 * 2 * required,
		}).Error("Missing samples")
		return
	}

	if sink.NumDevices == 2 {
		c.sendToTwoDevices(pcm, sink)
	} else {
		c.sendToSingleDevice(pcm, sink)
	}
}

// sendToTwoDevices splits stereo across the left and right CIS; when
// only one member is up the stream degrades to mono toward it.
func (c *Coordinator) sendToTwoDevices(pcm []int16, sink *group.DirectionStreams) {
	left, right := sink.LeftRightCIS()
	octets := int(sink.OctetsPerFrame)

	mono := left == 0 || right == 0

	if !mono {
		leftSDU, rightSDU, err := c.engine.EncodeStereoSplit(pcm, octets)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "sendToTwoDevices",
				"error":    err.Error(),
			}).Error("Error while encoding")
			return
		}
		c.sendIso(left, leftSDU)
		c.sendIso(right, rightSDU)
		return
	}

	useRight := left == 0
	sdu, err := c.engine.EncodeMono(pcm, octets, useRight)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendToTwoDevices",
			"error":    err.Error(),
		}).Error("Error while encoding")
		return
	}
	if left != 0 {
		c.sendIso(left, sdu)
	}
	if right != 0 {
		c.sendIso(right, sdu)
	}
}

// sendToSingleDevice encodes for the one member: dual channel
// concatenated into one SDU, or a mono downmix.
func (c *Coordinator) sendToSingleDevice(pcm []int16, sink *group.DirectionStreams) {
	cis := sink.Streams[0].CISHandle
	octets := int(sink.OctetsPerFrame)

	var sdu []byte
	var err error
	if sink.NumChannels == 1 {
		sdu, err = c.engine.EncodeMono(pcm, octets, false)
	} else {
		sdu, err = c.engine.EncodeDualChannel(pcm, octets)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "sendToSingleDevice",
			"error":    err.Error(),
		}).Error("Error while encoding")
		return
	}
	c.sendIso(cis, sdu)
}

func (c *Coordinator) sendIso(cisHandle uint16, sdu []byte) {
	c.machine.Stats().For(cisHandle).SDUsSent.Inc()
	c.isoMgr.SendIsoData(cisHandle, sdu)
}

func (c *Coordinator) cleanCachedMicrophoneData() {
	c.cachedChannelData = nil
	c.cachedChannelTimestamp = 0
	c.cachedChannelIsLeft = false
}

// HandleIsoData consumes one uplink SDU: decode (PLC on bad sizes),
// then pair left/right channels by timestamp before handing PCM to
// the framework.
func (c *Coordinator) HandleIsoData(cisHandle uint16, timestamp uint32, payload []byte) {
	if c.activeGroupID == group.IDUnknown || c.receiverState != StateStarted {
		return
	}

	g := c.groups.FindByID(c.activeGroupID)
	if g == nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleIsoData",
		}).Error("There is no streaming group available")
		return
	}

	c.machine.Stats().For(cisHandle).SDUsReceived.Inc()

	source := &g.StreamConf.Source
	leftCIS, rightCIS := source.LeftRightCIS()

	var isLeft bool
	switch cisHandle {
	case leftCIS:
		isLeft = true
	case rightCIS:
		isLeft = false
	default:
		logrus.WithFields(logrus.Fields{
			"function": "HandleIsoData",
			"cis":      cisHandle,
		}).Error("Received data for unknown handle")
		return
	}

	required := int(source.OctetsPerFrame)
	if len(payload) != required {
		logrus.WithFields(logrus.Fields{
			"function": "HandleIsoData",
			"required": required,
			"received": len(payload),
		}).Info("Insufficient data for decoding, will do PLC")
		payload = nil
	}

	decoded, err := c.engine.Decode(isLeft, payload)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "HandleIsoData",
			"error":    err.Error(),
		}).Error("Bad decoding parameters")
		return
	}

	afStereo := c.frameworkSinkConf.NumChannels == 2

	if leftCIS == 0 || rightCIS == 0 {
		// Mono or just one device connected.
		c.sendToFramework(false, afStereo, leftOrRight(decoded, isLeft))
		return
	}

	// Both source channels live: pair by timestamp.
	if c.cachedChannelTimestamp == 0 && c.cachedChannelData == nil {
		c.cacheChannel(decoded, timestamp, isLeft)
		return
	}

	if c.cachedChannelIsLeft != isLeft {
		if timestamp == c.cachedChannelTimestamp {
			// Matching pair, interleave and emit.
			if isLeft {
				c.sendToFramework(true, afStereo, [2][]int16{decoded, c.cachedChannelData})
			} else {
				c.sendToFramework(true, afStereo, [2][]int16{c.cachedChannelData, decoded})
			}
			c.cleanCachedMicrophoneData()
			return
		}

		// The other channel is ahead; flush the stale cache mono and
		// cache the new frame. Happens only during stream setup.
		c.flushCachedMono(afStereo)
		c.cacheChannel(decoded, timestamp, isLeft)
		return
	}

	// Same channel again: its sibling is down or silent.
	c.flushCachedMono(afStereo)
	c.cacheChannel(decoded, timestamp, isLeft)
}

func leftOrRight(decoded []int16, isLeft bool) [2][]int16 {
	if isLeft {
		return [2][]int16{decoded, nil}
	}
	return [2][]int16{nil, decoded}
}

func (c *Coordinator) cacheChannel(decoded []int16, timestamp uint32, isLeft bool) {
	c.cachedChannelData = decoded
	c.cachedChannelTimestamp = timestamp
	c.cachedChannelIsLeft = isLeft
}

func (c *Coordinator) flushCachedMono(afStereo bool) {
	c.sendToFramework(false, afStereo, leftOrRight(c.cachedChannelData, c.cachedChannelIsLeft))
}

func (c *Coordinator) sendToFramework(btStereo, afStereo bool, channels [2][]int16) {
	mixed := codec.MixToFramework(btStereo, afStereo, channels[0], channels[1])
	out := pcmToBytes(mixed)

	if written := c.sink.SendData(out); written != len(out) {
		logrus.WithFields(logrus.Fields{
			"function": "sendToFramework",
			"to_write": len(out),
			"written":  written,
		}).Error("Not all data sinked")
	}
}
