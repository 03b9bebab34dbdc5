package group

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/ascs"
)

// RebuildDirection regenerates one direction of the stream
// configuration descriptor from the active ASEs, and returns it. Nil
// when no active ASE carries the direction.
//
// All ASEs of a direction must agree on rate, frame duration, octets
// and blocks per SDU; a mismatch is a configuration bug and the
// offending ASE is skipped with an error log.
func (g *Group) RebuildDirection(dir ascs.Direction) *DirectionStreams {
	var ds DirectionStreams

	for _, d := range g.ActiveDevices() {
		ases := d.ActiveASEsByDirection(dir)
		if len(ases) == 0 {
			continue
		}
		ds.NumDevices++

		for _, a := range ases {
			conf := a.CodecConfig
			ds.Streams = append(ds.Streams, CISEntry{
				CISHandle:  a.CISConnHandle,
				Allocation: conf.ChannelAllocation,
			})
			ds.Allocation |= conf.ChannelAllocation
			ds.NumChannels += conf.ChannelCount()

			if ds.SampleRateHz == 0 {
				ds.SampleRateHz = conf.SamplingFrequencyHz()
				ds.FrameDurationUs = conf.FrameDurationUs()
				ds.OctetsPerFrame = conf.OctetsPerFrame
				ds.BlocksPerSDU = conf.FrameBlocksPerSDU
				continue
			}
			if ds.SampleRateHz != conf.SamplingFrequencyHz() ||
				ds.FrameDurationUs != conf.FrameDurationUs() ||
				ds.OctetsPerFrame != conf.OctetsPerFrame {
				logrus.WithFields(logrus.Fields{
					"function":  "RebuildDirection",
					"group_id":  g.ID,
					"direction": dir.String(),
					"ase_id":    a.ID,
				}).Error("Codec parameter mismatch across ASEs of one direction")
				continue
			}

			ds.Streams = append(ds.Streams, CISEntry{
				CISHandle:  a.CISConnHandle,
				Allocation: conf.ChannelAllocation,
			})
			ds.Allocation |= conf.ChannelAllocation
			ds.NumChannels += conf.ChannelCount()
		}
	}

	if len(ds.Streams) == 0 {
		return nil
	}

	switch dir {
	case ascs.DirectionSource:
		g.StreamConf.Source = ds
		return &g.StreamConf.Source
	default:
		g.StreamConf.Sink = ds
		return &g.StreamConf.Sink
	}
}

// LeftRightCIS classifies a direction's streams into the left and
// right CIS handles; zero when absent.
func (ds *DirectionStreams) LeftRightCIS() (left, right uint16) {
	for _, s := range ds.Streams {
		if s.Allocation.IsLeft() {
			left = s.CISHandle
		}
		if s.Allocation.IsRight() {
			right = s.CISHandle
		}
	}
	return left, right
}
