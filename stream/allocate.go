package stream

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/codec"
	"github.com/opd-ai/leaudio/device"
	"github.com/opd-ai/leaudio/group"
	"github.com/opd-ai/leaudio/iso"
	"github.com/opd-ai/leaudio/pacs"
)

// ChooseConfiguration walks the configuration catalogue for the
// context and returns the first entry the group's connected members
// can satisfy, nil when none matches.
func ChooseConfiguration(g *group.Group, ctx pacs.ContextType) *codec.AudioSetConfiguration {
	for _, conf := range codec.ConfigurationsForContext(ctx) {
		if groupSatisfies(g, conf) {
			return conf
		}
	}
	return nil
}

func groupSatisfies(g *group.Group, conf *codec.AudioSetConfiguration) bool {
	for i := range conf.Entries {
		e := &conf.Entries[i]
		if capableDevices(g, e) < e.DeviceCount {
			return false
		}
	}
	return true
}

// capableDevices counts connected members that can serve a set entry:
// matching PACs and enough endpoints of the direction.
func capableDevices(g *group.Group, e *codec.SetEntry) int {
	count := 0
	for _, d := range g.ConnectedDevices() {
		if deviceSupportsEntry(d, e) {
			count++
		}
	}
	return count
}

func deviceSupportsEntry(d *device.Device, e *codec.SetEntry) bool {
	records := d.AllSinkRecords()
	if e.Direction == ascs.DirectionSource {
		records = d.AllSourceRecords()
	}
	if !codec.EntrySupportedByPACs(e, records) {
		return false
	}

	ases := 0
	for _, a := range d.ASEs {
		if a.Direction == e.Direction {
			ases++
		}
	}
	return ases >= e.AseCount
}

// configureAses selects a configuration for the context and allocates
// per-ASE codec configs across the members, filling channel
// allocations greedily from the audio-location bitmaps: stereo splits
// across two members when present, else lands dual-channel on a single
// member, else mono.
func (m *Machine) configureAses(g *group.Group, ctx pacs.ContextType) bool {
	conf := ChooseConfiguration(g, ctx)
	if conf == nil {
		logrus.WithFields(logrus.Fields{
			"function": "configureAses",
			"group_id": g.ID,
			"context":  ctx.String(),
		}).Error("No matching audio set configuration")
		return false
	}

	for _, d := range g.Members() {
		d.DeactivateASEs()
	}

	for i := range conf.Entries {
		e := &conf.Entries[i]
		if !m.allocateEntry(g, e) {
			for _, d := range g.Members() {
				d.DeactivateASEs()
			}
			return false
		}
	}

	g.StreamConf.Clear()
	g.StreamConf.Conf = conf
	g.CurrentContext = ctx

	logrus.WithFields(logrus.Fields{
		"function":      "configureAses",
		"group_id":      g.ID,
		"context":       ctx.String(),
		"configuration": conf.Name,
	}).Info("Stream configuration selected")

	return true
}

// allocateEntry binds one direction of the configuration to concrete
// devices and ASEs.
func (m *Machine) allocateEntry(g *group.Group, e *codec.SetEntry) bool {
	allocations := entryAllocations(e)
	devicesNeeded := e.DeviceCount
	slot := 0

	for _, d := range g.ConnectedDevices() {
		if devicesNeeded == 0 {
			break
		}
		if !deviceSupportsEntry(d, e) {
			continue
		}

		ases := d.InactiveASEsByDirection(e.Direction)
		if len(ases) < e.AseCount {
			continue
		}

		for i := 0; i < e.AseCount; i++ {
			a := ases[i]
			alloc := pickAllocation(d, e, allocations, slot)
			a.Active = true
			a.CodecConfig = codec.EntryCodecConfig(e, alloc)
			slot++
		}
		devicesNeeded--
	}

	return devicesNeeded == 0
}

// entryAllocations enumerates the channel allocation of each ASE slot
// of an entry.
func entryAllocations(e *codec.SetEntry) []pacs.AudioLocations {
	slots := e.DeviceCount * e.AseCount
	out := make([]pacs.AudioLocations, slots)

	switch {
	case e.ChannelCount >= 2:
		// Dual channel on one ASE.
		for i := range out {
			out[i] = pacs.LocationFrontLeft | pacs.LocationFrontRight
		}
	case slots >= 2:
		// Stereo split across slots: first left, second right.
		for i := range out {
			if i%2 == 0 {
				out[i] = pacs.LocationFrontLeft
			} else {
				out[i] = pacs.LocationFrontRight
			}
		}
	default:
		// Mono; allocation 0 means mono/unspecified.
		out[0] = 0
	}
	return out
}

// pickAllocation maps an ASE slot to its channel, honoring the
// device's own location bitmap: a right-only earbud gets the right
// channel regardless of join order.
func pickAllocation(d *device.Device, e *codec.SetEntry, allocations []pacs.AudioLocations, slot int) pacs.AudioLocations {
	if slot >= len(allocations) {
		return 0
	}
	want := allocations[slot]

	locations := d.SinkLocations
	if e.Direction == ascs.DirectionSource {
		locations = d.SourceLocations
	}

	// Single-location device in a split-stereo entry: follow the
	// device, not the slot order.
	if e.DeviceCount == 2 && e.AseCount == 1 && want != 0 {
		if locations.IsLeft() && !locations.IsRight() {
			return pacs.LocationFrontLeft
		}
		if locations.IsRight() && !locations.IsLeft() {
			return pacs.LocationFrontRight
		}
	}
	return want
}

// allocateDeviceAses configures a single late-joining device against
// the already-selected configuration, picking channels the running
// stream does not cover yet.
func (m *Machine) allocateDeviceAses(g *group.Group, d *device.Device, conf *codec.AudioSetConfiguration) bool {
	configured := false

	for i := range conf.Entries {
		e := &conf.Entries[i]
		if !deviceSupportsEntry(d, e) {
			continue
		}

		covered := g.StreamConf.Sink.Allocation
		if e.Direction == ascs.DirectionSource {
			covered = g.StreamConf.Source.Allocation
		}

		ases := d.InactiveASEsByDirection(e.Direction)
		if len(ases) < e.AseCount {
			continue
		}

		for j := 0; j < e.AseCount; j++ {
			var alloc pacs.AudioLocations
			switch {
			case e.ChannelCount >= 2:
				alloc = pacs.LocationFrontLeft | pacs.LocationFrontRight
			case !covered.IsLeft():
				alloc = pacs.LocationFrontLeft
			case !covered.IsRight():
				alloc = pacs.LocationFrontRight
			default:
				alloc = 0
			}
			covered |= alloc

			a := ases[j]
			a.Active = true
			a.CodecConfig = codec.EntryCodecConfig(e, alloc)
			configured = true
		}
	}
	return configured
}

// createCIG issues Create CIG with one CIS slot per device/endpoint
// pair of the chosen configuration; sink and source ASEs of the same
// device share the bidirectional CIS.
func (m *Machine) createCIG(g *group.Group) {
	conf := g.StreamConf.Conf
	if conf == nil {
		logrus.WithFields(logrus.Fields{
			"function": "createCIG",
			"group_id": g.ID,
		}).Error("No stream configuration selected")
		m.StopStream(g)
		return
	}
	sinkEntry := conf.EntryByDirection(ascs.DirectionSink)
	sourceEntry := conf.EntryByDirection(ascs.DirectionSource)

	var cis []iso.CISParams
	cisID := uint8(0)
	for _, d := range g.ActiveDevices() {
		slots := len(d.ActiveASEsByDirection(ascs.DirectionSink))
		if src := len(d.ActiveASEsByDirection(ascs.DirectionSource)); src > slots {
			slots = src
		}
		for i := 0; i < slots; i++ {
			p := iso.CISParams{
				CISID:   cisID,
				PHYMToS: iso.PHY2M,
				PHYSToM: iso.PHY2M,
			}
			if sinkEntry != nil && i < len(d.ActiveASEsByDirection(ascs.DirectionSink)) {
				p.MaxSDUMToS = sinkEntry.OctetsPerFrame * uint16(sinkEntry.ChannelCount)
				p.RTNMToS = sinkEntry.RetransmissionCount
			}
			if sourceEntry != nil && i < len(d.ActiveASEsByDirection(ascs.DirectionSource)) {
				p.MaxSDUSToM = sourceEntry.OctetsPerFrame * uint16(sourceEntry.ChannelCount)
				p.RTNSToM = sourceEntry.RetransmissionCount
			}
			cis = append(cis, p)
			cisID++
		}
	}

	params := iso.CIGParams{
		SCA:     0,
		Packing: iso.PackingSequential,
		Framing: iso.FramingUnframed,
		CIS:     cis,
	}
	if sinkEntry != nil {
		params.SDUIntervalMToSUs = sinkEntry.FrameDurationUs
		params.MaxTransLatMToSMs = sinkEntry.MaxTransportLatency
	}
	if sourceEntry != nil {
		params.SDUIntervalSToMUs = sourceEntry.FrameDurationUs
		params.MaxTransLatSToMMs = sourceEntry.MaxTransportLatency
	}

	logrus.WithFields(logrus.Fields{
		"function": "createCIG",
		"group_id": g.ID,
		"cis":      len(cis),
	}).Info("Creating CIG")

	m.isoMgr.CreateCIG(uint8(g.ID), params)
}

// assignCISHandles distributes the Create CIG completion handles to
// the active ASEs, in the same device/slot order the parameters were
// built in.
func (m *Machine) assignCISHandles(g *group.Group, handles []uint16) bool {
	idx := 0
	cisID := uint8(0)
	for _, d := range g.ActiveDevices() {
		sinks := d.ActiveASEsByDirection(ascs.DirectionSink)
		sources := d.ActiveASEsByDirection(ascs.DirectionSource)
		slots := len(sinks)
		if len(sources) > slots {
			slots = len(sources)
		}
		for i := 0; i < slots; i++ {
			if idx >= len(handles) {
				logrus.WithFields(logrus.Fields{
					"function": "assignCISHandles",
					"group_id": g.ID,
				}).Error("CIG completion returned too few CIS handles")
				return false
			}
			if i < len(sinks) {
				sinks[i].CISConnHandle = handles[idx]
				sinks[i].CISID = cisID
				sinks[i].DataPath = device.DataPathCISAssigned
			}
			if i < len(sources) {
				sources[i].CISConnHandle = handles[idx]
				sources[i].CISID = cisID
				sources[i].DataPath = device.DataPathCISAssigned
			}
			idx++
			cisID++
		}
	}

	// Spare handles stay pooled for late joiners.
	g.SpareCISHandles = handles[idx:]
	return true
}

// assignSpareCISHandles binds a late joiner's ASEs to handles left
// over from the original Create CIG.
func (m *Machine) assignSpareCISHandles(g *group.Group, d *device.Device) bool {
	sinks := d.ActiveASEsByDirection(ascs.DirectionSink)
	sources := d.ActiveASEsByDirection(ascs.DirectionSource)
	slots := len(sinks)
	if len(sources) > slots {
		slots = len(sources)
	}

	if len(g.SpareCISHandles) < slots {
		logrus.WithFields(logrus.Fields{
			"function": "assignSpareCISHandles",
			"group_id": g.ID,
			"needed":   slots,
			"spare":    len(g.SpareCISHandles),
		}).Info("No spare CIS capacity for late joiner")
		return false
	}

	for i := 0; i < slots; i++ {
		handle := g.SpareCISHandles[i]
		if i < len(sinks) {
			sinks[i].CISConnHandle = handle
			sinks[i].DataPath = device.DataPathCISAssigned
		}
		if i < len(sources) {
			sources[i].CISConnHandle = handle
			sources[i].DataPath = device.DataPathCISAssigned
		}
	}
	g.SpareCISHandles = g.SpareCISHandles[slots:]
	return true
}
