package group

import (
	"testing"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/device"
	"github.com/opd-ai/leaudio/gatt"
	"github.com/opd-ai/leaudio/pacs"
)

func member(last byte) *device.Device {
	return device.New(gatt.Address{0, 0, 0, 0, 0, last}, true)
}

// TestMembership verifies insertion order and duplicate rejection.
func TestMembership(t *testing.T) {
	g := New(1)
	d1, d2 := member(1), member(2)

	if !g.AddNode(d1) || !g.AddNode(d2) {
		t.Fatal("AddNode failed")
	}
	if g.AddNode(d1) {
		t.Error("Duplicate AddNode should be rejected")
	}
	if g.Size() != 2 {
		t.Fatalf("Expected 2 members, got %d", g.Size())
	}
	if d1.GroupID != 1 {
		t.Errorf("Member group id not set: %d", d1.GroupID)
	}
	if g.Members()[0] != d1 || g.Members()[1] != d2 {
		t.Error("Insertion order not preserved")
	}

	g.RemoveNode(d1)
	if g.IsDeviceInGroup(d1) || d1.GroupID != device.GroupUnknown {
		t.Error("RemoveNode did not detach the member")
	}
}

// TestAggregation verifies locations OR and direction bits.
func TestAggregation(t *testing.T) {
	g := New(1)
	d1, d2 := member(1), member(2)
	g.AddNode(d1)
	g.AddNode(d2)

	d1.SinkLocations = pacs.LocationFrontLeft
	d1.AudioDirections = uint8(ascs.DirectionSink)
	d2.SinkLocations = pacs.LocationFrontRight
	d2.AudioDirections = uint8(ascs.DirectionSink)

	if !g.ReloadAudioLocations() {
		t.Error("First reload should report a change")
	}
	if g.SinkLocations != pacs.LocationFrontLeft|pacs.LocationFrontRight {
		t.Errorf("Aggregated locations wrong: 0x%08x", uint32(g.SinkLocations))
	}
	if g.ReloadAudioLocations() {
		t.Error("Unchanged reload should report false")
	}
}

// TestActiveContextsUpdate verifies the nil-on-unchanged contract.
func TestActiveContextsUpdate(t *testing.T) {
	g := New(1)
	d := member(1)
	g.AddNode(d)

	d.SetAvailableContexts(pacs.AudioContexts(pacs.ContextMedia), 0)

	updated := g.UpdateActiveContexts()
	if updated == nil || !updated.Has(pacs.ContextMedia) {
		t.Fatalf("Expected media in update, got %v", updated)
	}

	// Unchanged recomputation is a no-op, never a value to deref.
	if g.UpdateActiveContexts() != nil {
		t.Error("Unchanged update should return nil")
	}
	if !g.ActiveContexts().Has(pacs.ContextMedia) {
		t.Error("Active contexts lost")
	}
}

// TestStateAggregation verifies the min-state rule and transition
// accounting.
func TestStateAggregation(t *testing.T) {
	g := New(1)
	d1, d2 := member(1), member(2)
	g.AddNode(d1)
	g.AddNode(d2)
	d1.ConnID = 1
	d2.ConnID = 2

	a1 := &device.ASE{Direction: ascs.DirectionSink, Active: true, State: ascs.StateStreaming}
	a2 := &device.ASE{Direction: ascs.DirectionSink, Active: true, State: ascs.StateQoSConfigured}
	d1.ASEs = []*device.ASE{a1}
	d2.ASEs = []*device.ASE{a2}

	if got := g.RefreshState(); got != ascs.StateQoSConfigured {
		t.Errorf("Group state should follow the least-advanced member, got %s", got)
	}

	// A releasing member drags the group back to the bottom rung.
	a2.State = ascs.StateReleasing
	if got := g.RefreshState(); got != ascs.StateReleasing {
		t.Errorf("Releasing member should drag group down, got %s", got)
	}

	g.SetTargetState(ascs.StateStreaming)
	if !g.IsInTransition() {
		t.Error("Target != current should mark transition")
	}
}

// TestRegistryInvariants verifies single-transition and reaping rules.
func TestRegistryInvariants(t *testing.T) {
	r := NewRegistry()
	g1 := r.Add(1)
	g2 := r.Add(2)

	if r.Add(1) != nil {
		t.Error("Duplicate group id should be rejected")
	}
	if r.FindByID(IDUnknown) != nil {
		t.Error("Unknown id must not resolve")
	}

	g1.SetTargetState(ascs.StateStreaming)
	if !r.IsAnyInTransition() {
		t.Error("Transition not detected")
	}
	g1.SetTargetState(ascs.StateIdle)

	// Empty group with a CIG lease survives reaping.
	g2.CIGCreated = true
	r.RemoveIfPossible(g2)
	if r.FindByID(2) == nil {
		t.Error("Group with CIG lease was reaped")
	}

	g2.CIGCreated = false
	r.RemoveIfPossible(g2)
	if r.FindByID(2) != nil {
		t.Error("Empty group without CIG should be reaped")
	}
}

// TestRebuildDirection verifies the stream descriptor aggregation.
func TestRebuildDirection(t *testing.T) {
	g := New(1)
	d1, d2 := member(1), member(2)
	g.AddNode(d1)
	g.AddNode(d2)
	d1.ConnID = 1
	d2.ConnID = 2

	conf := ascs.CodecConfig{
		SamplingFrequency: ascs.SamplingFreq48000,
		FrameDuration:     ascs.FrameDuration10000,
		OctetsPerFrame:    100,
		FrameBlocksPerSDU: 1,
	}
	leftConf, rightConf := conf, conf
	leftConf.ChannelAllocation = pacs.LocationFrontLeft
	rightConf.ChannelAllocation = pacs.LocationFrontRight

	d1.ASEs = []*device.ASE{{
		Direction: ascs.DirectionSink, Active: true,
		CodecConfig: leftConf, CISConnHandle: 0x60,
	}}
	d2.ASEs = []*device.ASE{{
		Direction: ascs.DirectionSink, Active: true,
		CodecConfig: rightConf, CISConnHandle: 0x61,
	}}

	ds := g.RebuildDirection(ascs.DirectionSink)
	if ds == nil {
		t.Fatal("RebuildDirection returned nil")
	}
	if ds.NumDevices != 2 || ds.NumChannels != 2 {
		t.Errorf("Aggregates wrong: %d devices %d channels", ds.NumDevices, ds.NumChannels)
	}
	if ds.SampleRateHz != 48000 || ds.OctetsPerFrame != 100 {
		t.Errorf("Codec params wrong: %d Hz %d octets", ds.SampleRateHz, ds.OctetsPerFrame)
	}

	left, right := ds.LeftRightCIS()
	if left != 0x60 || right != 0x61 {
		t.Errorf("Left/right classification wrong: 0x%04x/0x%04x", left, right)
	}

	if g.RebuildDirection(ascs.DirectionSource) != nil {
		t.Error("Source direction should be absent")
	}
}
