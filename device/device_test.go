package device

import (
	"testing"

	"github.com/opd-ai/leaudio/ascs"
	"github.com/opd-ai/leaudio/gatt"
	"github.com/opd-ai/leaudio/pacs"
)

func addr(last byte) gatt.Address {
	return gatt.Address{0xAA, 0xBB, 0xCC, 0x00, 0x00, last}
}

// TestNewDevice verifies initial state.
func TestNewDevice(t *testing.T) {
	d := New(addr(1), true)

	if d.Connected() {
		t.Error("Fresh device should not be connected")
	}
	if d.GroupID != GroupUnknown {
		t.Errorf("Fresh device should be ungrouped, got %d", d.GroupID)
	}
	if !d.FirstConnection {
		t.Error("Explicit connect should mark first connection")
	}

	restored := New(addr(2), false)
	if restored.FirstConnection {
		t.Error("Storage restore should not mark first connection")
	}
}

// TestRegistryLookups exercises every lookup key.
func TestRegistryLookups(t *testing.T) {
	r := NewRegistry()

	d1 := r.Add(addr(1), true)
	d2 := r.Add(addr(2), false)

	if r.Add(addr(1), false) != d1 {
		t.Error("Duplicate add should return the existing device")
	}
	if r.Size() != 2 {
		t.Fatalf("Expected 2 devices, got %d", r.Size())
	}

	d1.ConnID = 7
	if r.FindByConnID(7) != d1 {
		t.Error("FindByConnID broken")
	}
	if r.FindByConnID(gatt.InvalidConnID) != nil {
		t.Error("Invalid conn id must not resolve")
	}

	d2.ASEs = append(d2.ASEs, &ASE{Active: true, CISConnHandle: 0x60})
	if r.FindByCISHandle(0x60) != d2 {
		t.Error("FindByCISHandle broken")
	}
	if r.FindByCISHandle(0x61) != nil {
		t.Error("Unknown CIS handle must not resolve")
	}

	r.Remove(addr(1))
	if r.FindByAddress(addr(1)) != nil {
		t.Error("Removed device still resolvable")
	}
}

// TestAseLookups exercises the per-ASE accessors.
func TestAseLookups(t *testing.T) {
	d := New(addr(1), true)
	sink := &ASE{ID: 1, Handles: HandlePair{Value: 0x10, CCC: 0x11}, Direction: ascs.DirectionSink}
	source := &ASE{ID: 2, Handles: HandlePair{Value: 0x13, CCC: 0x14}, Direction: ascs.DirectionSource}
	d.ASEs = []*ASE{sink, source}

	if d.AseByValueHandle(0x10) != sink || d.AseByValueHandle(0x13) != source {
		t.Error("AseByValueHandle broken")
	}
	if d.AseByID(2) != source {
		t.Error("AseByID broken")
	}
	if d.AseByValueHandle(0x99) != nil {
		t.Error("Unknown handle must not resolve")
	}

	if d.HaveActiveAse() {
		t.Error("No ASE is active yet")
	}
	sink.Active = true
	if !d.HaveActiveAse() {
		t.Error("Active ASE not reported")
	}
	if len(d.ActiveASEsByDirection(ascs.DirectionSink)) != 1 {
		t.Error("Active sink ASE not listed")
	}
	if len(d.InactiveASEsByDirection(ascs.DirectionSource)) != 1 {
		t.Error("Inactive source ASE not listed")
	}

	sink.State = ascs.StateStreaming
	if !d.AllActiveAsesInState(ascs.StateStreaming) {
		t.Error("AllActiveAsesInState broken")
	}

	d.DeactivateASEs()
	if d.HaveActiveAse() {
		t.Error("DeactivateASEs left an active ASE")
	}
	if sink.CISConnHandle != 0 || sink.DataPath != DataPathIdle {
		t.Error("DeactivateASEs did not clear the CIS binding")
	}
}

// TestAvailableContexts verifies the changed-bits computation.
func TestAvailableContexts(t *testing.T) {
	d := New(addr(1), true)

	changed := d.SetAvailableContexts(
		pacs.AudioContexts(pacs.ContextMedia), pacs.AudioContexts(pacs.ContextConversational))
	if !changed.Any() {
		t.Error("Initial set should report changes")
	}

	changed = d.SetAvailableContexts(
		pacs.AudioContexts(pacs.ContextMedia), pacs.AudioContexts(pacs.ContextConversational))
	if changed.Any() {
		t.Error("Identical set should report no change")
	}

	union := d.AvailableContexts()
	if !union.Has(pacs.ContextMedia) || !union.Has(pacs.ContextConversational) {
		t.Errorf("Union wrong: 0x%04x", uint16(union))
	}
}

// TestPACRegistration verifies records land on the right instance.
func TestPACRegistration(t *testing.T) {
	d := New(addr(1), true)
	d.SinkPACs = []PACRecords{{Handles: HandlePair{Value: 0x20, CCC: 0x21}}}

	rec := pacs.Record{Codec: pacs.LC3CodecID}
	if !d.RegisterSinkPACs(0x20, []pacs.Record{rec}) {
		t.Error("Registration against known handle failed")
	}
	if d.RegisterSinkPACs(0x99, []pacs.Record{rec}) {
		t.Error("Registration against unknown handle succeeded")
	}
	if len(d.AllSinkRecords()) != 1 {
		t.Errorf("Expected 1 sink record, got %d", len(d.AllSinkRecords()))
	}

	d.ClearPACs()
	if len(d.SinkPACs) != 0 {
		t.Error("ClearPACs left sink records")
	}
}
