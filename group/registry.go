package group

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// Registry holds the known groups keyed by id. Only used from the
// main loop.
type Registry struct {
	groups []*Group
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add creates a group for id. Returns nil when the id already exists.
func (r *Registry) Add(id int) *Group {
	if r.FindByID(id) != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Add",
			"group_id": id,
		}).Error("Group already exists")
		return nil
	}
	g := New(id)
	r.groups = append(r.groups, g)
	return g
}

// FindByID resolves a group, nil when unknown.
func (r *Registry) FindByID(id int) *Group {
	if id == IDUnknown {
		return nil
	}
	for _, g := range r.groups {
		if g.ID == id {
			return g
		}
	}
	return nil
}

// Remove drops a group.
func (r *Registry) Remove(id int) {
	for i, g := range r.groups {
		if g.ID == id {
			r.groups = append(r.groups[:i], r.groups[i+1:]...)
			logrus.WithFields(logrus.Fields{
				"function": "Remove",
				"group_id": id,
			}).Info("Group removed from registry")
			return
		}
	}
}

// RemoveIfPossible reaps a group that is empty and holds no CIG lease.
func (r *Registry) RemoveIfPossible(g *Group) {
	if g != nil && g.IsEmpty() && !g.CIGCreated {
		r.Remove(g.ID)
	}
}

// IsAnyInTransition reports whether any group has an ongoing state
// transition. At most one may at any time.
func (r *Registry) IsAnyInTransition() bool {
	for _, g := range r.groups {
		if g.IsInTransition() {
			return true
		}
	}
	return false
}

// All returns the groups.
func (r *Registry) All() []*Group { return r.groups }

// Cleanup drops every group.
func (r *Registry) Cleanup() { r.groups = nil }

// Dump writes the registry state for DebugDump.
func (r *Registry) Dump(w io.Writer) {
	for _, g := range r.groups {
		fmt.Fprintf(w, "    group: %d members: %d state: %s target: %s cig: %v contexts: 0x%04x\n",
			g.ID, g.Size(), g.State(), g.TargetState(), g.CIGCreated,
			uint16(g.ActiveContexts()))
		for _, d := range g.Members() {
			fmt.Fprintf(w, "      %s connected: %v active_ases: %d\n",
				d.Address, d.Connected(), len(d.ActiveASEs()))
		}
	}
}
