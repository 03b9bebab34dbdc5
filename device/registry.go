package device

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/leaudio/gatt"
)

// Registry holds every known device, keyed by address. Only used from
// the main loop.
type Registry struct {
	devices []*Device
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add creates and stores a device; the existing record is returned for
// an already-known address.
func (r *Registry) Add(addr gatt.Address, firstConnection bool) *Device {
	if d := r.FindByAddress(addr); d != nil {
		return d
	}
	d := New(addr, firstConnection)
	r.devices = append(r.devices, d)
	return d
}

// Remove drops the device.
func (r *Registry) Remove(addr gatt.Address) {
	for i, d := range r.devices {
		if d.Address == addr {
			r.devices = append(r.devices[:i], r.devices[i+1:]...)
			logrus.WithFields(logrus.Fields{
				"function": "Remove",
				"address":  addr.String(),
			}).Info("Device removed from registry")
			return
		}
	}
}

// FindByAddress resolves a device by address, nil when unknown.
func (r *Registry) FindByAddress(addr gatt.Address) *Device {
	for _, d := range r.devices {
		if d.Address == addr {
			return d
		}
	}
	return nil
}

// FindByConnID resolves a device by its open connection.
func (r *Registry) FindByConnID(conn gatt.ConnID) *Device {
	if conn == gatt.InvalidConnID {
		return nil
	}
	for _, d := range r.devices {
		if d.ConnID == conn {
			return d
		}
	}
	return nil
}

// FindByCISHandle resolves the device owning an active CIS.
func (r *Registry) FindByCISHandle(cisHandle uint16) *Device {
	for _, d := range r.devices {
		if d.AseByCISHandle(cisHandle) != nil {
			return d
		}
	}
	return nil
}

// All returns the devices in insertion order.
func (r *Registry) All() []*Device {
	return r.devices
}

// Size is the number of known devices.
func (r *Registry) Size() int {
	return len(r.devices)
}

// Cleanup drops every device.
func (r *Registry) Cleanup() {
	r.devices = nil
}

// Dump writes the devices carrying the given group id, for DebugDump.
func (r *Registry) Dump(w io.Writer, groupID int) {
	for _, d := range r.devices {
		if d.GroupID != groupID {
			continue
		}
		fmt.Fprintf(w, "    %s conn_id: %d group: %d encrypted: %v ases: %d\n",
			d.Address, d.ConnID, d.GroupID, d.Encrypted, len(d.ASEs))
	}
}
