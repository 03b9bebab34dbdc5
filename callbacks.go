package leaudio

import "github.com/opd-ai/leaudio/gatt"

// ConnectionState is reported through Callbacks.OnConnectionState.
type ConnectionState uint8

// Connection states.
const (
	ConnectionDisconnected ConnectionState = iota
	ConnectionConnected
)

// GroupStatus is reported through Callbacks.OnGroupStatus.
type GroupStatus uint8

// Group statuses.
const (
	GroupInactive GroupStatus = iota
	GroupActive
)

// GroupNodeStatus is reported through Callbacks.OnGroupNodeStatus.
type GroupNodeStatus uint8

// Group node statuses.
const (
	GroupNodeAdded GroupNodeStatus = iota
	GroupNodeRemoved
)

// Callbacks is the consumer-facing upcall surface. All callbacks run
// on the main loop; implementations must not block.
type Callbacks interface {
	OnConnectionState(state ConnectionState, addr gatt.Address)
	OnGroupStatus(groupID int, status GroupStatus)
	OnGroupNodeStatus(addr gatt.Address, groupID int, status GroupNodeStatus)
	// OnAudioConf reports the group's aggregated audio shape whenever
	// locations or active contexts change.
	OnAudioConf(directions uint8, groupID int, sinkLocations, sourceLocations uint32, activeContexts uint16)
	OnSinkAudioLocationAvailable(addr gatt.Address, sinkLocations uint32)
}

// Storage is the bonded-device storage collaborator.
type Storage interface {
	SetAutoconnect(addr gatt.Address, autoconnect bool)
}

// GroupCallbacks is implemented by the client and registered with the
// group-membership service.
type GroupCallbacks interface {
	OnGroupAdded(addr gatt.Address, groupID int)
	OnGroupMemberAdded(addr gatt.Address, groupID int)
	OnGroupMemberRemoved(addr gatt.Address, groupID int)
}

// GroupService is the CSIS/group-membership collaborator resolving
// set members into group ids.
type GroupService interface {
	Initialize(cb GroupCallbacks)
	// AddDevice enrolls a device; groupID IDUnknown lets the service
	// allocate one. Results arrive via GroupCallbacks.
	AddDevice(addr gatt.Address, groupID int)
	RemoveDevice(addr gatt.Address, groupID int)
	// GetGroupID resolves a device's group, IDUnknown when none.
	GetGroupID(addr gatt.Address) int
}
