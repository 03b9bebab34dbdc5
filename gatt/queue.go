package gatt

import (
	"github.com/sirupsen/logrus"
)

// opKind discriminates queued operation types.
type opKind uint8

const (
	opRead opKind = iota
	opWrite
	opWriteDescriptor
	opConfigureMTU
)

type queuedOp struct {
	kind   opKind
	handle uint16
	value  []byte
	mode   WriteMode
	tag    uint32
	mtu    uint16
}

// Queue serializes attribute operations per connection: at most one
// request is outstanding toward a peer at any time, the next one is
// released when the owner reports the matching completion.
//
// Must only be used from the main loop.
type Queue struct {
	client Client

	pending map[ConnID][]queuedOp
	busy    map[ConnID]bool
}

// NewQueue creates a request queue on top of the transport client.
func NewQueue(client Client) *Queue {
	return &Queue{
		client:  client,
		pending: make(map[ConnID][]queuedOp),
		busy:    make(map[ConnID]bool),
	}
}

// ReadCharacteristic enqueues a read. The tag is delivered back with
// the read response.
func (q *Queue) ReadCharacteristic(conn ConnID, handle uint16, tag uint32) {
	q.enqueue(conn, queuedOp{kind: opRead, handle: handle, tag: tag})
}

// WriteCharacteristic enqueues a characteristic write.
func (q *Queue) WriteCharacteristic(conn ConnID, handle uint16, value []byte, mode WriteMode) {
	v := make([]byte, len(value))
	copy(v, value)
	q.enqueue(conn, queuedOp{kind: opWrite, handle: handle, value: v, mode: mode})
}

// WriteDescriptor enqueues a descriptor write.
func (q *Queue) WriteDescriptor(conn ConnID, handle uint16, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	q.enqueue(conn, queuedOp{kind: opWriteDescriptor, handle: handle, value: v})
}

// ConfigureMTU enqueues an MTU exchange.
func (q *Queue) ConfigureMTU(conn ConnID, mtu uint16) {
	q.enqueue(conn, queuedOp{kind: opConfigureMTU, mtu: mtu})
}

// SubscribeCCC enqueues a CCC descriptor write enabling notifications
// or indications.
func (q *Queue) SubscribeCCC(conn ConnID, cccHandle uint16, value CCCValue) {
	buf := []byte{byte(value), byte(value >> 8)}
	q.WriteDescriptor(conn, cccHandle, buf)
}

// OperationComplete releases the next queued operation for conn. The
// owner calls this from every completion callback belonging to a
// queued request.
func (q *Queue) OperationComplete(conn ConnID) {
	if !q.busy[conn] {
		return
	}
	q.busy[conn] = false
	q.dispatch(conn)
}

// Clean drops every pending operation for conn. Outstanding transport
// completions for the in-flight request may still arrive and are
// ignored by the owner.
func (q *Queue) Clean(conn ConnID) {
	n := len(q.pending[conn])
	delete(q.pending, conn)
	delete(q.busy, conn)

	if n > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Clean",
			"conn_id":  conn,
			"dropped":  n,
		}).Debug("Dropped pending attribute operations")
	}
}

// PendingCount reports queued-but-not-dispatched operations, used by
// DebugDump.
func (q *Queue) PendingCount(conn ConnID) int {
	return len(q.pending[conn])
}

func (q *Queue) enqueue(conn ConnID, op queuedOp) {
	q.pending[conn] = append(q.pending[conn], op)
	q.dispatch(conn)
}

func (q *Queue) dispatch(conn ConnID) {
	if q.busy[conn] {
		return
	}
	ops := q.pending[conn]
	if len(ops) == 0 {
		return
	}
	op := ops[0]
	q.pending[conn] = ops[1:]
	q.busy[conn] = true

	switch op.kind {
	case opRead:
		q.client.Read(conn, op.handle, op.tag)
	case opWrite:
		q.client.Write(conn, op.handle, op.value, op.mode)
	case opWriteDescriptor:
		q.client.WriteDescriptor(conn, op.handle, op.value)
	case opConfigureMTU:
		q.client.ConfigureMTU(conn, op.mtu)
	}
}
