package gatt

import (
	"testing"
)

// recordingClient captures downcalls in order.
type recordingClient struct {
	ops []string
}

func (r *recordingClient) Open(addr Address, background bool)     {}
func (r *recordingClient) CancelOpen(addr Address, direct bool)   {}
func (r *recordingClient) Close(conn ConnID)                      {}
func (r *recordingClient) ConfigureMTU(conn ConnID, mtu uint16)   { r.ops = append(r.ops, "mtu") }
func (r *recordingClient) ServiceSearch(conn ConnID, uuid UUID)   {}
func (r *recordingClient) Services(conn ConnID) []Service         { return nil }
func (r *recordingClient) Read(conn ConnID, handle uint16, tag uint32) {
	r.ops = append(r.ops, "read")
}
func (r *recordingClient) Write(conn ConnID, handle uint16, value []byte, mode WriteMode) {
	r.ops = append(r.ops, "write")
}
func (r *recordingClient) WriteDescriptor(conn ConnID, handle uint16, value []byte) {
	r.ops = append(r.ops, "desc")
}
func (r *recordingClient) RegisterNotify(addr Address, handle uint16) error { return nil }
func (r *recordingClient) DeregisterNotify(addr Address, handle uint16)     {}
func (r *recordingClient) StartEncryption(addr Address) error               { return nil }
func (r *recordingClient) IsEncrypted(addr Address) bool                    { return false }

// TestQueueSerializesPerConnection verifies only one operation is
// outstanding until its completion arrives.
func TestQueueSerializesPerConnection(t *testing.T) {
	client := &recordingClient{}
	q := NewQueue(client)
	conn := ConnID(1)

	q.ReadCharacteristic(conn, 0x10, 0)
	q.WriteCharacteristic(conn, 0x11, []byte{1}, WriteRequest)
	q.WriteDescriptor(conn, 0x12, []byte{1, 0})

	if len(client.ops) != 1 || client.ops[0] != "read" {
		t.Fatalf("Expected only the first op dispatched, got %v", client.ops)
	}

	q.OperationComplete(conn)
	if len(client.ops) != 2 || client.ops[1] != "write" {
		t.Fatalf("Expected write after completion, got %v", client.ops)
	}

	q.OperationComplete(conn)
	if len(client.ops) != 3 || client.ops[2] != "desc" {
		t.Fatalf("Expected descriptor write, got %v", client.ops)
	}

	// Spurious completion with an empty queue is harmless.
	q.OperationComplete(conn)
	q.OperationComplete(conn)
	if len(client.ops) != 3 {
		t.Errorf("Spurious completion dispatched something: %v", client.ops)
	}
}

// TestQueueIndependentConnections verifies per-connection queues do
// not block each other.
func TestQueueIndependentConnections(t *testing.T) {
	client := &recordingClient{}
	q := NewQueue(client)

	q.ReadCharacteristic(1, 0x10, 0)
	q.ReadCharacteristic(2, 0x20, 0)

	if len(client.ops) != 2 {
		t.Fatalf("Both connections should have one op in flight, got %v", client.ops)
	}
}

// TestQueueClean verifies pending operations are dropped.
func TestQueueClean(t *testing.T) {
	client := &recordingClient{}
	q := NewQueue(client)
	conn := ConnID(1)

	q.ReadCharacteristic(conn, 0x10, 0)
	q.ReadCharacteristic(conn, 0x11, 0)
	q.ReadCharacteristic(conn, 0x12, 0)
	if q.PendingCount(conn) != 2 {
		t.Fatalf("Expected 2 pending, got %d", q.PendingCount(conn))
	}

	q.Clean(conn)
	if q.PendingCount(conn) != 0 {
		t.Errorf("Clean left pending ops: %d", q.PendingCount(conn))
	}

	// Completion for the in-flight op after Clean dispatches nothing.
	q.OperationComplete(conn)
	if len(client.ops) != 1 {
		t.Errorf("Clean did not stop dispatch: %v", client.ops)
	}
}

// TestSubscribeCCCLayout verifies the descriptor payload.
func TestSubscribeCCCLayout(t *testing.T) {
	client := &recordingClient{}
	q := NewQueue(client)

	q.SubscribeCCC(1, 0x22, CCCNotification)
	if client.ops[0] != "desc" {
		t.Fatalf("Expected descriptor write, got %v", client.ops)
	}
}

// TestAddressParsing round-trips the textual form.
func TestAddressParsing(t *testing.T) {
	addr, err := ParseAddress("AA:BB:CC:00:11:22")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if addr.String() != "AA:BB:CC:00:11:22" {
		t.Errorf("Round trip mismatch: %s", addr)
	}

	if _, err := ParseAddress("nonsense"); err == nil {
		t.Error("Expected error for invalid address")
	}
}

// TestUUIDHelpers exercises 16-bit UUID handling.
func TestUUIDHelpers(t *testing.T) {
	u := UUID16(0x1850)
	if !u.Equal(UUIDPublishedAudioCapabilityService) {
		t.Error("UUID16 mismatch with constant")
	}
	if u.String() != "1850" {
		t.Errorf("String form wrong: %s", u)
	}

	parsed, err := ParseUUID("1850")
	if err != nil || !parsed.Equal(u) {
		t.Errorf("ParseUUID failed: %v %s", err, parsed)
	}

	if _, err := ParseUUID("123"); err == nil {
		t.Error("Expected error for odd-length UUID")
	}
}
