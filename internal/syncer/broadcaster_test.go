package syncer

import (
	"testing"

	"timetracker/internal/logging"
	"timetracker/internal/models"
)

func newTestBroadcaster() *Broadcaster {
	return NewBroadcaster(logging.New("error"))
}

func drainConnected(t *testing.T, c *Conn) {
	t.Helper()
	f := <-c.Events
	if f.Name != "connected" {
		t.Fatalf("expected connected frame first, got %q", f.Name)
	}
	data, ok := f.Data.(map[string]string)
	if !ok || data["clientId"] != c.ID {
		t.Fatalf("connected frame must carry the connection id, got %v", f.Data)
	}
}

func TestFanOutScope(t *testing.T) {
	b := newTestBroadcaster()
	a1 := b.Register("userA")
	a2 := b.Register("userA")
	b1 := b.Register("userB")
	drainConnected(t, a1)
	drainConnected(t, a2)
	drainConnected(t, b1)

	b.Broadcast("userA", models.SyncTimeEntries)

	for _, c := range []*Conn{a1, a2} {
		f := <-c.Events
		if f.Name != "sync" {
			t.Fatalf("expected sync frame, got %q", f.Name)
		}
		ev, ok := f.Data.(models.SyncEvent)
		if !ok || ev.Type != models.SyncTimeEntries {
			t.Fatalf("unexpected frame data %v", f.Data)
		}
	}
	select {
	case f := <-b1.Events:
		t.Fatalf("user B must receive nothing, got %v", f)
	default:
	}
}

func TestSequenceMonotonicPerConnection(t *testing.T) {
	b := newTestBroadcaster()
	c := b.Register("u1")
	drainConnected(t, c)

	b.Broadcast("u1", models.SyncTimeEntries)
	b.Broadcast("u1", models.SyncCategories)
	b.Broadcast("u1", models.SyncAll)

	var last int64
	for i := 0; i < 3; i++ {
		f := <-c.Events
		if f.Seq <= last {
			t.Fatalf("sequence not monotonic: %d after %d", f.Seq, last)
		}
		last = f.Seq
	}
	if b.Seq() != last {
		t.Fatalf("Seq() = %d, want %d", b.Seq(), last)
	}
}

func TestDeregisterIsIdempotent(t *testing.T) {
	b := newTestBroadcaster()
	c := b.Register("u1")
	b.Deregister(c.ID)
	b.Deregister(c.ID)

	total, user := b.Counts("u1")
	if total != 0 || user != 0 {
		t.Fatalf("counts after deregister = %d/%d", total, user)
	}
	// channel closed: a dropped connection's reader terminates
	drainConnected(t, c)
	if _, open := <-c.Events; open {
		t.Fatal("expected events channel closed")
	}
	// broadcasting to a user with no connections is a no-op
	b.Broadcast("u1", models.SyncTimeEntries)
}

func TestStalledConnectionIsDropped(t *testing.T) {
	b := newTestBroadcaster()
	c := b.Register("u1")
	healthy := b.Register("u1")
	drainConnected(t, healthy)

	// never read from c: the connected frame plus broadcasts fill its buffer
	for i := 0; i < connBuffer; i++ {
		b.Broadcast("u1", models.SyncTimeEntries)
	}

	total, user := b.Counts("u1")
	if total != 1 || user != 1 {
		t.Fatalf("expected stalled connection dropped, counts = %d/%d", total, user)
	}
	if _, ok := b.conns[c.ID]; ok {
		t.Fatal("stalled connection still registered")
	}
	// the healthy connection still receives
	f := <-healthy.Events
	if f.Name != "sync" {
		t.Fatalf("expected sync frame, got %q", f.Name)
	}
}

func TestCounts(t *testing.T) {
	b := newTestBroadcaster()
	b.Register("u1")
	b.Register("u1")
	b.Register("u2")

	total, user := b.Counts("u1")
	if total != 3 || user != 2 {
		t.Fatalf("counts = %d/%d, want 3/2", total, user)
	}
	total, user = b.Counts("nobody")
	if total != 3 || user != 0 {
		t.Fatalf("counts = %d/%d, want 3/0", total, user)
	}
}

func TestShutdownClosesEverything(t *testing.T) {
	b := newTestBroadcaster()
	c := b.Register("u1")
	drainConnected(t, c)

	b.Shutdown()
	if _, open := <-c.Events; open {
		t.Fatal("expected channel closed after shutdown")
	}
	total, _ := b.Counts("u1")
	if total != 0 {
		t.Fatalf("expected empty registry, got %d", total)
	}

	// registrations after shutdown come back already closed
	late := b.Register("u1")
	drainConnected(t, late)
	if _, open := <-late.Events; open {
		t.Fatal("expected late registration closed")
	}
}
