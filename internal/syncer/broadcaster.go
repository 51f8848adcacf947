package syncer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"timetracker/internal/logging"
	"timetracker/internal/models"
)

// Frame is one push-stream record: Seq becomes the SSE id line, Name the
// event line, Data the JSON payload.
type Frame struct {
	Seq  int64
	Name string
	Data any
}

// Conn is one live push connection, bound to a single user for its lifetime.
// Events is closed when the connection is dropped from the registry.
type Conn struct {
	ID     string
	UserID string
	Events chan Frame
}

// Frames a slow consumer may fall behind by before being dropped. A full
// buffer is treated the same as a failed write: the connection is gone.
const connBuffer = 16

// Broadcaster is the live-connection registry and per-user fan-out. It is an
// owned, injectable object, not a package singleton, so tests run independent
// registries and a multi-process deployment can later swap in a pub/sub
// implementation at the construction site. Events fan out only to the
// mutating user's connections; other users' connections are untouched.
//
// The registry is process-local: with several server processes, connections
// held by other processes do not receive events. Known scaling limit.
type Broadcaster struct {
	log *logging.Logger
	seq atomic.Int64

	mu     sync.RWMutex
	closed bool
	conns  map[string]*Conn
	byUser map[string]map[string]*Conn
}

func NewBroadcaster(log *logging.Logger) *Broadcaster {
	return &Broadcaster{
		log:    log,
		conns:  make(map[string]*Conn),
		byUser: make(map[string]map[string]*Conn),
	}
}

// Register adds a connection for userID and queues its "connected" frame.
func (b *Broadcaster) Register(userID string) *Conn {
	c := &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		Events: make(chan Frame, connBuffer),
	}
	c.Events <- Frame{
		Seq:  b.seq.Add(1),
		Name: "connected",
		Data: map[string]string{"clientId": c.ID},
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(c.Events)
		return c
	}
	b.conns[c.ID] = c
	if b.byUser[userID] == nil {
		b.byUser[userID] = make(map[string]*Conn)
	}
	b.byUser[userID][c.ID] = c
	b.log.Debugf("sync: connection %s registered for user", c.ID)
	return c
}

// Deregister removes a connection and closes its channel. Safe to call twice;
// the second call is a no-op.
func (b *Broadcaster) Deregister(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dropLocked(connID)
}

func (b *Broadcaster) dropLocked(connID string) {
	c, ok := b.conns[connID]
	if !ok {
		return
	}
	delete(b.conns, connID)
	if peers := b.byUser[c.UserID]; peers != nil {
		delete(peers, connID)
		if len(peers) == 0 {
			delete(b.byUser, c.UserID)
		}
	}
	close(c.Events)
}

// Broadcast pushes a sync event to every live connection of userID. Each
// delivered frame takes the next value of the global sequence counter. A
// connection that cannot accept the frame is dropped, never reported as an
// error: sync is a best-effort side channel and must not fail the mutation
// that triggered it.
func (b *Broadcaster) Broadcast(userID, eventType string) {
	now := time.Now().UTC()

	// Sends stay under the read lock: channels are only closed under the
	// write lock, so a frame can never race a close. Sends are non-blocking.
	b.mu.RLock()
	var stale []string
	for _, c := range b.byUser[userID] {
		f := Frame{
			Seq:  b.seq.Add(1),
			Name: "sync",
			Data: models.SyncEvent{Type: eventType, Timestamp: now},
		}
		select {
		case c.Events <- f:
		default:
			stale = append(stale, c.ID)
		}
	}
	b.mu.RUnlock()
	if len(stale) > 0 {
		b.mu.Lock()
		for _, id := range stale {
			b.log.Warnf("sync: dropping stalled connection %s", id)
			b.dropLocked(id)
		}
		b.mu.Unlock()
	}
}

// Counts reports the total number of live connections and how many belong to
// userID. Read-only introspection.
func (b *Broadcaster) Counts(userID string) (total, user int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.conns), len(b.byUser[userID])
}

// Seq returns the last sequence value handed out.
func (b *Broadcaster) Seq() int64 {
	return b.seq.Load()
}

// Shutdown closes every live connection and rejects later registrations.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id := range b.conns {
		b.dropLocked(id)
	}
}
