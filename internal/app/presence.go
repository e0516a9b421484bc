package app

import (
	"sync"
	"time"

	"github.com/beamchat/relay/internal/domain"
)

type typingKey struct {
	Conn domain.ConnID
	Room domain.RoomID
}

// TypingCoordinator converts raw typing events into a debounced stop-typing
// transition. One pending timer per (connection, room) pair; a fresh typing
// event restarts the timer, it never stacks a second one.
//
// Timers are the only per-connection state outside the registry and the
// membership table, and they are owned here, so no cross-connection locking
// is needed beyond the coordinator's own mutex.
type TypingCoordinator struct {
	router *Router
	idle   time.Duration

	mu      sync.Mutex
	pending map[typingKey]*time.Timer
}

func NewTypingCoordinator(router *Router, idle time.Duration) *TypingCoordinator {
	return &TypingCoordinator{
		router:  router,
		idle:    idle,
		pending: make(map[typingKey]*time.Timer),
	}
}

// Touch (re)starts the debounce for the pair. When the timer elapses with no
// further Touch, a stop_typing is synthesized for the room.
func (tc *TypingCoordinator) Touch(cid domain.ConnID, room domain.RoomID) {
	key := typingKey{Conn: cid, Room: room}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if t, ok := tc.pending[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(tc.idle, func() { tc.expire(key, t) })
	tc.pending[key] = t
}

func (tc *TypingCoordinator) expire(key typingKey, self *time.Timer) {
	tc.mu.Lock()
	current, ok := tc.pending[key]
	if !ok || current != self {
		// A Touch swapped the timer between fire and lock; the newer timer
		// owns the pair now.
		tc.mu.Unlock()
		return
	}
	delete(tc.pending, key)
	tc.mu.Unlock()
	tc.router.emitStopTyping(key.Conn, key.Room)
}

// Stop handles an explicit stop_typing: cancel the pending timer and notify
// the room exactly once.
func (tc *TypingCoordinator) Stop(cid domain.ConnID, room domain.RoomID) {
	tc.Cancel(cid, room)
	tc.router.emitStopTyping(cid, room)
}

// Cancel drops any pending debounce for the pair without emitting and
// reports whether one was armed.
func (tc *TypingCoordinator) Cancel(cid domain.ConnID, room domain.RoomID) bool {
	key := typingKey{Conn: cid, Room: room}
	tc.mu.Lock()
	defer tc.mu.Unlock()
	t, ok := tc.pending[key]
	if ok {
		t.Stop()
		delete(tc.pending, key)
	}
	return ok
}

// FlushConn emits stop_typing for every room the connection was still typing
// in and drops the timers. Used on disconnect so nobody is left rendered as
// "is typing" forever.
func (tc *TypingCoordinator) FlushConn(cid domain.ConnID) {
	tc.mu.Lock()
	rooms := make([]domain.RoomID, 0, len(tc.pending))
	for key, t := range tc.pending {
		if key.Conn != cid {
			continue
		}
		t.Stop()
		delete(tc.pending, key)
		rooms = append(rooms, key.Room)
	}
	tc.mu.Unlock()
	for _, room := range rooms {
		tc.router.emitStopTyping(cid, room)
	}
}

// PendingCount reports armed timers, for tests and introspection.
func (tc *TypingCoordinator) PendingCount() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return len(tc.pending)
}
