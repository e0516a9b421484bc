package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/beamchat/relay/internal/domain"
)

// Membership maps conversation ids to sets of connection ids and back.
// Rooms are created lazily on first join and garbage-collected when their
// member set becomes empty; a room here is purely a fan-out grouping, not
// the conversation record itself.
//
// Both directions are guarded by one mutex so a join/leave is a single
// critical section and the two maps can never disagree.
type Membership struct {
	mu    sync.Mutex
	rooms map[domain.RoomID]map[domain.ConnID]struct{}
	conns map[domain.ConnID]map[domain.RoomID]struct{}
}

func NewMembership() *Membership {
	return &Membership{
		rooms: make(map[domain.RoomID]map[domain.ConnID]struct{}),
		conns: make(map[domain.ConnID]map[domain.RoomID]struct{}),
	}
}

// Join adds the connection to the room, creating the room if absent.
// Idempotent: a reconnect-and-rejoin must not create phantom duplicate
// delivery, so membership is a set, never a count.
func (m *Membership) Join(room domain.RoomID, cid domain.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[room]
	if !ok {
		members = make(map[domain.ConnID]struct{})
		m.rooms[room] = members
	}
	members[cid] = struct{}{}
	joined, ok := m.conns[cid]
	if !ok {
		joined = make(map[domain.RoomID]struct{})
		m.conns[cid] = joined
	}
	joined[room] = struct{}{}
	log.Debug().Str("module", "app.membership").Str("cid", string(cid)).Str("room", string(room)).Msg("joined room")
}

// Leave removes the connection from the room; the room is deleted when its
// member set becomes empty. Leaving a room you are not in is a no-op.
func (m *Membership) Leave(room domain.RoomID, cid domain.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaveLocked(room, cid)
}

func (m *Membership) leaveLocked(room domain.RoomID, cid domain.ConnID) {
	if members, ok := m.rooms[room]; ok {
		delete(members, cid)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
	if joined, ok := m.conns[cid]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(m.conns, cid)
		}
	}
}

// Contains reports whether the connection is currently a member of the room.
func (m *Membership) Contains(room domain.RoomID, cid domain.ConnID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.rooms[room][cid]
	return ok
}

// MembersOf returns a snapshot of the room's member set. The snapshot may be
// stale immediately after return; callers must tolerate targets vanishing.
func (m *Membership) MembersOf(room domain.RoomID) []domain.ConnID {
	m.mu.Lock()
	defer m.mu.Unlock()
	members := m.rooms[room]
	out := make([]domain.ConnID, 0, len(members))
	for cid := range members {
		out = append(out, cid)
	}
	return out
}

// RoomsOf returns a snapshot of the rooms the connection belongs to.
func (m *Membership) RoomsOf(cid domain.ConnID) []domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	joined := m.conns[cid]
	out := make([]domain.RoomID, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	return out
}

// RemoveConnectionEverywhere removes the connection from every room it was
// part of, with the same empty-room cleanup as repeated Leave. It returns
// the rooms that were left, for presence broadcasts.
func (m *Membership) RemoveConnectionEverywhere(cid domain.ConnID) []domain.RoomID {
	m.mu.Lock()
	defer m.mu.Unlock()
	joined := m.conns[cid]
	out := make([]domain.RoomID, 0, len(joined))
	for room := range joined {
		out = append(out, room)
	}
	for _, room := range out {
		m.leaveLocked(room, cid)
	}
	if len(out) > 0 {
		log.Debug().Str("module", "app.membership").Str("cid", string(cid)).Int("rooms", len(out)).Msg("removed from all rooms")
	}
	return out
}

// RoomInfo is a read-only view for the ops API.
type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}

func (m *Membership) Rooms() []RoomInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for room, members := range m.rooms {
		out = append(out, RoomInfo{ID: room, MemberCount: len(members)})
	}
	return out
}
