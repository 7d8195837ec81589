// Package presence tracks which users hold a live connection to each
// room. It is the authority for "who can I broadcast to right now",
// distinct from the durable is_online flag on membership rows.
package presence

import (
	"sync"
)

// Handle is a live connection endpoint. The gateway registers its
// clients here; broadcasts iterate the snapshots returned by Handles.
type Handle interface {
	ConnId() string
}

type entry struct {
	handle  Handle
	stealth bool
}

type Registry struct {
	mu    sync.RWMutex
	rooms map[int]map[int]entry
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[int]map[int]entry),
	}
}

// Add registers a handle for (room, user), replacing any existing one.
// A reconnect silently wins over the previous connection; the replaced
// handle is returned so the caller can close it out.
func (r *Registry) Add(roomId, userId int, h Handle, stealth bool) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.rooms[roomId]
	if !ok {
		conns = make(map[int]entry)
		r.rooms[roomId] = conns
	}

	prev, replaced := conns[userId]
	conns[userId] = entry{handle: h, stealth: stealth}
	if replaced {
		return prev.handle, true
	}
	return nil, false
}

// Remove drops the entry for (room, user). No-op if absent.
func (r *Registry) Remove(roomId, userId int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeLocked(roomId, userId)
}

// RemoveHandle drops the entry for (room, user) only if it still points
// at the connection with the given id. A stale disconnect arriving
// after a reconnect must not evict the newer handle.
func (r *Registry) RemoveHandle(roomId, userId int, connId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.rooms[roomId]
	if !ok {
		return false
	}

	e, ok := conns[userId]
	if !ok || e.handle.ConnId() != connId {
		return false
	}

	r.removeLocked(roomId, userId)
	return true
}

func (r *Registry) removeLocked(roomId, userId int) {
	conns, ok := r.rooms[roomId]
	if !ok {
		return
	}

	delete(conns, userId)
	if len(conns) == 0 {
		delete(r.rooms, roomId)
	}
}

// Handles returns a snapshot of every live handle in the room,
// stealth observers included.
func (r *Registry) Handles(roomId int) []Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := r.rooms[roomId]
	handles := make([]Handle, 0, len(conns))
	for _, e := range conns {
		handles = append(handles, e.handle)
	}

	return handles
}

// Contains reports whether the user has a live handle in the room.
func (r *Registry) Contains(roomId, userId int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[roomId][userId]
	return ok
}

// IsEmpty reports whether the room has no live non-stealth entries.
// Stealth observers do not keep a room alive for reaper purposes.
func (r *Registry) IsEmpty(roomId int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.rooms[roomId] {
		if !e.stealth {
			return false
		}
	}

	return true
}

// Count returns the number of non-stealth entries in the room.
func (r *Registry) Count(roomId int) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int
	for _, e := range r.rooms[roomId] {
		if !e.stealth {
			n++
		}
	}

	return n
}
