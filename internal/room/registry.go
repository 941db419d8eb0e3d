// Package room indexes live sessions by the workspace they are bound to.
//
// The Registry is process-local and purely in-memory. It does not own
// sessions; it only records which room each one is in and keeps that record
// consistent with the session's own bound-workspace field. A room with no
// members is dropped immediately.
package room

import "sync"

// Member is a session as seen by the Registry.
type Member interface {
	// Workspace returns the workspace the member is bound to, or "".
	Workspace() string

	// SetWorkspace records the member's binding. Only the Registry calls
	// it, while holding its lock.
	SetWorkspace(workspaceID string)

	// Deliver queues msg for the member. It must not block.
	Deliver(msg any)
}

// Registry maps workspace IDs to the members currently in that room.
type Registry struct {
	// mu guards rooms and every SetWorkspace call, so a reader never sees
	// a member listed in a room its binding does not name.
	mu    sync.RWMutex
	rooms map[string]map[Member]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[Member]struct{})}
}

// Admit binds m to workspaceID and adds it to that room. If m was bound to a
// different workspace it is removed from that room first, and the old
// workspace ID is returned so the caller can notify its peers. Admitting a
// member to the room it is already in changes nothing.
func (r *Registry) Admit(m Member, workspaceID string) (previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous = m.Workspace()
	if previous == workspaceID {
		if _, ok := r.rooms[workspaceID][m]; ok {
			return ""
		}
	} else if previous != "" {
		r.removeLocked(m, previous)
	}

	members, ok := r.rooms[workspaceID]
	if !ok {
		members = make(map[Member]struct{})
		r.rooms[workspaceID] = members
	}
	members[m] = struct{}{}
	m.SetWorkspace(workspaceID)

	if previous == workspaceID {
		return ""
	}
	return previous
}

// Evict removes m from its room and clears its binding.
// Returns the workspace it was removed from, or "" if it was unbound.
func (r *Registry) Evict(m Member) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	workspaceID := m.Workspace()
	if workspaceID == "" {
		return ""
	}
	r.removeLocked(m, workspaceID)
	m.SetWorkspace("")
	return workspaceID
}

// removeLocked drops m from the room and forgets the room once empty.
// r.mu must be held for writing.
func (r *Registry) removeLocked(m Member, workspaceID string) {
	members, ok := r.rooms[workspaceID]
	if !ok {
		return
	}
	delete(members, m)
	if len(members) == 0 {
		delete(r.rooms, workspaceID)
	}
}

// Broadcast delivers msg to every member of workspaceID except exclude.
// Membership is snapshotted under the lock and delivery happens after it is
// released. Returns the number of members the message was handed to.
func (r *Registry) Broadcast(workspaceID string, exclude Member, msg any) int {
	recipients := r.snapshot(workspaceID, exclude)
	for _, m := range recipients {
		m.Deliver(msg)
	}
	return len(recipients)
}

// MembersOf returns the current members of workspaceID in no particular order.
func (r *Registry) MembersOf(workspaceID string) []Member {
	return r.snapshot(workspaceID, nil)
}

func (r *Registry) snapshot(workspaceID string, exclude Member) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[workspaceID]
	out := make([]Member, 0, len(members))
	for m := range members {
		if exclude != nil && m == exclude {
			continue
		}
		out = append(out, m)
	}
	return out
}

// RoomCount returns how many rooms currently have members.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// MemberCount returns the total number of bound members across all rooms.
func (r *Registry) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, members := range r.rooms {
		n += len(members)
	}
	return n
}
