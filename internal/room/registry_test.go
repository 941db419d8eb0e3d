package room

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMember records its binding and every delivered message.
type fakeMember struct {
	name string

	mu        sync.Mutex
	workspace string
	received  []any
}

func (f *fakeMember) Workspace() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.workspace
}

func (f *fakeMember) SetWorkspace(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.workspace = id
}

func (f *fakeMember) Deliver(msg any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, msg)
}

func (f *fakeMember) messages() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.received...)
}

func TestAdmitBindsAndIndexes(t *testing.T) {
	r := NewRegistry()
	a := &fakeMember{name: "a"}

	prev := r.Admit(a, "w1")
	assert.Equal(t, "", prev)
	assert.Equal(t, "w1", a.Workspace())
	assert.ElementsMatch(t, []Member{a}, r.MembersOf("w1"))
	assert.Equal(t, 1, r.RoomCount())
}

func TestAdmitMovesBetweenRooms(t *testing.T) {
	r := NewRegistry()
	a := &fakeMember{name: "a"}
	b := &fakeMember{name: "b"}

	r.Admit(a, "w1")
	r.Admit(b, "w1")

	prev := r.Admit(a, "w2")
	assert.Equal(t, "w1", prev)
	assert.Equal(t, "w2", a.Workspace())
	assert.ElementsMatch(t, []Member{b}, r.MembersOf("w1"))
	assert.ElementsMatch(t, []Member{a}, r.MembersOf("w2"))
}

func TestAdmitSameRoomIsNoop(t *testing.T) {
	r := NewRegistry()
	a := &fakeMember{name: "a"}

	r.Admit(a, "w1")
	prev := r.Admit(a, "w1")
	assert.Equal(t, "", prev)
	assert.Len(t, r.MembersOf("w1"), 1)
}

func TestEvict(t *testing.T) {
	r := NewRegistry()
	a := &fakeMember{name: "a"}

	assert.Equal(t, "", r.Evict(a), "evicting an unbound member is a no-op")

	r.Admit(a, "w1")
	assert.Equal(t, "w1", r.Evict(a))
	assert.Equal(t, "", a.Workspace())
	assert.Empty(t, r.MembersOf("w1"))
	assert.Equal(t, 0, r.RoomCount(), "empty rooms are forgotten")

	assert.Equal(t, "", r.Evict(a), "a second evict reports nothing")
}

func TestBroadcastExcludesOriginator(t *testing.T) {
	r := NewRegistry()
	a := &fakeMember{name: "a"}
	b := &fakeMember{name: "b"}
	c := &fakeMember{name: "c"}
	other := &fakeMember{name: "other"}

	r.Admit(a, "w1")
	r.Admit(b, "w1")
	r.Admit(c, "w1")
	r.Admit(other, "w2")

	n := r.Broadcast("w1", a, "hello")
	assert.Equal(t, 2, n)
	assert.Empty(t, a.messages())
	assert.Equal(t, []any{"hello"}, b.messages())
	assert.Equal(t, []any{"hello"}, c.messages())
	assert.Empty(t, other.messages(), "broadcasts never cross rooms")
}

func TestBroadcastEmptyRoom(t *testing.T) {
	r := NewRegistry()
	a := &fakeMember{name: "a"}
	r.Admit(a, "w1")

	assert.Equal(t, 0, r.Broadcast("w1", a, "x"))
	assert.Equal(t, 0, r.Broadcast("nobody", nil, "x"))
}

func TestBroadcastPreservesOrderPerMember(t *testing.T) {
	r := NewRegistry()
	sender := &fakeMember{name: "s"}
	peer := &fakeMember{name: "p"}
	r.Admit(sender, "w1")
	r.Admit(peer, "w1")

	for i := 0; i < 100; i++ {
		r.Broadcast("w1", sender, i)
	}

	got := peer.messages()
	require.Len(t, got, 100)
	for i, msg := range got {
		assert.Equal(t, i, msg)
	}
}

// TestRegistryConsistency drives random admit/evict sequences and checks that
// each room's member set equals the set of members whose binding names it,
// and that no member is in two rooms.
func TestRegistryConsistency(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	r := NewRegistry()

	members := make([]*fakeMember, 8)
	for i := range members {
		members[i] = &fakeMember{name: fmt.Sprintf("m%d", i)}
	}
	workspaces := []string{"w1", "w2", "w3"}

	for step := 0; step < 2000; step++ {
		m := members[rng.Intn(len(members))]
		if rng.Intn(3) == 0 {
			r.Evict(m)
		} else {
			r.Admit(m, workspaces[rng.Intn(len(workspaces))])
		}

		seen := make(map[Member]string)
		for _, ws := range workspaces {
			var want []Member
			for _, mm := range members {
				if mm.Workspace() == ws {
					want = append(want, mm)
				}
			}
			got := r.MembersOf(ws)
			require.ElementsMatch(t, want, got, "step %d room %s", step, ws)

			for _, g := range got {
				if prev, dup := seen[g]; dup {
					t.Fatalf("step %d: member in %s and %s", step, prev, ws)
				}
				seen[g] = ws
			}
		}
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m := &fakeMember{name: fmt.Sprintf("m%d", i)}
			for j := 0; j < 200; j++ {
				ws := fmt.Sprintf("w%d", j%3)
				r.Admit(m, ws)
				r.Broadcast(ws, m, j)
				_ = r.MembersOf(ws)
				if j%5 == 0 {
					r.Evict(m)
				}
			}
			r.Evict(m)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, r.RoomCount())
	assert.Equal(t, 0, r.MemberCount())
}
