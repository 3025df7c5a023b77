package app

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/Rendezvous/internal/core"
	"github.com/dkeye/Rendezvous/internal/domain"
	"github.com/dkeye/Rendezvous/internal/metrics"
	"github.com/rs/zerolog/log"
)

type JoinResult struct {
	// Members after the join, in join order.
	Members []domain.ConnID
	// BecameReady is set for the one join that moved the room from 1 to 2 members.
	BecameReady bool
	// Evicted holds members pushed out by the EvictOldest policy.
	Evicted []domain.ConnID
}

type LeaveResult struct {
	Removed   bool
	Remaining []domain.ConnID
	Deleted   bool
}

type roomEntry struct {
	mu      sync.Mutex
	members []domain.ConnID
	// dead is set under mu when the entry leaves the table; holders of a
	// stale pointer must look the room up again.
	dead bool
}

// RoomRegistry owns the room -> members mapping.
// The table lock only guards the map; membership changes take the room's own lock.
type RoomRegistry struct {
	mu      sync.Mutex
	rooms   map[domain.RoomID]*roomEntry
	onFull  CapacityAction
	metrics *metrics.Metrics
}

func NewRoomRegistry(onFull CapacityAction, m *metrics.Metrics) *RoomRegistry {
	return &RoomRegistry{
		rooms:   make(map[domain.RoomID]*roomEntry),
		onFull:  onFull,
		metrics: m,
	}
}

func (f *RoomRegistry) lookup(id domain.RoomID) (*roomEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.rooms[id]
	return e, ok
}

// drop removes a dead entry. Called with e.mu held.
func (f *RoomRegistry) drop(id domain.RoomID, e *roomEntry) {
	e.dead = true
	f.mu.Lock()
	if f.rooms[id] == e {
		delete(f.rooms, id)
	}
	f.mu.Unlock()
	f.metrics.RoomDeleted()
}

func (f *RoomRegistry) Join(id domain.RoomID, conn domain.ConnID) (JoinResult, error) {
	return f.JoinWith(id, conn, nil)
}

// JoinWith is Join with apply run inside the room's critical section once the
// membership change is decided. apply receives the evicted members and must
// only take leaf locks.
func (f *RoomRegistry) JoinWith(id domain.RoomID, conn domain.ConnID, apply func(evicted []domain.ConnID)) (JoinResult, error) {
	for {
		f.mu.Lock()
		e, ok := f.rooms[id]
		if !ok {
			e = &roomEntry{members: []domain.ConnID{conn}}
			// Fresh entry: nobody else can hold its lock yet.
			e.mu.Lock()
			f.rooms[id] = e
			f.mu.Unlock()
			if apply != nil {
				apply(nil)
			}
			e.mu.Unlock()
			f.metrics.RoomCreated()
			f.metrics.Join(metrics.JoinCreated)
			log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("conn", string(conn)).Msg("room created")
			return JoinResult{Members: []domain.ConnID{conn}}, nil
		}
		f.mu.Unlock()

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		res, err := f.joinLocked(id, e, conn)
		if err == nil && apply != nil {
			apply(res.Evicted)
		}
		e.mu.Unlock()
		return res, err
	}
}

func (f *RoomRegistry) joinLocked(id domain.RoomID, e *roomEntry, conn domain.ConnID) (JoinResult, error) {
	if slices.Contains(e.members, conn) {
		return JoinResult{}, fmt.Errorf("join %s: %w", id, domain.ErrAlreadyMember)
	}

	var res JoinResult
	if len(e.members) >= domain.RoomCapacity {
		if f.onFull != EvictOldest {
			f.metrics.Join(metrics.JoinRejected)
			return JoinResult{}, fmt.Errorf("join %s: %w", id, domain.ErrRoomFull)
		}
		n := len(e.members) - domain.RoomCapacity + 1
		res.Evicted = slices.Clone(e.members[:n])
		e.members = slices.Delete(e.members, 0, n)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Strs("evicted", connStrings(res.Evicted)).Msg("evicted oldest members")
	}

	e.members = append(e.members, conn)
	res.Members = slices.Clone(e.members)
	res.BecameReady = len(e.members) == domain.RoomCapacity

	if len(res.Evicted) > 0 {
		f.metrics.Join(metrics.JoinEvicted)
	} else {
		f.metrics.Join(metrics.JoinPaired)
	}
	if res.BecameReady {
		f.metrics.RoomReady()
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("conn", string(conn)).Int("members", len(e.members)).Bool("ready", res.BecameReady).Msg("member joined")
	return res, nil
}

func (f *RoomRegistry) Leave(id domain.RoomID, conn domain.ConnID) LeaveResult {
	e, ok := f.lookup(id)
	if !ok {
		return LeaveResult{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		// An entry only dies empty, so conn is not in it.
		return LeaveResult{}
	}
	i := slices.Index(e.members, conn)
	if i < 0 {
		return LeaveResult{Remaining: slices.Clone(e.members)}
	}
	e.members = slices.Delete(e.members, i, i+1)
	if len(e.members) == 0 {
		f.drop(id, e)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room deleted")
		return LeaveResult{Removed: true, Deleted: true}
	}
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("conn", string(conn)).Int("members", len(e.members)).Msg("member left")
	return LeaveResult{Removed: true, Remaining: slices.Clone(e.members)}
}

// MembersExcept returns the other members of the room, or nil when the room
// is unknown or conn is not a member.
func (f *RoomRegistry) MembersExcept(id domain.RoomID, conn domain.ConnID) []domain.ConnID {
	e, ok := f.lookup(id)
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead || !slices.Contains(e.members, conn) {
		return nil
	}
	out := make([]domain.ConnID, 0, len(e.members)-1)
	for _, m := range e.members {
		if m != conn {
			out = append(out, m)
		}
	}
	return out
}

func (f *RoomRegistry) Members(id domain.RoomID) ([]domain.ConnID, bool) {
	e, ok := f.lookup(id)
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dead {
		return nil, false
	}
	return slices.Clone(e.members), true
}

func (f *RoomRegistry) Snapshot(id domain.RoomID) (core.RoomSnapshot, bool) {
	members, ok := f.Members(id)
	if !ok {
		return core.RoomSnapshot{}, false
	}
	return core.RoomSnapshot{
		ID:      id,
		Members: members,
		Ready:   len(members) >= domain.RoomCapacity,
	}, true
}

func (f *RoomRegistry) List() []core.RoomInfo {
	f.mu.Lock()
	ids := make([]domain.RoomID, 0, len(f.rooms))
	entries := make([]*roomEntry, 0, len(f.rooms))
	for id, e := range f.rooms {
		ids = append(ids, id)
		entries = append(entries, e)
	}
	f.mu.Unlock()

	out := make([]core.RoomInfo, 0, len(ids))
	for i, e := range entries {
		e.mu.Lock()
		if !e.dead {
			out = append(out, core.RoomInfo{ID: ids[i], MemberCount: len(e.members)})
		}
		e.mu.Unlock()
	}
	slices.SortFunc(out, func(a, b core.RoomInfo) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (f *RoomRegistry) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rooms)
}

func connStrings(ids []domain.ConnID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
