package joint

import "sync"

// member is one room participant plus the join-sequence number used to
// pick a deterministic successor when the owner leaves (§4.1: "the
// remaining member whose join order is smallest becomes owner").
type member struct {
	client  uint64
	joinSeq uint64
}

// room is the joint's private record for one room: ownership, membership,
// and the exclusively-owned reducer instance. mu guards state and members
// against the hypothetical future worker pool described in SPEC_FULL.md
// §4.3 and §9; the baseline single-intake design never contends on it.
type room struct {
	id      string
	owner   uint64
	members map[uint64]*member
	nextSeq uint64
	state   Reducer
	mu      sync.Mutex
}

func newRoom(id string, ownerID uint64, state Reducer) *room {
	r := &room{
		id:      id,
		owner:   ownerID,
		members: make(map[uint64]*member),
		state:   state,
	}
	r.addMemberLocked(ownerID)
	return r
}

func (r *room) addMemberLocked(clientID uint64) {
	r.nextSeq++
	r.members[clientID] = &member{client: clientID, joinSeq: r.nextSeq}
}

// removeMember deletes clientID from membership and, if it was the owner
// and members remain, promotes the earliest-joined survivor. It reports
// whether the room is now empty.
func (r *room) removeMember(clientID uint64) (empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, clientID)
	if len(r.members) == 0 {
		return true
	}
	if r.owner == clientID {
		r.owner = r.earliestMember()
	}
	return false
}

func (r *room) earliestMember() uint64 {
	var (
		best    uint64
		bestSeq uint64
		first   = true
	)
	for id, m := range r.members {
		if first || m.joinSeq < bestSeq {
			best, bestSeq, first = id, m.joinSeq, false
		}
	}
	return best
}

func (r *room) has(clientID uint64) bool {
	_, ok := r.members[clientID]
	return ok
}

// memberIDs returns the current membership as a plain slice, used when
// fanning out a broadcast.
func (r *room) memberIDs() []uint64 {
	ids := make([]uint64, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

// roomRegistry maps room id to room record. Like clientRegistry, it is
// only ever touched from the joint's Run goroutine.
type roomRegistry struct {
	byID map[string]*room
}

func newRoomRegistry() *roomRegistry {
	return &roomRegistry{byID: make(map[string]*room)}
}

func (r *roomRegistry) get(id string) (*room, bool) {
	rm, ok := r.byID[id]
	return rm, ok
}

func (r *roomRegistry) put(rm *room) {
	r.byID[rm.id] = rm
}

func (r *roomRegistry) remove(id string) {
	delete(r.byID, id)
}

func (r *roomRegistry) has(id string) bool {
	_, ok := r.byID[id]
	return ok
}
