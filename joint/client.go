package joint

// client is the joint's private bookkeeping record for one connection.
// The joint is the sole producer on outbound: it sends replies and
// broadcasts, and it alone closes the channel on detach or shutdown, so
// a transport's writer goroutine never has to guard against a
// send-after-close from its own side.
type client struct {
	id       uint64
	outbound chan<- []byte
	room     *string // nil when not in any room
}

// clientRegistry maps client id to client record. It is only ever touched
// from the joint's Run goroutine, so it needs no internal locking.
type clientRegistry struct {
	byID map[uint64]*client
	next uint64
}

func newClientRegistry() *clientRegistry {
	return &clientRegistry{byID: make(map[uint64]*client)}
}

// add allocates a fresh, never-reused id and registers the client under it.
func (r *clientRegistry) add(outbound chan<- []byte) *client {
	r.next++
	c := &client{id: r.next, outbound: outbound}
	r.byID[c.id] = c
	return c
}

func (r *clientRegistry) get(id uint64) (*client, bool) {
	c, ok := r.byID[id]
	return c, ok
}

func (r *clientRegistry) remove(id uint64) {
	delete(r.byID, id)
}
