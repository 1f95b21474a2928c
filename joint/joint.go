// Package joint implements the room-and-client coordination engine: it
// owns per-room reducer state, serializes action application against
// that state, routes messages between many concurrent client goroutines
// and a single handler loop (Run) shared by all rooms, and produces well-ordered
// broadcasts. See SPEC_FULL.md §4.1 for the full request-handling
// contract.
package joint

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/rs/zerolog"

	"github.com/injoint/injoint/wire"
)

// sendTimeout bounds how long the joint will block trying to enqueue a
// message on one client's outbound channel before giving up and
// detaching that client. Blocking at all (rather than a non-blocking
// attempt) is the deliberate backpressure mechanism described in
// SPEC_FULL.md §5; the timeout exists only to bound how long one wedged
// client can stall the rest of the joint.
const sendTimeout = 2 * time.Second

// maxRoomIDAttempts bounds retries on the negligible chance of a room id
// collision, so a pathological crypto/rand failure cannot spin forever.
const maxRoomIDAttempts = 64

// Joint owns the room registry, the client registry, and the single
// intake channel. Construct one with New and drive it with Run; transports
// interact with it only through Attach, Detach, Submit, and SubmitInvalid.
type Joint struct {
	intake  chan intakeMsg
	clients *clientRegistry
	rooms   *roomRegistry
	factory ReducerFactory
	metrics *jointMetrics
	logger  zerolog.Logger
}

// Option configures a Joint at construction time.
type Option func(*Joint)

// WithLogger overrides the joint's logger (default: a disabled logger).
func WithLogger(logger zerolog.Logger) Option {
	return func(j *Joint) { j.logger = logger }
}

// WithIntakeBuffer sets the intake channel's buffer size (default 256).
// Bounding it trades fairness for bounded memory, per SPEC_FULL.md §9.
func WithIntakeBuffer(n int) Option {
	return func(j *Joint) { j.intake = make(chan intakeMsg, n) }
}

// New constructs a Joint that mints a fresh reducer via factory for every
// room it creates.
func New(factory ReducerFactory, opts ...Option) *Joint {
	j := &Joint{
		intake:  make(chan intakeMsg, 256),
		clients: newClientRegistry(),
		rooms:   newRoomRegistry(),
		factory: factory,
		metrics: newJointMetrics(),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// StartMetricsReporting periodically writes the joint's go-metrics
// registry as JSON to w, in the style of the teacher repository's
// metrics.go.
func (j *Joint) StartMetricsReporting(w io.Writer, tick time.Duration) {
	j.metrics.startReporting(w, tick)
}

// Attach allocates a fresh, never-reused client id and records outbound
// as that client's send handle. The caller (a transport) retains
// exclusive ownership of outbound: it is the only party that writes
// drained frames to the network, and the joint is the only party that
// sends into it or closes it.
func (j *Joint) Attach(ctx context.Context, outbound chan<- []byte) (uint64, error) {
	reply := make(chan uint64, 1)
	msg := intakeMsg{kind: msgAttach, outbound: outbound, reply: reply}
	select {
	case j.intake <- msg:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case id := <-reply:
		return id, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Detach removes clientID from its room (if any), broadcasting Left to
// the remaining members and destroying the room if it was the last
// member, then drops and closes the client's outbound channel. Detach is
// idempotent: detaching an already-unknown client is a silent no-op.
func (j *Joint) Detach(ctx context.Context, clientID uint64) error {
	select {
	case j.intake <- intakeMsg{kind: msgDetach, client: clientID}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit enqueues a decoded request on behalf of the client that sent
// it. Transports call this from their reader goroutine for every inbound
// frame.
func (j *Joint) Submit(ctx context.Context, env Envelope) error {
	select {
	case j.intake <- intakeMsg{kind: msgRequest, client: env.Client, request: env.Request}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitInvalid tells the joint that a frame from clientID could not be
// decoded into a wire.Request at all (malformed JSON or an unrecognized
// shape), so it can produce the Err response itself without ever
// touching room or client state — the transport decode boundary never
// writes to a client's outbound channel directly, so only the joint ever
// sends on or closes it (SPEC_FULL.md §7).
func (j *Joint) SubmitInvalid(ctx context.Context, clientID uint64, message string) error {
	select {
	case j.intake <- intakeMsg{kind: msgInvalid, client: clientID, text: message}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes the intake channel until ctx is cancelled, handling each
// message in arrival order. This is the joint's single serialization
// point: because Run is the only goroutine that ever touches the client
// and room registries, they need no locking of their own (SPEC_FULL.md
// §4.3).
func (j *Joint) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			j.shutdown()
			return ctx.Err()
		case msg, ok := <-j.intake:
			if !ok {
				j.shutdown()
				return nil
			}
			j.handle(ctx, msg)
		}
	}
}

// shutdown closes every live client's outbound channel, which causes
// transport writer goroutines to drain and exit. The joint is the
// producer on these channels, so it is the correct party to close them
// (teacher's channel.unsubscribe follows the same close(conn.send)
// convention on the producer side).
func (j *Joint) shutdown() {
	for id, c := range j.clients.byID {
		close(c.outbound)
		delete(j.clients.byID, id)
	}
}

func (j *Joint) handle(ctx context.Context, msg intakeMsg) {
	switch msg.kind {
	case msgAttach:
		c := j.clients.add(msg.outbound)
		j.metrics.incr(metricClients, 1)
		j.logger.Debug().Uint64("client", c.id).Msg("client attached")
		msg.reply <- c.id
	case msgDetach:
		j.handleDetach(msg.client)
	case msgRequest:
		j.handleRequest(msg.client, msg.request)
	case msgInvalid:
		j.handleInvalid(msg.client, msg.text)
	}
}

func (j *Joint) handleDetach(clientID uint64) {
	c, ok := j.clients.get(clientID)
	if !ok {
		return // already detached; idempotent per SPEC_FULL.md §4.1
	}
	if c.room != nil {
		j.leaveRoom(c, *c.room)
	}
	j.clients.remove(clientID)
	close(c.outbound)
	j.metrics.decr(metricClients, 1)
	j.logger.Debug().Uint64("client", clientID).Msg("client detached")
}

// handleInvalid replies to clientID with an Err response for a frame
// that never decoded into a wire.Request, so the transport's reader
// never has to touch the client's outbound channel itself.
func (j *Joint) handleInvalid(clientID uint64, message string) {
	c, ok := j.clients.get(clientID)
	if !ok {
		return
	}
	j.reply(c, wire.ErrResponse(message))
}

func (j *Joint) handleRequest(clientID uint64, req wire.Request) {
	c, ok := j.clients.get(clientID)
	if !ok {
		j.logger.Warn().Uint64("client", clientID).Msg("request from unknown client")
		return
	}
	j.logger.Debug().Uint64("client", clientID).Str("type", string(req.Type)).Msg("handling request")
	switch req.Type {
	case wire.KindCreateRoom:
		j.handleCreateRoom(c)
	case wire.KindJoinRoom:
		j.handleJoinRoom(c, req.Room)
	case wire.KindLeaveRoom:
		j.handleLeaveRoom(c)
	case wire.KindAction:
		j.handleAction(c, req.Name, req.Payload)
	default:
		j.reply(c, wire.ErrResponse("unknown request type"))
	}
}

func (j *Joint) handleCreateRoom(c *client) {
	if c.room != nil {
		j.reply(c, wire.ErrResponse(ErrAlreadyInRoom.Error()))
		return
	}
	id, err := j.freshRoomID()
	if err != nil {
		j.logger.Error().Err(err).Msg("failed to generate room id")
		j.reply(c, wire.ErrResponse("could not allocate room"))
		return
	}
	r := newRoom(id, c.id, j.factory())
	j.rooms.put(r)
	c.room = &r.id
	j.metrics.incr(metricRooms, 1)
	j.logger.Debug().Uint64("client", c.id).Str("room", id).Msg("room created")
	j.reply(c, wire.OkResponse(id, nil))
}

func (j *Joint) freshRoomID() (string, error) {
	for attempt := 0; attempt < maxRoomIDAttempts; attempt++ {
		id, err := generateRoomID()
		if err != nil {
			return "", err
		}
		if !j.rooms.has(id) {
			return id, nil
		}
	}
	return "", errRoomIDExhausted
}

func (j *Joint) handleJoinRoom(c *client, roomID string) {
	if c.room != nil {
		j.reply(c, wire.ErrResponse(ErrAlreadyInRoom.Error()))
		return
	}
	r, ok := j.rooms.get(roomID)
	if !ok {
		j.reply(c, wire.ErrResponse(ErrRoomNotFound.Error()))
		return
	}
	priorMembers := r.memberIDs()
	r.mu.Lock()
	r.addMemberLocked(c.id)
	r.mu.Unlock()
	c.room = &r.id
	j.reply(c, wire.OkResponse(r.id, nil))
	j.broadcastEncoded(priorMembers, wire.JoinedBroadcast(c.id))
	j.logger.Debug().Uint64("client", c.id).Str("room", r.id).Msg("client joined room")
}

func (j *Joint) handleLeaveRoom(c *client) {
	if c.room == nil {
		j.reply(c, wire.ErrResponse(ErrNotInRoom.Error()))
		return
	}
	j.leaveRoom(c, *c.room)
	c.room = nil
	j.reply(c, wire.OkResponse("", nil))
}

// leaveRoom removes c from roomID's membership, destroying the room if
// it was the last member and otherwise broadcasting Left and letting
// ownership succession happen inside room.removeMember.
func (j *Joint) leaveRoom(c *client, roomID string) {
	r, ok := j.rooms.get(roomID)
	if !ok {
		return
	}
	empty := r.removeMember(c.id)
	if empty {
		j.rooms.remove(roomID)
		j.metrics.decr(metricRooms, 1)
		j.logger.Debug().Str("room", roomID).Msg("room destroyed")
		return
	}
	j.broadcastEncoded(r.memberIDs(), wire.LeftBroadcast(c.id))
}

func (j *Joint) handleAction(c *client, name string, payload json.RawMessage) {
	if c.room == nil {
		j.reply(c, wire.ErrResponse(ErrNotInRoom.Error()))
		return
	}
	r, ok := j.rooms.get(*c.room)
	if !ok {
		j.reply(c, wire.ErrResponse(ErrRoomNotFound.Error()))
		return
	}

	result := j.applyAction(r, c.id, name, payload)
	j.metrics.incr(metricActions, 1)

	if result.Failed() {
		j.reply(c, wire.ErrResponse(result.Err))
		return
	}
	j.reply(c, wire.OkResponse("", result.Response))
	if result.Policy == Private {
		return
	}
	j.broadcastEncoded(r.memberIDs(), wire.ActionBroadcast(c.id, name, result.Response, result.Snapshot))
}

// applyAction invokes the reducer while holding the room's lock and
// recovers a reducer panic into a failed ApplyResult, so a programmer
// contract violation is fatal to the offending room's in-flight action
// only, never to the joint (SPEC_FULL.md §4.1, §7).
func (j *Joint) applyAction(r *room, clientID uint64, name string, payload json.RawMessage) (result ApplyResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			j.logger.Error().
				Str("room", r.id).
				Uint64("client", clientID).
				Str("action", name).
				Str("recovered", spew.Sdump(rec)).
				Msg("reducer panicked; action rejected")
			result = ApplyResult{Err: "internal reducer error"}
		}
	}()
	return r.state.Apply(clientID, name, payload)
}

func (j *Joint) reply(c *client, resp wire.Response) {
	j.send(c, resp)
}

func (j *Joint) broadcastEncoded(memberIDs []uint64, b wire.Broadcast) {
	data, err := json.Marshal(b)
	if err != nil {
		j.logger.Error().Err(err).Msg("failed to marshal broadcast")
		return
	}
	for _, id := range memberIDs {
		c, ok := j.clients.get(id)
		if !ok {
			continue
		}
		j.sendBytes(c, data)
	}
}

func (j *Joint) send(c *client, resp wire.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		j.logger.Error().Err(err).Msg("failed to marshal response")
		return
	}
	j.sendBytes(c, data)
}

// sendBytes enqueues data on c's outbound channel, blocking up to
// sendTimeout to apply backpressure before giving up and detaching a
// wedged client (SPEC_FULL.md §5, §7).
func (j *Joint) sendBytes(c *client, data []byte) {
	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	select {
	case c.outbound <- data:
	case <-timer.C:
		j.logger.Warn().Uint64("client", c.id).Msg("outbound send timed out; detaching")
		j.handleDetach(c.id)
	}
}
