package joint

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/injoint/injoint/wire"
)

// counterReducer is a minimal Dispatcher used only by this file's tests:
// Increment bumps a counter and always broadcasts the new total, Fail
// always returns an error without mutating anything, letting tests
// assert the all-or-nothing contract from SPEC_FULL.md §8 invariant 6.
type counterReducer struct {
	total int
}

func (r *counterReducer) Apply(clientID uint64, action string, payload json.RawMessage) ApplyResult {
	switch action {
	case "Increment":
		r.total++
		resp, _ := json.Marshal(r.total)
		return ApplyResult{Response: resp, Policy: Broadcast, Snapshot: resp}
	case "Fail":
		return ApplyResult{Err: "nope"}
	default:
		return ApplyResult{Err: "unknown action"}
	}
}

func newCounterReducer() Reducer { return &counterReducer{} }

type testClient struct {
	id       uint64
	outbound chan []byte
}

func attachClient(t *testing.T, ctx context.Context, j *Joint) *testClient {
	t.Helper()
	out := make(chan []byte, 16)
	id, err := j.Attach(ctx, out)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	return &testClient{id: id, outbound: out}
}

func (c *testClient) recv(t *testing.T) wire.Response {
	t.Helper()
	select {
	case data := <-c.outbound:
		var resp wire.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("decode response: %v (%s)", err, data)
		}
		return resp
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
		return wire.Response{}
	}
}

func (c *testClient) recvBroadcast(t *testing.T) wire.Broadcast {
	t.Helper()
	select {
	case data := <-c.outbound:
		var b wire.Broadcast
		if err := json.Unmarshal(data, &b); err != nil {
			t.Fatalf("decode broadcast: %v (%s)", err, data)
		}
		return b
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
		return wire.Broadcast{}
	}
}

func runJoint(t *testing.T) (*Joint, context.Context, context.CancelFunc) {
	t.Helper()
	j := New(newCounterReducer)
	ctx, cancel := context.WithCancel(context.Background())
	go j.Run(ctx)
	t.Cleanup(cancel)
	return j, ctx, cancel
}

func submit(t *testing.T, ctx context.Context, j *Joint, client uint64, req wire.Request) {
	t.Helper()
	if err := j.Submit(ctx, Envelope{Client: client, Request: req}); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestCreateJoinEcho(t *testing.T) {
	j, ctx, _ := runJoint(t)
	a := attachClient(t, ctx, j)
	b := attachClient(t, ctx, j)

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindCreateRoom})
	created := a.recv(t)
	if created.Status != wire.StatusOk || created.Room == "" {
		t.Fatalf("unexpected create response: %+v", created)
	}

	submit(t, ctx, j, b.id, wire.Request{Type: wire.KindJoinRoom, Room: created.Room})
	joined := b.recv(t)
	if joined.Status != wire.StatusOk || joined.Room != created.Room {
		t.Fatalf("unexpected join response: %+v", joined)
	}

	joinedEvent := a.recvBroadcast(t)
	if joinedEvent.Event != wire.EventJoined || joinedEvent.Client != b.id {
		t.Fatalf("unexpected broadcast: %+v", joinedEvent)
	}
}

func TestActionBroadcast(t *testing.T) {
	j, ctx, _ := runJoint(t)
	a := attachClient(t, ctx, j)
	b := attachClient(t, ctx, j)

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindCreateRoom})
	created := a.recv(t)
	submit(t, ctx, j, b.id, wire.Request{Type: wire.KindJoinRoom, Room: created.Room})
	b.recv(t)
	a.recvBroadcast(t) // joined

	submit(t, ctx, j, b.id, wire.Request{Type: wire.KindAction, Name: "Increment"})
	resp := b.recv(t)
	if resp.Status != wire.StatusOk {
		t.Fatalf("unexpected action response: %+v", resp)
	}

	aEvent := a.recvBroadcast(t)
	bEvent := b.recvBroadcast(t)
	if aEvent.Event != wire.EventAction || bEvent.Event != wire.EventAction {
		t.Fatalf("expected action broadcasts, got %+v %+v", aEvent, bEvent)
	}
	if aEvent.Client != b.id || bEvent.Client != b.id {
		t.Fatalf("expected broadcast client to be actor, got %+v %+v", aEvent, bEvent)
	}
	if len(aEvent.State) == 0 {
		t.Fatalf("expected state snapshot on action broadcast, got none")
	}
}

func TestLeaveWithoutRoomIsPrecondition(t *testing.T) {
	j, ctx, _ := runJoint(t)
	c := attachClient(t, ctx, j)

	submit(t, ctx, j, c.id, wire.Request{Type: wire.KindLeaveRoom})
	resp := c.recv(t)
	if resp.Status != wire.StatusErr || resp.Message != ErrNotInRoom.Error() {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestOwnerSuccession(t *testing.T) {
	j, ctx, _ := runJoint(t)
	a := attachClient(t, ctx, j)
	b := attachClient(t, ctx, j)
	c := attachClient(t, ctx, j)

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindCreateRoom})
	created := a.recv(t)

	submit(t, ctx, j, b.id, wire.Request{Type: wire.KindJoinRoom, Room: created.Room})
	b.recv(t)
	a.recvBroadcast(t) // b joined

	submit(t, ctx, j, c.id, wire.Request{Type: wire.KindJoinRoom, Room: created.Room})
	c.recv(t)
	a.recvBroadcast(t) // c joined
	b.recvBroadcast(t) // c joined

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindLeaveRoom})
	a.recv(t)

	bLeft := b.recvBroadcast(t)
	cLeft := c.recvBroadcast(t)
	if bLeft.Event != wire.EventLeft || bLeft.Client != a.id {
		t.Fatalf("unexpected broadcast for b: %+v", bLeft)
	}
	if cLeft.Event != wire.EventLeft || cLeft.Client != a.id {
		t.Fatalf("unexpected broadcast for c: %+v", cLeft)
	}

	r, ok := j.rooms.get(created.Room)
	if !ok {
		t.Fatalf("room unexpectedly destroyed")
	}
	if r.owner != b.id {
		t.Fatalf("expected b (%d) to become owner, got %d", b.id, r.owner)
	}
}

func TestRoomDestroyedWhenLastMemberLeaves(t *testing.T) {
	j, ctx, _ := runJoint(t)
	a := attachClient(t, ctx, j)

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindCreateRoom})
	created := a.recv(t)

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindLeaveRoom})
	a.recv(t)

	if j.rooms.has(created.Room) {
		t.Fatalf("expected room to be destroyed")
	}

	b := attachClient(t, ctx, j)
	submit(t, ctx, j, b.id, wire.Request{Type: wire.KindJoinRoom, Room: created.Room})
	resp := b.recv(t)
	if resp.Status != wire.StatusErr || resp.Message != ErrRoomNotFound.Error() {
		t.Fatalf("expected room not found after destruction, got %+v", resp)
	}
}

func TestActionErrorLeavesStateUnchanged(t *testing.T) {
	j, ctx, _ := runJoint(t)
	a := attachClient(t, ctx, j)

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindCreateRoom})
	created := a.recv(t)

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindAction, Name: "Increment"})
	a.recv(t)
	snapshotBefore := a.recvBroadcast(t).State

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindAction, Name: "Fail"})
	failed := a.recv(t)
	if failed.Status != wire.StatusErr || failed.Message != "nope" {
		t.Fatalf("expected failure response, got %+v", failed)
	}

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindAction, Name: "Increment"})
	a.recv(t)
	snapshotAfter := a.recvBroadcast(t).State

	var before, after int
	_ = json.Unmarshal(snapshotBefore, &before)
	_ = json.Unmarshal(snapshotAfter, &after)
	if after != before+1 {
		t.Fatalf("expected single increment across the failed call, before=%d after=%d", before, after)
	}
	_ = created
}

func TestDoubleCreateRoomIsRejected(t *testing.T) {
	j, ctx, _ := runJoint(t)
	a := attachClient(t, ctx, j)

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindCreateRoom})
	a.recv(t)

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindCreateRoom})
	resp := a.recv(t)
	if resp.Status != wire.StatusErr || resp.Message != ErrAlreadyInRoom.Error() {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSubmitInvalidProducesErrResponse(t *testing.T) {
	j, ctx, _ := runJoint(t)
	a := attachClient(t, ctx, j)

	if err := j.SubmitInvalid(ctx, a.id, "malformed request"); err != nil {
		t.Fatalf("submit invalid: %v", err)
	}
	resp := a.recv(t)
	if resp.Status != wire.StatusErr || resp.Message != "malformed request" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSubmitInvalidForUnknownClientIsNoOp(t *testing.T) {
	j, ctx, _ := runJoint(t)
	if err := j.SubmitInvalid(ctx, 9999, "malformed request"); err != nil {
		t.Fatalf("submit invalid: %v", err)
	}
	// No client is attached to receive anything; reaching here without a
	// panic or deadlock is the assertion.
}

func TestDetachRemovesClientFromMembership(t *testing.T) {
	j, ctx, _ := runJoint(t)
	a := attachClient(t, ctx, j)
	b := attachClient(t, ctx, j)

	submit(t, ctx, j, a.id, wire.Request{Type: wire.KindCreateRoom})
	created := a.recv(t)
	submit(t, ctx, j, b.id, wire.Request{Type: wire.KindJoinRoom, Room: created.Room})
	b.recv(t)
	a.recvBroadcast(t)

	if err := j.Detach(ctx, b.id); err != nil {
		t.Fatalf("detach: %v", err)
	}
	left := a.recvBroadcast(t)
	if left.Event != wire.EventLeft || left.Client != b.id {
		t.Fatalf("unexpected broadcast: %+v", left)
	}

	r, _ := j.rooms.get(created.Room)
	if r.has(b.id) {
		t.Fatalf("expected b to be removed from membership")
	}
}
