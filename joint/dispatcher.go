package joint

import "encoding/json"

// BroadcastPolicy controls whether a successful action is announced to the
// rest of a room or kept private to the actor.
type BroadcastPolicy int

const (
	// Broadcast announces the action result to every member of the room.
	Broadcast BroadcastPolicy = iota
	// Private delivers the action result only to the acting client.
	Private
)

// ApplyResult is what a Dispatcher returns after applying one action.
//
// On success Err is empty, Response carries the JSON-encoded handler
// return value, and Snapshot carries the post-action state serialization
// when the reducer opted the action into state broadcast (nil otherwise).
// On failure Err names the problem and all other fields are ignored.
type ApplyResult struct {
	Response json.RawMessage
	Policy   BroadcastPolicy
	Snapshot json.RawMessage
	Err      string
}

// Failed reports whether the result represents a rejected action.
func (r ApplyResult) Failed() bool { return r.Err != "" }

// Dispatcher is the contract a reducer must satisfy to be driven by the
// joint. It is the stand-in for the original library's macro-generated
// glue (see package dispatch, which builds one via reflection).
type Dispatcher interface {
	// Apply invokes the handler registered under action on behalf of
	// clientID, deserializing payload positionally into the handler's
	// declared arguments.
	Apply(clientID uint64, action string, payload json.RawMessage) ApplyResult
}

// SnapshotPolicy is implemented by reducers that want the post-action
// state included in some actions' broadcasts. Dispatchers built by
// package dispatch consult it after a successful Apply; reducers that do
// not implement it never get a snapshot attached.
type SnapshotPolicy interface {
	Snapshots(action string) bool
}

// PrivacyPolicy is implemented by reducers that want some actions kept
// private to the acting client instead of broadcast to the room.
type PrivacyPolicy interface {
	Private(action string) bool
}

// Reducer is the opaque, user-provided per-room state. The joint only
// requires it satisfy Dispatcher; everything else about its shape is up
// to the caller.
type Reducer interface {
	Dispatcher
}

// ReducerFactory produces a fresh, independent Reducer instance for a
// newly created room.
type ReducerFactory func() Reducer
