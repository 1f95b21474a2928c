// Package wire defines the on-the-wire JSON envelopes exchanged between a
// client and the joint: requests flowing in, unicast responses and
// multicast broadcasts flowing out.
package wire

import "encoding/json"

// RequestKind identifies the shape of an inbound Request.
type RequestKind string

const (
	KindCreateRoom RequestKind = "CreateRoom"
	KindJoinRoom   RequestKind = "JoinRoom"
	KindLeaveRoom  RequestKind = "LeaveRoom"
	KindAction     RequestKind = "Action"
)

// Request is a single client-to-joint frame, decoded from a text frame's
// JSON body. Only the fields relevant to Type are populated.
type Request struct {
	Type    RequestKind     `json:"type"`
	Room    string          `json:"room,omitempty"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Status is the outcome carried by a Response.
type Status string

const (
	StatusOk  Status = "ok"
	StatusErr Status = "err"
)

// Response is a unicast reply to the client that issued a Request.
type Response struct {
	Status  Status          `json:"status"`
	Room    string          `json:"room,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Message string          `json:"message,omitempty"`
}

// OkResponse builds a successful Response, omitting room/payload when empty.
func OkResponse(room string, payload json.RawMessage) Response {
	return Response{Status: StatusOk, Room: room, Payload: payload}
}

// ErrResponse builds a failed Response carrying a human-readable message.
func ErrResponse(message string) Response {
	return Response{Status: StatusErr, Message: message}
}

// Event identifies the shape of a Broadcast.
type Event string

const (
	EventJoined Event = "joined"
	EventLeft   Event = "left"
	EventAction Event = "action"
)

// Broadcast is a multicast frame delivered to every current member of a
// room (for a joined event, to the members who were there before the
// joiner).
type Broadcast struct {
	Event   Event           `json:"event"`
	Client  uint64          `json:"client"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	State   json.RawMessage `json:"state,omitempty"`
}

// JoinedBroadcast announces that Client has joined the room it is sent to.
func JoinedBroadcast(client uint64) Broadcast {
	return Broadcast{Event: EventJoined, Client: client}
}

// LeftBroadcast announces that Client has left the room it is sent to.
func LeftBroadcast(client uint64) Broadcast {
	return Broadcast{Event: EventLeft, Client: client}
}

// ActionBroadcast announces that Client successfully applied a named action.
func ActionBroadcast(client uint64, name string, payload, state json.RawMessage) Broadcast {
	return Broadcast{Event: EventAction, Client: client, Name: name, Payload: payload, State: state}
}
