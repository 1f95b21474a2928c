// Package chat is a worked example reducer, grounded on the original
// library's examples/shell-chat-app server: clients identify themselves
// with a display name before they may post messages.
package chat

import (
	"errors"

	"github.com/injoint/injoint/dispatch"
	"github.com/injoint/injoint/joint"
)

// Message is one posted chat line, attributed to the client that sent it.
type Message struct {
	Author uint64 `json:"author"`
	Text   string `json:"text"`
}

// State is the room's public chat state, serialized into an
// ActionApplied broadcast whenever a reducer method opts into a snapshot.
type State struct {
	Users    map[uint64]string `json:"users"`
	Messages []Message         `json:"messages"`
}

// Reducer implements the chat room's action handlers. Construct one via
// NewDispatcher, not directly, so its methods are wrapped by a
// dispatch.Dispatcher before being handed to the joint.
type Reducer struct {
	state State
}

// New returns a bare Reducer, exported for tests that want to exercise
// its handlers without going through reflection.
func New() *Reducer {
	return &Reducer{state: State{Users: make(map[uint64]string)}}
}

// State returns the reducer's current public state, satisfying the
// dispatch package's snapshot interface.
func (r *Reducer) State() any { return r.state }

// Snapshots opts IdentifyUser and SendMessage into carrying a state
// snapshot on their broadcasts; any other action gets none.
func (r *Reducer) Snapshots(action string) bool {
	return action == "IdentifyUser" || action == "SendMessage"
}

// IdentifyUser records clientID's display name. A client must identify
// itself exactly once before SendMessage will accept its posts.
func (r *Reducer) IdentifyUser(clientID uint64, name string) (string, error) {
	if _, ok := r.state.Users[clientID]; ok {
		return "", errors.New("user already identified")
	}
	r.state.Users[clientID] = name
	return name, nil
}

// SendMessage appends text to the room's message log, attributed to
// clientID, provided clientID has already identified itself.
func (r *Reducer) SendMessage(clientID uint64, text string) (string, error) {
	if _, ok := r.state.Users[clientID]; !ok {
		return "", errors.New("user not identified")
	}
	r.state.Messages = append(r.state.Messages, Message{Author: clientID, Text: text})
	return text, nil
}

// NewDispatcher builds the reflective dispatch table over a fresh
// Reducer, ready to be installed as a room's joint.Reducer.
func NewDispatcher() (joint.Reducer, error) {
	return dispatch.Build(New())
}

// Factory adapts NewDispatcher to a joint.ReducerFactory, panicking only
// if the Reducer's method set ever regresses to exposing zero eligible
// handlers — a programming error caught at startup, not at runtime.
func Factory() joint.ReducerFactory {
	return func() joint.Reducer {
		d, err := NewDispatcher()
		if err != nil {
			panic(err)
		}
		return d
	}
}
