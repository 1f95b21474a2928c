// Package inproc adapts a Joint for in-process callers that want to
// exchange wire frames without a network socket — embedding injoint
// inside another Go process, or driving it from tests without standing
// up a real listener. It mirrors the shape of the network transports
// (attach, read loop submitting requests, outbound channel drained by
// the caller) minus the socket itself.
package inproc

import (
	"context"
	"encoding/json"

	"github.com/injoint/injoint/joint"
	"github.com/injoint/injoint/wire"
)

// Link is one end of an in-process connection to a Joint: Send pushes a
// request in, Outbound yields whatever the joint sends back (responses
// and broadcasts, undifferentiated, exactly as a network transport would
// see them on the wire).
type Link struct {
	j        *joint.Joint
	clientID uint64
	outbound chan []byte
}

// Dial attaches a new Link to j. Close must be called to detach it.
func Dial(ctx context.Context, j *joint.Joint) (*Link, error) {
	outbound := make(chan []byte, 256)
	id, err := j.Attach(ctx, outbound)
	if err != nil {
		return nil, err
	}
	return &Link{j: j, clientID: id, outbound: outbound}, nil
}

// ClientID returns the id the joint assigned this link.
func (l *Link) ClientID() uint64 { return l.clientID }

// Send submits a decoded request as if it arrived over the wire from
// this link's client.
func (l *Link) Send(ctx context.Context, req wire.Request) error {
	return l.j.Submit(ctx, joint.Envelope{Client: l.clientID, Request: req})
}

// SendInvalid reports a malformed inbound frame on this link's behalf,
// exercising the same path a network transport's decode failure would.
func (l *Link) SendInvalid(ctx context.Context, message string) error {
	return l.j.SubmitInvalid(ctx, l.clientID, message)
}

// Outbound returns the channel of raw frames the joint sends to this
// link: unicast responses to its own requests and broadcasts from its
// room. Callers decode with DecodeFrame or directly via encoding/json.
func (l *Link) Outbound() <-chan []byte {
	return l.outbound
}

// Close detaches the link from the joint, which closes Outbound.
func (l *Link) Close(ctx context.Context) error {
	return l.j.Detach(ctx, l.clientID)
}

// Frame is the typed form of one outbound frame, for tests that want a
// typed envelope rather than raw bytes. DecodeFrame sets exactly one of
// Response or Broadcast.
type Frame struct {
	Response  *wire.Response
	Broadcast *wire.Broadcast
}

// DecodeFrame distinguishes a unicast Response from a multicast
// Broadcast by probing for the "status" field present only on
// responses (SPEC_FULL.md §6).
func DecodeFrame(data []byte) (Frame, error) {
	var probe struct {
		Status json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Frame{}, err
	}
	if probe.Status != nil {
		var resp wire.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return Frame{}, err
		}
		return Frame{Response: &resp}, nil
	}
	var b wire.Broadcast
	if err := json.Unmarshal(data, &b); err != nil {
		return Frame{}, err
	}
	return Frame{Broadcast: &b}, nil
}
