package joint

import "errors"

// State-precondition errors. The wire response they produce only ever
// carries their Error() text (see wire.ErrResponse), so callers and tests
// recognize a rejection by comparing a response's message with that text.
var (
	ErrAlreadyInRoom = errors.New("already in room")
	ErrRoomNotFound  = errors.New("room not found")
	ErrNotInRoom     = errors.New("not in room")
	ErrUnknownClient = errors.New("unknown client")
)

// errRoomIDExhausted is returned if maxRoomIDAttempts consecutive
// generated room ids all collided, which is vanishingly unlikely given
// the alphabet and length chosen in roomid.go.
var errRoomIDExhausted = errors.New("exhausted room id attempts")
