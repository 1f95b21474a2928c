package joint

import "github.com/injoint/injoint/wire"

// Envelope tags a decoded wire.Request with the id of the client that
// sent it. Transports build one per inbound frame and hand it to Submit.
type Envelope struct {
	Client  uint64
	Request wire.Request
}

type msgKind int

const (
	msgAttach msgKind = iota
	msgDetach
	msgRequest
	msgInvalid
)

// intakeMsg is the single message type flowing through the joint's
// intake channel. Only the fields relevant to kind are populated,
// mirroring the teacher's tagged-union command struct (hub.go's
// command{cmd, conn, path, text}).
type intakeMsg struct {
	kind     msgKind
	client   uint64
	outbound chan<- []byte // msgAttach
	reply    chan uint64   // msgAttach
	request  wire.Request  // msgRequest
	text     string        // msgInvalid
}
