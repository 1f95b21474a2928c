package wsserver

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/injoint/injoint/joint"
	"github.com/injoint/injoint/wire"
)

// conn pairs one websocket.Conn with its joint client id, following the
// teacher's connection type: a reader goroutine and a writer goroutine
// share the socket, coordinated through an outbound channel the joint
// owns exclusively.
type conn struct {
	ws       *websocket.Conn
	j        *joint.Joint
	pings    *pingTicker
	pingSub  *pingSub
	logger   zerolog.Logger
	outbound chan []byte
	clientID uint64
}

func newConn(ws *websocket.Conn, j *joint.Joint, pings *pingTicker, logger zerolog.Logger) *conn {
	return &conn{
		ws:       ws,
		j:        j,
		pings:    pings,
		pingSub:  pings.subscribe(),
		logger:   logger,
		outbound: make(chan []byte, 256),
	}
}

// run attaches to the joint, then blocks until the reader loop exits,
// detaching on the way out. The writer runs concurrently in its own
// goroutine and exits when the joint closes outbound.
func (c *conn) run(ctx context.Context) {
	id, err := c.j.Attach(ctx, c.outbound)
	if err != nil {
		c.logger.Warn().Err(err).Msg("attach failed; closing connection")
		c.pings.unsubscribe(c.pingSub)
		c.ws.Close()
		return
	}
	c.clientID = id

	done := make(chan struct{})
	go func() {
		c.writer()
		close(done)
	}()

	c.reader(ctx)

	// The reader only returns once the socket is dead, so detaching here
	// is what makes the joint close outbound and let the writer exit.
	_ = c.j.Detach(ctx, c.clientID)
	<-done
	c.pings.unsubscribe(c.pingSub)
}

func (c *conn) reader(ctx context.Context) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var req wire.Request
		if err := json.Unmarshal(data, &req); err != nil {
			_ = c.j.SubmitInvalid(ctx, c.clientID, "malformed request")
			continue
		}
		if err := c.j.Submit(ctx, joint.Envelope{Client: c.clientID, Request: req}); err != nil {
			return
		}
	}
}

// writer drains outbound until the joint closes it, and separately
// drains pingSub's ticks to keep the connection alive, mirroring the
// teacher's conn.writer loop extended with the shared ticker.
func (c *conn) writer() {
	defer c.ws.Close()
	for {
		select {
		case data, ok := <-c.outbound:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case _, ok := <-c.pingSub.tick:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
