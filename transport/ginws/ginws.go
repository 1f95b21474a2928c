// Package ginws mounts the joint's websocket endpoint into a host gin
// router, grounded on dkeye-Voice's adapters/http/router.go and
// ws_controller.go: an anonymous client-token cookie is set on first
// contact via a session middleware, and the actual upgrade is handled by
// gorilla/websocket underneath gin's handler chain. Use this adapter
// when injoint is embedded inside a larger gin application rather than
// run as its own listener (see transport/wsserver for that case).
package ginws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/injoint/injoint/joint"
	"github.com/injoint/injoint/wire"
)

const (
	tokenCookie  = "injoint_token"
	tokenSession = "injoint_token"
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
	maxFrameSize = 32 * 1024
)

// Handler mounts a single gin route that upgrades to a websocket and
// attaches each connection to j for its lifetime.
type Handler struct {
	j        *joint.Joint
	logger   zerolog.Logger
	upgrader websocket.Upgrader
}

// New builds a Handler for j. Register it with a gin router via Mount.
func New(j *joint.Joint, logger zerolog.Logger) *Handler {
	return &Handler{
		j:        j,
		logger:   logger,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

// Mount registers the handler's token middleware and websocket endpoint
// on r at path.
func (h *Handler) Mount(r gin.IRouter, path string) {
	r.Use(tokenMiddleware)
	r.GET(path, h.serve)
}

// tokenMiddleware assigns every browser tab an anonymous, session-backed
// identity token independent of the joint's own per-connection client
// ids, used by callers that need to correlate reconnects from the same
// tab (SPEC_FULL.md §4.4).
func tokenMiddleware(c *gin.Context) {
	session := sessions.Default(c)
	token, _ := session.Get(tokenSession).(string)
	if token == "" {
		token = uuid.NewString()
		session.Set(tokenSession, token)
		_ = session.Save()
	}
	c.Set(tokenCookie, token)
	c.Next()
}

func (h *Handler) serve(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ginws: upgrade failed")
		return
	}
	token, _ := c.Get(tokenCookie)
	conn := &wsConn{
		ws:       ws,
		j:        h.j,
		logger:   h.logger,
		token:    token,
		outbound: make(chan []byte, 256),
	}
	conn.run(c.Request.Context())
}

type wsConn struct {
	ws       *websocket.Conn
	j        *joint.Joint
	logger   zerolog.Logger
	token    any
	outbound chan []byte
	clientID uint64
}

func (wc *wsConn) run(ctx context.Context) {
	id, err := wc.j.Attach(ctx, wc.outbound)
	if err != nil {
		wc.ws.Close()
		return
	}
	wc.clientID = id
	wc.logger.Debug().Uint64("client", id).Interface("token", wc.token).Msg("ginws: client attached")

	done := make(chan struct{})
	go func() {
		wc.writer()
		close(done)
	}()

	wc.reader(ctx)
	_ = wc.j.Detach(ctx, wc.clientID)
	<-done
}

func (wc *wsConn) reader(ctx context.Context) {
	wc.ws.SetReadLimit(maxFrameSize)
	wc.ws.SetReadDeadline(time.Now().Add(pongWait))
	wc.ws.SetPongHandler(func(string) error {
		wc.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := wc.ws.ReadMessage()
		if err != nil {
			return
		}
		var req wire.Request
		if err := json.Unmarshal(data, &req); err != nil {
			_ = wc.j.SubmitInvalid(ctx, wc.clientID, "malformed request")
			continue
		}
		if err := wc.j.Submit(ctx, joint.Envelope{Client: wc.clientID, Request: req}); err != nil {
			return
		}
	}
}

func (wc *wsConn) writer() {
	defer wc.ws.Close()
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case data, ok := <-wc.outbound:
			if !ok {
				return
			}
			wc.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			wc.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wc.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
