// Package wsserver is a standalone net/http + gorilla/websocket listener
// for the joint, grounded on the teacher repository's websocket.go,
// conn.go, handlers.go and mticker.go. It is the transport of choice
// when injoint is run as its own process rather than mounted into a
// host router (see transport/ginws for that case).
package wsserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/injoint/injoint/joint"
)

const (
	// writeWait bounds how long a single WriteMessage call may block.
	writeWait = 10 * time.Second

	// pongWait bounds how long the server waits for a pong before
	// considering the peer dead.
	pongWait = 60 * time.Second

	// pingPeriod must stay below pongWait so a ping always lands before
	// the peer's read deadline expires.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds a single inbound text frame.
	maxMessageSize = 32 * 1024
)

// Config controls how a Server listens and upgrades connections.
type Config struct {
	// Addr is the TCP address to listen on, e.g. ":8080".
	Addr string
	// Path is the single HTTP path the websocket endpoint is served on.
	Path string
	// Logger receives structured connection lifecycle events.
	Logger zerolog.Logger
}

// Server upgrades incoming HTTP requests to websocket connections and
// attaches each one to a Joint for the lifetime of the connection.
type Server struct {
	cfg      Config
	j        *joint.Joint
	upgrader websocket.Upgrader
	pings    *pingTicker
	http     *http.Server
}

// New builds a Server bound to j. Call ListenAndServe to run it.
func New(cfg Config, j *joint.Joint) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	s := &Server{
		cfg:      cfg,
		j:        j,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		pings:    newPingTicker(pingPeriod),
	}
	router := mux.NewRouter()
	router.HandleFunc(cfg.Path, s.upgradeHandler).Methods(http.MethodGet)
	s.http = &http.Server{Addr: cfg.Addr, Handler: router}
	return s
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// it down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		s.pings.stop()
		return err
	case <-ctx.Done():
		s.pings.stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// Handler returns the server's routed http.Handler, useful for tests
// that want to exercise it via httptest.NewServer without binding a
// real listener through ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// upgradeHandler upgrades the request and drives the connection until
// it closes, mirroring the teacher's wsHandler.ServeHTTP + connection.run.
func (s *Server) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.cfg.Logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := newConn(ws, s.j, s.pings, s.cfg.Logger)
	c.run(r.Context())
}
