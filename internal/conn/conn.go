// Package conn implements the per-connection finite state machine:
// authenticating HTTP upgrade, heartbeat, and the
// inbound-read/outbound-write multiplexing loop. One Connection runs per
// accepted socket, entirely on its own goroutine; the Hub is the only
// thing shared with the rest of the network domain.
package conn

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/wrath-codes/amp-extras/internal/hub"
	"github.com/wrath-codes/amp-extras/internal/logger"
	"github.com/wrath-codes/amp-extras/internal/rpc"
)

const (
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
)

// AuthenticateUpgrade validates the "auth" query parameter against token
// using a constant-time comparison. On mismatch
// or a missing parameter it writes 401 Unauthorized directly to w and
// returns false — authentication failure is surfaced as an HTTP status
// during the upgrade, never as a WebSocket close frame.
func AuthenticateUpgrade(w http.ResponseWriter, r *http.Request, token string) bool {
	supplied := r.URL.Query().Get("auth")
	if supplied == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	if len(supplied) != len(token) || subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

// Connection drives one authenticated socket through Open -> Closing ->
// Closed.
type Connection struct {
	ID       hub.ClientID
	CorrID   string
	socket   *websocket.Conn
	hub      *hub.Hub
	router   *rpc.Router
	outbound chan string
	log      *slog.Logger
}

// New wraps an already-accepted, already-authenticated socket. CorrID is
// a fresh UUID used to correlate this connection's log lines; it never
// appears on the wire.
func New(socket *websocket.Conn, id hub.ClientID, h *hub.Hub, router *rpc.Router) *Connection {
	corrID := uuid.New().String()
	return &Connection{
		ID:       id,
		CorrID:   corrID,
		socket:   socket,
		hub:      h,
		router:   router,
		outbound: make(chan string, 64),
		log:      logger.Named("conn").With("client", id, "corr_id", corrID),
	}
}

// Run registers the connection in the Hub, invokes onOpen once
// registration completes, and then multiplexes inbound frames, outbound
// broadcast deliveries, and the heartbeat until the socket closes or ctx
// is cancelled (e.g. by the acceptor's shutdown flag). onClose runs
// exactly once, after unregistration, with lastClient true iff this was
// the last client in the Hub at the moment of removal.
func (c *Connection) Run(ctx context.Context, onOpen func(), onClose func(lastClient bool)) {
	c.hub.Register(c.ID, c.outbound)
	c.log.Info("ide connection open")
	if onOpen != nil {
		onOpen()
	}
	defer func() {
		c.hub.Unregister(c.ID)
		c.log.Info("ide connection closed")
		if onClose != nil {
			onClose(c.hub.ClientCount() == 0)
		}
	}()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The reader goroutine dispatches each frame to the router itself
	// rather than handing it back to the select loop below: if dispatch
	// blocked on a channel send instead, a slow handler would park the
	// reader mid-frame and starve the ping ticker's pong, false-positive
	// disconnecting a live peer after pongTimeout.
	readErr := make(chan error, 1)
	go func() {
		for {
			_, data, err := c.socket.Read(connCtx)
			if err != nil {
				readErr <- err
				return
			}
			resp, ok := c.router.HandleText(string(data))
			if !ok {
				continue
			}
			if err := c.write(connCtx, resp); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-connCtx.Done():
			c.socket.Close(websocket.StatusNormalClosure, "shutting down")
			return

		case <-ticker.C:
			pingCtx, cancelPing := context.WithTimeout(connCtx, pongTimeout)
			err := c.socket.Ping(pingCtx)
			cancelPing()
			if err != nil {
				c.socket.Close(websocket.StatusPolicyViolation, "heartbeat timeout")
				return
			}

		case <-readErr:
			// Peer closed, errored, or sent a non-text/non-ping frame the
			// library rejected. Close is a no-op if the peer already did.
			c.socket.Close(websocket.StatusNormalClosure, "")
			return

		case msg := <-c.outbound:
			if err := c.write(connCtx, msg); err != nil {
				return
			}
		}
	}
}

func (c *Connection) write(ctx context.Context, text string) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.socket.Write(wctx, websocket.MessageText, []byte(text))
}
