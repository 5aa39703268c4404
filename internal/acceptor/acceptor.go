// Package acceptor binds the loopback listener and
// turns each authenticated upgrade into a running conn.Connection. It
// knows nothing about IDE semantics — that lives in rpc.Deps, built by
// internal/server.
package acceptor

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/wrath-codes/amp-extras/internal/conn"
	"github.com/wrath-codes/amp-extras/internal/hub"
	"github.com/wrath-codes/amp-extras/internal/logger"
	"github.com/wrath-codes/amp-extras/internal/rpc"
)

// Acceptor owns the listener and the lifetime of every connection
// accepted on it.
type Acceptor struct {
	listener net.Listener
	srv      *http.Server
	hub      *hub.Hub
	router   *rpc.Router
	token    string
	log      *slog.Logger

	wg sync.WaitGroup

	mu      sync.Mutex
	onOpen  func()
	onClose func(lastClient bool)
	ctx     context.Context
	cancel  context.CancelFunc
}

// New binds a listener on 127.0.0.1:0 (or addr if non-empty) and returns
// an Acceptor ready to Serve. The bound port is available via Port()
// immediately after New returns, before Serve is called.
func New(addr string, token string, h *hub.Hub, router *rpc.Router) (*Acceptor, error) {
	if addr == "" {
		addr = "127.0.0.1:0"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Acceptor{listener: ln, hub: h, router: router, token: token, ctx: ctx, cancel: cancel, log: logger.Named("acceptor")}

	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleUpgrade)
	a.srv = &http.Server{Handler: mux}
	return a, nil
}

// OnLifecycle installs callbacks invoked when a connection reaches Open
// and when it leaves (lastClient true iff the Hub is now empty).
// Install before calling Serve.
func (a *Acceptor) OnLifecycle(onOpen func(), onClose func(lastClient bool)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onOpen, a.onClose = onOpen, onClose
}

// Port returns the bound TCP port.
func (a *Acceptor) Port() int {
	return a.listener.Addr().(*net.TCPAddr).Port
}

// Serve blocks, accepting connections until Shutdown is called. It
// always returns http.ErrServerClosed on a clean shutdown.
func (a *Acceptor) Serve() error {
	return a.srv.Serve(a.listener)
}

// Shutdown stops accepting new connections, cancels every running
// Connection, and waits for their goroutines to finish.
func (a *Acceptor) Shutdown(ctx context.Context) error {
	a.cancel()
	err := a.srv.Shutdown(ctx)
	a.wg.Wait()
	return err
}

func (a *Acceptor) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	if !conn.AuthenticateUpgrade(w, r, a.token) {
		a.log.Warn("rejected ide connection: bad or missing auth token", "remote", r.RemoteAddr)
		return
	}
	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		a.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	id := hub.NextClientID()
	c := conn.New(socket, id, a.hub, a.router)

	a.mu.Lock()
	onOpen, onClose := a.onOpen, a.onClose
	a.mu.Unlock()

	a.wg.Add(1)
	defer a.wg.Done()
	c.Run(a.ctx, onOpen, onClose)
}
