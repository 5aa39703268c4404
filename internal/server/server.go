// Package server is the lifecycle facade: it owns
// the one process-wide Server singleton, wiring the lockfile, Hub,
// Bridge (plus the editor-domain goroutine that drains it), EditorHost,
// ideops, notify.State, commands.Registry, rpc.Router, and acceptor
// together, and is the only package that imports all of them.
package server

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/wrath-codes/amp-extras/internal/acceptor"
	"github.com/wrath-codes/amp-extras/internal/amperr"
	"github.com/wrath-codes/amp-extras/internal/bridge"
	"github.com/wrath-codes/amp-extras/internal/commands"
	"github.com/wrath-codes/amp-extras/internal/host"
	"github.com/wrath-codes/amp-extras/internal/hub"
	"github.com/wrath-codes/amp-extras/internal/ideops"
	"github.com/wrath-codes/amp-extras/internal/lockfile"
	"github.com/wrath-codes/amp-extras/internal/logger"
	"github.com/wrath-codes/amp-extras/internal/notify"
	store "github.com/wrath-codes/amp-extras/internal/promptstore"
	"github.com/wrath-codes/amp-extras/internal/rpc"
)

const (
	pluginVersion          = "0.1.0"
	initialMetadataDelay   = 200 * time.Millisecond
	initialStateBurstDelay = 250 * time.Millisecond
	// eventDebounceWindow is how long each event family's Slot coalesces
	// bursts of editor events (e.g. a held-down cursor key) before
	// recomputing and broadcasting state once.
	eventDebounceWindow = 10 * time.Millisecond
)

// Config carries everything the facade needs to know before Start.
type Config struct {
	// Addr is the listener address; empty means 127.0.0.1:0, an
	// OS-assigned loopback-only port.
	Addr string
	// IDEName identifies this editor in the lockfile.
	IDEName string
	// WorkspaceFolders are the absolute paths advertised in the
	// lockfile.
	WorkspaceFolders []string
	// PluginDirectory is reported in the pluginMetadata notification.
	PluginDirectory string
	// PromptStorePath is the sqlite DSN for the prompt library. Empty
	// disables prompts.list/prompts.use (no database is opened).
	PromptStorePath string
}

// Server is the singleton lifecycle facade. Use New once per process;
// Start/Stop are safe to call from any goroutine but are not reentrant
// (a second concurrent Start while one is already running fails with
// amperr.KindAlreadyRunning).
type Server struct {
	cfg Config
	h   host.EditorHost

	mu         sync.Mutex
	running    bool
	port       int
	hub        *hub.Hub
	bridge     *bridge.Bridge
	acceptor   *acceptor.Acceptor
	stopWake   chan struct{}
	lockPath   string
	prompts    *store.Store
	eventUnsub []func()
	eventSlots []*bridge.Slot
}

// New returns an unstarted facade driving h.
func New(cfg Config, h host.EditorHost) *Server {
	return &Server{cfg: cfg, h: h}
}

// IsRunning reports whether the server currently has a bound listener.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Port returns the bound port, or 0 if not running.
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// Hub exposes the client registry, e.g. for an outer CLI's "status"
// command.
func (s *Server) Hub() *hub.Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub
}

// Start binds the listener, writes the lockfile, and begins accepting
// connections. It returns once the listener is bound (Serve runs on its
// own goroutine).
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return amperr.New(amperr.KindAlreadyRunning, "server is already running")
	}

	token, err := lockfile.GenerateToken(32)
	if err != nil {
		s.mu.Unlock()
		return amperr.Wrap(amperr.KindConfigError, err)
	}

	h := hub.New()
	st := notify.NewState()

	wakeCh := make(chan struct{}, 1)
	wake := func() {
		select {
		case wakeCh <- struct{}{}:
		default:
		}
	}
	br := bridge.New(wake)
	stopWake := make(chan struct{})
	go runEditorDomain(br, wakeCh, stopWake)

	reg := commands.NewRegistry(s.h, br, h, st)
	reg.Register("server_status", func(json.RawMessage) (any, error) {
		return map[string]any{"running": s.IsRunning(), "port": s.Port(), "clients": h.ClientCount()}, nil
	})
	reg.Register("account_update", func(params json.RawMessage) (any, error) {
		var p struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal(params, &p); err != nil || p.Command == "" {
			return nil, amperr.New(amperr.KindInvalidArgs, "account_update requires a command")
		}
		never := make(chan struct{}) // no external cancellation surface yet
		if err := commands.AccountUpdate(s.h, br, p.Command, never); err != nil {
			return nil, err
		}
		return map[string]any{"success": true}, nil
	})

	if s.cfg.PromptStorePath != "" {
		prompts, err := store.Open(s.cfg.PromptStorePath)
		if err != nil {
			close(stopWake)
			s.mu.Unlock()
			return amperr.Wrap(amperr.KindDatabaseError, err)
		}
		s.prompts = prompts
		registerPromptCommands(reg, prompts)
	}

	router := rpc.New(rpc.Deps{
		Ping:         ideops.Ping,
		Authenticate: ideops.Authenticate,
		ReadFile: func(params json.RawMessage) (any, error) {
			return ideops.ReadFile(s.h, br, params)
		},
		EditFile: func(params json.RawMessage) (any, error) {
			return ideops.EditFile(s.h, br, params)
		},
		GetDiagnostics: func(params json.RawMessage) (any, error) {
			return ideops.GetDiagnostics(s.h, br, params)
		},
		NvimNotify: func(params json.RawMessage) (any, error) {
			return ideops.NvimNotify(s.h, br, params)
		},
		Dispatch: reg.Dispatch,
	})

	acc, err := acceptor.New(s.cfg.Addr, token, h, router)
	if err != nil {
		close(stopWake)
		s.mu.Unlock()
		return amperr.Wrap(amperr.KindIoError, err)
	}
	acc.OnLifecycle(
		func() { s.onConnectionOpen(br, h, st) },
		nil,
	)

	port := acc.Port()
	lockPath, err := lockfile.Write(port, token, s.cfg.WorkspaceFolders, s.cfg.IDEName)
	if err != nil {
		close(stopWake)
		s.mu.Unlock()
		return err
	}

	eventUnsub, eventSlots := s.wireEditorEvents(br, h, st)

	s.hub, s.bridge, s.acceptor, s.port, s.lockPath, s.stopWake = h, br, acc, port, lockPath, stopWake
	s.eventUnsub, s.eventSlots = eventUnsub, eventSlots
	s.running = true
	s.mu.Unlock()

	go func() {
		if err := acc.Serve(); err != nil {
			logger.Info("ide acceptor stopped", "err", err)
		}
	}()

	logger.Info("ide bridge started", "port", port, "lockfile", lockPath)
	return nil
}

// onConnectionOpen fires the initial-state burst: plugin
// metadata first, then the three mirrored-state notifications a short
// delay later, all synthesized on the editor domain.
func (s *Server) onConnectionOpen(br *bridge.Bridge, h *hub.Hub, st *notify.State) {
	time.AfterFunc(initialMetadataDelay, func() {
		br.Schedule(func() {
			notify.PluginMetadata(h, pluginVersion, s.cfg.PluginDirectory)
		})
	})
	time.AfterFunc(initialMetadataDelay+initialStateBurstDelay, func() {
		br.Schedule(func() {
			s.broadcastCurrentState(h, st)
		})
	})
}

// broadcastCurrentState fires all three mirrored-state notifications once,
// for the initial-state burst. wireEditorEvents fires the same three
// recompute functions individually, per event family, for the lifetime of
// the connection.
func (s *Server) broadcastCurrentState(h *hub.Hub, st *notify.State) {
	s.broadcastSelection(h, st)
	s.broadcastVisibleFiles(h, st)
	s.broadcastDiagnostics(h, st)
}

// broadcastSelection recomputes the current selection and calls
// SelectionDidChange. A visual-mode selection takes priority over the
// plain cursor position, since SetVisualSelection and SetCursor both
// report through EventCursorMoved and only one can be current at a time.
func (s *Server) broadcastSelection(h *hub.Hub, st *notify.State) {
	if path, r, ok := s.h.VisualSelection(); ok {
		st.SelectionDidChange(h, notify.Selection{
			URI: path, StartLine: r.Start.Line, StartChar: r.Start.Character,
			EndLine: r.End.Line, EndChar: r.End.Character,
		})
		return
	}
	if path, pos, ok := s.h.CursorPosition(); ok {
		st.SelectionDidChange(h, notify.Selection{
			URI: path, StartLine: pos.Line, StartChar: pos.Character,
			EndLine: pos.Line, EndChar: pos.Character,
		})
	}
}

func (s *Server) broadcastVisibleFiles(h *hub.Hub, st *notify.State) {
	st.VisibleFilesDidChange(h, s.h.VisibleFiles())
}

func (s *Server) broadcastDiagnostics(h *hub.Hub, st *notify.State) {
	var entries []notify.DiagnosticEntry
	for _, buf := range s.h.Buffers() {
		if !buf.Loaded || buf.Name == "" {
			continue
		}
		diags, err := s.h.Diagnostics(buf.Handle)
		if err != nil || len(diags) == 0 {
			continue
		}
		recs := make([]notify.DiagnosticRecordish, 0, len(diags))
		for _, d := range diags {
			recs = append(recs, notify.DiagnosticRecordish{
				Range: notify.RangeJSON{
					StartLine: d.Range.Start.Line, StartCharacter: d.Range.Start.Character,
					EndLine: d.Range.End.Line, EndCharacter: d.Range.End.Character,
				},
				Severity:    severityName(d.Severity),
				Description: d.Message,
			})
		}
		entries = append(entries, notify.DiagnosticEntry{URI: buf.Name, Diagnostics: recs})
	}
	st.DiagnosticsDidChange(h, entries)
}

// wireEditorEvents subscribes the four autocommand-ish event families the
// host exposes: cursor/selection, visible-files, and diagnostics changes
// are coalesced through a per-family Slot (eventDebounceWindow) before
// recomputing and broadcasting, while a mode change fires the selection
// handler immediately, bypassing debounce, since a mode switch (e.g.
// entering visual mode) is itself the signal the agent needs promptly.
//
// The callback host.EditorHost.OnEvent installs may run on any goroutine
// (Stub invokes it synchronously from whichever goroutine called the
// mutating setter), so every callback hops onto the editor domain via
// br.Schedule before touching s.h or st — both are editor-domain-only.
// Slot.Fire's own callback likewise runs on a timer goroutine, not the
// editor domain, so the br.Schedule call is nested inside it.
func (s *Server) wireEditorEvents(br *bridge.Bridge, h *hub.Hub, st *notify.State) (unsub []func(), slots []*bridge.Slot) {
	selectionSlot := &bridge.Slot{}
	visibleFilesSlot := &bridge.Slot{}
	diagnosticsSlot := &bridge.Slot{}

	unsub = []func(){
		s.h.OnEvent(host.EventCursorMoved, func() {
			selectionSlot.Fire(eventDebounceWindow, func() {
				br.Schedule(func() { s.broadcastSelection(h, st) })
			})
		}),
		s.h.OnEvent(host.EventVisibleFiles, func() {
			visibleFilesSlot.Fire(eventDebounceWindow, func() {
				br.Schedule(func() { s.broadcastVisibleFiles(h, st) })
			})
		}),
		s.h.OnEvent(host.EventDiagnostics, func() {
			diagnosticsSlot.Fire(eventDebounceWindow, func() {
				br.Schedule(func() { s.broadcastDiagnostics(h, st) })
			})
		}),
		s.h.OnEvent(host.EventModeChanged, func() {
			br.Schedule(func() { s.broadcastSelection(h, st) })
		}),
	}
	slots = []*bridge.Slot{selectionSlot, visibleFilesSlot, diagnosticsSlot}
	return unsub, slots
}

func severityName(raw int) string {
	switch raw {
	case 1:
		return "ERROR"
	case 2:
		return "WARNING"
	case 3:
		return "INFO"
	case 4:
		return "HINT"
	default:
		return "INFO"
	}
}

// Stop shuts down the acceptor, stops the editor-domain goroutine, and
// removes the lockfile. It is idempotent: calling it when not running is
// a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	acc, stopWake, port, prompts := s.acceptor, s.stopWake, s.port, s.prompts
	eventUnsub, eventSlots := s.eventUnsub, s.eventSlots
	s.running = false
	s.prompts = nil
	s.eventUnsub = nil
	s.eventSlots = nil
	s.mu.Unlock()

	for _, slot := range eventSlots {
		slot.Cancel()
	}
	for _, unsub := range eventUnsub {
		unsub()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := acc.Shutdown(ctx)
	close(stopWake)
	if prompts != nil {
		if closeErr := prompts.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	if rmErr := lockfile.Remove(port); rmErr != nil && err == nil {
		err = rmErr
	}
	logger.Info("ide bridge stopped", "port", port)
	return err
}

// registerPromptCommands wires the reusable prompt-library commands into
// reg. prompts.list returns the full library; prompts.use records a
// usage hit and returns the prompt's content for the agent to act on.
func registerPromptCommands(reg *commands.Registry, prompts *store.Store) {
	reg.Register("prompts.list", func(json.RawMessage) (any, error) {
		all, err := prompts.ListPrompts()
		if err != nil {
			return nil, amperr.Wrap(amperr.KindDatabaseError, err)
		}
		return map[string]any{"prompts": all}, nil
	})

	reg.Register("prompts.use", func(params json.RawMessage) (any, error) {
		var p struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(params, &p); err != nil || p.ID == "" {
			return nil, amperr.New(amperr.KindInvalidArgs, "prompts.use requires an id")
		}
		all, err := prompts.ListPrompts()
		if err != nil {
			return nil, amperr.Wrap(amperr.KindDatabaseError, err)
		}
		var found *store.Prompt
		for i := range all {
			if all[i].ID == p.ID {
				found = &all[i]
				break
			}
		}
		if found == nil {
			return nil, amperr.Newf(amperr.KindInvalidArgs, "no prompt with id %q", p.ID)
		}
		if err := prompts.RecordUsage(p.ID); err != nil {
			return nil, amperr.Wrap(amperr.KindDatabaseError, err)
		}
		return map[string]any{"content": found.Content, "title": found.Title}, nil
	})
}

func runEditorDomain(br *bridge.Bridge, wake <-chan struct{}, stop <-chan struct{}) {
	for {
		select {
		case <-wake:
			br.Drain()
		case <-stop:
			return
		}
	}
}
