// Package commands is the process-global, dotted-name method table used
// both by the RPC router (for methods not in the IDE-op table) and by the
// editor's own user-command glue. Each command is a thin,
// independently testable function of (params) -> (result, error).
package commands

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/wrath-codes/amp-extras/internal/amperr"
	"github.com/wrath-codes/amp-extras/internal/bridge"
	"github.com/wrath-codes/amp-extras/internal/host"
	"github.com/wrath-codes/amp-extras/internal/hub"
	"github.com/wrath-codes/amp-extras/internal/notify"
	"github.com/wrath-codes/amp-extras/internal/pathutil"
)

// Handler is the shape of every registered command.
type Handler func(params json.RawMessage) (any, error)

// Registry is a dotted-name -> Handler table. Unlike the Rust original's
// process-wide Lazy<HashMap>, this is an explicit value so tests (and a
// future second bridge instance in the same process) don't share global
// mutable state.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry wires the standard command set against h/br/hub/st. Callers
// needing only a subset (e.g. tests) can build a bare Registry and call
// Register directly instead.
func NewRegistry(h host.EditorHost, br *bridge.Bridge, hb *hub.Hub, st *notify.State) *Registry {
	r := &Registry{handlers: make(map[string]Handler)}

	r.Register("ping", func(params json.RawMessage) (any, error) {
		var echo map[string]any
		if len(params) > 0 {
			_ = json.Unmarshal(params, &echo)
		}
		if echo == nil {
			echo = map[string]any{}
		}
		echo["pong"] = true
		return echo, nil
	})

	r.Register("send_file_ref", func(json.RawMessage) (any, error) {
		return sendFileRef(h, br, hb)
	})
	r.Register("send_line_ref", func(json.RawMessage) (any, error) {
		return sendLineRef(h, br, hb)
	})
	r.Register("send_selection_ref", func(params json.RawMessage) (any, error) {
		return sendSelectionRef(h, br, hb, params)
	})
	r.Register("send_buffer", func(json.RawMessage) (any, error) {
		return sendBuffer(h, br, hb)
	})
	r.Register("send_selection", func(params json.RawMessage) (any, error) {
		return sendSelection(h, br, hb, params)
	})

	return r
}

// Register installs name -> fn, overwriting any existing handler.
func (r *Registry) Register(name string, fn Handler) {
	r.handlers[name] = fn
}

// Dispatch runs the handler for method, or a MethodNotFound amperr.Error
// if none is registered.
func (r *Registry) Dispatch(method string, params json.RawMessage) (any, error) {
	fn, ok := r.handlers[method]
	if !ok {
		return nil, amperr.Newf(amperr.KindMethodNotFound, "command %q not found", method)
	}
	return fn(params)
}

// List returns the registered command names, for diagnostics/help
// surfaces.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}

func currentFileRef(h host.EditorHost, br *bridge.Bridge) (string, error) {
	var path string
	var ok bool
	br.RunSync(func() {
		path, _, ok = h.CursorPosition()
	})
	if !ok || path == "" {
		return "", amperr.New(amperr.KindInvalidArgs, "no named current buffer")
	}
	return pathutil.ToRelative(path), nil
}

func sendFileRef(h host.EditorHost, br *bridge.Bridge, hb *hub.Hub) (any, error) {
	rel, err := currentFileRef(h, br)
	if err != nil {
		return nil, err
	}
	ref := fmt.Sprintf("@%s", rel)
	br.Schedule(func() { notify.AppendToPrompt(hb, ref) })
	return map[string]any{"success": true, "reference": ref}, nil
}

func sendLineRef(h host.EditorHost, br *bridge.Bridge, hb *hub.Hub) (any, error) {
	var rel string
	var line int
	var ok bool
	br.RunSync(func() {
		var path string
		var pos host.Position
		path, pos, ok = h.CursorPosition()
		if ok {
			rel = pathutil.ToRelative(path)
			line = pos.Line + 1 // wire references are 1-indexed
		}
	})
	if !ok {
		return nil, amperr.New(amperr.KindInvalidArgs, "no named current buffer")
	}
	ref := fmt.Sprintf("@%s#L%d", rel, line)
	br.Schedule(func() { notify.AppendToPrompt(hb, ref) })
	return map[string]any{"success": true, "reference": ref}, nil
}

type lineRangeParams struct {
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`
}

func sendSelectionRef(h host.EditorHost, br *bridge.Bridge, hb *hub.Hub, params json.RawMessage) (any, error) {
	var p lineRangeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, amperr.New(amperr.KindInvalidArgs, "send_selection_ref requires start_line/end_line")
	}
	rel, err := currentFileRef(h, br)
	if err != nil {
		return nil, err
	}
	var ref string
	if p.StartLine == p.EndLine {
		ref = fmt.Sprintf("@%s#L%d", rel, p.StartLine)
	} else {
		ref = fmt.Sprintf("@%s#L%d-L%d", rel, p.StartLine, p.EndLine)
	}
	br.Schedule(func() { notify.AppendToPrompt(hb, ref) })
	return map[string]any{"success": true, "reference": ref}, nil
}

func sendBuffer(h host.EditorHost, br *bridge.Bridge, hb *hub.Hub) (any, error) {
	var content string
	var ok bool
	br.RunSync(func() {
		var path string
		path, _, ok = h.CursorPosition()
		if !ok {
			return
		}
		buf, found := h.FindBufferByPath(path)
		if !found {
			ok = false
			return
		}
		lines, err := h.BufferLines(buf.Handle)
		if err != nil {
			ok = false
			return
		}
		content = strings.Join(lines, "\n")
	})
	if !ok {
		return nil, amperr.New(amperr.KindInvalidArgs, "no named current buffer")
	}
	br.Schedule(func() { notify.AppendToPrompt(hb, content) })
	return map[string]any{"success": true}, nil
}

func sendSelection(h host.EditorHost, br *bridge.Bridge, hb *hub.Hub, params json.RawMessage) (any, error) {
	var p lineRangeParams
	if err := json.Unmarshal(params, &p); err != nil {
		return nil, amperr.New(amperr.KindInvalidArgs, "send_selection requires start_line/end_line")
	}
	var content string
	var ok bool
	br.RunSync(func() {
		var path string
		path, _, ok = h.CursorPosition()
		if !ok {
			return
		}
		buf, found := h.FindBufferByPath(path)
		if !found {
			ok = false
			return
		}
		lines, err := h.BufferLines(buf.Handle)
		if err != nil || p.StartLine < 0 || p.EndLine >= len(lines) || p.StartLine > p.EndLine {
			ok = false
			return
		}
		content = strings.Join(lines[p.StartLine:p.EndLine+1], "\n")
	})
	if !ok {
		return nil, amperr.New(amperr.KindInvalidArgs, "invalid selection range")
	}
	br.Schedule(func() { notify.AppendToPrompt(hb, content) })
	return map[string]any{"success": true}, nil
}

// AccountUpdate spawns cmdLine (e.g. "amp update"), streaming its
// stdout/stderr lines to the editor as log messages, and reports the
// exit error if any. The child is killed if ctxDone fires before it
// exits (kill-on-drop semantics).
func AccountUpdate(h host.EditorHost, br *bridge.Bridge, cmdLine string, ctxDone <-chan struct{}) error {
	parts := strings.Fields(cmdLine)
	if len(parts) == 0 {
		return amperr.New(amperr.KindInvalidArgs, "empty command line")
	}
	cmd := exec.Command(parts[0], parts[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return amperr.Wrap(amperr.KindExternalCliError, err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return amperr.Wrap(amperr.KindExternalCliError, err)
	}

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				line := string(buf[:n])
				br.Schedule(func() { h.Notify(host.NotifyInfo, line) })
			}
			if err != nil {
				break
			}
		}
		close(done)
	}()

	select {
	case <-ctxDone:
		_ = cmd.Process.Kill()
		<-done
		return amperr.New(amperr.KindExternalCliError, "account_update cancelled")
	case <-done:
		if err := cmd.Wait(); err != nil {
			return amperr.Wrap(amperr.KindExternalCliError, err)
		}
		return nil
	}
}
