// Package ideops implements the six IDE operations the router dispatches
// directly: ping, authenticate, readFile, editFile, getDiagnostics, and
// nvim/notify. The file/buffer/diagnostic operations run on the editor
// domain via internal/bridge.RunSync, matching the "suspends on main
// thread" column of the operation routing table.
package ideops

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wrath-codes/amp-extras/internal/amperr"
	"github.com/wrath-codes/amp-extras/internal/bridge"
	"github.com/wrath-codes/amp-extras/internal/host"
	"github.com/wrath-codes/amp-extras/internal/pathutil"
)

// Ping answers ping/ide/ping. If params contains a "message" key it is
// echoed verbatim; otherwise a {pong, ts} result is returned.
func Ping(params json.RawMessage) (any, error) {
	if len(params) > 0 {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(params, &probe); err == nil {
			if _, ok := probe["message"]; ok {
				var echo map[string]any
				_ = json.Unmarshal(params, &echo)
				return echo, nil
			}
		}
	}
	return map[string]any{
		"pong": true,
		"ts":   time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// Authenticate answers the authenticate method. Real authentication
// happens during the WebSocket upgrade (internal/conn); by the time a
// request reaches the router the connection is already authenticated, so
// this is a constant acknowledgement.
func Authenticate(json.RawMessage) (any, error) {
	return map[string]any{"authenticated": true}, nil
}

type readFileParams struct {
	Path string `json:"path"`
}

// ReadFileResult is the readFile success payload.
type ReadFileResult struct {
	Success  bool   `json:"success"`
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

// ReadFile implements readFile/ide/readFile: prefer a loaded buffer's
// in-memory content, falling back to disk.
func ReadFile(h host.EditorHost, br *bridge.Bridge, params json.RawMessage) (any, error) {
	var p readFileParams
	if err := json.Unmarshal(params, &p); err != nil || p.Path == "" {
		return nil, amperr.New(amperr.KindInvalidArgs, "readFile requires a non-empty path")
	}
	abs, err := pathutil.Normalize(p.Path)
	if err != nil {
		return nil, amperr.Wrap(amperr.KindInvalidArgs, err)
	}

	var result ReadFileResult
	var opErr error
	br.RunSync(func() {
		if buf, ok := h.FindBufferByPath(abs); ok && buf.Loaded {
			lines, err := h.BufferLines(buf.Handle)
			if err != nil {
				opErr = amperr.Wrap(amperr.KindIoError, err)
				return
			}
			result = ReadFileResult{Success: true, Content: strings.Join(lines, "\n"), Encoding: "utf-8"}
			return
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			opErr = amperr.Wrap(amperr.KindIoError, err)
			return
		}
		result = ReadFileResult{Success: true, Content: string(data), Encoding: "utf-8"}
	})
	if opErr != nil {
		return nil, opErr
	}
	return result, nil
}

type editFileParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// EditFileResult is the editFile success payload.
type EditFileResult struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	AppliedChanges bool   `json:"appliedChanges"`
}

// EditFile implements editFile/ide/editFile: whole-file replacement, never
// creating a new buffer — creating one on the fly risks swap-file
// collisions if the user later opens the file themselves.
func EditFile(h host.EditorHost, br *bridge.Bridge, params json.RawMessage) (any, error) {
	var p editFileParams
	if err := json.Unmarshal(params, &p); err != nil || p.Path == "" {
		return nil, amperr.New(amperr.KindInvalidArgs, "editFile requires a non-empty path")
	}
	abs, err := pathutil.Normalize(p.Path)
	if err != nil {
		return nil, amperr.Wrap(amperr.KindInvalidArgs, err)
	}

	var result EditFileResult
	var opErr error
	br.RunSync(func() {
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			opErr = amperr.Wrap(amperr.KindIoError, err)
			return
		}
		if buf, ok := h.FindBufferByPath(abs); ok {
			if err := h.SetBufferLines(buf.Handle, splitLines(p.Content)); err != nil {
				opErr = amperr.Wrap(amperr.KindIoError, err)
				return
			}
			_ = h.SetModified(buf.Handle, false)
		}
		if err := os.WriteFile(abs, []byte(p.Content), 0o644); err != nil {
			opErr = amperr.Wrap(amperr.KindIoError, err)
			return
		}
		result = EditFileResult{
			Success:        true,
			Message:        fmt.Sprintf("Wrote %d bytes to %s", len(p.Content), abs),
			AppliedChanges: true,
		}
	})
	if opErr != nil {
		return nil, opErr
	}
	return result, nil
}

func splitLines(content string) []string {
	if content == "" {
		return []string{""}
	}
	return strings.Split(content, "\n")
}

type getDiagnosticsParams struct {
	Path string `json:"path,omitempty"`
}

// DiagnosticEntry groups diagnostics under a single buffer's URI.
type DiagnosticEntry struct {
	URI         string             `json:"uri"`
	Diagnostics []DiagnosticRecord `json:"diagnostics"`
}

// DiagnosticRecord is one diagnostic in wire shape.
type DiagnosticRecord struct {
	Range       RangeJSON `json:"range"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	LineContent string    `json:"lineContent"`
	StartOffset int       `json:"startOffset"`
	EndOffset   int       `json:"endOffset"`
}

// RangeJSON is the wire shape of a 0-indexed line/character span.
type RangeJSON struct {
	StartLine      int `json:"startLine"`
	StartCharacter int `json:"startCharacter"`
	EndLine        int `json:"endLine"`
	EndCharacter   int `json:"endCharacter"`
}

// GetDiagnostics implements getDiagnostics.
func GetDiagnostics(h host.EditorHost, br *bridge.Bridge, params json.RawMessage) (any, error) {
	var p getDiagnosticsParams
	if len(params) > 0 {
		_ = json.Unmarshal(params, &p)
	}

	var entries []DiagnosticEntry
	br.RunSync(func() {
		var filterCanon string
		if p.Path != "" {
			if abs, err := pathutil.Normalize(p.Path); err == nil {
				if real, err := filepath.EvalSymlinks(abs); err == nil {
					filterCanon = real
				}
			}
		}

		for _, buf := range h.Buffers() {
			if !buf.Loaded || buf.Name == "" {
				continue
			}
			if p.Path != "" && !matchesFilter(buf.Name, p.Path, filterCanon) {
				continue
			}
			diags, err := h.Diagnostics(buf.Handle)
			if err != nil || len(diags) == 0 {
				continue
			}
			lines, _ := h.BufferLines(buf.Handle)
			records := make([]DiagnosticRecord, 0, len(diags))
			for _, d := range diags {
				endLine, endChar := d.Range.End.Line, d.Range.End.Character
				records = append(records, DiagnosticRecord{
					Range: RangeJSON{
						StartLine:      d.Range.Start.Line,
						StartCharacter: d.Range.Start.Character,
						EndLine:        endLine,
						EndCharacter:   endChar,
					},
					Severity:    mapSeverity(d.Severity),
					Description: d.Message,
					LineContent: lineContentAt(lines, buf.Name, d.Range.Start.Line),
					StartOffset: offsetOf(lines, d.Range.Start),
					EndOffset:   offsetOf(lines, d.Range.End),
				})
			}
			entries = append(entries, DiagnosticEntry{URI: pathutil.ToURI(buf.Name), Diagnostics: records})
		}
	})

	if entries == nil {
		entries = []DiagnosticEntry{}
	}
	return map[string]any{"entries": entries}, nil
}

// matchesFilter implements the path-filter tie-break:
// a raw string-prefix match, falling back to a canonicalized-path match
// so /tmp vs. /private/tmp symlink divergence doesn't hide results.
func matchesFilter(bufPath, rawFilter, canonFilter string) bool {
	if strings.HasPrefix(bufPath, rawFilter) {
		return true
	}
	if canonFilter == "" {
		return false
	}
	real, err := filepath.EvalSymlinks(bufPath)
	if err != nil {
		return false
	}
	return strings.HasPrefix(real, canonFilter)
}

func mapSeverity(raw int) string {
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

func lineContentAt(bufLines []string, path string, line int) string {
	if line >= 0 && line < len(bufLines) {
		return bufLines[line]
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	fileLines := strings.Split(string(data), "\n")
	if line >= 0 && line < len(fileLines) {
		return fileLines[line]
	}
	return ""
}

func offsetOf(lines []string, pos host.Position) int {
	offset := 0
	for i := 0; i < pos.Line && i < len(lines); i++ {
		offset += len(lines[i]) + 1
	}
	return offset + pos.Character
}

type notifyParams struct {
	Message string `json:"message"`
}

// NvimNotify implements nvim/notify: schedule a user-facing notification
// on the editor domain and return immediately with no result.
func NvimNotify(h host.EditorHost, br *bridge.Bridge, params json.RawMessage) (any, error) {
	var p notifyParams
	if err := json.Unmarshal(params, &p); err != nil || p.Message == "" {
		return nil, amperr.New(amperr.KindInvalidArgs, "notify requires a non-empty message")
	}
	br.Schedule(func() {
		h.Notify(host.NotifyInfo, p.Message)
	})
	return nil, nil
}
