// Package notify builds the six server-initiated notifications
// and applies change-suppression for the three that mirror
// observed editor state. Suppress state (State) must only be touched from
// the editor domain — it has no internal locking, matching the
// "thread-local to the editor domain; no synchronization" invariant.
package notify

import (
	"encoding/json"
	"sort"

	"github.com/wrath-codes/amp-extras/internal/hub"
)

type envelope struct {
	ServerNotification map[string]any `json:"serverNotification"`
}

func send(h *hub.Hub, name string, payload any) {
	env := envelope{ServerNotification: map[string]any{name: payload}}
	data, err := json.Marshal(env)
	if err != nil {
		return // NotificationError: logged by the caller, never surfaced to the user
	}
	h.Broadcast(string(data))
}

// PluginMetadata broadcasts pluginMetadata unconditionally (it carries no
// change-suppression state: it is only ever sent once per connection's
// initial-state burst).
func PluginMetadata(h *hub.Hub, version, pluginDirectory string) {
	send(h, "pluginMetadata", map[string]any{
		"version":         version,
		"pluginDirectory": pluginDirectory,
	})
}

// Selection is one selectionDidChange entry. A zero-width range (Start ==
// End, empty Content) represents a plain cursor position.
type Selection struct {
	URI        string `json:"-"`
	StartLine  int    `json:"-"`
	StartChar  int    `json:"-"`
	EndLine    int    `json:"-"`
	EndChar    int    `json:"-"`
	Content    string `json:"-"`
}

func (s Selection) payload() map[string]any {
	return map[string]any{
		"uri": s.URI,
		"selections": []map[string]any{
			{
				"range": map[string]any{
					"startLine":      s.StartLine,
					"startCharacter": s.StartChar,
					"endLine":        s.EndLine,
					"endCharacter":   s.EndChar,
				},
				"content": s.Content,
			},
		},
	}
}

// State holds the per-kind "last broadcast" cells used for change
// suppression. It is owned by the editor domain; callers on any other
// goroutine are a bug, not a race this type defends against.
type State struct {
	lastSelection    *Selection
	lastVisibleFiles []string
	lastDiagnostics  map[string][]DiagnosticEntry
}

// NewState returns an empty change-suppression cell set.
func NewState() *State {
	return &State{}
}

// SelectionDidChange broadcasts selectionDidChange iff sel differs from
// the last broadcast selection.
func (st *State) SelectionDidChange(h *hub.Hub, sel Selection) {
	if st.lastSelection != nil && *st.lastSelection == sel {
		return
	}
	copied := sel
	st.lastSelection = &copied
	send(h, "selectionDidChange", sel.payload())
}

// VisibleFilesDidChange broadcasts visibleFilesDidChange iff the sorted
// uri set differs from the last broadcast set. Sorting makes the
// equality check order-insensitive on the editor's window-traversal
// order while keeping the wire output in a canonical order.
func (st *State) VisibleFilesDidChange(h *hub.Hub, uris []string) {
	sorted := append([]string{}, uris...)
	sort.Strings(sorted)
	if stringSlicesEqual(st.lastVisibleFiles, sorted) {
		return
	}
	st.lastVisibleFiles = sorted
	send(h, "visibleFilesDidChange", map[string]any{"uris": sorted})
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DiagnosticEntry is one uri's diagnostic list in diagnosticsDidChange's
// entries array.
type DiagnosticEntry struct {
	URI         string                `json:"uri"`
	Diagnostics []DiagnosticRecordish `json:"diagnostics"`
}

// DiagnosticRecordish is the wire shape of a single diagnostic, kept
// generic (map-free) so internal/ideops's DiagnosticRecord type can be
// reused directly by callers without a conversion layer.
type DiagnosticRecordish struct {
	Range       RangeJSON `json:"range"`
	Severity    string    `json:"severity"`
	Description string    `json:"description"`
	LineContent string    `json:"lineContent"`
	StartOffset int       `json:"startOffset"`
	EndOffset   int       `json:"endOffset"`
}

// RangeJSON mirrors ideops.RangeJSON's wire shape.
type RangeJSON struct {
	StartLine      int `json:"startLine"`
	StartCharacter int `json:"startCharacter"`
	EndLine        int `json:"endLine"`
	EndCharacter   int `json:"endCharacter"`
}

// DiagnosticsDidChange broadcasts diagnosticsDidChange iff entries differs
// structurally from the last broadcast mapping.
func (st *State) DiagnosticsDidChange(h *hub.Hub, entries []DiagnosticEntry) {
	current := toDiagMap(entries)
	if diagMapsEqual(st.lastDiagnostics, current) {
		return
	}
	st.lastDiagnostics = current
	send(h, "diagnosticsDidChange", map[string]any{"entries": entries})
}

func toDiagMap(entries []DiagnosticEntry) map[string][]DiagnosticEntry {
	m := make(map[string][]DiagnosticEntry, len(entries))
	for _, e := range entries {
		m[e.URI] = append(m[e.URI], e)
	}
	return m
}

func diagMapsEqual(a, b map[string][]DiagnosticEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for uri, aEntries := range a {
		bEntries, ok := b[uri]
		if !ok || len(aEntries) != len(bEntries) {
			return false
		}
		for i := range aEntries {
			if !entryEqual(aEntries[i], bEntries[i]) {
				return false
			}
		}
	}
	return true
}

func entryEqual(a, b DiagnosticEntry) bool {
	if a.URI != b.URI || len(a.Diagnostics) != len(b.Diagnostics) {
		return false
	}
	for i := range a.Diagnostics {
		if a.Diagnostics[i] != b.Diagnostics[i] {
			return false
		}
	}
	return true
}

// UserSentMessage broadcasts userSentMessage. Unlike the three kinds
// above it carries no change-suppression: every call to the editor's
// "send to agent" action should produce a wire message.
func UserSentMessage(h *hub.Hub, message string) {
	send(h, "userSentMessage", map[string]any{"message": message})
}

// AppendToPrompt broadcasts appendToPrompt with the same payload shape as
// UserSentMessage but a distinct notification name: both carry identical
// payload shapes and the agent disambiguates by name rather than by
// content.
func AppendToPrompt(h *hub.Hub, message string) {
	send(h, "appendToPrompt", map[string]any{"message": message})
}
