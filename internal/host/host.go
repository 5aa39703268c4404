// Package host defines the abstract surface the bridge consumes from its
// surrounding editor: buffers, cursor/selection state, diagnostics,
// autocommand-style event subscription, and main-thread scheduling. The
// editor's own UI and rendering are out of scope; this package is the
// port, plus an in-memory Stub implementation used by tests and by
// cmd/ampd's demo mode.
package host

// BufferHandle identifies a loaded buffer.
type BufferHandle int

// Buffer is a snapshot of one editor buffer.
type Buffer struct {
	Handle BufferHandle
	Name   string // absolute path; empty for unnamed/scratch buffers
	Loaded bool
}

// Position is a zero-indexed line/character location.
type Position struct {
	Line      int
	Character int
}

// Range is a half-open [Start, End) span.
type Range struct {
	Start Position
	End   Position
}

// Diagnostic mirrors one language-server diagnostic as the editor reports
// it. Severity follows the editor's raw numbering (1=Error..4=Hint);
// ideops maps it onto the wire's string severities.
type Diagnostic struct {
	Range    Range
	Severity int
	Message  string
}

// Mode describes the editor's current modal state.
type Mode struct {
	Visual      bool
	VisualLine  bool
	VisualBlock bool
}

// EventFamily names one of the autocommand-ish event groups the bridge
// debounces.
type EventFamily string

const (
	EventCursorMoved  EventFamily = "cursor_moved"
	EventModeChanged  EventFamily = "mode_changed"
	EventVisibleFiles EventFamily = "visible_files_changed"
	EventDiagnostics  EventFamily = "diagnostics_changed"
)

// NotifyLevel is the severity of a user-facing notification.
type NotifyLevel string

const (
	NotifyInfo  NotifyLevel = "info"
	NotifyWarn  NotifyLevel = "warn"
	NotifyError NotifyLevel = "error"
)

// EditorHost is the capability surface the bridge requires from its host
// editor. Every method must be safe to call only from the editor's single
// logical main thread — in this port that thread is simulated by the
// dedicated goroutine internal/bridge.Bridge drains on.
type EditorHost interface {
	// Buffers lists all known buffers, loaded or not.
	Buffers() []Buffer
	// FindBufferByPath looks up a loaded-or-not buffer by absolute path.
	FindBufferByPath(path string) (Buffer, bool)
	// BufferLines returns a loaded buffer's content, one entry per line.
	BufferLines(h BufferHandle) ([]string, error)
	// SetBufferLines replaces a loaded buffer's entire content.
	SetBufferLines(h BufferHandle, lines []string) error
	// SetModified sets or clears a buffer's "modified" flag.
	SetModified(h BufferHandle, modified bool) error

	// Diagnostics returns the language-server diagnostics attached to a
	// loaded buffer.
	Diagnostics(h BufferHandle) ([]Diagnostic, error)

	// CursorPosition reports the current buffer path and cursor location.
	// ok is false if there is no current buffer (e.g. in tests before any
	// buffer is opened).
	CursorPosition() (path string, pos Position, ok bool)
	// VisualSelection reports the current visual-mode selection, if any.
	VisualSelection() (path string, r Range, ok bool)
	// ModeState reports the current editor mode.
	ModeState() Mode
	// VisibleFiles lists the absolute paths of all buffers currently
	// shown in a window.
	VisibleFiles() []string

	// Notify surfaces a message to the editor user.
	Notify(level NotifyLevel, message string)

	// OnEvent subscribes fn to fire whenever family occurs; it returns an
	// unsubscribe function. fn always runs on the editor main thread.
	OnEvent(family EventFamily, fn func()) (unsubscribe func())

	// ScheduleOnMainThread is the host-provided async wakeup primitive:
	// fn is queued and executed on the editor main thread at the host's
	// next opportunity. internal/bridge wraps this to give background
	// tasks safe access to editor state.
	ScheduleOnMainThread(fn func())
}
