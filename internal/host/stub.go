package host

import (
	"fmt"
	"sort"
	"sync"
)

// Stub is an in-memory EditorHost used by tests and by cmd/ampd's demo
// mode, where no real editor is attached. It is safe for concurrent use;
// ScheduleOnMainThread runs fn inline rather than queuing it onto a real
// single-threaded loop; callers that need the bridge's ordering
// guarantees should go through internal/bridge, not call this directly.
type Stub struct {
	mu sync.Mutex

	nextHandle  BufferHandle
	buffers     map[BufferHandle]*stubBuffer
	byPath      map[string]BufferHandle
	cursorPath  string
	cursorPos   Position
	hasCursor   bool
	visualPath  string
	visualRange Range
	hasVisual   bool
	mode        Mode

	subscribers map[EventFamily][]func()
	notified    []StubNotification
}

type stubBuffer struct {
	name        string
	lines       []string
	loaded      bool
	modified    bool
	diagnostics []Diagnostic
}

// StubNotification records a call to Notify, for assertions in tests.
type StubNotification struct {
	Level   NotifyLevel
	Message string
}

func NewStub() *Stub {
	return &Stub{
		buffers:     make(map[BufferHandle]*stubBuffer),
		byPath:      make(map[string]BufferHandle),
		subscribers: make(map[EventFamily][]func()),
	}
}

// OpenBuffer creates or updates a loaded buffer for path with the given
// content, returning its handle.
func (s *Stub) OpenBuffer(path, content string) BufferHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.byPath[path]; ok {
		s.buffers[h].lines = splitLines(content)
		s.buffers[h].loaded = true
		return h
	}
	s.nextHandle++
	h := s.nextHandle
	s.buffers[h] = &stubBuffer{name: path, lines: splitLines(content), loaded: true}
	s.byPath[path] = h
	return h
}

func splitLines(content string) []string {
	if content == "" {
		return []string{""}
	}
	lines := []string{}
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines = append(lines, content[start:i])
			start = i + 1
		}
	}
	lines = append(lines, content[start:])
	return lines
}

func (s *Stub) Buffers() []Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Buffer, 0, len(s.buffers))
	handles := make([]BufferHandle, 0, len(s.buffers))
	for h := range s.buffers {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	for _, h := range handles {
		b := s.buffers[h]
		out = append(out, Buffer{Handle: h, Name: b.name, Loaded: b.loaded})
	}
	return out
}

func (s *Stub) FindBufferByPath(path string) (Buffer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.byPath[path]
	if !ok {
		return Buffer{}, false
	}
	b := s.buffers[h]
	return Buffer{Handle: h, Name: b.name, Loaded: b.loaded}, true
}

func (s *Stub) BufferLines(h BufferHandle) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[h]
	if !ok {
		return nil, fmt.Errorf("no such buffer %d", h)
	}
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out, nil
}

func (s *Stub) SetBufferLines(h BufferHandle, lines []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[h]
	if !ok {
		return fmt.Errorf("no such buffer %d", h)
	}
	b.lines = append([]string{}, lines...)
	return nil
}

func (s *Stub) SetModified(h BufferHandle, modified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[h]
	if !ok {
		return fmt.Errorf("no such buffer %d", h)
	}
	b.modified = modified
	return nil
}

// SetDiagnostics installs diagnostics for the buffer at path, creating an
// unloaded buffer entry if none exists yet.
func (s *Stub) SetDiagnostics(path string, diags []Diagnostic) {
	s.mu.Lock()
	h, ok := s.byPath[path]
	if !ok {
		s.nextHandle++
		h = s.nextHandle
		s.buffers[h] = &stubBuffer{name: path}
		s.byPath[path] = h
	}
	s.buffers[h].diagnostics = diags
	s.mu.Unlock()
	s.fire(EventDiagnostics)
}

func (s *Stub) Diagnostics(h BufferHandle) ([]Diagnostic, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.buffers[h]
	if !ok {
		return nil, fmt.Errorf("no such buffer %d", h)
	}
	out := make([]Diagnostic, len(b.diagnostics))
	copy(out, b.diagnostics)
	return out, nil
}

// SetCursor records the current buffer/cursor position and fires
// EventCursorMoved.
func (s *Stub) SetCursor(path string, pos Position) {
	s.mu.Lock()
	s.cursorPath = path
	s.cursorPos = pos
	s.hasCursor = true
	s.hasVisual = false
	s.mu.Unlock()
	s.fire(EventCursorMoved)
}

// SetVisualSelection records a visual-mode selection and fires
// EventCursorMoved: cursor and selection changes share one observed
// event family here, the way a real editor groups both under a single
// autocommand.
func (s *Stub) SetVisualSelection(path string, r Range) {
	s.mu.Lock()
	s.visualPath = path
	s.visualRange = r
	s.hasVisual = true
	s.mu.Unlock()
	s.fire(EventCursorMoved)
}

// SetMode updates the mode and fires EventModeChanged, bypassing
// debounce: mode changes are reported immediately.
func (s *Stub) SetMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.hasVisual = false
	s.mu.Unlock()
	s.fire(EventModeChanged)
}

// TriggerVisibleFilesChanged fires EventVisibleFiles without otherwise
// mutating state; callers mutate buffer loaded/window state directly via
// OpenBuffer before calling this.
func (s *Stub) TriggerVisibleFilesChanged() {
	s.fire(EventVisibleFiles)
}

func (s *Stub) CursorPosition() (string, Position, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorPath, s.cursorPos, s.hasCursor
}

func (s *Stub) VisualSelection() (string, Range, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visualPath, s.visualRange, s.hasVisual
}

func (s *Stub) ModeState() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

func (s *Stub) VisibleFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []string{}
	for _, b := range s.buffers {
		if b.loaded && b.name != "" {
			out = append(out, b.name)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Stub) Notify(level NotifyLevel, message string) {
	s.mu.Lock()
	s.notified = append(s.notified, StubNotification{Level: level, Message: message})
	s.mu.Unlock()
}

// Notifications returns every Notify call recorded so far, for test
// assertions.
func (s *Stub) Notifications() []StubNotification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StubNotification, len(s.notified))
	copy(out, s.notified)
	return out
}

func (s *Stub) OnEvent(family EventFamily, fn func()) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers[family] = append(s.subscribers[family], fn)
	idx := len(s.subscribers[family]) - 1
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[family]
		if idx < len(subs) {
			subs[idx] = nil
		}
	}
}

func (s *Stub) fire(family EventFamily) {
	s.mu.Lock()
	subs := append([]func(){}, s.subscribers[family]...)
	s.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn()
		}
	}
}

// ScheduleOnMainThread runs fn inline. Stub has no real threading model;
// components needing the ordering guarantees of a genuine single-writer
// thread should go through internal/bridge.
func (s *Stub) ScheduleOnMainThread(fn func()) {
	fn()
}
