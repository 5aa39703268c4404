package notify

import (
	"encoding/json"
	"testing"

	"github.com/wrath-codes/amp-extras/internal/hub"
)

func subscribe(t *testing.T, h *hub.Hub) chan string {
	t.Helper()
	q := make(chan string, 16)
	h.Register(hub.NextClientID(), q)
	return q
}

func drain(t *testing.T, q chan string) []string {
	t.Helper()
	var out []string
	for {
		select {
		case m := <-q:
			out = append(out, m)
		default:
			return out
		}
	}
}

func TestPluginMetadataPayloadShape(t *testing.T) {
	h := hub.New()
	q := subscribe(t, h)
	PluginMetadata(h, "1.2.3", "/plugins/amp")

	msgs := drain(t, q)
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	var env map[string]map[string]map[string]any
	if err := json.Unmarshal([]byte(msgs[0]), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	payload := env["serverNotification"]["pluginMetadata"]
	if payload["version"] != "1.2.3" {
		t.Errorf("version = %v, want 1.2.3", payload["version"])
	}
}

func TestSelectionChangeSuppressesIdenticalState(t *testing.T) {
	h := hub.New()
	q := subscribe(t, h)
	st := NewState()

	sel := Selection{URI: "file:///a", StartLine: 1, StartChar: 0, EndLine: 1, EndChar: 0}
	st.SelectionDidChange(h, sel)
	st.SelectionDidChange(h, sel)

	if got := len(drain(t, q)); got != 1 {
		t.Fatalf("got %d broadcasts, want exactly 1 for repeated identical state", got)
	}
}

func TestSelectionChangeSendsOnRealChange(t *testing.T) {
	h := hub.New()
	q := subscribe(t, h)
	st := NewState()

	a := Selection{URI: "file:///a", StartLine: 1}
	b := Selection{URI: "file:///a", StartLine: 2}
	st.SelectionDidChange(h, a)
	st.SelectionDidChange(h, b)
	st.SelectionDidChange(h, a)

	if got := len(drain(t, q)); got != 3 {
		t.Fatalf("got %d broadcasts, want 3 for A->B->A", got)
	}
}

func TestVisibleFilesOrderInsensitiveSuppression(t *testing.T) {
	h := hub.New()
	q := subscribe(t, h)
	st := NewState()

	st.VisibleFilesDidChange(h, []string{"file:///a", "file:///b"})
	st.VisibleFilesDidChange(h, []string{"file:///b", "file:///a"})

	msgs := drain(t, q)
	if len(msgs) != 1 {
		t.Fatalf("got %d broadcasts, want 1 (order-insensitive suppression)", len(msgs))
	}
}

func TestVisibleFilesWireOutputSorted(t *testing.T) {
	h := hub.New()
	q := subscribe(t, h)
	st := NewState()

	st.VisibleFilesDidChange(h, []string{"file:///z", "file:///a"})
	msgs := drain(t, q)
	var env map[string]map[string]map[string]any
	if err := json.Unmarshal([]byte(msgs[0]), &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	uris := env["serverNotification"]["visibleFilesDidChange"]["uris"].([]any)
	if uris[0] != "file:///a" || uris[1] != "file:///z" {
		t.Errorf("uris = %v, want sorted", uris)
	}
}

func TestDiagnosticsChangeSuppressesStructurallyIdentical(t *testing.T) {
	h := hub.New()
	q := subscribe(t, h)
	st := NewState()

	entries := []DiagnosticEntry{
		{URI: "file:///a", Diagnostics: []DiagnosticRecordish{
			{Range: RangeJSON{0, 0, 0, 3}, Severity: "ERROR", Description: "bad"},
		}},
	}
	st.DiagnosticsDidChange(h, entries)
	st.DiagnosticsDidChange(h, entries)

	if got := len(drain(t, q)); got != 1 {
		t.Fatalf("got %d broadcasts, want 1", got)
	}
}

func TestUserSentMessageAndAppendToPromptAreDistinctNames(t *testing.T) {
	h := hub.New()
	q := subscribe(t, h)
	UserSentMessage(h, "hi")
	AppendToPrompt(h, "hi")

	msgs := drain(t, q)
	if len(msgs) != 2 {
		t.Fatalf("got %d broadcasts, want 2", len(msgs))
	}
	if msgs[0] == msgs[1] {
		t.Fatal("expected distinct notification names for identical payload shape")
	}
}

func TestTwoClientsReceiveIdenticalBroadcast(t *testing.T) {
	h := hub.New()
	a := subscribe(t, h)
	b := subscribe(t, h)
	PluginMetadata(h, "1.0.0", "/dir")

	msgsA := drain(t, a)
	msgsB := drain(t, b)
	if len(msgsA) != 1 || len(msgsB) != 1 || msgsA[0] != msgsB[0] {
		t.Fatalf("expected both clients to get one identical message, got %v / %v", msgsA, msgsB)
	}
}
