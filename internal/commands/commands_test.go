package commands

import (
	"encoding/json"
	"testing"

	"github.com/wrath-codes/amp-extras/internal/bridge"
	"github.com/wrath-codes/amp-extras/internal/host"
	"github.com/wrath-codes/amp-extras/internal/hub"
	"github.com/wrath-codes/amp-extras/internal/notify"
)

func testBridge(t *testing.T) *bridge.Bridge {
	t.Helper()
	wakeCh := make(chan struct{}, 1)
	b := bridge.New(func() {
		select {
		case wakeCh <- struct{}{}:
		default:
		}
	})
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-wakeCh:
				b.Drain()
			case <-stop:
				return
			}
		}
	}()
	t.Cleanup(func() { close(stop) })
	return b
}

func TestDispatchUnknownMethodIsMethodNotFound(t *testing.T) {
	r := &Registry{handlers: map[string]Handler{}}
	if _, err := r.Dispatch("nope", nil); err == nil {
		t.Fatal("expected error for unregistered method")
	}
}

func TestSendFileRefFormatsWorkspaceRelativePath(t *testing.T) {
	stub := host.NewStub()
	stub.SetCursor("/does/not/exist/under/cwd.txt", host.Position{})
	br := testBridge(t)
	hb := hub.New()
	q := make(chan string, 4)
	hb.Register(hub.NextClientID(), q)
	st := notify.NewState()

	r := NewRegistry(stub, br, hb, st)
	res, err := r.Dispatch("send_file_ref", nil)
	if err != nil {
		t.Fatalf("send_file_ref: %v", err)
	}
	ref := res.(map[string]any)["reference"].(string)
	if ref[0] != '@' {
		t.Errorf("reference = %q, want it to start with @", ref)
	}
}

func TestSendLineRefIsOneIndexed(t *testing.T) {
	stub := host.NewStub()
	stub.SetCursor("/tmp/f.txt", host.Position{Line: 4, Character: 0})
	br := testBridge(t)
	hb := hub.New()
	st := notify.NewState()
	r := NewRegistry(stub, br, hb, st)

	res, err := r.Dispatch("send_line_ref", nil)
	if err != nil {
		t.Fatalf("send_line_ref: %v", err)
	}
	ref := res.(map[string]any)["reference"].(string)
	if ref != "@f.txt#L5" && ref != "@/tmp/f.txt#L5" {
		t.Errorf("reference = %q, want a #L5 suffix (0-indexed line 4 -> wire line 5)", ref)
	}
}

func TestSendSelectionRefSingleLineOmitsRange(t *testing.T) {
	stub := host.NewStub()
	stub.SetCursor("/tmp/f.txt", host.Position{})
	br := testBridge(t)
	hb := hub.New()
	st := notify.NewState()
	r := NewRegistry(stub, br, hb, st)

	params, _ := json.Marshal(map[string]int{"start_line": 3, "end_line": 3})
	res, err := r.Dispatch("send_selection_ref", params)
	if err != nil {
		t.Fatalf("send_selection_ref: %v", err)
	}
	ref := res.(map[string]any)["reference"].(string)
	if !contains(ref, "#L3") || contains(ref, "-L3") {
		t.Errorf("reference = %q, want single-line form", ref)
	}
}

func TestSendSelectionRefMultiLineIncludesRange(t *testing.T) {
	stub := host.NewStub()
	stub.SetCursor("/tmp/f.txt", host.Position{})
	br := testBridge(t)
	hb := hub.New()
	st := notify.NewState()
	r := NewRegistry(stub, br, hb, st)

	params, _ := json.Marshal(map[string]int{"start_line": 3, "end_line": 7})
	res, err := r.Dispatch("send_selection_ref", params)
	if err != nil {
		t.Fatalf("send_selection_ref: %v", err)
	}
	ref := res.(map[string]any)["reference"].(string)
	if !contains(ref, "#L3-L7") {
		t.Errorf("reference = %q, want a #L3-L7 range", ref)
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}
