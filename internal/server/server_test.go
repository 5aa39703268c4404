package server

import (
	"context"
	"encoding/json"
	"net/url"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/wrath-codes/amp-extras/internal/amperr"
	"github.com/wrath-codes/amp-extras/internal/host"
)

func newTestConfig(t *testing.T) Config {
	t.Setenv("HOME", t.TempDir())
	return Config{IDEName: "test-ide", WorkspaceFolders: []string{"/tmp/ws"}, PluginDirectory: "/tmp/ws/.amp"}
}

func TestStartReturnsAlreadyRunningOnDoubleStart(t *testing.T) {
	s := New(newTestConfig(t), host.NewStub())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	err := s.Start()
	if !amperr.Is(err, amperr.KindAlreadyRunning) {
		t.Fatalf("second Start err = %v, want KindAlreadyRunning", err)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	s := New(newTestConfig(t), host.NewStub())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("second Stop should be a no-op, got: %v", err)
	}
	if s.IsRunning() {
		t.Error("expected IsRunning() == false after Stop")
	}
}

func TestEndToEndPingOverRealSocket(t *testing.T) {
	s := New(newTestConfig(t), host.NewStub())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	u := url.URL{Scheme: "ws", Host: "127.0.0.1:" + strconv.Itoa(s.Port()), Path: "/"}
	q := u.Query()
	// the token isn't exposed by the facade directly; read it back out of
	// the lockfile the way a real agent would.
	token := readTokenFromLockfile(t, s.Port())
	q.Set("auth", token)
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close(websocket.StatusNormalClosure, "")

	if err := client.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","id":1,"method":"ide/ping","params":{}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := client.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var parsed map[string]any
	json.Unmarshal(data, &parsed)
	result := parsed["result"].(map[string]any)
	if result["pong"] != true {
		t.Errorf("pong = %v, want true", result["pong"])
	}
}

func TestInitialStateBurstDeliversPluginMetadata(t *testing.T) {
	stub := host.NewStub()
	s := New(newTestConfig(t), stub)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	u := url.URL{Scheme: "ws", Host: "127.0.0.1:" + strconv.Itoa(s.Port()), Path: "/"}
	q := u.Query()
	q.Set("auth", readTokenFromLockfile(t, s.Port()))
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close(websocket.StatusNormalClosure, "")

	readCtx, cancelRead := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelRead()
	_, data, err := client.Read(readCtx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var parsed map[string]any
	json.Unmarshal(data, &parsed)
	sn, ok := parsed["serverNotification"].(map[string]any)
	if !ok {
		t.Fatalf("expected a serverNotification frame, got %s", data)
	}
	if _, ok := sn["pluginMetadata"]; !ok {
		t.Errorf("expected pluginMetadata to be the first broadcast frame, got %s", data)
	}
}

func TestPromptCommandsRoundTripOverRealSocket(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.PromptStorePath = t.TempDir() + "/prompts.db"
	s := New(cfg, host.NewStub())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	if s.prompts == nil {
		t.Fatal("expected the prompt store to be opened")
	}
	created, err := s.prompts.CreatePrompt("Explain code", "", "Explain this:", nil)
	if err != nil {
		t.Fatalf("CreatePrompt: %v", err)
	}

	u := url.URL{Scheme: "ws", Host: "127.0.0.1:" + strconv.Itoa(s.Port()), Path: "/"}
	q := u.Query()
	q.Set("auth", readTokenFromLockfile(t, s.Port()))
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close(websocket.StatusNormalClosure, "")

	// drain the initial-state broadcast burst before sending requests.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), 700*time.Millisecond)
	defer cancelDrain()
	for {
		if err := client.Write(drainCtx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","id":0,"method":"ide/ping","params":{}}`)); err != nil {
			break
		}
		_, data, err := client.Read(drainCtx)
		if err != nil {
			break
		}
		var parsed map[string]any
		json.Unmarshal(data, &parsed)
		if _, isResponse := parsed["result"]; isResponse {
			break
		}
	}

	if err := client.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","id":2,"method":"prompts.list","params":{}}`)); err != nil {
		t.Fatalf("write prompts.list: %v", err)
	}
	_, data, err := client.Read(ctx)
	if err != nil {
		t.Fatalf("read prompts.list: %v", err)
	}
	var listResp map[string]any
	json.Unmarshal(data, &listResp)
	result, ok := listResp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected a result frame, got %s", data)
	}
	prompts, _ := result["prompts"].([]any)
	if len(prompts) != 1 {
		t.Fatalf("len(prompts) = %d, want 1", len(prompts))
	}

	useReq := map[string]any{
		"jsonrpc": "2.0", "id": 3, "method": "prompts.use",
		"params": map[string]any{"id": created.ID},
	}
	payload, _ := json.Marshal(useReq)
	if err := client.Write(ctx, websocket.MessageText, payload); err != nil {
		t.Fatalf("write prompts.use: %v", err)
	}
	_, data, err = client.Read(ctx)
	if err != nil {
		t.Fatalf("read prompts.use: %v", err)
	}
	var useResp map[string]any
	json.Unmarshal(data, &useResp)
	useResult, ok := useResp["result"].(map[string]any)
	if !ok {
		t.Fatalf("expected a result frame, got %s", data)
	}
	if useResult["content"] != "Explain this:" {
		t.Errorf("content = %v, want %q", useResult["content"], "Explain this:")
	}

	all, err := s.prompts.ListPrompts()
	if err != nil {
		t.Fatalf("ListPrompts: %v", err)
	}
	if all[0].UsageCount != 1 {
		t.Errorf("UsageCount = %d, want 1", all[0].UsageCount)
	}
}

func TestAccountUpdateCommandRejectsMissingCommand(t *testing.T) {
	s := New(newTestConfig(t), host.NewStub())
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	u := url.URL{Scheme: "ws", Host: "127.0.0.1:" + strconv.Itoa(s.Port()), Path: "/"}
	q := u.Query()
	q.Set("auth", readTokenFromLockfile(t, s.Port()))
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close(websocket.StatusNormalClosure, "")

	if err := client.Write(ctx, websocket.MessageText, []byte(`{"jsonrpc":"2.0","id":1,"method":"account_update","params":{}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := client.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var parsed map[string]any
	json.Unmarshal(data, &parsed)
	if _, ok := parsed["error"]; !ok {
		t.Fatalf("expected an error frame for a missing command, got %s", data)
	}
}

func TestRapidCursorMovesDebounceToOneSelectionNotification(t *testing.T) {
	stub := host.NewStub()
	s := New(newTestConfig(t), stub)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	u := url.URL{Scheme: "ws", Host: "127.0.0.1:" + strconv.Itoa(s.Port()), Path: "/"}
	q := u.Query()
	q.Set("auth", readTokenFromLockfile(t, s.Port()))
	u.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close(websocket.StatusNormalClosure, "")

	// Several cursor moves, all well within the 10ms debounce window, must
	// collapse into exactly one selectionDidChange — not one per move, and
	// this must arrive well before the ~450ms initial-state burst.
	for i := 0; i < 5; i++ {
		stub.SetCursor("/tmp/ws/main.go", host.Position{Line: i, Character: 0})
	}

	readCtx, cancelRead := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancelRead()

	count := 0
	for {
		_, data, err := client.Read(readCtx)
		if err != nil {
			break
		}
		var parsed map[string]any
		json.Unmarshal(data, &parsed)
		sn, ok := parsed["serverNotification"].(map[string]any)
		if !ok {
			continue
		}
		if _, ok := sn["selectionDidChange"]; ok {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("selectionDidChange count = %d, want 1", count)
	}
}

func readTokenFromLockfile(t *testing.T, port int) string {
	t.Helper()
	// Re-derive the lockfile path the same way internal/lockfile does,
	// rather than importing it just to read one field back in a test.
	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("UserHomeDir: %v", err)
	}
	data, err := os.ReadFile(home + "/.local/share/amp/ide/" + strconv.Itoa(port) + ".json")
	if err != nil {
		t.Fatalf("reading lockfile: %v", err)
	}
	var lf struct {
		AuthToken string `json:"authToken"`
	}
	if err := json.Unmarshal(data, &lf); err != nil {
		t.Fatalf("parsing lockfile: %v", err)
	}
	return lf.AuthToken
}
