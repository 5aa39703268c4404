// Package rpc implements the two wire dialects the agent may speak:
// standard JSON-RPC 2.0, and the wrapped
// clientRequest/serverResponse/serverNotification envelope family. A
// single Router auto-detects the dialect by top-level JSON key and
// dispatches to method handlers injected via Deps, keeping this package
// free of any dependency on ideops/commands (they depend on this
// package's types, not the other way around — internal/server is what
// wires the two together).
package rpc

import (
	"encoding/json"

	"github.com/wrath-codes/amp-extras/internal/amperr"
)

// Handler answers one method call. Notifications also run through
// Handler but their return value is discarded by the router.
type Handler func(params json.RawMessage) (any, error)

// Deps is the method table the router dispatches into. Dispatch is the
// commands-registry fallback for any method not named explicitly.
type Deps struct {
	Ping           Handler
	Authenticate   Handler
	ReadFile       Handler
	EditFile       Handler
	GetDiagnostics Handler
	NvimNotify     Handler
	Dispatch       func(method string, params json.RawMessage) (any, error)
}

// Router detects dialect, dispatches, and serializes responses.
type Router struct {
	deps Deps
}

// New returns a Router wired against deps.
func New(deps Deps) *Router {
	return &Router{deps: deps}
}

// HandleText processes one inbound text frame. If the frame was a
// request, response is the serialized reply and ok is true; if it was a
// notification, ok is false and response must not be written to the
// socket.
func (r *Router) HandleText(text string) (response string, ok bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return r.renderJSONRPCError(nil, amperr.New(amperr.KindParseError, "malformed JSON")), true
	}

	if raw, present := probe["clientRequest"]; present {
		return r.handleWrapped(raw)
	}
	if _, present := probe["jsonrpc"]; present {
		return r.handleJSONRPC([]byte(text), probe)
	}
	return r.renderJSONRPCError(nil, amperr.New(amperr.KindInvalidRequest, "unrecognized envelope")), true
}

func (r *Router) dispatch(method string, params json.RawMessage) (any, error) {
	switch method {
	case "ping", "ide/ping":
		return r.deps.Ping(params)
	case "authenticate":
		return r.deps.Authenticate(params)
	case "readFile", "ide/readFile":
		return r.deps.ReadFile(params)
	case "editFile", "ide/editFile":
		return r.deps.EditFile(params)
	case "getDiagnostics":
		return r.deps.GetDiagnostics(params)
	case "nvim/notify":
		return r.deps.NvimNotify(params)
	default:
		return r.deps.Dispatch(method, params)
	}
}

// --- wrapped dialect ---

func (r *Router) handleWrapped(raw json.RawMessage) (string, bool) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(raw, &env); err != nil {
		return r.renderWrappedError(nil, amperr.New(amperr.KindInvalidRequest, "malformed clientRequest")), true
	}

	idRaw, present := env["id"]
	if !present {
		return r.renderWrappedError(nil, amperr.New(amperr.KindInvalidRequest, "clientRequest missing id")), true
	}
	var id string
	if err := json.Unmarshal(idRaw, &id); err != nil {
		return r.renderWrappedError(nil, amperr.New(amperr.KindInvalidRequest, "clientRequest id must be a string")), true
	}
	delete(env, "id")

	if len(env) != 1 {
		return r.renderWrappedError(&id, amperr.New(amperr.KindInvalidRequest, "clientRequest must contain exactly one method key")), true
	}
	var method string
	var params json.RawMessage
	for k, v := range env {
		method, params = k, v
	}

	result, err := r.dispatch(method, params)
	if err != nil {
		return r.renderWrappedError(&id, err), true
	}
	resp := map[string]any{
		"serverResponse": map[string]any{
			"id":   id,
			method: result,
		},
	}
	data, _ := json.Marshal(resp)
	return string(data), true
}

func (r *Router) renderWrappedError(id *string, err error) string {
	code, message := amperr.ToWire(err)
	idVal := any(nil)
	if id != nil {
		idVal = *id
	}
	resp := map[string]any{
		"serverResponse": map[string]any{
			"id": idVal,
			"error": map[string]any{
				"code":    code,
				"message": message,
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

// --- JSON-RPC 2.0 dialect ---

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcSuccess struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result"`
}

type jsonrpcErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type jsonrpcFailure struct {
	JSONRPC string             `json:"jsonrpc"`
	ID      json.RawMessage    `json:"id"`
	Error   jsonrpcErrorObject `json:"error"`
}

func (r *Router) handleJSONRPC(raw []byte, probe map[string]json.RawMessage) (string, bool) {
	var req jsonrpcRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return r.renderJSONRPCError(nil, amperr.New(amperr.KindParseError, "malformed json-rpc request")), true
	}

	_, hasID := probe["id"]
	result, err := r.dispatch(req.Method, req.Params)

	if !hasID {
		// Notification: zero responses, even on handler error — a
		// notification's result is always dropped, never written back.
		return "", false
	}
	if err != nil {
		return r.renderJSONRPCError(req.ID, err), true
	}
	resp := jsonrpcSuccess{JSONRPC: "2.0", ID: req.ID, Result: result}
	data, _ := json.Marshal(resp)
	return string(data), true
}

func (r *Router) renderJSONRPCError(id json.RawMessage, err error) string {
	if id == nil {
		id = json.RawMessage("null")
	}
	code, message := amperr.ToWire(err)
	resp := jsonrpcFailure{JSONRPC: "2.0", ID: id, Error: jsonrpcErrorObject{Code: code, Message: message}}
	data, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		return `{"jsonrpc":"2.0","id":null,"error":{"code":-32603,"message":"internal error"}}`
	}
	return string(data)
}

// IsErrorResponse reports whether a rendered response text is an error
// response, for tests that only care about the success/failure shape.
func IsErrorResponse(text string) bool {
	var probe struct {
		Error          *jsonrpcErrorObject `json:"error"`
		ServerResponse *struct {
			Error *jsonrpcErrorObject `json:"error"`
		} `json:"serverResponse"`
	}
	if err := json.Unmarshal([]byte(text), &probe); err != nil {
		return false
	}
	if probe.Error != nil {
		return true
	}
	if probe.ServerResponse != nil && probe.ServerResponse.Error != nil {
		return true
	}
	return false
}
