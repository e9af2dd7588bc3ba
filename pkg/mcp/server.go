package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/khanhduypunnd/muse-mcp/pkg/models"
)

const (
	sessionHeader     = "Mcp-Session-Id"
	maxRequestBody    = 1 << 20
	defaultKeepalive  = 30 * time.Second
	sseClientBacklog  = 16
	sessionQueryParam = "session_id"
)

// Server dispatches JSON-RPC requests to registered tools. It serves the
// streamable HTTP transport on /mcp and the older SSE transport on /sse + /rpc.
type Server struct {
	info         Implementation
	instructions string
	tools        []Tool

	logger    zerolog.Logger
	callLog   zerolog.Logger
	outputLog zerolog.Logger
	keepalive time.Duration

	mu      sync.RWMutex
	clients map[string]*sseClient
}

type sseClient struct {
	id   string
	ch   chan Response
	done chan struct{}
}

type ServerOption func(*Server)

func WithLogger(l zerolog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithAuditLogs records every tools/call and its output, one JSON line each.
func WithAuditLogs(calls, outputs zerolog.Logger) ServerOption {
	return func(s *Server) {
		s.callLog = calls
		s.outputLog = outputs
	}
}

func WithInstructions(text string) ServerOption {
	return func(s *Server) { s.instructions = text }
}

func WithKeepalive(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.keepalive = d
		}
	}
}

func NewServer(name, version string, opts ...ServerOption) *Server {
	s := &Server{
		info:      Implementation{Name: name, Version: version},
		logger:    zerolog.Nop(),
		callLog:   zerolog.Nop(),
		outputLog: zerolog.Nop(),
		keepalive: defaultKeepalive,
		clients:   make(map[string]*sseClient),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// AddTool registers t. Tools must be added before serving; a later tool with
// the same name replaces the earlier one.
func (s *Server) AddTool(tools ...Tool) {
	for _, t := range tools {
		replaced := false
		for i := range s.tools {
			if s.tools[i].Name == t.Name {
				s.tools[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			s.tools = append(s.tools, t)
		}
	}
}

func (s *Server) Tools() []ToolInfo {
	list := make([]ToolInfo, 0, len(s.tools))
	for _, t := range s.tools {
		list = append(list, t.Info())
	}
	return list
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Post("/mcp", s.handleStreamable)
	r.Get("/mcp", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	r.Get("/sse", s.handleSSE)
	r.Post("/rpc", s.handleRPC)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}

// Handle runs one request. ok is false for notifications, which get no response.
func (s *Server) Handle(ctx context.Context, req Request) (resp Response, ok bool) {
	if req.IsNotification() {
		s.logger.Debug().Str("method", req.Method).Msg("notification")
		return Response{}, false
	}
	if req.JSONRPC != "2.0" {
		return s.replyError(req.ID, CodeInvalidRequest, "Invalid Request", map[string]any{"jsonrpc": req.JSONRPC}), true
	}

	switch req.Method {
	case "initialize":
		return s.handleInitialize(req), true
	case "ping":
		return s.replyResult(req.ID, map[string]any{}), true
	case "tools/list":
		return s.replyResult(req.ID, ListToolsResult{Tools: s.Tools()}), true
	case "tools/call":
		return s.handleToolsCall(ctx, req), true
	default:
		return s.replyError(req.ID, CodeMethodNotFound, "Method not found", map[string]any{
			"method": req.Method,
		}), true
	}
}

func (s *Server) handleInitialize(req Request) Response {
	var p InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return s.replyError(req.ID, CodeInvalidParams, "Invalid params", err.Error())
		}
	}

	s.logger.Info().
		Str("client", p.ClientInfo.Name).
		Str("client_version", p.ClientInfo.Version).
		Str("protocol", p.ProtocolVersion).
		Msg("client initialized")

	return s.replyResult(req.ID, InitializeResult{
		ProtocolVersion: negotiateVersion(p.ProtocolVersion),
		ServerInfo:      s.info,
		Capabilities: map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		Instructions: s.instructions,
	})
}

func (s *Server) handleToolsCall(ctx context.Context, req Request) Response {
	var p CallToolParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return s.replyError(req.ID, CodeInvalidParams, "Invalid params", err.Error())
	}

	s.callLog.Info().
		RawJSON("request_id", req.ID).
		Str("tool", p.Name).
		RawJSON("arguments", orEmptyObject(p.Arguments)).
		Send()

	var t *Tool
	for i := range s.tools {
		if s.tools[i].Name == p.Name {
			t = &s.tools[i]
			break
		}
	}
	if t == nil {
		return s.replyError(req.ID, CodeInvalidParams, "Invalid params", map[string]any{
			"reason": "unknown tool",
			"name":   p.Name,
		})
	}

	start := time.Now()
	result, err := t.Call(ctx, p.Arguments)
	elapsed := time.Since(start)

	var argErr *InvalidArgumentsError
	switch {
	case errors.As(err, &argErr):
		s.outputLog.Info().RawJSON("request_id", req.ID).Str("tool", p.Name).Str("error", err.Error()).Send()
		return s.replyError(req.ID, CodeInvalidParams, "Invalid params", argErr.Reason)
	case err != nil:
		// The tool ran and failed: the model gets the diagnostics as content.
		result = ErrorText(err.Error())
	}

	var kind models.ErrorKind
	if err != nil {
		kind, _ = models.KindOf(err)
	}

	s.logger.Info().
		Str("tool", p.Name).
		Dur("elapsed", elapsed).
		Bool("is_error", result.IsError).
		Msg("tool call")

	out := s.outputLog.Info().RawJSON("request_id", req.ID).Str("tool", p.Name)
	if result.IsError {
		out = out.Str("error", result.JoinText())
		if kind != "" {
			out = out.Str("kind", string(kind))
		}
	} else {
		out = out.Interface("content", result.Content)
	}
	out.Send()

	return s.replyResult(req.ID, result)
}

func (s *Server) replyResult(id json.RawMessage, result any) Response {
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Result:  mustMarshalRaw(result),
	}
}

func (s *Server) replyError(id json.RawMessage, code int, message string, data any) Response {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return Response{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
			Data:    mustMarshalRaw(data),
		},
	}
}

// --- HTTP transports ---

// handleStreamable serves POST /mcp. The body is one request or a batch;
// results are returned as JSON in the HTTP response.
func (s *Server) handleStreamable(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	reqs, batch, err := decodeRequests(body)
	if err != nil {
		writeJSON(w, http.StatusOK, s.replyError(nil, CodeParseError, "Parse error", err.Error()))
		return
	}

	var responses []Response
	for _, req := range reqs {
		resp, ok := s.Handle(r.Context(), req)
		if !ok {
			continue
		}
		if req.Method == "initialize" && resp.Error == nil {
			w.Header().Set(sessionHeader, uuid.NewString())
		}
		responses = append(responses, resp)
	}

	switch {
	case len(responses) == 0:
		w.WriteHeader(http.StatusAccepted)
	case batch:
		writeJSON(w, http.StatusOK, responses)
	default:
		writeJSON(w, http.StatusOK, responses[0])
	}
}

// handleSSE opens a session. The first event names the endpoint the client
// posts requests to; responses come back as "message" events.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	client := &sseClient{
		id:   uuid.NewString(),
		ch:   make(chan Response, sseClientBacklog),
		done: make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[client.id] = client
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, client.id)
		s.mu.Unlock()
		close(client.done)
	}()

	s.logger.Debug().Str("session", client.id).Msg("sse session opened")

	if _, err := fmt.Fprintf(w, "event: endpoint\ndata: /rpc?%s=%s\n\n", sessionQueryParam, client.id); err != nil {
		return
	}
	flusher.Flush()

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case resp := <-client.ch:
			if err := writeSSE(w, resp); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleRPC serves POST /rpc. With a live SSE session the response is
// delivered on the stream; otherwise it is written directly.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, s.replyError(nil, CodeParseError, "Parse error", err.Error()))
		return
	}

	sessionID := r.URL.Query().Get(sessionQueryParam)
	if sessionID == "" {
		sessionID = r.Header.Get("X-Client-ID")
	}

	s.mu.RLock()
	client, exists := s.clients[sessionID]
	s.mu.RUnlock()

	if exists {
		// The HTTP request ends before the tool does.
		ctx := context.WithoutCancel(r.Context())
		go s.deliver(ctx, client, req)
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
		return
	}

	resp, ok := s.Handle(r.Context(), req)
	if !ok {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) deliver(ctx context.Context, client *sseClient, req Request) {
	resp, ok := s.Handle(ctx, req)
	if !ok {
		return
	}
	select {
	case client.ch <- resp:
	case <-client.done:
	default:
		s.logger.Warn().Str("session", client.id).Msg("sse backlog full, dropping response")
	}
}

func decodeRequests(body []byte) ([]Request, bool, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false, errors.New("empty body")
	}
	if trimmed[0] == '[' {
		var reqs []Request
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return nil, true, err
		}
		return reqs, true, nil
	}
	var req Request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, false, err
	}
	return []Request{req}, false, nil
}

func writeSSE(w io.Writer, resp Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: message\ndata: %s\n\n", b)
	return err
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func orEmptyObject(raw json.RawMessage) json.RawMessage {
	if len(bytes.TrimSpace(raw)) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
