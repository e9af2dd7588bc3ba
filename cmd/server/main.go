package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/tracing"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/khanhduypunnd/muse-mcp/pkg/config"
	"github.com/khanhduypunnd/muse-mcp/pkg/logx"
	"github.com/khanhduypunnd/muse-mcp/pkg/mcp"
)

const (
	agentName      = "MuseAssistant"
	sessionHeader  = "X-Session-ID"
	clientName     = "muse-agent"
	clientVersion  = "0.1.0"
	discoveryLimit = 10 * time.Second
)

// chatRequest is the payload accepted by the /chat endpoint.
type chatRequest struct {
	Prompt string `json:"prompt"`
}

type chatResponse struct {
	Output    string `json:"output"`
	SessionID string `json:"session_id"`
}

// agentRunner runs one agent turn and returns its final text.
type agentRunner func(ctx context.Context, agent *agents.Agent, input string) (string, error)

func runAgent(ctx context.Context, agent *agents.Agent, input string) (string, error) {
	result, err := agents.Run(ctx, agent, input)
	if err != nil {
		return "", err
	}
	if out, ok := result.FinalOutput.(string); ok {
		return out, nil
	}
	return fmt.Sprint(result.FinalOutput), nil
}

type app struct {
	model     string
	timeout   time.Duration
	history   *History
	messenger Messenger
	mcp       toolCaller
	// available is nil when discovery failed; every shop tool is then offered.
	available map[string]bool
	run       agentRunner
	logger    zerolog.Logger
}

func main() {
	cfg, err := config.Load[config.Chat]()
	if err != nil {
		logx.Init()
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logx.Init(cfg.Log)

	tracing.SetTracingDisabled(true)

	history, err := NewHistory(cfg.DBPath, cfg.HistorySize)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize database")
		os.Exit(1)
	}
	defer func() { _ = history.Close() }()

	messenger := NewTwilioMessenger(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber,
		log.With().Str("component", "twilio").Logger())
	if messenger.Configured() {
		log.Info().Msg("twilio client initialized")
	} else {
		log.Warn().Msg("twilio not configured (set TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_PHONE_NUMBER)")
	}

	client := mcp.NewClient(cfg.MCPServerURL, mcp.WithUserAgent(clientName+"/"+clientVersion))

	a := &app{
		model:     cfg.Model,
		timeout:   cfg.AgentTimeout,
		history:   history,
		messenger: messenger,
		mcp:       client,
		available: discoverTools(client),
		run:       runAgent,
		logger:    log.With().Str("component", "chat").Logger(),
	}

	log.Info().
		Str("addr", cfg.Addr).
		Str("mcp", client.Endpoint).
		Msgf("chat server listening, twilio webhook: http://localhost%s/twilio/webhook", cfg.Addr)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := httpServer.ListenAndServe(); err != nil {
		log.Error().Err(err).Msg("chat server error")
		os.Exit(1)
	}
}

// discoverTools asks the MCP server for its tools. A failure is logged and
// yields nil.
func discoverTools(client *mcp.Client) map[string]bool {
	ctx, cancel := context.WithTimeout(context.Background(), discoveryLimit)
	defer cancel()

	info, err := client.Initialize(ctx, mcp.Implementation{Name: clientName, Version: clientVersion})
	if err != nil {
		log.Warn().Err(err).Str("mcp", client.Endpoint).Msg("MCP server not reachable, tools not discovered")
		return nil
	}
	list, err := client.ListTools(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("tools/list failed")
		return nil
	}

	available := make(map[string]bool, len(list))
	names := make([]string, 0, len(list))
	for _, t := range list {
		available[t.Name] = true
		names = append(names, t.Name)
	}
	log.Info().
		Str("server", info.ServerInfo.Name).
		Str("protocol", info.ProtocolVersion).
		Strs("tools", names).
		Msg("discovered MCP tools")
	return available
}

func (a *app) routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/chat", a.handleChat)
	r.Post("/twilio/webhook", a.handleTwilio)

	return r
}

func (a *app) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	reply, err := a.respond(r.Context(), sessionID, "", req.Prompt)
	if err != nil {
		http.Error(w, fmt.Sprintf("agent error: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(sessionHeader, sessionID)
	if err := json.NewEncoder(w).Encode(chatResponse{Output: reply, SessionID: sessionID}); err != nil {
		a.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (a *app) handleTwilio(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form data", http.StatusBadRequest)
		return
	}

	from := r.FormValue("From")
	body := strings.TrimSpace(r.FormValue("Body"))
	if from == "" || body == "" {
		http.Error(w, "missing From or Body", http.StatusBadRequest)
		return
	}

	phone := formatPhoneNumber(from)
	a.logger.Info().Str("from", phone).Str("sid", r.FormValue("MessageSid")).Msg("whatsapp message received")

	reply, err := a.respond(r.Context(), phone, phone, body)
	if err != nil {
		a.logger.Error().Err(err).Str("from", phone).Msg("agent failed")
		reply = "Xin lỗi anh/chị, em đang gặp sự cố. Anh/chị vui lòng thử lại sau ạ."
	}

	if reply != "" && a.messenger != nil && a.messenger.Configured() {
		go func() {
			if err := a.messenger.Send(phone, reply, ""); err != nil {
				a.logger.Error().Err(err).Str("to", phone).Msg("failed to send reply")
			}
		}()
	}

	w.WriteHeader(http.StatusOK)
}

// respond runs one agent turn for sessionID and stores both sides of it.
// phone is set for WhatsApp sessions.
func (a *app) respond(ctx context.Context, sessionID, phone, text string) (string, error) {
	transcript, err := a.history.Transcript(ctx, sessionID)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to load history")
	}
	if err := a.history.AddMessage(ctx, sessionID, roleUser, text); err != nil {
		a.logger.Warn().Err(err).Msg("failed to store user message")
	}

	buyer, err := a.history.Buyer(ctx, sessionID)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to load buyer")
	}

	conv := &Conversation{
		SessionID: sessionID,
		Phone:     phone,
		MCP:       a.mcp,
		Store:     a.history,
		Messenger: a.messenger,
		Logger:    a.logger.With().Str("session", sessionID).Logger(),
	}
	whatsapp := phone != "" && a.messenger != nil && a.messenger.Configured()

	agent := agents.New(agentName).
		WithInstructions(baseInstructions(buyer, whatsapp)).
		WithModel(a.model).
		WithTools(agentTools(conv, a.available)...)

	timeout := a.timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply, err := a.run(ctx, agent, text+transcript)
	if err != nil {
		return "", err
	}

	if err := a.history.AddMessage(context.WithoutCancel(ctx), sessionID, roleAssistant, reply); err != nil {
		a.logger.Warn().Err(err).Msg("failed to store assistant message")
	}
	return reply, nil
}
