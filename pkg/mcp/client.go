package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// Client calls a remote MCP server over the streamable HTTP transport.
type Client struct {
	Endpoint  string
	HTTP      *http.Client
	UserAgent string

	nextID atomic.Int64
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.HTTP = h
		}
	}
}

func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		if strings.TrimSpace(ua) != "" {
			c.UserAgent = ua
		}
	}
}

// NewClient targets serverURL; "/mcp" is appended unless the URL already
// names an endpoint.
func NewClient(serverURL string, opts ...ClientOption) *Client {
	endpoint := strings.TrimSuffix(strings.TrimSpace(serverURL), "/")
	if !strings.HasSuffix(endpoint, "/mcp") && !strings.HasSuffix(endpoint, "/rpc") {
		endpoint += "/mcp"
	}
	c := &Client{
		Endpoint:  endpoint,
		HTTP:      &http.Client{Timeout: 60 * time.Second},
		UserAgent: "muse-mcp-client/0.1.0",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) Initialize(ctx context.Context, info Implementation) (InitializeResult, error) {
	var out InitializeResult
	err := c.call(ctx, "initialize", InitializeParams{
		ProtocolVersion: LatestProtocolVersion,
		ClientInfo:      info,
		Capabilities:    map[string]any{},
	}, &out)
	return out, err
}

func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var out ListToolsResult
	if err := c.call(ctx, "tools/list", map[string]any{}, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

// CallTool invokes a tool. A tool that ran and failed is not a Go error:
// check Result.IsError.
func (c *Client) CallTool(ctx context.Context, name string, args any) (Result, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Result{}, fmt.Errorf("marshal arguments: %w", err)
	}
	var out Result
	err = c.call(ctx, "tools/call", CallToolParams{Name: name, Arguments: raw}, &out)
	return out, err
}

// ToolError is a tools/call result flagged isError.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// CallText invokes a tool and returns its joined text, turning an isError
// result into a *ToolError.
func (c *Client) CallText(ctx context.Context, name string, args any) (string, error) {
	res, err := c.CallTool(ctx, name, args)
	if err != nil {
		return "", err
	}
	if res.IsError {
		return "", &ToolError{Tool: name, Message: res.JoinText()}
	}
	return res.JoinText(), nil
}

func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	reqBody := struct {
		JSONRPC string `json:"jsonrpc"`
		ID      int64  `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params,omitempty"`
	}{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	b, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal MCP request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build MCP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	httpReq.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call MCP server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("MCP server returned status %s", resp.Status)
	}

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode MCP response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if len(rpcResp.Result) == 0 {
		return errors.New("MCP response missing result")
	}
	if err := json.Unmarshal(rpcResp.Result, out); err != nil {
		return fmt.Errorf("decode MCP result: %w", err)
	}
	return nil
}
