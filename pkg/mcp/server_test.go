package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/khanhduypunnd/muse-mcp/pkg/models"
)

type echoParams struct {
	Word  string `json:"word" jsonschema_description:"Word to repeat"`
	Times int    `json:"times,omitempty" jsonschema:"minimum=1"`
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	s := NewServer("muse-test", "0.0.1", WithInstructions("test server"))
	s.AddTool(
		NewTool("echo", "Repeat a word.", func(_ context.Context, p echoParams) (Result, error) {
			if p.Times == 0 {
				p.Times = 1
			}
			return Text(strings.Repeat(p.Word, p.Times)), nil
		}),
		NewTool("fail", "Always fails.", func(_ context.Context, _ struct{}) (Result, error) {
			return Result{}, errors.New("upstream_error: status 500")
		}),
	)

	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func post(t *testing.T, url, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusAccepted {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestInitialize(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	resp, out := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","clientInfo":{"name":"langchain","version":"1"}}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Mcp-Session-Id"))

	result := out["result"].(map[string]any)
	assert.Equal(t, "2025-03-26", result["protocolVersion"])
	assert.Equal(t, "muse-test", result["serverInfo"].(map[string]any)["name"])
	assert.Contains(t, result["capabilities"], "tools")

	_, out = post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":2,"method":"initialize","params":{"protocolVersion":"1999-01-01"}}`)
	assert.Equal(t, LatestProtocolVersion, out["result"].(map[string]any)["protocolVersion"])
}

func TestNotificationAccepted(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	resp, _ := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestToolsList(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	_, out := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)
	assert.Equal(t, "a", out["id"])

	tools := out["result"].(map[string]any)["tools"].([]any)
	require.Len(t, tools, 2)

	echo := tools[0].(map[string]any)
	assert.Equal(t, "echo", echo["name"])
	assert.Equal(t, "Repeat a word.", echo["description"])

	schema := echo["inputSchema"].(map[string]any)
	assert.Equal(t, "object", schema["type"])
	assert.Equal(t, []any{"word"}, schema["required"])
	props := schema["properties"].(map[string]any)
	assert.Equal(t, "Word to repeat", props["word"].(map[string]any)["description"])
	assert.Equal(t, "integer", props["times"].(map[string]any)["type"])
}

func TestToolsCall(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	_, out := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"word":"ab","times":2}}}`)
	result := out["result"].(map[string]any)
	assert.NotContains(t, result, "isError")
	content := result["content"].([]any)
	require.Len(t, content, 1)
	assert.Equal(t, "abab", content[0].(map[string]any)["text"])
}

func TestToolsCallErrors(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	_, out := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"echo","arguments":{}}}`)
	rpcErr := out["error"].(map[string]any)
	assert.Equal(t, float64(CodeInvalidParams), rpcErr["code"])
	assert.Contains(t, rpcErr["data"], "word")

	_, out = post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"nope"}}`)
	assert.Equal(t, float64(CodeInvalidParams), out["error"].(map[string]any)["code"])

	_, out = post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":6,"method":"tools/call","params":{"name":"fail"}}`)
	result := out["result"].(map[string]any)
	assert.Equal(t, true, result["isError"])
	assert.Contains(t, result["content"].([]any)[0].(map[string]any)["text"], "status 500")

	_, out = post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":7,"method":"resources/list"}`)
	assert.Equal(t, float64(CodeMethodNotFound), out["error"].(map[string]any)["code"])

	_, out = post(t, srv.URL+"/mcp", `{not json`)
	assert.Equal(t, float64(CodeParseError), out["error"].(map[string]any)["code"])
}

func TestAuditLogKind(t *testing.T) {
	t.Parallel()

	var calls, outputs bytes.Buffer
	s := NewServer("muse-test", "0.0.1", WithAuditLogs(zerolog.New(&calls), zerolog.New(&outputs)))
	s.AddTool(NewTool("missing", "Never finds anything.", func(_ context.Context, _ struct{}) (Result, error) {
		return Result{}, models.NotFound(models.StageProduct, "no product")
	}))
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	_, out := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"missing"}}`)
	assert.Equal(t, true, out["result"].(map[string]any)["isError"])

	assert.Contains(t, calls.String(), `"tool":"missing"`)
	var line map[string]any
	require.NoError(t, json.Unmarshal(outputs.Bytes(), &line))
	assert.Equal(t, "not_found", line["kind"])
	assert.Contains(t, line["error"], "no product")
}

func TestBatch(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/mcp", "application/json", strings.NewReader(`[
		{"jsonrpc":"2.0","id":1,"method":"ping"},
		{"jsonrpc":"2.0","method":"notifications/initialized"},
		{"jsonrpc":"2.0","id":2,"method":"tools/list"}
	]`))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out []Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.JSONEq(t, "1", string(out[0].ID))
	assert.JSONEq(t, "2", string(out[1].ID))
}

func TestGetMCPNotAllowed(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/mcp")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRPCDirect(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	resp, out := post(t, srv.URL+"/rpc", `{"jsonrpc":"2.0","id":9,"method":"tools/call","params":{"name":"echo","arguments":{"word":"x"}}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "x", out["result"].(map[string]any)["content"].([]any)[0].(map[string]any)["text"])
}

func TestSSESession(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse", nil)
	require.NoError(t, err)
	stream, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stream.Body.Close()
	assert.Equal(t, "text/event-stream", stream.Header.Get("Content-Type"))

	reader := bufio.NewReader(stream.Body)
	readEvent := func() (string, string) {
		var event, data string
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			line = strings.TrimRight(line, "\r\n")
			switch {
			case line == "":
				if event != "" || data != "" {
					return event, data
				}
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			}
		}
	}

	event, endpoint := readEvent()
	require.Equal(t, "endpoint", event)
	require.True(t, strings.HasPrefix(endpoint, "/rpc?session_id="))

	resp, _ := post(t, srv.URL+endpoint, `{"jsonrpc":"2.0","id":11,"method":"tools/call","params":{"name":"echo","arguments":{"word":"hi"}}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	event, data := readEvent()
	assert.Equal(t, "message", event)

	var msg Response
	require.NoError(t, json.Unmarshal([]byte(data), &msg))
	assert.JSONEq(t, "11", string(msg.ID))

	var result Result
	require.NoError(t, json.Unmarshal(msg.Result, &result))
	assert.Equal(t, "hi", result.JoinText())
}

func TestClientRoundTrip(t *testing.T) {
	t.Parallel()
	_, srv := newTestServer(t)

	client := NewClient(srv.URL)
	assert.Equal(t, srv.URL+"/mcp", client.Endpoint)
	ctx := context.Background()

	info, err := client.Initialize(ctx, Implementation{Name: "muse-agent", Version: "0.1.0"})
	require.NoError(t, err)
	assert.Equal(t, "muse-test", info.ServerInfo.Name)
	assert.Equal(t, "test server", info.Instructions)

	tools, err := client.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "echo", tools[0].Name)

	text, err := client.CallText(ctx, "echo", map[string]any{"word": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)

	_, err = client.CallText(ctx, "fail", map[string]any{})
	var toolErr *ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Message, "status 500")

	_, err = client.CallText(ctx, "echo", map[string]any{})
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)
}

func TestJoinText(t *testing.T) {
	t.Parallel()

	single := Text("one")
	assert.Equal(t, "one", single.JoinText())

	multi := Result{Content: []ContentItem{{Type: "text", Text: "a"}, {Type: "text", Text: "b"}}}
	assert.Equal(t, "Result 1 (text):\na\n\nResult 2 (text):\nb", multi.JoinText())
}
