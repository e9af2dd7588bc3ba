package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhduypunnd/muse-mcp/pkg/models"
)

type nopCaller struct{}

func (nopCaller) CallText(context.Context, string, any) (string, error) { return "", nil }

func newTestApp(t *testing.T, run agentRunner, messenger Messenger) *app {
	t.Helper()
	return &app{
		model:     "gpt-4o",
		timeout:   time.Second,
		history:   newTestHistory(t, 10),
		messenger: messenger,
		mcp:       nopCaller{},
		run:       run,
		logger:    zerolog.Nop(),
	}
}

func TestChat(t *testing.T) {
	var inputs []string
	a := newTestApp(t, func(_ context.Context, _ *agents.Agent, input string) (string, error) {
		inputs = append(inputs, input)
		return "Dạ em chào anh/chị", nil
	}, nil)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	send := func(prompt string) (*http.Response, chatResponse) {
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/chat", strings.NewReader(`{"prompt":"`+prompt+`"}`))
		require.NoError(t, err)
		req.Header.Set(sessionHeader, "web-1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var out chatResponse
		if resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		}
		return resp, out
	}

	resp, out := send("xin chào")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Dạ em chào anh/chị", out.Output)
	assert.Equal(t, "web-1", out.SessionID)
	assert.Equal(t, "xin chào", inputs[0])

	_, _ = send("còn Tresor không")
	require.Len(t, inputs, 2)
	assert.True(t, strings.HasPrefix(inputs[1], "còn Tresor không"))
	assert.Contains(t, inputs[1], "Trợ lý: Dạ em chào anh/chị")

	resp, _ = send("  ")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatNewSession(t *testing.T) {
	a := newTestApp(t, func(context.Context, *agents.Agent, string) (string, error) { return "ok", nil }, nil)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/chat", "application/json", strings.NewReader(`{"prompt":"hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Len(t, resp.Header.Get(sessionHeader), 36)
}

func TestTwilioWebhook(t *testing.T) {
	messenger := &fakeMessenger{configured: true, sent: make(chan [3]string, 1)}
	a := newTestApp(t, func(context.Context, *agents.Agent, string) (string, error) { return "Dạ còn hàng ạ", nil }, messenger)
	srv := httptest.NewServer(a.routes())
	defer srv.Close()

	resp, err := http.PostForm(srv.URL+"/twilio/webhook", url.Values{
		"From": {"whatsapp:+84900000000"},
		"Body": {"Tresor còn không?"},
	})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case sent := <-messenger.sent:
		assert.Equal(t, "whatsapp:+84900000000", sent[0])
		assert.Equal(t, "Dạ còn hàng ạ", sent[1])
	case <-time.After(2 * time.Second):
		t.Fatal("reply not sent")
	}

	msgs, err := a.history.Messages(context.Background(), "whatsapp:+84900000000")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, roleUser, msgs[0].Role)

	resp, err = http.PostForm(srv.URL+"/twilio/webhook", url.Values{"From": {"+84900000000"}})
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBaseInstructions(t *testing.T) {
	text := baseInstructions(models.Buyer{FirstName: "An", City: "HCM"}, false)
	assert.Contains(t, text, `xưng hô là "em"`)
	assert.Contains(t, text, "Khách hàng tên là An.")
	assert.Contains(t, text, "Thành phố (city): HCM ✓")
	assert.Contains(t, text, "Email: CHƯA CÓ")
	assert.NotContains(t, text, "send_whatsapp")

	assert.Contains(t, baseInstructions(models.Buyer{}, true), "send_whatsapp")
}
