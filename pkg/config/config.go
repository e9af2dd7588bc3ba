// Package config loads process configuration from the environment, after
// exporting an optional .env file.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/khanhduypunnd/muse-mcp/pkg/logx"
)

// Prefix is tried first for every key; the bare key is the fallback, so both
// MUSE_CONSUMER_KEY and CONSUMER_KEY work.
const Prefix = "MUSE"

// MCP configures the tool server.
type MCP struct {
	Port           int           `envconfig:"PORT" default:"8001"`
	ConsumerKey    string        `envconfig:"CONSUMER_KEY" required:"true"`
	ConsumerSecret string        `envconfig:"CONSUMER_SECRET" required:"true"`
	StoreURL       string        `envconfig:"STORE_URL" default:"https://museperfume.vn"`
	APIBaseURL     string        `envconfig:"API_BASE_URL"`
	Country        string        `envconfig:"COUNTRY" default:"VN"`
	HTTPTimeout    time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`
	TavilyAPIKey   string        `envconfig:"TAVILY_API_KEY"`
	ToolLogDir     string        `envconfig:"TOOL_LOG_DIR" default:"logs"`
	Log            logx.Config
}

// Addr is the listen address for the configured port.
func (c *MCP) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// APIBase returns the WooCommerce REST root, derived from StoreURL when not set.
func (c *MCP) APIBase() string {
	if strings.TrimSpace(c.APIBaseURL) != "" {
		return strings.TrimSuffix(c.APIBaseURL, "/")
	}
	return strings.TrimSuffix(c.StoreURL, "/") + "/wp-json/wc/v3"
}

func (c *MCP) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.ConsumerKey == "" || c.ConsumerSecret == "" {
		return fmt.Errorf("CONSUMER_KEY and CONSUMER_SECRET must be set")
	}
	for name, raw := range map[string]string{"STORE_URL": c.StoreURL, "API_BASE_URL": c.APIBase()} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("invalid %s %q", name, raw)
		}
	}
	return nil
}

// Chat configures the shopping agent server.
type Chat struct {
	Addr              string        `envconfig:"CHAT_SERVER_ADDR" default:":8090"`
	DBPath            string        `envconfig:"CHAT_DB_PATH" default:"./chat_history.db"`
	HistorySize       int           `envconfig:"CHAT_HISTORY_SIZE" default:"10"`
	MCPServerURL      string        `envconfig:"MCP_SERVER_URL" default:"http://localhost:8001"`
	Model             string        `envconfig:"AGENT_MODEL" default:"gpt-4o"`
	AgentTimeout      time.Duration `envconfig:"AGENT_TIMEOUT" default:"60s"`
	TwilioAccountSID  string        `envconfig:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken   string        `envconfig:"TWILIO_AUTH_TOKEN"`
	TwilioPhoneNumber string        `envconfig:"TWILIO_PHONE_NUMBER"`
	Log               logx.Config
}

func (c *Chat) Validate() error {
	if c.HistorySize <= 0 {
		return fmt.Errorf("invalid history size %d", c.HistorySize)
	}
	if u, err := url.Parse(c.MCPServerURL); err != nil || u.Host == "" {
		return fmt.Errorf("invalid MCP_SERVER_URL %q", c.MCPServerURL)
	}
	return nil
}

type validator interface {
	Validate() error
}

// Load exports envFiles (".env" when none are given; missing files are
// skipped) and decodes the environment into a T.
func Load[T any](envFiles ...string) (*T, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// Existing variables win over the file.
		_ = godotenv.Load(f)
	}

	var conf T
	if err := envconfig.Process(Prefix, &conf); err != nil {
		return nil, err
	}
	if v, ok := any(&conf).(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return &conf, nil
}
