package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/khanhduypunnd/muse-mcp/pkg/config"
	"github.com/khanhduypunnd/muse-mcp/pkg/logx"
	"github.com/khanhduypunnd/muse-mcp/pkg/mcp"
	"github.com/khanhduypunnd/muse-mcp/pkg/payment"
	"github.com/khanhduypunnd/muse-mcp/pkg/platforms/woocommerce"
	"github.com/khanhduypunnd/muse-mcp/pkg/search"
	"github.com/khanhduypunnd/muse-mcp/pkg/tools"
	"github.com/khanhduypunnd/muse-mcp/pkg/utils"
)

const (
	serverName    = "Muse"
	serverVersion = "0.1.0"
)

const instructions = "Tools of the Muse perfume shop (museperfume.vn): look up perfume variations, " +
	"resolve a variation id by size, create unpaid orders and fetch the MoMo QR of the payment page."

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("mcp server stopped")
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load[config.MCP]()
	if err != nil {
		logx.Init()
		return fmt.Errorf("failed to load config: %w", err)
	}
	logx.Init(cfg.Log)

	callLog, callsFile, err := logx.FileLogger(cfg.ToolLogDir, "tool_calls.log")
	if err != nil {
		return fmt.Errorf("failed to open tool call log: %w", err)
	}
	defer closeQuietly(callsFile)

	outputLog, outputsFile, err := logx.FileLogger(cfg.ToolLogDir, "tool_outputs.log")
	if err != nil {
		return fmt.Errorf("failed to open tool output log: %w", err)
	}
	defer closeQuietly(outputsFile)

	shop := &woocommerce.Client{
		HTTPClient: utils.NewHTTPClientWithBasicAuth(cfg.ConsumerKey, cfg.ConsumerSecret, cfg.HTTPTimeout),
		BaseURL:    cfg.APIBase(),
		StoreURL:   cfg.StoreURL,
		Country:    cfg.Country,
		Logger:     log.With().Str("component", "woocommerce").Logger(),
	}

	deps := tools.Deps{
		Shop: shop,
		QR: payment.NewScraper(payment.WithHTTPClient(
			utils.NewHTTPClientWithUserAgent(payment.BrowserUserAgent, cfg.HTTPTimeout),
		)),
	}
	if cfg.TavilyAPIKey != "" {
		deps.Search = search.NewTavily(cfg.TavilyAPIKey, cfg.HTTPTimeout)
	}

	server := mcp.NewServer(serverName, serverVersion,
		mcp.WithLogger(log.With().Str("component", "mcp").Logger()),
		mcp.WithAuditLogs(callLog, outputLog),
		mcp.WithInstructions(instructions),
	)
	server.AddTool(tools.All(deps)...)

	names := make([]string, 0)
	for _, t := range server.Tools() {
		names = append(names, t.Name)
	}

	addr := cfg.Addr()
	log.Info().
		Str("addr", addr).
		Str("api_base", cfg.APIBase()).
		Strs("tools", names).
		Msgf("muse MCP server listening (streamable: http://localhost%s/mcp, sse: http://localhost%s/sse)", addr, addr)

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return httpServer.ListenAndServe()
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
