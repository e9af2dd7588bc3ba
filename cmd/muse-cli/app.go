package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/khanhduypunnd/muse-mcp/pkg/config"
	"github.com/khanhduypunnd/muse-mcp/pkg/logx"
	"github.com/khanhduypunnd/muse-mcp/pkg/mcp"
	"github.com/khanhduypunnd/muse-mcp/pkg/payment"
	"github.com/khanhduypunnd/muse-mcp/pkg/platforms/woocommerce"
	"github.com/khanhduypunnd/muse-mcp/pkg/search"
	"github.com/khanhduypunnd/muse-mcp/pkg/slug"
	"github.com/khanhduypunnd/muse-mcp/pkg/tools"
	"github.com/khanhduypunnd/muse-mcp/pkg/utils"
)

// DepsFactory builds the tool collaborators. Called once per command that
// needs the shop.
type DepsFactory func() (tools.Deps, error)

type AppOption func(*App)

func WithDeps(factory DepsFactory) AppOption {
	return func(a *App) {
		if factory != nil {
			a.newDeps = factory
		}
	}
}

func WithIO(stdout, stderr io.Writer) AppOption {
	return func(a *App) {
		if stdout != nil {
			a.stdout = stdout
		}
		if stderr != nil {
			a.stderr = stderr
		}
	}
}

// App holds CLI state and runtime dependencies.
type App struct {
	root    *cobra.Command
	newDeps DepsFactory
	stdout  io.Writer
	stderr  io.Writer

	timeout   time.Duration
	serverURL string
	verbose   bool

	order tools.CreateOrderParams
}

func NewApp(opts ...AppOption) *App {
	a := &App{
		newDeps: depsFromEnv,
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	a.root = a.newRootCommand()
	return a
}

func (a *App) Execute() error {
	return a.root.Execute()
}

func (a *App) SetArgs(args []string) {
	a.root.SetArgs(args)
}

func (a *App) newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "muse-cli",
		Short: "Run Muse shop tools from the command line",
		PersistentPreRun: func(*cobra.Command, []string) {
			logx.Init(logx.Config{Debug: a.verbose, PrettyFormat: true})
		},
		SilenceUsage: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "overall timeout of the command")
	root.PersistentFlags().BoolVar(&a.verbose, "verbose", false, "enable debug logging")

	root.AddCommand(
		a.newSlugCommand(),
		a.newVariationsCommand(),
		a.newVariationIDCommand(),
		a.newOrderCommand(),
		a.newQRCommand(),
		a.newToolsCommand(),
	)
	return root
}

func (a *App) newSlugCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "slug <product name>",
		Short: "Print the WooCommerce slug of a product name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(a.stdout, slug.Make(strings.Join(args, " ")))
			return err
		},
	}
}

func (a *App) newVariationsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "variations <product name>",
		Short: "List the variations of a product",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.callTool(cmd.Context(), tools.GetProductVariations, tools.ProductVariationsParams{
				ProductSlug: strings.Join(args, " "),
			})
		},
	}
}

func (a *App) newVariationIDCommand() *cobra.Command {
	var p tools.VariationIDParams
	cmd := &cobra.Command{
		Use:   "variation-id",
		Short: "Resolve the variation id of a product option",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.callTool(cmd.Context(), tools.GetVariationID, p)
		},
	}
	cmd.Flags().StringVar(&p.ProductName, "product", "", "product name (required)")
	cmd.Flags().StringVar(&p.Option, "option", "", "option value, e.g. 100ml (required)")
	_ = cmd.MarkFlagRequired("product")
	_ = cmd.MarkFlagRequired("option")
	return cmd
}

func (a *App) newOrderCommand() *cobra.Command {
	p := &a.order
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Create an unpaid order for one variation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.callTool(cmd.Context(), tools.CreateOrder, *p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&p.FirstName, "first-name", "", "buyer first name")
	f.StringVar(&p.LastName, "last-name", "", "buyer last name")
	f.StringVar(&p.Address, "address", "", "street address")
	f.StringVar(&p.City, "city", "", "city")
	f.StringVar(&p.Phone, "phone", "", "phone number")
	f.StringVar(&p.Email, "email", "", "email")
	f.StringVar(&p.PaymentMethod, "payment-method", "momo", "payment method id")
	f.StringVar(&p.PaymentMethodTitle, "payment-method-title", "MoMo", "payment method title")
	f.Int64Var(&p.ProductID, "variation-id", 0, "variation id (required)")
	f.IntVar(&p.Quantity, "quantity", 1, "quantity")
	for _, name := range []string{"first-name", "last-name", "address", "city", "phone", "email", "variation-id"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func (a *App) newQRCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "qr <payment page url>",
		Short: "Extract the MoMo QR image URL from a payment page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.callTool(cmd.Context(), tools.GetMomoQR, tools.MomoQRParams{PaymentPageURL: args[0]})
		},
	}
}

func (a *App) newToolsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools of a running MCP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd.Context())
			defer cancel()

			list, err := mcp.NewClient(a.serverURL).ListTools(ctx)
			if err != nil {
				return err
			}
			return a.print(mcp.ListToolsResult{Tools: list})
		},
	}
	cmd.Flags().StringVar(&a.serverURL, "server", "http://localhost:8001", "MCP server URL")
	return cmd
}

// callTool runs a tool in-process through an MCP server so that arguments
// are validated and errors rendered exactly as remote callers see them.
func (a *App) callTool(ctx context.Context, name string, params any) error {
	deps, err := a.newDeps()
	if err != nil {
		return err
	}

	server := mcp.NewServer("muse-cli", "0.1.0")
	server.AddTool(tools.All(deps)...)

	args, err := json.Marshal(params)
	if err != nil {
		return err
	}
	callParams, err := json.Marshal(mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return err
	}

	ctx, cancel := a.context(ctx)
	defer cancel()

	resp, _ := server.Handle(ctx, mcp.Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage("1"),
		Method:  "tools/call",
		Params:  callParams,
	})
	if resp.Error != nil {
		return resp.Error
	}

	var result mcp.Result
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return err
	}
	if err := a.print(result); err != nil {
		return err
	}
	if result.IsError {
		return fmt.Errorf("%s failed", name)
	}
	return nil
}

func (a *App) context(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	if a.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, a.timeout)
}

func (a *App) print(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// depsFromEnv wires the real shop from the tool server configuration.
func depsFromEnv() (tools.Deps, error) {
	cfg, err := config.Load[config.MCP]()
	if err != nil {
		return tools.Deps{}, err
	}

	deps := tools.Deps{
		Shop: &woocommerce.Client{
			HTTPClient: utils.NewHTTPClientWithBasicAuth(cfg.ConsumerKey, cfg.ConsumerSecret, cfg.HTTPTimeout),
			BaseURL:    cfg.APIBase(),
			StoreURL:   cfg.StoreURL,
			Country:    cfg.Country,
			Logger:     log.With().Str("component", "woocommerce").Logger(),
		},
		QR: payment.NewScraper(payment.WithHTTPClient(
			utils.NewHTTPClientWithUserAgent(payment.BrowserUserAgent, cfg.HTTPTimeout),
		)),
	}
	if cfg.TavilyAPIKey != "" {
		deps.Search = search.NewTavily(cfg.TavilyAPIKey, cfg.HTTPTimeout)
	}
	return deps, nil
}
