package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khanhduypunnd/muse-mcp/pkg/mcp"
	"github.com/khanhduypunnd/muse-mcp/pkg/models"
	"github.com/khanhduypunnd/muse-mcp/pkg/tools"
)

type stubShop struct {
	placed []models.OrderRequest
}

func (s *stubShop) ProductVariations(_ context.Context, name string) (models.ProductVariations, error) {
	if name != "Tresor" {
		return models.ProductVariations{}, models.NotFound(models.StageProduct, "no product found with slug %q", name)
	}
	return models.ProductVariations{
		Product:    models.Product{Id: 7, Description: "vani"},
		Variations: []models.Variation{{Id: 502, Attributes: map[string]string{"size": "100ml"}}},
	}, nil
}

func (s *stubShop) VariationIDByOption(ctx context.Context, name, option string) (int64, bool, error) {
	pv, err := s.ProductVariations(ctx, name)
	if err != nil {
		return 0, false, err
	}
	v, ok := pv.FindOption(option)
	return v.Id, ok, nil
}

func (s *stubShop) CreateOrder(_ context.Context, order models.OrderRequest) (models.OrderResult, error) {
	s.placed = append(s.placed, order)
	return models.OrderResult{Id: 42, PaymentURL: "https://museperfume.vn/checkout/order-received/42/?key=wc_abc"}, nil
}

type stubQR struct{}

func (stubQR) LocateQR(context.Context, string) (string, error) {
	return "", models.HeuristicExhausted(models.StagePaymentPage, "no QR code found on payment page")
}

func run(t *testing.T, shop *stubShop, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := NewApp(
		WithIO(&out, &bytes.Buffer{}),
		WithDeps(func() (tools.Deps, error) { return tools.Deps{Shop: shop, QR: stubQR{}}, nil }),
	)
	app.SetArgs(args)
	err := app.Execute()
	return out.String(), err
}

func decode(t *testing.T, out string) mcp.Result {
	t.Helper()
	var res mcp.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	return res
}

func TestSlugCommand(t *testing.T) {
	out, err := run(t, &stubShop{}, "slug", "Lancôme", "Trésor", "La", "Nuit", "EDP")
	require.NoError(t, err)
	assert.Equal(t, "lancome-tresor-la-nuit-edp\n", out)
}

func TestVariationsCommand(t *testing.T) {
	out, err := run(t, &stubShop{}, "variations", "Tresor")
	require.NoError(t, err)
	res := decode(t, out)
	assert.False(t, res.IsError)
	assert.Contains(t, res.JoinText(), `"description:vani"`)

	out, err = run(t, &stubShop{}, "variations", "Unknown")
	require.Error(t, err)
	res = decode(t, out)
	assert.True(t, res.IsError)
	assert.Contains(t, res.JoinText(), "not_found")
}

func TestVariationIDCommand(t *testing.T) {
	out, err := run(t, &stubShop{}, "variation-id", "--product", "Tresor", "--option", "100ML")
	require.NoError(t, err)

	var got tools.VariationIDResult
	require.NoError(t, json.Unmarshal([]byte(decode(t, out).JoinText()), &got))
	assert.True(t, got.Found)
	assert.Equal(t, int64(502), got.VariationID)

	_, err = run(t, &stubShop{}, "variation-id", "--product", "Tresor")
	assert.Error(t, err)
}

func TestOrderCommand(t *testing.T) {
	shop := &stubShop{}
	out, err := run(t, shop, "order",
		"--first-name", "An", "--last-name", "Nguyen", "--address", "1 Le Loi", "--city", "HCM",
		"--phone", "0900000000", "--email", "an@example.com", "--variation-id", "502", "--quantity", "2")
	require.NoError(t, err)
	assert.Contains(t, decode(t, out).JoinText(), "/checkout/order-received/42/?key=wc_abc")

	require.Len(t, shop.placed, 1)
	assert.Equal(t, "momo", shop.placed[0].PaymentMethod)
	assert.Equal(t, []models.LineItem{{ProductId: 502, Quantity: 2}}, shop.placed[0].LineItems)
}

func TestQRCommandHeuristicExhausted(t *testing.T) {
	out, err := run(t, &stubShop{}, "qr", "https://museperfume.vn/checkout/order-received/42/?key=wc_abc")
	require.Error(t, err)
	res := decode(t, out)
	assert.True(t, res.IsError)
	assert.Contains(t, res.JoinText(), "heuristic_exhausted")
}

func TestDepsError(t *testing.T) {
	app := NewApp(
		WithIO(&bytes.Buffer{}, &bytes.Buffer{}),
		WithDeps(func() (tools.Deps, error) { return tools.Deps{}, errors.New("CONSUMER_KEY and CONSUMER_SECRET must be set") }),
	)
	app.SetArgs([]string{"variations", "Tresor"})
	assert.ErrorContains(t, app.Execute(), "CONSUMER_KEY")
}
