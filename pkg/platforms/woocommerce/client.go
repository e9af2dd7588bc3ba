// Package woocommerce talks to the WooCommerce REST API (v3) of the shop:
// product and variation lookup and order creation.
package woocommerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/khanhduypunnd/muse-mcp/pkg/models"
	"github.com/khanhduypunnd/muse-mcp/pkg/slug"
)

const (
	DefaultCountry = "VN"
	// variationsPageSize is the largest page WooCommerce accepts.
	variationsPageSize = 100
)

// Client is safe for concurrent use; it holds no mutable state. Credentials
// live in HTTPClient's transport (see utils.NewHTTPClientWithBasicAuth).
type Client struct {
	HTTPClient *http.Client
	// BaseURL is the REST root, e.g. https://museperfume.vn/wp-json/wc/v3.
	BaseURL string
	// StoreURL is the storefront root used to build payment links.
	StoreURL string
	// Country is written to billing and shipping. Defaults to "VN".
	Country string
	Logger  zerolog.Logger
}

// ProductBySlug fetches the single product whose slug matches.
func (client *Client) ProductBySlug(ctx context.Context, productSlug string) (models.Product, error) {
	endpoint, err := client.endpoint("/products", url.Values{
		"slug":     {productSlug},
		"per_page": {"1"},
	})
	if err != nil {
		return models.Product{}, err
	}

	var products []models.WooProduct
	if err := client.getJSON(ctx, models.StageProduct, endpoint, &products); err != nil {
		return models.Product{}, err
	}
	if len(products) == 0 {
		return models.Product{}, models.NotFound(models.StageProduct, "no product found with slug %q", productSlug)
	}
	return products[0].Standardise(), nil
}

// Variations lists the variations of a product in the order the shop returns them.
func (client *Client) Variations(ctx context.Context, productID int64) ([]models.Variation, error) {
	endpoint, err := client.endpoint(fmt.Sprintf("/products/%d/variations", productID), url.Values{
		"per_page": {strconv.Itoa(variationsPageSize)},
	})
	if err != nil {
		return nil, err
	}

	var raw []models.WooVariation
	if err := client.getJSON(ctx, models.StageVariations, endpoint, &raw); err != nil {
		return nil, err
	}

	variations := make([]models.Variation, 0, len(raw))
	for i := range raw {
		variations = append(variations, raw[i].Standardise())
	}
	return variations, nil
}

// ProductVariations resolves a human-typed product name to its product and
// variations. Both lookups must succeed; no partial result is returned.
func (client *Client) ProductVariations(ctx context.Context, productName string) (models.ProductVariations, error) {
	productSlug := slug.Make(productName)
	if productSlug == "" {
		// An empty slug filter is ignored by WooCommerce and matches the newest product.
		return models.ProductVariations{}, models.NotFound(models.StageProduct, "product name %q has no usable slug", productName)
	}

	product, err := client.ProductBySlug(ctx, productSlug)
	if err != nil {
		return models.ProductVariations{}, err
	}

	variations, err := client.Variations(ctx, product.Id)
	if err != nil {
		return models.ProductVariations{}, err
	}
	if len(variations) == 0 {
		return models.ProductVariations{}, models.NotFound(models.StageVariations, "no variations found for product %q", product.Name)
	}

	return models.ProductVariations{Product: product, Variations: variations}, nil
}

// VariationIDByOption returns the id of the first variation of productName
// having an attribute value equal to option (trimmed, case-insensitive).
// ok is false when nothing matches or when the product could not be
// resolved; in the latter case err says why.
func (client *Client) VariationIDByOption(ctx context.Context, productName, option string) (id int64, ok bool, err error) {
	pv, err := client.ProductVariations(ctx, productName)
	if err != nil {
		client.Logger.Debug().Err(err).Str("product", productName).Msg("variation lookup could not resolve product")
		return 0, false, err
	}
	v, ok := pv.FindOption(option)
	if !ok {
		return 0, false, nil
	}
	return v.Id, true, nil
}

// CreateOrder submits an unpaid, pending order. Billing and shipping are
// filled from the same buyer. Only HTTP 201 counts as success.
func (client *Client) CreateOrder(ctx context.Context, order models.OrderRequest) (models.OrderResult, error) {
	endpoint, err := client.endpoint("/orders", nil)
	if err != nil {
		return models.OrderResult{}, err
	}

	payload, err := json.Marshal(client.orderPayload(order))
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("failed to marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.OrderResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	status, body, err := client.do(req)
	if err != nil {
		return models.OrderResult{}, models.Upstream(models.StageOrder, 0, "", err)
	}
	if status != http.StatusCreated {
		return models.OrderResult{}, models.Upstream(models.StageOrder, status, string(body), nil)
	}

	var created models.WooOrder
	if err := json.Unmarshal(body, &created); err != nil {
		return models.OrderResult{}, models.Upstream(models.StageOrder, status, string(body), err)
	}

	client.Logger.Info().Int64("order_id", created.ID).Msg("order created")

	return models.OrderResult{
		Id:         created.ID,
		OrderKey:   created.OrderKey,
		PaymentURL: PaymentURL(client.StoreURL, created.ID, created.OrderKey),
	}, nil
}

// PaymentURL builds the order-received page URL that renders the QR code.
func PaymentURL(storeURL string, orderID int64, orderKey string) string {
	return fmt.Sprintf("%s/checkout/order-received/%d/?key=%s",
		strings.TrimSuffix(storeURL, "/"), orderID, url.QueryEscape(orderKey))
}

func (client *Client) orderPayload(order models.OrderRequest) models.WooOrderCreate {
	country := client.Country
	if country == "" {
		country = DefaultCountry
	}

	b := order.Buyer
	address := models.WooAddress{
		FirstName: b.FirstName,
		LastName:  b.LastName,
		Address1:  b.Address,
		Address2:  "",
		City:      b.City,
		State:     b.City,
		Postcode:  "",
		Country:   country,
	}

	items := make([]models.WooLineItem, 0, len(order.LineItems))
	for _, li := range order.LineItems {
		qty := li.Quantity
		if qty == 0 {
			qty = 1
		}
		items = append(items, models.WooLineItem{ProductID: li.ProductId, Quantity: qty})
	}

	return models.WooOrderCreate{
		PaymentMethod:      order.PaymentMethod,
		PaymentMethodTitle: order.PaymentMethodTitle,
		SetPaid:            false,
		Status:             "pending",
		Billing:            models.WooBilling{WooAddress: address, Email: b.Email, Phone: b.Phone},
		Shipping:           address,
		LineItems:          items,
	}
}

func (client *Client) getJSON(ctx context.Context, stage, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	status, body, err := client.do(req)
	if err != nil {
		return models.Upstream(stage, 0, "", err)
	}
	if status != http.StatusOK {
		return models.Upstream(stage, status, string(body), nil)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return models.Upstream(stage, status, string(body), err)
	}
	return nil
}

func (client *Client) do(req *http.Request) (int, []byte, error) {
	httpClient := client.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		client.Logger.Warn().Err(err).Str("url", req.URL.Redacted()).Msg("woocommerce request failed")
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	client.Logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Msg("woocommerce response")

	return resp.StatusCode, body, nil
}

// endpoint joins path onto BaseURL. If the base has no scheme, https:// is assumed.
func (client *Client) endpoint(path string, query url.Values) (string, error) {
	in := strings.TrimSpace(client.BaseURL)
	if in == "" {
		return "", fmt.Errorf("woocommerce base URL is empty")
	}
	if !strings.Contains(in, "://") {
		in = "https://" + in
	}

	u, err := url.Parse(in)
	if err != nil {
		return "", err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("unsupported URL scheme %q (must be http or https)", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid base URL (missing host): %q", client.BaseURL)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()
	u.Fragment = ""
	return u.String(), nil
}
