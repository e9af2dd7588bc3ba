// Package tools defines the shop operations exposed to the model.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/khanhduypunnd/muse-mcp/pkg/mcp"
	"github.com/khanhduypunnd/muse-mcp/pkg/models"
	"github.com/khanhduypunnd/muse-mcp/pkg/payment"
	"github.com/khanhduypunnd/muse-mcp/pkg/search"
)

// Tool names, as the agent prompt refers to them.
const (
	GetProductVariations = "get_product_variations"
	GetVariationID       = "get_product_id_by_name_and_option"
	CreateOrder          = "create_order"
	GetMomoQR            = "get_momo_qr_image_url"
	WebSearch            = "tavily_web_search"
)

// DescriptionPrefix marks the product description appended to a variation list.
const DescriptionPrefix = "description:"

// MissingVariationID is reported when no variation matches. Prompts written
// for the shop check for it literally.
const MissingVariationID = -1

type Catalog interface {
	ProductVariations(ctx context.Context, productName string) (models.ProductVariations, error)
	VariationIDByOption(ctx context.Context, productName, option string) (int64, bool, error)
}

type OrderCreator interface {
	CreateOrder(ctx context.Context, order models.OrderRequest) (models.OrderResult, error)
}

type Shop interface {
	Catalog
	OrderCreator
}

// Deps are the collaborators of the tool set. Search is optional; the web
// search tool is only registered when it is set.
type Deps struct {
	Shop   Shop
	QR     payment.QRLocator
	Search search.Searcher
}

// All returns every tool deps can serve, in registration order.
func All(deps Deps) []mcp.Tool {
	list := []mcp.Tool{
		ProductVariationsTool(deps.Shop),
		VariationIDTool(deps.Shop),
		CreateOrderTool(deps.Shop),
		MomoQRTool(deps.QR),
	}
	if deps.Search != nil {
		list = append(list, WebSearchTool(deps.Search))
	}
	return list
}

type ProductVariationsParams struct {
	ProductSlug string `json:"product_slug" jsonschema_description:"Product name or slug, e.g. \"Lancôme Trésor La Nuit EDP\". It is normalized to a WooCommerce slug."`
}

func ProductVariationsTool(catalog Catalog) mcp.Tool {
	return mcp.NewTool(GetProductVariations,
		"Retrieves the variations of a perfume by product name or slug: id, attributes (e.g. size), price, image, permalink and stock status, "+
			"followed by a final \""+DescriptionPrefix+"...\" entry with the product description.",
		func(ctx context.Context, p ProductVariationsParams) (mcp.Result, error) {
			if strings.TrimSpace(p.ProductSlug) == "" {
				return mcp.Result{}, &mcp.InvalidArgumentsError{Tool: GetProductVariations, Reason: "product_slug is empty"}
			}
			pv, err := catalog.ProductVariations(ctx, p.ProductSlug)
			if err != nil {
				return mcp.Result{}, err
			}
			return mcp.JSON(VariationList(pv))
		})
}

// VariationList is the model-facing rendering of pv: one object per
// variation, then the description marker.
func VariationList(pv models.ProductVariations) []any {
	out := make([]any, 0, len(pv.Variations)+1)
	for _, v := range pv.Variations {
		out = append(out, v)
	}
	return append(out, DescriptionPrefix+pv.Product.Description)
}

type VariationIDParams struct {
	ProductName string `json:"product_name" jsonschema_description:"Main product name, e.g. Chanel Bleu EDP"`
	Option      string `json:"option" jsonschema_description:"Wanted option value, e.g. 100ml"`
}

type VariationIDResult struct {
	Found       bool   `json:"found"`
	VariationID int64  `json:"variation_id"`
	Reason      string `json:"reason,omitempty"`
}

func VariationIDTool(catalog Catalog) mcp.Tool {
	return mcp.NewTool(GetVariationID,
		"Trả về ID của biến thể (variation) theo tên sản phẩm và option (ví dụ: dung tích), dùng để tạo đơn hàng chính xác. "+
			"variation_id is -1 when nothing matches.",
		func(ctx context.Context, p VariationIDParams) (mcp.Result, error) {
			return mcp.JSON(LookupVariationID(ctx, catalog, p.ProductName, p.Option))
		})
}

// LookupVariationID never fails: resolver errors are reported in Reason.
func LookupVariationID(ctx context.Context, catalog Catalog, productName, option string) VariationIDResult {
	id, ok, err := catalog.VariationIDByOption(ctx, productName, option)
	switch {
	case err != nil:
		return VariationIDResult{VariationID: MissingVariationID, Reason: err.Error()}
	case !ok:
		return VariationIDResult{
			VariationID: MissingVariationID,
			Reason:      fmt.Sprintf("no variation of %q has option %q", productName, option),
		}
	default:
		return VariationIDResult{Found: true, VariationID: id}
	}
}

type CreateOrderParams struct {
	FirstName          string `json:"first_name" jsonschema_description:"Buyer first name"`
	LastName           string `json:"last_name" jsonschema_description:"Buyer last name"`
	PaymentMethod      string `json:"payment_method" jsonschema_description:"WooCommerce payment method id, e.g. momo"`
	PaymentMethodTitle string `json:"payment_method_title" jsonschema_description:"Payment method title shown on the order"`
	Address            string `json:"address" jsonschema_description:"Street address"`
	City               string `json:"city" jsonschema_description:"City, also used as state"`
	Phone              string `json:"phone" jsonschema_description:"Buyer phone number"`
	Email              string `json:"email" jsonschema_description:"Buyer email"`
	ProductID          int64  `json:"product_id" jsonschema_description:"Variation id from get_product_id_by_name_and_option"`
	Quantity           int    `json:"quantity,omitempty" jsonschema:"minimum=1,default=1" jsonschema_description:"Quantity to buy"`
}

func (p CreateOrderParams) Request() models.OrderRequest {
	qty := p.Quantity
	if qty == 0 {
		qty = 1
	}
	return models.OrderRequest{
		Buyer: models.Buyer{
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Address:   p.Address,
			City:      p.City,
			Phone:     p.Phone,
			Email:     p.Email,
		},
		PaymentMethod:      p.PaymentMethod,
		PaymentMethodTitle: p.PaymentMethodTitle,
		LineItems:          []models.LineItem{{ProductId: p.ProductID, Quantity: qty}},
	}
}

func CreateOrderTool(orders OrderCreator) mcp.Tool {
	return mcp.NewTool(CreateOrder,
		"Tạo đơn hàng WooCommerce (chưa thanh toán) và trả về mã đơn cùng link thanh toán có mã QR MoMo.",
		func(ctx context.Context, p CreateOrderParams) (mcp.Result, error) {
			if p.Quantity < 0 {
				return mcp.Result{}, &mcp.InvalidArgumentsError{Tool: CreateOrder, Reason: "quantity must be at least 1"}
			}
			res, err := orders.CreateOrder(ctx, p.Request())
			if err != nil {
				return mcp.Result{}, err
			}
			return mcp.Text(OrderMessage(res)), nil
		})
}

func OrderMessage(res models.OrderResult) string {
	return fmt.Sprintf("Đơn hàng đã được tạo thành công!\nMã đơn: %d\nLink mã thanh toán:\n%s", res.Id, res.PaymentURL)
}

type MomoQRParams struct {
	PaymentPageURL string `json:"payment_page_url" jsonschema_description:"Payment link returned by create_order"`
}

func MomoQRTool(locator payment.QRLocator) mcp.Tool {
	return mcp.NewTool(GetMomoQR,
		"Truy cập link thanh toán WooCommerce và lấy URL hình ảnh mã QR MoMo.",
		func(ctx context.Context, p MomoQRParams) (mcp.Result, error) {
			if strings.TrimSpace(p.PaymentPageURL) == "" {
				return mcp.Result{}, &mcp.InvalidArgumentsError{Tool: GetMomoQR, Reason: "payment_page_url is empty"}
			}
			src, err := locator.LocateQR(ctx, p.PaymentPageURL)
			if err != nil {
				return mcp.Result{}, err
			}
			return mcp.Text(src), nil
		})
}

type WebSearchParams struct {
	Query string `json:"query" jsonschema_description:"Search query about perfume buying, reviews or market trends"`
}

func WebSearchTool(searcher search.Searcher) mcp.Tool {
	return mcp.NewTool(WebSearch,
		"Perform a web search. Only for perfume buying, reviews or market trends; use get_product_variations for shop products.",
		func(ctx context.Context, p WebSearchParams) (mcp.Result, error) {
			if strings.TrimSpace(p.Query) == "" {
				return mcp.Result{}, &mcp.InvalidArgumentsError{Tool: WebSearch, Reason: "query is empty"}
			}
			out, err := searcher.Search(ctx, p.Query)
			if err != nil {
				return mcp.Result{}, err
			}
			return mcp.JSON(out)
		})
}
