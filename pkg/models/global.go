package models

import "strings"

// StockStatus is the availability of a variation as reported by the shop.
type StockStatus string

const (
	StockInStock     StockStatus = "instock"
	StockOutOfStock  StockStatus = "outofstock"
	StockOnBackorder StockStatus = "onbackorder"
	StockUnknown     StockStatus = "unknown"
)

// ParseStockStatus maps a raw platform value onto a known status.
func ParseStockStatus(raw string) StockStatus {
	switch s := StockStatus(strings.ToLower(strings.TrimSpace(raw))); s {
	case StockInStock, StockOutOfStock, StockOnBackorder:
		return s
	default:
		return StockUnknown
	}
}

type Product struct {
	Id          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

// Variation is the flattened, model-readable view of a purchasable child SKU.
type Variation struct {
	Id          int64             `json:"id"`
	Attributes  map[string]string `json:"attributes"`
	Price       string            `json:"price"`
	Image       string            `json:"image"`
	Permalink   string            `json:"permalink"`
	StockStatus StockStatus       `json:"stock_status"`
}

// MatchesOption reports whether any attribute value equals option,
// ignoring case and surrounding whitespace.
func (v Variation) MatchesOption(option string) bool {
	want := strings.TrimSpace(option)
	for _, value := range v.Attributes {
		if strings.EqualFold(strings.TrimSpace(value), want) {
			return true
		}
	}
	return false
}

// ProductVariations is the result of resolving a product name.
type ProductVariations struct {
	Product    Product     `json:"product"`
	Variations []Variation `json:"variations"`
}

// FindOption returns the first variation, in list order, matching option.
func (pv ProductVariations) FindOption(option string) (Variation, bool) {
	for _, v := range pv.Variations {
		if v.MatchesOption(option) {
			return v, true
		}
	}
	return Variation{}, false
}

// Buyer holds the identity used for both billing and shipping.
type Buyer struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address   string `json:"address"`
	City      string `json:"city"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

type LineItem struct {
	ProductId int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type OrderRequest struct {
	Buyer              Buyer      `json:"buyer"`
	PaymentMethod      string     `json:"payment_method"`
	PaymentMethodTitle string     `json:"payment_method_title"`
	LineItems          []LineItem `json:"line_items"`
}

type OrderResult struct {
	Id         int64  `json:"id"`
	OrderKey   string `json:"order_key"`
	PaymentURL string `json:"payment_url"`
}
