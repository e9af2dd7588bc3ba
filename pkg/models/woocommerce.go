package models

// WooProduct is the subset of a WooCommerce v3 product the tools read.
type WooProduct struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
}

func (product *WooProduct) Standardise() Product {
	return Product{
		Id:          product.ID,
		Name:        product.Name,
		Slug:        product.Slug,
		Description: product.Description,
	}
}

type WooAttribute struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Option string `json:"option"`
}

type WooImage struct {
	ID  int64  `json:"id"`
	Src string `json:"src"`
	Alt string `json:"alt"`
}

type WooVariation struct {
	ID          int64          `json:"id"`
	Attributes  []WooAttribute `json:"attributes"`
	Price       string         `json:"price"`
	Image       *WooImage      `json:"image"`
	Permalink   string         `json:"permalink"`
	StockStatus string         `json:"stock_status"`
}

// Standardise projects a WooCommerce variation into a Variation. A repeated
// attribute name keeps the last option.
func (variation *WooVariation) Standardise() Variation {
	v := Variation{
		Id:          variation.ID,
		Attributes:  make(map[string]string, len(variation.Attributes)),
		Price:       variation.Price,
		Permalink:   variation.Permalink,
		StockStatus: ParseStockStatus(variation.StockStatus),
	}
	for _, a := range variation.Attributes {
		v.Attributes[a.Name] = a.Option
	}
	if variation.Image != nil {
		v.Image = variation.Image.Src
	}
	return v
}

type WooAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
}

// WooBilling is a WooAddress plus the contact fields only billing carries.
type WooBilling struct {
	WooAddress
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type WooLineItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// WooOrderCreate is the body of POST /orders.
type WooOrderCreate struct {
	PaymentMethod      string        `json:"payment_method"`
	PaymentMethodTitle string        `json:"payment_method_title"`
	SetPaid            bool          `json:"set_paid"`
	Status             string        `json:"status"`
	Billing            WooBilling    `json:"billing"`
	Shipping           WooAddress    `json:"shipping"`
	LineItems          []WooLineItem `json:"line_items"`
}

type WooOrder struct {
	ID       int64  `json:"id"`
	OrderKey string `json:"order_key"`
	Status   string `json:"status"`
}
