package model

import (
	"strings"
	"time"
)

// Order is a single shop order as exported from the Admin API. Orders are
// read-only inputs; nothing in this module creates them.
type Order struct {
	ID                string     `json:"order_id"`
	Name              string     `json:"order_name"`
	CreatedAt         time.Time  `json:"created_at"`
	FinancialStatus   string     `json:"financial_status"`
	FulfillmentStatus string     `json:"fulfillment_status"`
	TotalPrice        float64    `json:"total_price"`
	Currency          string     `json:"currency"`
	Customer          Customer   `json:"customer"`
	LineItems         []LineItem `json:"line_items"`
}

// Customer identifies the buyer of an order. All fields are empty for guest checkouts.
type Customer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LineItem is one product variant on an order.
type LineItem struct {
	ID             string   `json:"line_item_id"`
	ProductID      string   `json:"product_id"`
	ProductTitle   string   `json:"product_title"`
	ProductHandle  string   `json:"product_handle"`
	ProductType    string   `json:"product_type"`
	Vendor         string   `json:"vendor"`
	Tags           []string `json:"tags"`
	VariantID      string   `json:"variant_id"`
	VariantTitle   string   `json:"variant_title"`
	VariantSKU     string   `json:"variant_sku"`
	VariantBarcode string   `json:"variant_barcode"`
	Quantity       int      `json:"quantity"`
	UnitPrice      float64  `json:"unit_price"`
	Currency       string   `json:"currency"`
}

// HasCustomer reports whether the order is attributed to a known customer.
func (o Order) HasCustomer() bool {
	return o.Customer.ID != ""
}

// StripGID returns the trailing numeric id of a Shopify global id such as
// "gid://shopify/Product/123". Plain ids are returned unchanged.
func StripGID(gid string) string {
	if !strings.HasPrefix(gid, "gid://") {
		return gid
	}
	if i := strings.LastIndex(gid, "/"); i >= 0 {
		return gid[i+1:]
	}
	return gid
}

// OrderPage is one cursor page of an order export.
type OrderPage struct {
	Orders      []Order
	HasNextPage bool
	EndCursor   string
}
