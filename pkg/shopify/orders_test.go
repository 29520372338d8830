package shopify

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ordersPageBody = `{
  "data": {
    "orders": {
      "edges": [
        {"node": {
          "id": "gid://shopify/Order/1001",
          "name": "#1001",
          "createdAt": "2026-10-01T12:00:00Z",
          "displayFinancialStatus": "PAID",
          "displayFulfillmentStatus": "FULFILLED",
          "totalPriceSet": {"shopMoney": {"amount": "59.90", "currencyCode": "EUR"}},
          "customer": {"id": "gid://shopify/Customer/7", "firstName": "Ada", "lastName": "Lovelace", "email": "ada@example.com"},
          "lineItems": {"edges": [
            {"node": {
              "id": "gid://shopify/LineItem/1",
              "name": "Espresso Beans - 1kg",
              "quantity": 2,
              "sku": "ESP-1KG",
              "variantTitle": "1kg",
              "originalUnitPriceSet": {"shopMoney": {"amount": "24.95", "currencyCode": "EUR"}},
              "product": {"id": "gid://shopify/Product/11", "title": "Espresso Beans", "handle": "espresso-beans", "productType": "Coffee", "vendor": "Roastery", "tags": ["coffee", "beans"]},
              "variant": {"id": "gid://shopify/ProductVariant/111", "title": "1kg", "sku": "ESP-1KG", "barcode": "123"}
            }},
            {"node": {
              "id": "gid://shopify/LineItem/2",
              "name": "Retired Grinder",
              "quantity": 1,
              "sku": "",
              "variantTitle": null,
              "originalUnitPriceSet": {"shopMoney": {"amount": "10.00", "currencyCode": "EUR"}},
              "product": null,
              "variant": null
            }}
          ]}
        }},
        {"node": {
          "id": "gid://shopify/Order/1002",
          "name": "#1002",
          "createdAt": "2026-10-02T08:30:00Z",
          "displayFinancialStatus": "PAID",
          "displayFulfillmentStatus": "UNFULFILLED",
          "totalPriceSet": {"shopMoney": {"amount": "5", "currencyCode": "EUR"}},
          "customer": null,
          "lineItems": {"edges": []}
        }}
      ],
      "pageInfo": {"hasNextPage": true, "endCursor": "cursor-2"}
    }
  }
}`

func TestOrdersSearch(t *testing.T) {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 10, 1, 0, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "created_at:>=2026-09-01T00:00:00Z created_at:<=2026-09-30T22:00:00Z", OrdersSearch(start, end))
}

func TestOrdersPage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "orders(query: $query, first: $first, after: $after)")
		assert.Equal(t, "created_at:>=x", req.Variables["query"])
		assert.EqualValues(t, 250, req.Variables["first"])
		assert.Equal(t, "cursor-1", req.Variables["after"])
		_, _ = w.Write([]byte(ordersPageBody))
	})

	page, err := c.OrdersPage(context.Background(), "created_at:>=x", 250, "cursor-1")
	require.NoError(t, err)
	assert.True(t, page.HasNextPage)
	assert.Equal(t, "cursor-2", page.EndCursor)
	require.Len(t, page.Orders, 2)

	o := page.Orders[0]
	assert.Equal(t, "1001", o.ID)
	assert.Equal(t, "#1001", o.Name)
	assert.Equal(t, "PAID", o.FinancialStatus)
	assert.InDelta(t, 59.90, o.TotalPrice, 1e-9)
	assert.Equal(t, "EUR", o.Currency)
	assert.Equal(t, "7", o.Customer.ID)
	assert.Equal(t, "Ada Lovelace", o.Customer.Name)
	require.Len(t, o.LineItems, 2)

	li := o.LineItems[0]
	assert.Equal(t, "11", li.ProductID)
	assert.Equal(t, "Espresso Beans", li.ProductTitle)
	assert.Equal(t, "111", li.VariantID)
	assert.Equal(t, []string{"coffee", "beans"}, li.Tags)
	assert.Equal(t, 2, li.Quantity)
	assert.InDelta(t, 24.95, li.UnitPrice, 1e-9)

	deleted := o.LineItems[1]
	assert.Empty(t, deleted.ProductID)
	assert.Equal(t, "Retired Grinder", deleted.ProductTitle)

	guest := page.Orders[1]
	assert.False(t, guest.HasCustomer())
	assert.Empty(t, guest.LineItems)
}

func TestOrdersPage_FirstPageOmitsCursor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, hasAfter := req.Variables["after"]
		assert.False(t, hasAfter)
		assert.EqualValues(t, MaxPageSize, req.Variables["first"])
		_, _ = w.Write([]byte(`{"data":{"orders":{"edges":[],"pageInfo":{"hasNextPage":false,"endCursor":null}}}}`))
	})

	page, err := c.OrdersPage(context.Background(), "q", 1000, "")
	require.NoError(t, err)
	assert.False(t, page.HasNextPage)
	assert.Empty(t, page.Orders)
}

func TestOrdersPage_MissingConnection(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":{}}`))
	})

	_, err := c.OrdersPage(context.Background(), "q", 10, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing orders connection")
}

func TestParseAmount(t *testing.T) {
	assert.InDelta(t, 12.5, parseAmount("12.50"), 1e-9)
	assert.Zero(t, parseAmount(""))
	assert.Zero(t, parseAmount("n/a"))
}
