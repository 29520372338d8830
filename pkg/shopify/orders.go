package shopify

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/upsell-cli/internal/model"
)

// MaxPageSize is the largest page the orders connection accepts.
const MaxPageSize = 250

const ordersQuery = `query getOrdersForAutomation($query: String!, $first: Int!, $after: String) {
  orders(query: $query, first: $first, after: $after) {
    edges {
      node {
        id
        name
        createdAt
        displayFinancialStatus
        displayFulfillmentStatus
        totalPriceSet { shopMoney { amount currencyCode } }
        customer { id firstName lastName email }
        lineItems(first: 250) {
          edges {
            node {
              id
              name
              quantity
              sku
              variantTitle
              originalUnitPriceSet { shopMoney { amount currencyCode } }
              product { id title handle productType vendor tags }
              variant { id title sku barcode }
            }
          }
        }
      }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

// OrdersSearch builds the orders search expression for an inclusive creation window.
func OrdersSearch(start, end time.Time) string {
	return fmt.Sprintf("created_at:>=%s created_at:<=%s",
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
}

type money struct {
	ShopMoney struct {
		Amount       string `json:"amount"`
		CurrencyCode string `json:"currencyCode"`
	} `json:"shopMoney"`
}

type orderNode struct {
	ID                       string    `json:"id"`
	Name                     string    `json:"name"`
	CreatedAt                time.Time `json:"createdAt"`
	DisplayFinancialStatus   string    `json:"displayFinancialStatus"`
	DisplayFulfillmentStatus string    `json:"displayFulfillmentStatus"`
	TotalPriceSet            money     `json:"totalPriceSet"`
	Customer                 *struct {
		ID        string `json:"id"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Email     string `json:"email"`
	} `json:"customer"`
	LineItems struct {
		Edges []struct {
			Node lineItemNode `json:"node"`
		} `json:"edges"`
	} `json:"lineItems"`
}

type lineItemNode struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Quantity             int    `json:"quantity"`
	SKU                  string `json:"sku"`
	VariantTitle         string `json:"variantTitle"`
	OriginalUnitPriceSet money  `json:"originalUnitPriceSet"`
	Product              *struct {
		ID          string   `json:"id"`
		Title       string   `json:"title"`
		Handle      string   `json:"handle"`
		ProductType string   `json:"productType"`
		Vendor      string   `json:"vendor"`
		Tags        []string `json:"tags"`
	} `json:"product"`
	Variant *struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		SKU     string `json:"sku"`
		Barcode string `json:"barcode"`
	} `json:"variant"`
}

type ordersData struct {
	Orders *struct {
		Edges []struct {
			Node orderNode `json:"node"`
		} `json:"edges"`
		PageInfo struct {
			HasNextPage bool   `json:"hasNextPage"`
			EndCursor   string `json:"endCursor"`
		} `json:"pageInfo"`
	} `json:"orders"`
}

// OrdersPage fetches one page of orders matching search, starting after the
// cursor (empty for the first page).
func (c *Client) OrdersPage(ctx context.Context, search string, first int, after string) (*model.OrderPage, error) {
	if first <= 0 || first > MaxPageSize {
		first = MaxPageSize
	}
	vars := map[string]any{
		"query": search,
		"first": first,
	}
	if after != "" {
		vars["after"] = after
	}

	var data ordersData
	if err := c.Do(ctx, ordersQuery, vars, &data); err != nil {
		return nil, eris.Wrap(err, "shopify: orders page")
	}
	if data.Orders == nil {
		return nil, eris.New("shopify: orders page: missing orders connection")
	}

	page := &model.OrderPage{
		Orders:      make([]model.Order, 0, len(data.Orders.Edges)),
		HasNextPage: data.Orders.PageInfo.HasNextPage,
		EndCursor:   data.Orders.PageInfo.EndCursor,
	}
	for _, e := range data.Orders.Edges {
		page.Orders = append(page.Orders, toOrder(e.Node))
	}
	return page, nil
}

func toOrder(n orderNode) model.Order {
	o := model.Order{
		ID:                model.StripGID(n.ID),
		Name:              n.Name,
		CreatedAt:         n.CreatedAt,
		FinancialStatus:   n.DisplayFinancialStatus,
		FulfillmentStatus: n.DisplayFulfillmentStatus,
		TotalPrice:        parseAmount(n.TotalPriceSet.ShopMoney.Amount),
		Currency:          n.TotalPriceSet.ShopMoney.CurrencyCode,
	}
	if n.Customer != nil {
		o.Customer = model.Customer{
			ID:    model.StripGID(n.Customer.ID),
			Name:  strings.TrimSpace(n.Customer.FirstName + " " + n.Customer.LastName),
			Email: n.Customer.Email,
		}
	}

	o.LineItems = make([]model.LineItem, 0, len(n.LineItems.Edges))
	for _, e := range n.LineItems.Edges {
		li := e.Node
		item := model.LineItem{
			ID:           model.StripGID(li.ID),
			ProductTitle: li.Name,
			VariantTitle: li.VariantTitle,
			VariantSKU:   li.SKU,
			Quantity:     li.Quantity,
			UnitPrice:    parseAmount(li.OriginalUnitPriceSet.ShopMoney.Amount),
			Currency:     li.OriginalUnitPriceSet.ShopMoney.CurrencyCode,
		}
		// Deleted products come back as null; the line item keeps its name only.
		if li.Product != nil {
			item.ProductID = model.StripGID(li.Product.ID)
			item.ProductTitle = li.Product.Title
			item.ProductHandle = li.Product.Handle
			item.ProductType = li.Product.ProductType
			item.Vendor = li.Product.Vendor
			item.Tags = li.Product.Tags
		}
		if li.Variant != nil {
			item.VariantID = model.StripGID(li.Variant.ID)
			item.VariantTitle = li.Variant.Title
			if li.Variant.SKU != "" {
				item.VariantSKU = li.Variant.SKU
			}
			item.VariantBarcode = li.Variant.Barcode
		}
		o.LineItems = append(o.LineItems, item)
	}
	return o
}

func parseAmount(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
