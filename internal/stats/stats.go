// Package stats derives co-purchase, frequency and per-customer statistics
// from an order export. Everything here is pure and deterministic.
package stats

import (
	"sort"
	"time"

	"github.com/sells-group/upsell-cli/internal/model"
)

// Pair is an unordered co-purchase pair. A sorts before B.
type Pair struct {
	Key   string `json:"pair"`
	A     string `json:"product_a"`
	B     string `json:"product_b"`
	Count int    `json:"frequency"`
}

// ProductCount is a product with its cumulative purchased quantity.
type ProductCount struct {
	ProductID string `json:"product_id"`
	Title     string `json:"title,omitempty"`
	Count     int    `json:"frequency"`
}

// PurchaseRecord is one purchased line item attributed to a customer.
type PurchaseRecord struct {
	OrderID      string    `json:"order_id"`
	ProductID    string    `json:"product_id"`
	ProductTitle string    `json:"product_title"`
	VariantID    string    `json:"variant_id"`
	Quantity     int       `json:"quantity"`
	UnitPrice    float64   `json:"price"`
	PurchasedAt  time.Time `json:"date"`
}

// Stats is the aggregate view of one export.
type Stats struct {
	// CoPurchases counts the orders in which both products of a pair appear,
	// keyed by the ordered ids from OrderedPair.
	CoPurchases map[[2]string]int
	// Frequency is the total quantity purchased per product.
	Frequency map[string]int
	// Customers lists purchased items per customer id, in order of appearance.
	Customers map[string][]PurchaseRecord

	OrdersCount  int
	FirstOrderAt time.Time
	LastOrderAt  time.Time

	titles map[string]string
}

// OrderedPair returns the ids of an unordered pair with the smaller first.
func OrderedPair(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

// PairKey returns the display key for an unordered product pair. It is not
// unique when ids contain "-"; count with OrderedPair instead.
func PairKey(a, b string) string {
	ids := OrderedPair(a, b)
	return ids[0] + "-" + ids[1]
}

// PairCount returns how many orders contained both products.
func (s *Stats) PairCount(a, b string) int {
	return s.CoPurchases[OrderedPair(a, b)]
}

// Aggregate builds Stats from orders. Line items without a product id are ignored.
func Aggregate(orders []model.Order) *Stats {
	s := &Stats{
		CoPurchases: make(map[[2]string]int),
		Frequency:   make(map[string]int),
		Customers:   make(map[string][]PurchaseRecord),
		OrdersCount: len(orders),
		titles:      make(map[string]string),
	}

	for _, o := range orders {
		if !o.CreatedAt.IsZero() {
			if s.FirstOrderAt.IsZero() || o.CreatedAt.Before(s.FirstOrderAt) {
				s.FirstOrderAt = o.CreatedAt
			}
			if o.CreatedAt.After(s.LastOrderAt) {
				s.LastOrderAt = o.CreatedAt
			}
		}

		var products []string
		seen := make(map[string]bool, len(o.LineItems))
		for _, li := range o.LineItems {
			if li.ProductID == "" {
				continue
			}
			s.Frequency[li.ProductID] += li.Quantity
			if _, ok := s.titles[li.ProductID]; !ok && li.ProductTitle != "" {
				s.titles[li.ProductID] = li.ProductTitle
			}
			if !seen[li.ProductID] {
				seen[li.ProductID] = true
				products = append(products, li.ProductID)
			}
			if o.HasCustomer() {
				s.Customers[o.Customer.ID] = append(s.Customers[o.Customer.ID], PurchaseRecord{
					OrderID:      o.ID,
					ProductID:    li.ProductID,
					ProductTitle: li.ProductTitle,
					VariantID:    li.VariantID,
					Quantity:     li.Quantity,
					UnitPrice:    li.UnitPrice,
					PurchasedAt:  o.CreatedAt,
				})
			}
		}

		for i := 0; i < len(products); i++ {
			for j := i + 1; j < len(products); j++ {
				s.CoPurchases[OrderedPair(products[i], products[j])]++
			}
		}
	}
	return s
}

// Title returns the first title seen for a product.
func (s *Stats) Title(productID string) string {
	return s.titles[productID]
}

// Pairs returns every pair sorted by count descending, then ids ascending.
func (s *Stats) Pairs() []Pair {
	out := make([]Pair, 0, len(s.CoPurchases))
	for ids, count := range s.CoPurchases {
		out = append(out, Pair{Key: PairKey(ids[0], ids[1]), A: ids[0], B: ids[1], Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out
}

// TopPairs returns at most n pairs in Pairs order.
func (s *Stats) TopPairs(n int) []Pair {
	return head(s.Pairs(), n)
}

// Products returns every product sorted by quantity descending, then id ascending.
func (s *Stats) Products() []ProductCount {
	out := make([]ProductCount, 0, len(s.Frequency))
	for id, count := range s.Frequency {
		out = append(out, ProductCount{ProductID: id, Title: s.titles[id], Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// TopProducts returns at most n products in Products order.
func (s *Stats) TopProducts(n int) []ProductCount {
	return head(s.Products(), n)
}

func head[T any](s []T, n int) []T {
	if n >= 0 && len(s) > n {
		return s[:n]
	}
	return s
}
