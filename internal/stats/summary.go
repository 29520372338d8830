package stats

import (
	"fmt"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/upsell-cli/internal/model"
)

// Summary is the headline view of a run: revenue, customers and best sellers.
type Summary struct {
	TotalOrders       int            `json:"total_orders"`
	TotalRevenue      float64        `json:"total_revenue"`
	Currency          string         `json:"currency"`
	UniqueCustomers   int            `json:"unique_customers"`
	AverageOrderValue float64        `json:"average_order_value"`
	TopProducts       []ProductCount `json:"top_products"`
}

// Summarize computes a Summary with the topN best-selling products. The
// currency is taken from the first order that carries one.
func Summarize(orders []model.Order, topN int) Summary {
	sum := Summary{TotalOrders: len(orders)}
	customers := make(map[string]bool)
	for _, o := range orders {
		sum.TotalRevenue += o.TotalPrice
		if sum.Currency == "" {
			sum.Currency = o.Currency
		}
		if o.HasCustomer() {
			customers[o.Customer.ID] = true
		}
	}
	sum.UniqueCustomers = len(customers)
	if sum.TotalOrders > 0 {
		sum.AverageOrderValue = sum.TotalRevenue / float64(sum.TotalOrders)
	}
	sum.TopProducts = Aggregate(orders).TopProducts(topN)
	return sum
}

// FormatRevenue renders the total revenue with its currency symbol.
func (s Summary) FormatRevenue() string {
	return formatMoney(s.TotalRevenue, s.Currency)
}

// FormatAOV renders the average order value with its currency symbol.
func (s Summary) FormatAOV() string {
	return formatMoney(s.AverageOrderValue, s.Currency)
}

func formatMoney(v float64, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return fmt.Sprintf("%.2f %s", v, code)
	}
	p := message.NewPrinter(language.English)
	return p.Sprint(currency.Symbol(unit.Amount(v)))
}
