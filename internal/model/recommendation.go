package model

import (
	"fmt"
	"time"
)

// Recommendation caps.
const (
	MaxRecommendations   = 10
	MaxUpsellsPerProduct = 4
)

// UpsellVariant references a product offered alongside a main product.
type UpsellVariant struct {
	ID string `json:"id"`
}

// Recommendation maps a main product to the products shown when it is added to cart.
type Recommendation struct {
	MainProduct    string          `json:"main_product"`
	UpsellVariants []UpsellVariant `json:"upsellVariants"`
}

// RecommendationSet is the externally visible output of a processing run.
type RecommendationSet struct {
	Recommendations []Recommendation `json:"upsell_recommendations"`
	FallbackUsed    bool             `json:"fallback_used"`
	Provider        string           `json:"provider,omitempty"`
	Model           string           `json:"model,omitempty"`
}

// StoredRecommendation is the flat field set written to the shop's
// recommendation record.
type StoredRecommendation struct {
	Shop                  string           `json:"shop"`
	Recommendations       []Recommendation `json:"upsell_json_data"`
	Alternatives          []Recommendation `json:"alternative_upsells"`
	TrendingProducts      []string         `json:"trending_products"`
	TotalPairsFound       int              `json:"total_pairs_found"`
	TotalTrendingProducts int              `json:"total_trending_products"`
	ConfidenceThreshold   float64          `json:"confidence_threshold"`
	AnalysisDate          time.Time        `json:"analysis_date"`
	DataPeriod            string           `json:"data_period"`
	DataPeriodMonths      int              `json:"data_period_months"`
	FallbackUsed          bool             `json:"fallback_used"`
	LastUpdated           time.Time        `json:"last_updated"`
}

// DataPeriodLabel names an analysis window length in months.
func DataPeriodLabel(months int) string {
	switch months {
	case 1:
		return "1_month"
	case 3:
		return "3_months"
	case 6:
		return "6_months"
	case 12:
		return "1_year"
	default:
		return fmt.Sprintf("%d_months", months)
	}
}
