package metaobject

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/pkg/shopify"
)

// RecommendationStore writes the shop's single upsell_config record.
type RecommendationStore struct {
	api API
}

// NewRecommendationStore creates a RecommendationStore.
func NewRecommendationStore(api API) *RecommendationStore {
	return &RecommendationStore{api: api}
}

// Upsert writes rec to the shop's upsell_config metaobject, creating it when
// none exists.
func (s *RecommendationStore) Upsert(ctx context.Context, rec model.StoredRecommendation) (*StoreResult, error) {
	fields, err := recommendationFields(rec)
	if err != nil {
		return nil, err
	}
	return upsert(ctx, s.api, TypeRecommendations, fields)
}

// Load reads the current upsell_config record. It returns nil when none exists.
func (s *RecommendationStore) Load(ctx context.Context) (*model.StoredRecommendation, error) {
	m, err := s.api.FindMetaobject(ctx, TypeRecommendations)
	if err != nil {
		return nil, &StoreError{Op: "find", Type: TypeRecommendations, Err: err}
	}
	if m == nil {
		return nil, nil
	}

	var rec model.StoredRecommendation
	if v, ok := m.Field("upsell_json_data"); ok && v != "" {
		_ = json.Unmarshal([]byte(v), &rec.Recommendations) //nolint:errcheck
	}
	if v, ok := m.Field("alternative_upsells"); ok && v != "" {
		_ = json.Unmarshal([]byte(v), &rec.Alternatives) //nolint:errcheck
	}
	if v, ok := m.Field("trending_products"); ok && v != "" {
		_ = json.Unmarshal([]byte(v), &rec.TrendingProducts) //nolint:errcheck
	}
	rec.TotalPairsFound = intField(m, "total_pairs_found")
	rec.TotalTrendingProducts = intField(m, "total_trending_products")
	rec.ConfidenceThreshold = floatField(m, "confidence_threshold")
	rec.AnalysisDate = timeField(m, "analysis_date")
	rec.DataPeriod, _ = m.Field("data_period")
	rec.DataPeriodMonths = intField(m, "data_period_months")
	rec.FallbackUsed = boolField(m, "fallback_used")
	rec.LastUpdated = timeField(m, "last_updated")
	return &rec, nil
}

func recommendationFields(rec model.StoredRecommendation) ([]shopify.Field, error) {
	recs, err := jsonList(rec.Recommendations)
	if err != nil {
		return nil, wrapEncode(err, TypeRecommendations)
	}
	alts, err := jsonList(rec.Alternatives)
	if err != nil {
		return nil, wrapEncode(err, TypeRecommendations)
	}
	trending, err := jsonList(rec.TrendingProducts)
	if err != nil {
		return nil, wrapEncode(err, TypeRecommendations)
	}

	lastUpdated := rec.LastUpdated
	if lastUpdated.IsZero() {
		lastUpdated = time.Now()
	}

	return []shopify.Field{
		{Key: "upsell_json_data", Value: recs},
		{Key: "alternative_upsells", Value: alts},
		{Key: "trending_products", Value: trending},
		{Key: "total_pairs_found", Value: strconv.Itoa(rec.TotalPairsFound)},
		{Key: "total_trending_products", Value: strconv.Itoa(rec.TotalTrendingProducts)},
		{Key: "confidence_threshold", Value: strconv.FormatFloat(rec.ConfidenceThreshold, 'f', -1, 64)},
		{Key: "analysis_date", Value: rec.AnalysisDate.UTC().Format(time.RFC3339)},
		{Key: "data_period", Value: rec.DataPeriod},
		{Key: "data_period_months", Value: strconv.Itoa(rec.DataPeriodMonths)},
		{Key: "fallback_used", Value: strconv.FormatBool(rec.FallbackUsed)},
		{Key: "last_updated", Value: lastUpdated.UTC().Format(time.RFC3339)},
	}, nil
}

// jsonList encodes a slice, writing nil as [].
func jsonList[T any](v []T) (string, error) {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func intField(m *shopify.Metaobject, key string) int {
	v, _ := m.Field(key)
	n, _ := strconv.Atoi(v)
	return n
}

func floatField(m *shopify.Metaobject, key string) float64 {
	v, _ := m.Field(key)
	f, _ := strconv.ParseFloat(v, 64)
	return f
}

func boolField(m *shopify.Metaobject, key string) bool {
	v, _ := m.Field(key)
	b, _ := strconv.ParseBool(v)
	return b
}

func timeField(m *shopify.Metaobject, key string) time.Time {
	v, _ := m.Field(key)
	t, _ := time.Parse(time.RFC3339, v)
	return t
}
