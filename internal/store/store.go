package store

import (
	"context"
	"time"

	"github.com/sells-group/upsell-cli/internal/model"
)

// PeriodFilter specifies criteria for listing period records.
type PeriodFilter struct {
	Shop   string             `json:"shop,omitempty"`
	Status model.PeriodStatus `json:"status,omitempty"`
	Limit  int                `json:"limit,omitempty"`
}

// Store persists period records and the latest recommendation payload per shop.
type Store interface {
	// Periods

	// ClaimPeriod atomically inserts a processing record for key, or takes over
	// an existing failed record or one whose lease has expired. claimed is false
	// when another attempt holds the period or it already succeeded.
	ClaimPeriod(ctx context.Context, key model.PeriodKey, trigger string, lease time.Duration) (token string, claimed bool, err error)
	// CompletePeriod writes the attempt outcome. It never overwrites a
	// successful record and reports false when the record was left unchanged.
	CompletePeriod(ctx context.Context, key model.PeriodKey, token string, outcome model.PeriodOutcome) (bool, error)
	// GetPeriod returns nil when no record exists.
	GetPeriod(ctx context.Context, key model.PeriodKey) (*model.PeriodRecord, error)
	ListPeriods(ctx context.Context, filter PeriodFilter) ([]model.PeriodRecord, error)

	// Recommendations
	UpsertRecommendation(ctx context.Context, rec model.StoredRecommendation) error
	GetRecommendation(ctx context.Context, shop string) (*model.StoredRecommendation, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100
