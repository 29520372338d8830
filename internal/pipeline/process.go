package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/metaobject"
	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/internal/orders"
	"github.com/sells-group/upsell-cli/internal/recommend"
	"github.com/sells-group/upsell-cli/internal/stats"
)

// MessageNoOrders is reported when the window holds no orders.
const MessageNoOrders = "No new orders to process"

// ProcessRequest asks for one immediate processing run. PeriodMonths of zero
// uses the shop's saved data period. DryRun generates recommendations without
// writing them anywhere.
type ProcessRequest struct {
	Shop         string `json:"shop"`
	PeriodMonths int    `json:"periodMonths"`
	DryRun       bool   `json:"dryRun,omitempty"`
}

// ProcessResult is the outcome of a processing run. It is returned instead
// of an error; Err carries the typed cause for callers.
type ProcessResult struct {
	Success         bool                    `json:"success"`
	Shop            string                  `json:"shop"`
	Message         string                  `json:"message,omitempty"`
	ProcessedOrders int                     `json:"processedOrders"`
	Recommendations []model.Recommendation  `json:"recommendations,omitempty"`
	StoreResult     *metaobject.StoreResult `json:"storeResult,omitempty"`
	FallbackUsed    bool                    `json:"fallbackUsed"`
	Truncated       bool                    `json:"truncated"`
	Summary         *stats.Summary          `json:"summary,omitempty"`
	Timestamp       time.Time               `json:"timestamp"`
	Error           string                  `json:"error,omitempty"`
	Err             error                   `json:"-"`
}

// ProcessNow runs fetch, aggregate, generate and store for req.Shop
// immediately, ignoring the schedule.
func (p *Pipeline) ProcessNow(ctx context.Context, req ProcessRequest) *ProcessResult {
	api, err := p.connect(req.Shop)
	if err != nil {
		return p.failed(req.Shop, err)
	}
	settings, err := metaobject.NewSettingsStore(api).Load(ctx)
	if err != nil {
		zap.L().Warn("pipeline: settings load failed, using defaults",
			zap.String("shop", req.Shop), zap.Error(err))
		settings = model.DefaultStoredConfig()
	}
	return p.process(ctx, api, req, settings)
}

func (p *Pipeline) process(ctx context.Context, api ShopAPI, req ProcessRequest, settings model.StoredConfig) *ProcessResult {
	months := req.PeriodMonths
	if months <= 0 {
		months = settings.DataPeriodMonths
	}
	now := p.now().UTC()
	log := zap.L().With(
		zap.String("shop", req.Shop),
		zap.Int("period_months", months),
		zap.Bool("dry_run", req.DryRun),
	)
	log.Info("pipeline: processing started")

	fetched, err := orders.NewFetcher(api).Fetch(ctx, orders.WindowEndingAt(now, months), p.fetchOptions(settings.MaxBatches))
	if err != nil {
		return p.failed(req.Shop, eris.Wrapf(ErrUpstreamFetch, "%v", err))
	}

	res := &ProcessResult{
		Success:         true,
		Shop:            req.Shop,
		ProcessedOrders: len(fetched.Orders),
		Truncated:       fetched.HasMore,
		Timestamp:       now,
	}
	if len(fetched.Orders) == 0 {
		res.Message = MessageNoOrders
		log.Info("pipeline: no orders in window")
		return res
	}

	st := stats.Aggregate(fetched.Orders)
	summary := stats.Summarize(fetched.Orders, p.cfg.Recommend.TopN)
	res.Summary = &summary

	set := recommend.NewGenerator(p.deps.Providers[settings.AIProvider], p.recommendOptions()).Generate(ctx, st)
	res.Recommendations = set.Recommendations
	res.FallbackUsed = set.FallbackUsed

	log.Info("pipeline: recommendations ready",
		zap.Int("orders", res.ProcessedOrders),
		zap.Int("pairs", len(st.CoPurchases)),
		zap.Int("recommendations", len(set.Recommendations)),
		zap.Bool("fallback_used", set.FallbackUsed),
		zap.String("revenue", summary.FormatRevenue()),
	)

	if req.DryRun {
		res.Message = "Dry run, nothing stored"
		return res
	}

	stored := buildStored(req.Shop, months, settings, st, set, now)
	sr, err := metaobject.NewRecommendationStore(api).Upsert(ctx, stored)
	if err != nil {
		return p.failedWith(res, eris.Wrapf(ErrStore, "%v", err))
	}
	res.StoreResult = sr

	if p.deps.Store != nil {
		if err := p.deps.Store.UpsertRecommendation(ctx, stored); err != nil {
			log.Warn("pipeline: local recommendation mirror failed", zap.Error(err))
		}
	}

	log.Info("pipeline: processing complete", zap.String("metaobject_id", sr.ID), zap.Bool("created", sr.Created))
	return res
}

func buildStored(shop string, months int, settings model.StoredConfig, st *stats.Stats, set model.RecommendationSet, now time.Time) model.StoredRecommendation {
	var trending []string
	for _, pc := range st.TopProducts(model.MaxRecommendations) {
		trending = append(trending, pc.ProductID)
	}
	return model.StoredRecommendation{
		Shop:                  shop,
		Recommendations:       set.Recommendations,
		Alternatives:          []model.Recommendation{},
		TrendingProducts:      trending,
		TotalPairsFound:       len(set.Recommendations),
		TotalTrendingProducts: len(trending),
		ConfidenceThreshold:   settings.ConfidenceThreshold,
		AnalysisDate:          now,
		DataPeriod:            model.DataPeriodLabel(months),
		DataPeriodMonths:      months,
		FallbackUsed:          set.FallbackUsed,
		LastUpdated:           now,
	}
}

func (p *Pipeline) failed(shop string, err error) *ProcessResult {
	return p.failedWith(&ProcessResult{Shop: shop, Timestamp: p.now().UTC()}, err)
}

func (p *Pipeline) failedWith(res *ProcessResult, err error) *ProcessResult {
	zap.L().Error("pipeline: processing failed", zap.String("shop", res.Shop), zap.Error(err))
	res.Success = false
	res.Err = err
	res.Error = err.Error()
	return res
}
