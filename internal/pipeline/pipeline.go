// Package pipeline wires the order export, statistics, recommendation
// generation and result storage into the "process now" and "run if due"
// operations shared by every trigger.
package pipeline

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/upsell-cli/internal/config"
	"github.com/sells-group/upsell-cli/internal/metaobject"
	"github.com/sells-group/upsell-cli/internal/notify"
	"github.com/sells-group/upsell-cli/internal/orders"
	"github.com/sells-group/upsell-cli/internal/recommend"
	"github.com/sells-group/upsell-cli/internal/schedule"
	"github.com/sells-group/upsell-cli/internal/store"
)

// Error kinds. Every pipeline error wraps exactly one of these.
var (
	ErrUpstreamFetch = eris.New("pipeline: upstream fetch failed")
	ErrStore         = eris.New("pipeline: store failed")
	ErrConfiguration = eris.New("pipeline: configuration error")
)

// ShopAPI is the per-shop Admin API surface. *shopify.Client implements it.
type ShopAPI interface {
	orders.PageSource
	metaobject.API
}

// Connector returns the Admin API client for shop.
type Connector func(shop string) (ShopAPI, error)

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Connect   Connector
	Store     store.Store
	Scheduler *schedule.Scheduler
	// Providers maps an ai_provider setting to its provider. A missing
	// entry means generation uses the fallback.
	Providers map[string]recommend.Provider
	Notifier  *notify.Notifier
}

// Pipeline runs processing attempts.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	now  func() time.Time
}

// New creates a Pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	return &Pipeline{cfg: cfg, deps: deps, now: time.Now}
}

func (p *Pipeline) connect(shop string) (ShopAPI, error) {
	if shop == "" {
		return nil, eris.Wrap(ErrConfiguration, "shop is required")
	}
	if p.deps.Connect == nil {
		return nil, eris.Wrap(ErrConfiguration, "no shop connector")
	}
	api, err := p.deps.Connect(shop)
	if err != nil {
		return nil, eris.Wrapf(ErrConfiguration, "connect %s: %v", shop, err)
	}
	return api, nil
}

func (p *Pipeline) recommendOptions() recommend.Options {
	return recommend.Options{
		TopN:         p.cfg.Recommend.TopN,
		MinFrequency: p.cfg.Recommend.MinFrequency,
		MinUpsells:   p.cfg.Recommend.MinUpsells,
		Timeout:      time.Duration(p.cfg.Recommend.TimeoutSecs) * time.Second,
	}
}

func (p *Pipeline) fetchOptions(maxBatches int) orders.Options {
	return orders.Options{
		MaxBatches: maxBatches,
		PageSize:   p.cfg.Fetch.PageSize,
		BatchDelay: time.Duration(p.cfg.Fetch.BatchDelayMs) * time.Millisecond,
	}
}
