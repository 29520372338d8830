package main

import (
	"context"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/internal/notify"
	"github.com/sells-group/upsell-cli/internal/pipeline"
	"github.com/sells-group/upsell-cli/internal/recommend"
	"github.com/sells-group/upsell-cli/internal/resilience"
	"github.com/sells-group/upsell-cli/internal/schedule"
	"github.com/sells-group/upsell-cli/internal/store"
	anthropicpkg "github.com/sells-group/upsell-cli/pkg/anthropic"
	"github.com/sells-group/upsell-cli/pkg/openai"
	"github.com/sells-group/upsell-cli/pkg/shopify"
)

// pipelineEnv holds the store, shop clients, and the pipeline needed by the
// process/trigger/serve/worker commands.
type pipelineEnv struct {
	Store     store.Store
	Pipeline  *pipeline.Pipeline
	Scheduler *schedule.Scheduler
	Shops     *shopClients
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates config for mode, opens the store, and builds the
// Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, mode string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	shops := newShopClients()
	sched := schedule.New(st, schedule.Options{
		WindowDays: cfg.Schedule.WindowDays,
		Lease:      time.Duration(cfg.Schedule.LeaseMinutes) * time.Minute,
	})

	p := pipeline.New(cfg, pipeline.Deps{
		Connect:   shops.Connect,
		Store:     st,
		Scheduler: sched,
		Providers: initProviders(),
		Notifier:  notify.New(cfg.Notify),
	})

	zap.L().Info("pipeline initialized",
		zap.String("store", cfg.Store.Driver),
		zap.Int("shops", len(cfg.Credentials())),
	)

	return &pipelineEnv{Store: st, Pipeline: p, Scheduler: sched, Shops: shops}, nil
}

// initProviders builds a generation provider for every configured API key.
// Each provider sits behind its own breaker shared by all shops.
func initProviders() map[string]recommend.Provider {
	providers := make(map[string]recommend.Provider)
	timeout := time.Duration(cfg.Recommend.TimeoutSecs) * time.Second

	if cfg.OpenAI.Key != "" {
		client := openai.NewClient(cfg.OpenAI.Key,
			openai.WithBaseURL(cfg.OpenAI.BaseURL),
			openai.WithModel(cfg.OpenAI.Model),
			openai.WithTimeout(timeout),
		)
		p := recommend.NewOpenAIProvider(client, cfg.OpenAI.Model, cfg.Recommend.MaxTokens, cfg.Recommend.Temperature)
		providers[model.ProviderOpenAI] = recommend.WithBreaker(p, resilience.NewBreaker(model.ProviderOpenAI, resilience.BreakerConfig{}))
	} else {
		zap.L().Debug("UPSELL_OPENAI_KEY not set, openai generation disabled")
	}

	if cfg.Anthropic.Key != "" {
		client := anthropicpkg.NewClient(cfg.Anthropic.Key, option.WithRequestTimeout(timeout))
		p := recommend.NewAnthropicProvider(client, cfg.Anthropic.Model, cfg.Recommend.MaxTokens, cfg.Recommend.Temperature)
		providers[model.ProviderAnthropic] = recommend.WithBreaker(p, resilience.NewBreaker(model.ProviderAnthropic, resilience.BreakerConfig{}))
	} else {
		zap.L().Debug("UPSELL_ANTHROPIC_KEY not set, anthropic generation disabled")
	}

	return providers
}

// shopClients lazily builds one Admin API client per configured shop so the
// rate limiter is shared by every operation on that shop.
type shopClients struct {
	mu      sync.Mutex
	clients map[string]*shopify.Client
}

func newShopClients() *shopClients {
	return &shopClients{clients: make(map[string]*shopify.Client)}
}

// Get returns the client for shop, or an error when shop has no configured token.
func (s *shopClients) Get(shop string) (*shopify.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[shop]; ok {
		return c, nil
	}
	token := cfg.AccessToken(shop)
	if token == "" {
		return nil, eris.Errorf("shop %s is not configured", shop)
	}
	c := shopify.NewClient(shop, token,
		shopify.WithAPIVersion(cfg.Shopify.APIVersion),
		shopify.WithRateLimit(cfg.Shopify.RequestsPerSec),
		shopify.WithTimeout(time.Duration(cfg.Shopify.TimeoutSecs)*time.Second),
		shopify.WithRetry(resilience.WithAttempts(cfg.Shopify.MaxRetries+1)),
	)
	s.clients[shop] = c
	return c, nil
}

// Connect adapts Get to pipeline.Connector.
func (s *shopClients) Connect(shop string) (pipeline.ShopAPI, error) {
	c, err := s.Get(shop)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// defaultShop returns the flag value, or the only configured shop.
func defaultShop(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	creds := cfg.Credentials()
	if len(creds) == 1 {
		return creds[0].Domain, nil
	}
	return "", eris.New("--shop is required when more than one shop is configured")
}
