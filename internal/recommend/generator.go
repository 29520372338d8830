// Package recommend turns co-purchase statistics into upsell recommendations,
// using a text-generation provider when one is configured and a deterministic
// fallback otherwise.
package recommend

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/internal/stats"
)

// ErrGeneration marks a provider call or its output as unusable. Generate
// absorbs it by switching to the fallback.
var ErrGeneration = eris.New("recommend: generation failed")

// Options tune prompt construction and output validation.
type Options struct {
	TopN         int
	MinFrequency int
	MinUpsells   int
	Timeout      time.Duration
}

func (o Options) withDefaults() Options {
	if o.TopN <= 0 {
		o.TopN = 10
	}
	if o.MinFrequency <= 0 {
		o.MinFrequency = 3
	}
	if o.MinUpsells <= 0 {
		o.MinUpsells = 2
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	return o
}

// Generator produces a RecommendationSet from Stats.
type Generator struct {
	provider Provider
	opts     Options
}

// NewGenerator creates a Generator. A nil provider always uses the fallback.
func NewGenerator(p Provider, opts Options) *Generator {
	return &Generator{provider: p, opts: opts.withDefaults()}
}

// Generate never fails: any provider error, timeout, or unusable output
// results in the fallback set with FallbackUsed=true.
func (g *Generator) Generate(ctx context.Context, s *stats.Stats) model.RecommendationSet {
	log := zap.L().With(zap.String("component", "recommend"))

	if g.provider != nil {
		recs, err := g.fromProvider(ctx, s)
		if err == nil {
			log.Info("recommendations generated",
				zap.String("provider", g.provider.Name()),
				zap.Int("count", len(recs)),
			)
			return model.RecommendationSet{
				Recommendations: recs,
				Provider:        g.provider.Name(),
				Model:           g.provider.Model(),
			}
		}
		log.Warn("generation failed, using fallback", zap.Error(err))
	}

	recs := Fallback(s, g.opts.MinFrequency)
	return model.RecommendationSet{
		Recommendations: recs,
		FallbackUsed:    true,
		Provider:        model.ProviderNone,
	}
}

func (g *Generator) fromProvider(ctx context.Context, s *stats.Stats) ([]model.Recommendation, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	text, err := g.provider.Complete(ctx, BuildPrompt(s, g.opts.TopN, g.opts.MinFrequency))
	if err != nil {
		return nil, eris.Wrapf(ErrGeneration, "provider %s: %v", g.provider.Name(), err)
	}
	recs, err := parseRecommendations(text, g.opts.MinUpsells, s.Frequency)
	if err != nil {
		return nil, eris.Wrapf(ErrGeneration, "%v", err)
	}
	if len(recs) == 0 {
		return nil, eris.Wrap(ErrGeneration, "no valid recommendations in model output")
	}
	return recs, nil
}
