package recommend

import (
	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/internal/stats"
)

// Fallback derives recommendations from co-purchase counts alone. Pairs seen
// fewer than minFrequency times are ignored. Walking pairs from most to least
// frequent, the lower id of each pair becomes (or extends) a main product and
// the other id is appended as an upsell, up to MaxUpsellsPerProduct. At most
// MaxRecommendations main products are returned. The result depends only on s.
func Fallback(s *stats.Stats, minFrequency int) []model.Recommendation {
	var out []model.Recommendation
	index := make(map[string]int)

	for _, p := range s.Pairs() {
		if p.Count < minFrequency {
			break
		}
		i, ok := index[p.A]
		if !ok {
			i = len(out)
			index[p.A] = i
			out = append(out, model.Recommendation{MainProduct: p.A})
		}
		rec := &out[i]
		if len(rec.UpsellVariants) >= model.MaxUpsellsPerProduct || hasVariant(rec.UpsellVariants, p.B) {
			continue
		}
		rec.UpsellVariants = append(rec.UpsellVariants, model.UpsellVariant{ID: p.B})
	}

	if len(out) > model.MaxRecommendations {
		out = out[:model.MaxRecommendations]
	}
	return out
}

func hasVariant(vs []model.UpsellVariant, id string) bool {
	for _, v := range vs {
		if v.ID == id {
			return true
		}
	}
	return false
}
