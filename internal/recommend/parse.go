package recommend

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/upsell-cli/internal/model"
)

type rawResponse struct {
	Recommendations *[]model.Recommendation `json:"upsell_recommendations"`
}

// cleanJSON strips Markdown code fences and any prose around the outermost object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// parseRecommendations decodes model output and enforces the output rules:
// non-empty main product, distinct upsells that are not the main product, at
// most MaxUpsellsPerProduct upsells, at least minUpsells, at most
// MaxRecommendations entries, one entry per main product. When known is
// non-nil, main products and upsells absent from it are dropped before the
// minimum is applied.
func parseRecommendations(text string, minUpsells int, known map[string]int) ([]model.Recommendation, error) {
	var raw rawResponse
	if err := json.Unmarshal([]byte(cleanJSON(text)), &raw); err != nil {
		return nil, eris.Wrap(err, "recommend: parse model output")
	}
	if raw.Recommendations == nil {
		return nil, eris.New("recommend: model output missing upsell_recommendations")
	}

	var out []model.Recommendation
	seenMain := make(map[string]bool)
	for _, r := range *raw.Recommendations {
		main := model.StripGID(strings.TrimSpace(r.MainProduct))
		if main == "" || seenMain[main] || !isKnown(known, main) {
			continue
		}

		var variants []model.UpsellVariant
		seen := map[string]bool{main: true}
		for _, v := range r.UpsellVariants {
			id := model.StripGID(strings.TrimSpace(v.ID))
			if id == "" || seen[id] || !isKnown(known, id) {
				continue
			}
			seen[id] = true
			variants = append(variants, model.UpsellVariant{ID: id})
			if len(variants) == model.MaxUpsellsPerProduct {
				break
			}
		}
		if len(variants) < minUpsells {
			continue
		}

		seenMain[main] = true
		out = append(out, model.Recommendation{MainProduct: main, UpsellVariants: variants})
		if len(out) == model.MaxRecommendations {
			break
		}
	}
	return out, nil
}

func isKnown(known map[string]int, id string) bool {
	if known == nil {
		return true
	}
	_, ok := known[id]
	return ok
}
