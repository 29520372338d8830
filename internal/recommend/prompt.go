package recommend

import (
	"encoding/json"
	"fmt"

	"github.com/sells-group/upsell-cli/internal/stats"
)

const systemPrompt = "You are an expert e-commerce analyst. Analyze order patterns and create actionable product recommendations and pairs. Always respond with valid JSON."

// Prompt is a provider-neutral generation request.
type Prompt struct {
	System string
	User   string
}

// userPromptTemplate arguments: orders analyzed, co-purchases JSON, products JSON, threshold.
const userPromptTemplate = `
TASK: Analyze e-commerce order data to create upsell recommendations for cart optimization.

GOAL: When customers add a "main_product" to cart, show them "upsellVariants" that are frequently bought together.

DATA ANALYSIS:
- Orders analyzed: %d
- Co-purchase patterns: %s
- Popular products: %s

INSTRUCTIONS:
1. Find products that are frequently bought together
2. For each main product, identify 2-4 products that customers often add to the same order
3. Focus on products with high co-purchase frequency (bought together multiple times)
4. Create upsell recommendations to increase average order value

REQUIRED OUTPUT FORMAT - Return ONLY this JSON structure:
{
  "upsell_recommendations": [
    {
      "main_product": "7148360237189",
      "upsellVariants": [
        {"id": "7148360630405"},
        {"id": "7148360728709"}
      ]
    }
  ]
}

IMPORTANT RULES:
- Use actual product IDs from the data
- Only include products that are genuinely bought together (frequency > %d)
- Limit 2-4 upsellVariants per main_product
- NO other fields needed - just main_product and upsellVariants array
`

// BuildPrompt renders the generation request for s. Pairs and products are
// embedded as [key, count] tuples, most frequent first.
func BuildPrompt(s *stats.Stats, topN, minFrequency int) Prompt {
	pairs := make([][2]any, 0, topN)
	for _, p := range s.TopPairs(topN) {
		pairs = append(pairs, [2]any{p.Key, p.Count})
	}
	products := make([][2]any, 0, topN)
	for _, p := range s.TopProducts(topN) {
		products = append(products, [2]any{p.ProductID, p.Count})
	}

	pairsJSON, _ := json.Marshal(pairs)       //nolint:errcheck
	productsJSON, _ := json.Marshal(products) //nolint:errcheck

	return Prompt{
		System: systemPrompt,
		User:   fmt.Sprintf(userPromptTemplate, s.OrdersCount, pairsJSON, productsJSON, minFrequency-1),
	}
}
