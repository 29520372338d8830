// Package metaobject persists recommendations and per-shop settings as
// Shopify metaobjects. Each type holds exactly one record per shop, found
// and updated in place or created when absent.
package metaobject

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/pkg/shopify"
)

// Metaobject types.
const (
	TypeRecommendations = "upsell_config"
	TypeSettings        = "upsell_config_settings"
)

// API is the subset of the Shopify Admin client used here.
type API interface {
	FindMetaobject(ctx context.Context, typ string) (*shopify.Metaobject, error)
	CreateMetaobject(ctx context.Context, typ string, fields []shopify.Field) (*shopify.Metaobject, error)
	UpdateMetaobject(ctx context.Context, id string, fields []shopify.Field) (*shopify.Metaobject, error)
	MetaobjectDefinitionExists(ctx context.Context, typ string) (bool, error)
	CreateMetaobjectDefinition(ctx context.Context, def shopify.MetaobjectDefinition) error
}

// StoreResult describes a completed upsert.
type StoreResult struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created bool   `json:"created"`
	Fields  int    `json:"fields"`
}

// StoreError reports a failed metaobject operation.
type StoreError struct {
	Op   string
	Type string
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("metaobject: %s %s: %v", e.Op, e.Type, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// UserErrors returns the Shopify validation errors behind e, if any.
func (e *StoreError) UserErrors() shopify.UserErrors {
	var ue shopify.UserErrors
	if errors.As(e.Err, &ue) {
		return ue
	}
	return nil
}

// upsert finds the first metaobject of typ and updates it, or creates one.
func upsert(ctx context.Context, api API, typ string, fields []shopify.Field) (*StoreResult, error) {
	log := zap.L().With(zap.String("component", "metaobject"), zap.String("type", typ))

	existing, err := api.FindMetaobject(ctx, typ)
	if err != nil {
		return nil, &StoreError{Op: "find", Type: typ, Err: err}
	}

	if existing != nil {
		m, err := api.UpdateMetaobject(ctx, existing.ID, fields)
		if err != nil {
			return nil, &StoreError{Op: "update", Type: typ, Err: err}
		}
		log.Info("metaobject updated", zap.String("id", m.ID))
		return &StoreResult{ID: m.ID, Type: typ, Fields: len(fields)}, nil
	}

	m, err := api.CreateMetaobject(ctx, typ, fields)
	if err != nil {
		return nil, &StoreError{Op: "create", Type: typ, Err: err}
	}
	log.Info("metaobject created", zap.String("id", m.ID))
	return &StoreResult{ID: m.ID, Type: typ, Created: true, Fields: len(fields)}, nil
}

// EnsureDefinitions creates the recommendation and settings definitions when
// they do not exist yet.
func EnsureDefinitions(ctx context.Context, api API) ([]string, error) {
	var created []string
	for _, def := range []shopify.MetaobjectDefinition{recommendationDefinition, settingsDefinition} {
		ok, err := api.MetaobjectDefinitionExists(ctx, def.Type)
		if err != nil {
			return created, &StoreError{Op: "lookup definition", Type: def.Type, Err: err}
		}
		if ok {
			continue
		}
		if err := api.CreateMetaobjectDefinition(ctx, def); err != nil {
			return created, &StoreError{Op: "create definition", Type: def.Type, Err: err}
		}
		zap.L().Info("metaobject definition created", zap.String("type", def.Type))
		created = append(created, def.Type)
	}
	return created, nil
}

var recommendationDefinition = shopify.MetaobjectDefinition{
	Name: "Upsell Configuration",
	Type: TypeRecommendations,
	FieldDefinitions: []shopify.FieldDefinition{
		{Key: "upsell_json_data", Name: "Upsell Pairs JSON", Type: "multi_line_text_field"},
		{Key: "alternative_upsells", Name: "Alternative Upsells JSON", Type: "multi_line_text_field"},
		{Key: "trending_products", Name: "Trending Products JSON", Type: "multi_line_text_field"},
		{Key: "total_pairs_found", Name: "Total Pairs Found", Type: "number_integer"},
		{Key: "total_trending_products", Name: "Total Trending Products", Type: "number_integer"},
		{Key: "confidence_threshold", Name: "Confidence Threshold", Type: "number_decimal"},
		{Key: "analysis_date", Name: "Analysis Date", Type: "date_time"},
		{Key: "data_period", Name: "Data Period", Type: "single_line_text_field"},
		{Key: "data_period_months", Name: "Data Period (Months)", Type: "number_integer"},
		{Key: "fallback_used", Name: "Fallback Used", Type: "boolean"},
		{Key: "last_updated", Name: "Last Updated", Type: "date_time"},
	},
}

var settingsDefinition = shopify.MetaobjectDefinition{
	Name: "Upsell Configuration Settings",
	Type: TypeSettings,
	FieldDefinitions: []shopify.FieldDefinition{
		{Key: "data_period", Name: "Data Period (Months)", Type: "number_integer"},
		{Key: "schedule", Name: "Processing Schedule", Type: "single_line_text_field"},
		{Key: "ai_provider", Name: "AI Provider", Type: "single_line_text_field"},
		{Key: "confidence_threshold", Name: "Confidence Threshold", Type: "number_decimal"},
		{Key: "max_batches", Name: "Max Batches", Type: "number_integer"},
		{Key: "enable_notifications", Name: "Enable Notifications", Type: "boolean"},
		{Key: "last_updated", Name: "Last Updated", Type: "date_time"},
	},
}

func wrapEncode(err error, typ string) error {
	return eris.Wrapf(err, "metaobject: encode %s", typ)
}
