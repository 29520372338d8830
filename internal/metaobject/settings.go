package metaobject

import (
	"context"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/upsell-cli/internal/model"
	"github.com/sells-group/upsell-cli/pkg/shopify"
)

// SettingsStore loads and saves the shop's StoredConfig.
type SettingsStore struct {
	api API
}

// NewSettingsStore creates a SettingsStore.
func NewSettingsStore(api API) *SettingsStore {
	return &SettingsStore{api: api}
}

// Load returns the saved configuration, or defaults when nothing was saved.
// Missing or malformed fields fall back to their defaults.
func (s *SettingsStore) Load(ctx context.Context) (model.StoredConfig, error) {
	m, err := s.api.FindMetaobject(ctx, TypeSettings)
	if err != nil {
		return model.StoredConfig{}, &StoreError{Op: "find", Type: TypeSettings, Err: err}
	}
	if m == nil {
		zap.L().Debug("no saved settings, using defaults")
		return model.DefaultStoredConfig(), nil
	}

	cfg := model.DefaultStoredConfig()
	if n := intField(m, "data_period"); n > 0 {
		cfg.DataPeriodMonths = n
	}
	if v, ok := m.Field("schedule"); ok && v != "" {
		freq, known := model.CanonicalFrequency(v)
		if !known {
			zap.L().Warn("unrecognized schedule in saved settings, treating as manual",
				zap.String("schedule", v))
		}
		cfg.ScheduleFrequency = freq
	}
	if v, ok := m.Field("ai_provider"); ok && v != "" {
		provider, known := model.CanonicalProvider(v)
		if !known {
			zap.L().Warn("unsupported ai_provider in saved settings, using rule-based recommendations",
				zap.String("ai_provider", v))
		}
		cfg.AIProvider = provider
	}
	if f := floatField(m, "confidence_threshold"); f > 0 {
		cfg.ConfidenceThreshold = f
	}
	if n := intField(m, "max_batches"); n > 0 {
		cfg.MaxBatches = n
	}
	if v, ok := m.Field("enable_notifications"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.NotificationsEnabled = b
		}
	}
	return cfg.Normalize(), nil
}

// Save writes cfg, normalized, to the settings metaobject. Providers are
// written with the admin app's names (claude, rules).
func (s *SettingsStore) Save(ctx context.Context, cfg model.StoredConfig) (*StoreResult, error) {
	cfg = cfg.Normalize()
	fields := []shopify.Field{
		{Key: "data_period", Value: strconv.Itoa(cfg.DataPeriodMonths)},
		{Key: "schedule", Value: cfg.ScheduleFrequency},
		{Key: "ai_provider", Value: model.LegacyProviderValue(cfg.AIProvider)},
		{Key: "confidence_threshold", Value: strconv.FormatFloat(cfg.ConfidenceThreshold, 'f', -1, 64)},
		{Key: "max_batches", Value: strconv.Itoa(cfg.MaxBatches)},
		{Key: "enable_notifications", Value: strconv.FormatBool(cfg.NotificationsEnabled)},
		{Key: "last_updated", Value: time.Now().UTC().Format(time.RFC3339)},
	}
	return upsert(ctx, s.api, TypeSettings, fields)
}
