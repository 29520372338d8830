package model

import "strings"

// Schedule frequencies. Manual shops are only processed on request.
const (
	FrequencyWeekly     = "weekly"
	FrequencyMonthly    = "monthly"
	FrequencyQuarterly  = "quarterly"
	FrequencySemiannual = "semiannual"
	FrequencyAnnual     = "annual"
	FrequencyManual     = "manual"
)

// AI providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// Provider values written by the embedded admin app.
const (
	LegacyProviderClaude = "claude"
	LegacyProviderRules  = "rules"
	LegacyProviderCustom = "custom"
)

// CanonicalFrequency maps a stored schedule value to a frequency. Unknown
// values map to FrequencyManual with ok false, so an unreadable schedule
// never triggers automatic processing.
func CanonicalFrequency(v string) (freq string, ok bool) {
	switch v = strings.ToLower(strings.TrimSpace(v)); v {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencySemiannual, FrequencyAnnual, FrequencyManual:
		return v, true
	default:
		return FrequencyManual, false
	}
}

// CanonicalProvider maps a stored ai_provider value to a provider. "claude"
// is Anthropic and "rules" is the deterministic fallback. "custom" and
// unknown values map to ProviderNone with ok false: order data is only sent
// to a provider the shop explicitly chose.
func CanonicalProvider(v string) (provider string, ok bool) {
	switch v = strings.ToLower(strings.TrimSpace(v)); v {
	case ProviderOpenAI, ProviderAnthropic, ProviderNone:
		return v, true
	case LegacyProviderClaude:
		return ProviderAnthropic, true
	case LegacyProviderRules:
		return ProviderNone, true
	default:
		return ProviderNone, false
	}
}

// LegacyProviderValue is the value the admin app uses for provider, so its
// selector still shows the saved choice.
func LegacyProviderValue(provider string) string {
	switch provider {
	case ProviderAnthropic:
		return LegacyProviderClaude
	case ProviderNone:
		return LegacyProviderRules
	default:
		return provider
	}
}

// StoredConfig is the per-shop configuration persisted alongside the
// recommendations. It is created with defaults on first load and only
// changed by an explicit save.
type StoredConfig struct {
	DataPeriodMonths     int     `json:"data_period_months" yaml:"data_period_months"`
	ScheduleFrequency    string  `json:"schedule_frequency" yaml:"schedule_frequency"`
	AIProvider           string  `json:"ai_provider" yaml:"ai_provider"`
	ConfidenceThreshold  float64 `json:"confidence_threshold" yaml:"confidence_threshold"`
	MaxBatches           int     `json:"max_batches" yaml:"max_batches"`
	NotificationsEnabled bool    `json:"notifications_enabled" yaml:"notifications_enabled"`
}

// DefaultStoredConfig returns the configuration used when a shop has never saved one.
func DefaultStoredConfig() StoredConfig {
	return StoredConfig{
		DataPeriodMonths:     1,
		ScheduleFrequency:    FrequencyMonthly,
		AIProvider:           ProviderOpenAI,
		ConfidenceThreshold:  0.7,
		MaxBatches:           20,
		NotificationsEnabled: true,
	}
}

// Normalize replaces zero values with defaults and maps frequency and
// provider values through CanonicalFrequency and CanonicalProvider.
func (c StoredConfig) Normalize() StoredConfig {
	d := DefaultStoredConfig()
	if c.DataPeriodMonths <= 0 {
		c.DataPeriodMonths = d.DataPeriodMonths
	}
	if strings.TrimSpace(c.ScheduleFrequency) == "" {
		c.ScheduleFrequency = d.ScheduleFrequency
	} else {
		c.ScheduleFrequency, _ = CanonicalFrequency(c.ScheduleFrequency)
	}
	if strings.TrimSpace(c.AIProvider) == "" {
		c.AIProvider = d.AIProvider
	} else {
		c.AIProvider, _ = CanonicalProvider(c.AIProvider)
	}
	if c.ConfidenceThreshold <= 0 {
		c.ConfidenceThreshold = d.ConfidenceThreshold
	}
	if c.MaxBatches <= 0 {
		c.MaxBatches = d.MaxBatches
	}
	return c
}
