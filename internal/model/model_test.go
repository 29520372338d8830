package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripGID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"gid://shopify/Product/7148360237189", "7148360237189"},
		{"gid://shopify/ProductVariant/42", "42"},
		{"12345", "12345"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, StripGID(tt.in))
		})
	}
}

func TestDataPeriodLabel(t *testing.T) {
	assert.Equal(t, "1_month", DataPeriodLabel(1))
	assert.Equal(t, "3_months", DataPeriodLabel(3))
	assert.Equal(t, "6_months", DataPeriodLabel(6))
	assert.Equal(t, "1_year", DataPeriodLabel(12))
	assert.Equal(t, "2_months", DataPeriodLabel(2))
}

func TestStoredConfig_Normalize(t *testing.T) {
	cfg := StoredConfig{}.Normalize()
	assert.Equal(t, DefaultStoredConfig(), cfg)

	cfg = StoredConfig{ScheduleFrequency: "daily", AIProvider: "gemini"}.Normalize()
	assert.Equal(t, DefaultStoredConfig().DataPeriodMonths, cfg.DataPeriodMonths)
	assert.Equal(t, FrequencyManual, cfg.ScheduleFrequency)
	assert.Equal(t, ProviderNone, cfg.AIProvider)
	assert.Equal(t, 20, cfg.MaxBatches)
	assert.InDelta(t, 0.7, cfg.ConfidenceThreshold, 0.001)

	kept := StoredConfig{DataPeriodMonths: 3, ScheduleFrequency: FrequencyQuarterly, AIProvider: ProviderNone, MaxBatches: 5, ConfidenceThreshold: 0.5}.Normalize()
	assert.Equal(t, 3, kept.DataPeriodMonths)
	assert.Equal(t, FrequencyQuarterly, kept.ScheduleFrequency)
	assert.Equal(t, ProviderNone, kept.AIProvider)
	assert.Equal(t, 5, kept.MaxBatches)
}

func TestCanonicalFrequency(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"monthly", FrequencyMonthly, true},
		{"weekly", FrequencyWeekly, true},
		{" Manual ", FrequencyManual, true},
		{"quarterly", FrequencyQuarterly, true},
		{"daily", FrequencyManual, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := CanonicalFrequency(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestCanonicalProvider(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"openai", ProviderOpenAI, true},
		{"claude", ProviderAnthropic, true},
		{"anthropic", ProviderAnthropic, true},
		{"rules", ProviderNone, true},
		{"none", ProviderNone, true},
		{"custom", ProviderNone, false},
		{"gemini", ProviderNone, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := CanonicalProvider(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestLegacyProviderValue(t *testing.T) {
	assert.Equal(t, "claude", LegacyProviderValue(ProviderAnthropic))
	assert.Equal(t, "rules", LegacyProviderValue(ProviderNone))
	assert.Equal(t, "openai", LegacyProviderValue(ProviderOpenAI))
}

func TestOrder_HasCustomer(t *testing.T) {
	assert.False(t, Order{}.HasCustomer())
	assert.True(t, Order{Customer: Customer{ID: "9"}}.HasCustomer())
}

func TestPeriodKey_String(t *testing.T) {
	k := PeriodKey{Shop: "acme.myshopify.com", Year: 2026, Period: "Q4"}
	assert.Equal(t, "acme.myshopify.com/2026-Q4", k.String())
}
