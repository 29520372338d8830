package model

import (
	"fmt"
	"time"
)

// PeriodStatus is the lifecycle state of a period record.
type PeriodStatus string

const (
	PeriodStatusProcessing PeriodStatus = "processing"
	PeriodStatusSuccess    PeriodStatus = "success"
	PeriodStatusFailed     PeriodStatus = "failed"
)

// PeriodKey identifies one processing period for one shop. Period is a label
// such as "Q2" or "M07" so that keys from different frequencies never collide.
type PeriodKey struct {
	Shop   string `json:"shop"`
	Year   int    `json:"year"`
	Period string `json:"period"`
}

func (k PeriodKey) String() string {
	return fmt.Sprintf("%s/%d-%s", k.Shop, k.Year, k.Period)
}

// PeriodRecord is the persisted completion record for a PeriodKey. There is
// at most one record per key.
type PeriodRecord struct {
	ID             string       `json:"id"`
	Key            PeriodKey    `json:"key"`
	Status         PeriodStatus `json:"status"`
	Success        bool         `json:"success"`
	OrderCount     int          `json:"order_count"`
	ErrorMessage   string       `json:"error_message,omitempty"`
	Trigger        string       `json:"trigger,omitempty"`
	ClaimToken     string       `json:"-"`
	LeaseExpiresAt *time.Time   `json:"lease_expires_at,omitempty"`
	ProcessedAt    *time.Time   `json:"processed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// PeriodOutcome is the result of one processing attempt, written when the
// attempt finishes.
type PeriodOutcome struct {
	Success      bool
	OrderCount   int
	ErrorMessage string
	ProcessedAt  time.Time
}
