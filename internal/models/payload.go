package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the structured fact set that justified a condition. Each
// condition family has its own variant with individually typed fields;
// free-text blobs are never stored.
type Payload interface {
	Kind() string
}

// TrendPayload backs trend-increase conditions.
type TrendPayload struct {
	Indicator string  `json:"indicator"`
	Prior     float64 `json:"prior"`
	Current   float64 `json:"current"`
	RatioPct  float64 `json:"ratio_pct"`
}

func (TrendPayload) Kind() string { return "trend" }

// ThresholdPayload backs threshold-warning and threshold-critical conditions.
type ThresholdPayload struct {
	Indicator string  `json:"indicator"`
	Value     float64 `json:"value"`
	Band      string  `json:"band"`
	Threshold float64 `json:"threshold"`
}

func (ThresholdPayload) Kind() string { return "threshold" }

// ExpiryPayload backs expiry-far and expiry-near conditions.
type ExpiryPayload struct {
	Item      string    `json:"item"`
	Category  string    `json:"category"`
	ExpiresOn time.Time `json:"expires_on"`
	DaysUntil int       `json:"days_until"`
}

func (ExpiryPayload) Kind() string { return "expiry" }

// ExpiredPayload backs expired conditions; DaysSince is the magnitude of the
// overshoot (0 on the expiry day itself).
type ExpiredPayload struct {
	Item      string    `json:"item"`
	Category  string    `json:"category"`
	ExpiredOn time.Time `json:"expired_on"`
	DaysSince int       `json:"days_since"`
}

func (ExpiredPayload) Kind() string { return "expired" }

// StatusPayload backs conditional-status conditions.
type StatusPayload struct {
	Item       string `json:"item"`
	Category   string `json:"category"`
	StatusText string `json:"status_text"`
}

func (StatusPayload) Kind() string { return "status" }

// StalenessPayload backs staleness-overdue and staleness-approaching
// conditions on the index-assessment date.
type StalenessPayload struct {
	AssessedOn    time.Time `json:"assessed_on"`
	DueOn         time.Time `json:"due_on"`
	DaysOverdue   int       `json:"days_overdue"`
	DaysRemaining int       `json:"days_remaining"`
}

func (StalenessPayload) Kind() string { return "staleness" }

type payloadEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalPayload encodes a payload with its kind discriminator for storage.
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return []byte(`{}`), nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Kind(), err)
	}
	return json.Marshal(payloadEnvelope{Kind: p.Kind(), Data: data})
}

// UnmarshalPayload decodes a stored payload by its kind discriminator.
func UnmarshalPayload(raw []byte) (Payload, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env payloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode payload envelope: %w", err)
	}
	if env.Kind == "" {
		return nil, nil
	}

	switch env.Kind {
	case "trend":
		var v TrendPayload
		return v, json.Unmarshal(env.Data, &v)
	case "threshold":
		var v ThresholdPayload
		return v, json.Unmarshal(env.Data, &v)
	case "expiry":
		var v ExpiryPayload
		return v, json.Unmarshal(env.Data, &v)
	case "expired":
		var v ExpiredPayload
		return v, json.Unmarshal(env.Data, &v)
	case "status":
		var v StatusPayload
		return v, json.Unmarshal(env.Data, &v)
	case "staleness":
		var v StalenessPayload
		return v, json.Unmarshal(env.Data, &v)
	default:
		return nil, fmt.Errorf("unknown payload kind %q", env.Kind)
	}
}
