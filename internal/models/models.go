package models

import "time"

// ConditionType is the closed enumeration of rule outcomes.
type ConditionType string

const (
	ConditionTrendIncrease        ConditionType = "trend-increase"
	ConditionThresholdWarning     ConditionType = "threshold-warning"
	ConditionThresholdCritical    ConditionType = "threshold-critical"
	ConditionExpiryFar            ConditionType = "expiry-far"
	ConditionExpiryNear           ConditionType = "expiry-near"
	ConditionExpired              ConditionType = "expired"
	ConditionConditionalStatus    ConditionType = "conditional-status"
	ConditionStalenessOverdue     ConditionType = "staleness-overdue"
	ConditionStalenessApproaching ConditionType = "staleness-approaching"
)

// AllConditionTypes lists the enumeration in stable report order.
var AllConditionTypes = []ConditionType{
	ConditionTrendIncrease,
	ConditionThresholdWarning,
	ConditionThresholdCritical,
	ConditionExpiryFar,
	ConditionExpiryNear,
	ConditionExpired,
	ConditionConditionalStatus,
	ConditionStalenessOverdue,
	ConditionStalenessApproaching,
}

// Cadence governs whether and how a condition re-arms after being sent.
type Cadence string

const (
	CadenceImmediate Cadence = "immediate"
	CadenceOneTime   Cadence = "one-time"
	CadenceRecurring Cadence = "recurring"
)

// Status is the lifecycle state of a scheduled notification.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// TrendedIndicator carries the current and prior-period values of one of the
// two trended numeric metrics.
type TrendedIndicator struct {
	Current float64 `json:"current"`
	Prior   float64 `json:"prior"`
}

// DatedItem is one audit or certification entry from the scorecard. ExpiresOn
// arrives as a YYYY-MM-DD string and is parsed per condition so that a bad
// date only skips the conditions depending on it.
type DatedItem struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	ExpiresOn string `json:"expires_on"`
}

// MetricSnapshot is one supplier's metric record for an evaluation run,
// produced by the upstream collection collaborator. Immutable per run.
type MetricSnapshot struct {
	SubjectID       string           `json:"subject_id"`
	Name            string           `json:"name"`
	GroupCode       string           `json:"group_code"`
	QPM             TrendedIndicator `json:"qpm"`
	PPM             TrendedIndicator `json:"ppm"`
	Audits          []DatedItem      `json:"audits"`
	Certifications  []DatedItem      `json:"certifications"`
	IndexAssessedOn string           `json:"index_assessed_on"`
}

// NotificationCandidate is one violated condition for one subject, ready to
// be scheduled or sent. Priority 1 is the highest.
type NotificationCandidate struct {
	Condition  ConditionType
	SubjectID  string
	Recipients []string
	Subject    string
	Body       string
	Priority   int
	Payload    Payload
}

// ScheduledNotification is the persistent schedule record for one
// (subject, condition type) pair. NextDue nil means "send now" for a pending
// record and "never again" once a one-time record has been sent.
type ScheduledNotification struct {
	ID                 string
	SubjectID          string
	Condition          ConditionType
	FirstSeen          time.Time
	LastSent           *time.Time
	NextDue            *time.Time
	SendCount          int
	Status             Status
	Priority           int
	Recipient          string
	SubjectText        string
	ResendIntervalDays int
	Cadence            Cadence
	Payload            Payload
}

// ImmediateNotification is one entry of the immediate side-channel queue.
type ImmediateNotification struct {
	ID          string
	SubjectID   string
	Condition   ConditionType
	Priority    int
	Recipient   string
	SubjectText string
	Body        string
	CreatedAt   time.Time
}

// DeliveryOutcome records one send attempt of a dispatch run.
// NotificationID is nil for entries drained from the immediate queue.
type DeliveryOutcome struct {
	RunID          string
	NotificationID *string
	SubjectID      string
	Condition      ConditionType
	Recipient      string
	Success        bool
	SentAt         time.Time
}
