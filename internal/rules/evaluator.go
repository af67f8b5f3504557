package rules

import (
	"strings"
	"time"

	"steward/internal/logging"
	"steward/internal/models"
	"steward/internal/recipients"
)

// dateLayout is the wire format the upstream collector emits for all dates.
const dateLayout = "2006-01-02"

// Thresholds holds the numeric rule parameters. Percentages are expressed as
// whole numbers (110 = 110%) so that boundary comparisons stay exact for
// integer-valued metrics.
type Thresholds struct {
	TrendIncreasePct    float64
	WarningFloor        float64
	CriticalFloor       float64
	ExpiryFarDays       int
	ExpiryNearDays      int
	StalenessYears      int
	StalenessWindowDays int
}

// DefaultThresholds returns the production rule parameters.
func DefaultThresholds() Thresholds {
	return Thresholds{
		TrendIncreasePct:    110,
		WarningFloor:        30,
		CriticalFloor:       50,
		ExpiryFarDays:       180,
		ExpiryNearDays:      90,
		StalenessYears:      5,
		StalenessWindowDays: 90,
	}
}

// conditionPriority assigns severity per condition type (1 = highest).
var conditionPriority = map[models.ConditionType]int{
	models.ConditionTrendIncrease:        2,
	models.ConditionThresholdWarning:     2,
	models.ConditionThresholdCritical:    1,
	models.ConditionExpiryFar:            3,
	models.ConditionExpiryNear:           2,
	models.ConditionExpired:              1,
	models.ConditionConditionalStatus:    2,
	models.ConditionStalenessOverdue:     2,
	models.ConditionStalenessApproaching: 3,
}

// Evaluator maps one supplier's metric snapshot to the complete candidate set
// for that subject. Stateless: all inputs arrive via Evaluate.
type Evaluator struct {
	cfg       Thresholds
	directory *recipients.Directory
	renderer  *Renderer
	logger    logging.Logger
}

// NewEvaluator creates an evaluator over the given thresholds and recipient
// directory.
func NewEvaluator(cfg Thresholds, directory *recipients.Directory, renderer *Renderer, logger logging.Logger) *Evaluator {
	return &Evaluator{
		cfg:       cfg,
		directory: directory,
		renderer:  renderer,
		logger:    logger,
	}
}

// Evaluate produces at most one candidate per condition type for the subject.
// A subject with no recipient assignment yields no candidates; that is not an
// error for the run.
func (e *Evaluator) Evaluate(snap models.MetricSnapshot, asOf time.Time) []models.NotificationCandidate {
	recips := e.directory.Lookup(snap.GroupCode)
	if len(recips) == 0 {
		e.logger.WithFields(logging.Fields{
			"subject_id": snap.SubjectID,
			"group_code": snap.GroupCode,
		}).Warn("No recipient assignment for subject, dropping its conditions")
		return nil
	}

	asOf = dateOnly(asOf)

	var out []models.NotificationCandidate
	if c := e.trendCandidate(snap, recips); c != nil {
		out = append(out, *c)
	}
	if c := e.thresholdCandidate(snap, recips); c != nil {
		out = append(out, *c)
	}
	out = append(out, e.expiryCandidates(snap, asOf, recips)...)
	if c := e.stalenessCandidate(snap, asOf, recips); c != nil {
		out = append(out, *c)
	}
	return out
}

// trendCandidate fires when the primary trended indicator reaches the
// configured percentage of its prior-period value. Prior must be positive.
func (e *Evaluator) trendCandidate(snap models.MetricSnapshot, recips []string) *models.NotificationCandidate {
	prior, current := snap.QPM.Prior, snap.QPM.Current
	// current/prior >= pct/100, kept in multiplied form so a ratio of exactly
	// 1.10 compares equal for integer inputs.
	if prior <= 0 || current*100 < prior*e.cfg.TrendIncreasePct {
		return nil
	}
	return e.candidate(models.ConditionTrendIncrease, snap, recips, models.TrendPayload{
		Indicator: "QPM",
		Prior:     prior,
		Current:   current,
		RatioPct:  current / prior * 100,
	})
}

// thresholdCandidate classifies the primary indicator into at most one of the
// warning and critical bands. Critical adds the escalation contact.
func (e *Evaluator) thresholdCandidate(snap models.MetricSnapshot, recips []string) *models.NotificationCandidate {
	v := snap.QPM.Current
	switch {
	case v >= e.cfg.CriticalFloor:
		escalated := recips
		if esc := e.directory.EscalationContact; esc != "" && !contains(recips, esc) {
			escalated = append(append([]string{}, recips...), esc)
		}
		return e.candidate(models.ConditionThresholdCritical, snap, escalated, models.ThresholdPayload{
			Indicator: "QPM",
			Value:     v,
			Band:      "critical",
			Threshold: e.cfg.CriticalFloor,
		})
	case v >= e.cfg.WarningFloor:
		return e.candidate(models.ConditionThresholdWarning, snap, recips, models.ThresholdPayload{
			Indicator: "QPM",
			Value:     v,
			Band:      "warning",
			Threshold: e.cfg.WarningFloor,
		})
	default:
		return nil
	}
}

// expiryCandidates evaluates audits and certifications identically. Several
// items can fall into the same window; the most urgent item wins so each
// condition type yields at most one candidate per subject.
func (e *Evaluator) expiryCandidates(snap models.MetricSnapshot, asOf time.Time, recips []string) []models.NotificationCandidate {
	type datedFact struct {
		item     models.DatedItem
		category string
		expires  time.Time
		days     int
	}

	var far, near, expired *datedFact
	var flagged *datedFact

	consider := func(item models.DatedItem, category string) {
		if flagged == nil && statusNeedsAttention(item.Status) {
			flagged = &datedFact{item: item, category: category}
		}

		if strings.TrimSpace(item.ExpiresOn) == "" {
			return
		}
		expires, err := time.Parse(dateLayout, item.ExpiresOn)
		if err != nil {
			e.logger.WithFields(logging.Fields{
				"subject_id": snap.SubjectID,
				"item":       item.Name,
				"category":   category,
				"expires_on": item.ExpiresOn,
			}).Warn("Unparseable expiry date, skipping expiry conditions for item")
			return
		}

		days := daysBetween(asOf, dateOnly(expires))
		fact := &datedFact{item: item, category: category, expires: dateOnly(expires), days: days}
		switch {
		case days <= 0:
			if expired == nil || days < expired.days {
				expired = fact
			}
		case days <= e.cfg.ExpiryNearDays:
			if near == nil || days < near.days {
				near = fact
			}
		case days <= e.cfg.ExpiryFarDays:
			if far == nil || days < far.days {
				far = fact
			}
		}
	}

	for _, item := range snap.Audits {
		consider(item, "audit")
	}
	for _, item := range snap.Certifications {
		consider(item, "certification")
	}

	var out []models.NotificationCandidate
	if expired != nil {
		if c := e.candidate(models.ConditionExpired, snap, recips, models.ExpiredPayload{
			Item:      expired.item.Name,
			Category:  expired.category,
			ExpiredOn: expired.expires,
			DaysSince: -expired.days,
		}); c != nil {
			out = append(out, *c)
		}
	}
	if near != nil {
		if c := e.candidate(models.ConditionExpiryNear, snap, recips, models.ExpiryPayload{
			Item:      near.item.Name,
			Category:  near.category,
			ExpiresOn: near.expires,
			DaysUntil: near.days,
		}); c != nil {
			out = append(out, *c)
		}
	}
	if far != nil {
		if c := e.candidate(models.ConditionExpiryFar, snap, recips, models.ExpiryPayload{
			Item:      far.item.Name,
			Category:  far.category,
			ExpiresOn: far.expires,
			DaysUntil: far.days,
		}); c != nil {
			out = append(out, *c)
		}
	}
	if flagged != nil {
		if c := e.candidate(models.ConditionConditionalStatus, snap, recips, models.StatusPayload{
			Item:       flagged.item.Name,
			Category:   flagged.category,
			StatusText: flagged.item.Status,
		}); c != nil {
			out = append(out, *c)
		}
	}
	return out
}

// stalenessCandidate checks the index-assessment date: overdue at the
// configured number of elapsed years, approaching inside the warning window
// before that mark. The two outcomes are mutually exclusive.
func (e *Evaluator) stalenessCandidate(snap models.MetricSnapshot, asOf time.Time, recips []string) *models.NotificationCandidate {
	if strings.TrimSpace(snap.IndexAssessedOn) == "" {
		return nil
	}
	assessed, err := time.Parse(dateLayout, snap.IndexAssessedOn)
	if err != nil {
		e.logger.WithFields(logging.Fields{
			"subject_id":  snap.SubjectID,
			"assessed_on": snap.IndexAssessedOn,
		}).Warn("Unparseable index-assessment date, skipping staleness condition")
		return nil
	}
	assessed = dateOnly(assessed)

	dueOn := assessed.AddDate(e.cfg.StalenessYears, 0, 0)
	switch remaining := daysBetween(asOf, dueOn); {
	case remaining <= 0:
		return e.candidate(models.ConditionStalenessOverdue, snap, recips, models.StalenessPayload{
			AssessedOn:  assessed,
			DueOn:       dueOn,
			DaysOverdue: -remaining,
		})
	case remaining <= e.cfg.StalenessWindowDays:
		return e.candidate(models.ConditionStalenessApproaching, snap, recips, models.StalenessPayload{
			AssessedOn:    assessed,
			DueOn:         dueOn,
			DaysRemaining: remaining,
		})
	default:
		return nil
	}
}

func (e *Evaluator) candidate(cond models.ConditionType, snap models.MetricSnapshot, recips []string, payload models.Payload) *models.NotificationCandidate {
	body, err := e.renderer.Body(cond, snap.SubjectID, payload)
	if err != nil {
		e.logger.WithError(err).WithFields(logging.Fields{
			"subject_id": snap.SubjectID,
			"condition":  cond,
		}).Error("Failed to render notification body, dropping candidate")
		return nil
	}
	return &models.NotificationCandidate{
		Condition:  cond,
		SubjectID:  snap.SubjectID,
		Recipients: recips,
		Subject:    e.renderer.Subject(cond, snap.SubjectID, snap.Name, payload),
		Body:       body,
		Priority:   conditionPriority[cond],
		Payload:    payload,
	}
}

// statusNeedsAttention reports whether a qualitative status text indicates a
// conditional or failed outcome ("Approved with conditions", "Not Approved",
// restriction flags).
func statusNeedsAttention(status string) bool {
	s := strings.ToLower(status)
	return strings.Contains(s, "not approved") ||
		strings.Contains(s, "with conditions") ||
		strings.Contains(s, "restriction") ||
		strings.Contains(s, "failed")
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
