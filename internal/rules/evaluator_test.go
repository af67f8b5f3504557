package rules

import (
	"testing"
	"time"

	"steward/internal/logging"
	"steward/internal/models"
	"steward/internal/recipients"
)

var asOf = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func testEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	renderer, err := NewRenderer()
	if err != nil {
		t.Fatalf("failed to build renderer: %v", err)
	}
	dir := &recipients.Directory{
		EscalationContact: "sqa-lead@example.com",
		Groups: map[string][]string{
			"PLANT-A": {"buyer@example.com"},
		},
	}
	return NewEvaluator(DefaultThresholds(), dir, renderer, logging.NewLogger())
}

func baseSnapshot() models.MetricSnapshot {
	return models.MetricSnapshot{
		SubjectID: "SUP-001",
		Name:      "Acme Castings",
		GroupCode: "PLANT-A",
	}
}

func findCandidate(cands []models.NotificationCandidate, cond models.ConditionType) *models.NotificationCandidate {
	for i := range cands {
		if cands[i].Condition == cond {
			return &cands[i]
		}
	}
	return nil
}

func TestEvaluate_TrendBoundary(t *testing.T) {
	e := testEvaluator(t)

	cases := []struct {
		name    string
		current float64
		fires   bool
	}{
		{"below ratio", 43, false},
		{"exactly 110 percent", 44, true},
		{"above ratio", 45, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := baseSnapshot()
			snap.QPM = models.TrendedIndicator{Prior: 40, Current: tc.current}

			c := findCandidate(e.Evaluate(snap, asOf), models.ConditionTrendIncrease)
			if tc.fires && c == nil {
				t.Fatalf("expected trend-increase for current=%v", tc.current)
			}
			if !tc.fires && c != nil {
				t.Fatalf("unexpected trend-increase for current=%v", tc.current)
			}
			if c != nil {
				p, ok := c.Payload.(models.TrendPayload)
				if !ok {
					t.Fatalf("unexpected payload type %T", c.Payload)
				}
				if p.Prior != 40 || p.Current != tc.current {
					t.Fatalf("payload carries %v/%v, want 40/%v", p.Prior, p.Current, tc.current)
				}
			}
		})
	}
}

func TestEvaluate_TrendRequiresPositivePrior(t *testing.T) {
	e := testEvaluator(t)
	snap := baseSnapshot()
	snap.QPM = models.TrendedIndicator{Prior: 0, Current: 25}

	if c := findCandidate(e.Evaluate(snap, asOf), models.ConditionTrendIncrease); c != nil {
		t.Fatal("trend-increase must not fire when the prior value is zero")
	}
}

func TestEvaluate_ThresholdBands(t *testing.T) {
	e := testEvaluator(t)

	cases := []struct {
		name  string
		value float64
		want  models.ConditionType
	}{
		{"below warning", 20, ""},
		{"warning band", 35, models.ConditionThresholdWarning},
		{"critical boundary", 50, models.ConditionThresholdCritical},
		{"critical band", 55, models.ConditionThresholdCritical},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := baseSnapshot()
			snap.QPM = models.TrendedIndicator{Current: tc.value}

			cands := e.Evaluate(snap, asOf)
			warning := findCandidate(cands, models.ConditionThresholdWarning)
			critical := findCandidate(cands, models.ConditionThresholdCritical)

			switch tc.want {
			case "":
				if warning != nil || critical != nil {
					t.Fatalf("value %v must not classify into any band", tc.value)
				}
			case models.ConditionThresholdWarning:
				if warning == nil || critical != nil {
					t.Fatalf("value %v must classify as warning only", tc.value)
				}
				if warning.Priority != 2 {
					t.Fatalf("warning priority = %d, want 2", warning.Priority)
				}
				if len(warning.Recipients) != 1 || warning.Recipients[0] != "buyer@example.com" {
					t.Fatalf("warning recipients = %v", warning.Recipients)
				}
			case models.ConditionThresholdCritical:
				if critical == nil || warning != nil {
					t.Fatalf("value %v must classify as critical only", tc.value)
				}
				if critical.Priority != 1 {
					t.Fatalf("critical priority = %d, want 1", critical.Priority)
				}
				if len(critical.Recipients) != 2 || critical.Recipients[1] != "sqa-lead@example.com" {
					t.Fatalf("critical must append the escalation contact, got %v", critical.Recipients)
				}
			}
		})
	}
}

func TestEvaluate_ExpiryWindows(t *testing.T) {
	e := testEvaluator(t)

	cases := []struct {
		name string
		days int
		want models.ConditionType
	}{
		{"beyond far window", 200, ""},
		{"far window", 120, models.ConditionExpiryFar},
		{"near window", 85, models.ConditionExpiryNear},
		{"expires today", 0, models.ConditionExpired},
		{"already expired", -10, models.ConditionExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := baseSnapshot()
			snap.Certifications = []models.DatedItem{{
				Name:      "ISO 9001",
				Status:    "Approved",
				ExpiresOn: asOf.AddDate(0, 0, tc.days).Format("2006-01-02"),
			}}

			cands := e.Evaluate(snap, asOf)
			for _, cond := range []models.ConditionType{models.ConditionExpiryFar, models.ConditionExpiryNear, models.ConditionExpired} {
				got := findCandidate(cands, cond)
				if cond == tc.want && got == nil {
					t.Fatalf("expected %s for %d days out", cond, tc.days)
				}
				if cond != tc.want && got != nil {
					t.Fatalf("unexpected %s for %d days out", cond, tc.days)
				}
			}

			if tc.want == models.ConditionExpired {
				p := findCandidate(cands, tc.want).Payload.(models.ExpiredPayload)
				if p.DaysSince != -tc.days {
					t.Fatalf("DaysSince = %d, want %d", p.DaysSince, -tc.days)
				}
			}
		})
	}
}

func TestEvaluate_MostUrgentItemPerWindow(t *testing.T) {
	e := testEvaluator(t)
	snap := baseSnapshot()
	snap.Certifications = []models.DatedItem{
		{Name: "ISO 9001", Status: "Approved", ExpiresOn: asOf.AddDate(0, 0, 85).Format("2006-01-02")},
		{Name: "IATF 16949", Status: "Approved", ExpiresOn: asOf.AddDate(0, 0, 40).Format("2006-01-02")},
	}

	cands := e.Evaluate(snap, asOf)
	near := findCandidate(cands, models.ConditionExpiryNear)
	if near == nil {
		t.Fatal("expected a single expiry-near candidate")
	}
	count := 0
	for _, c := range cands {
		if c.Condition == models.ConditionExpiryNear {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expiry-near fired %d times, want 1", count)
	}

	p := near.Payload.(models.ExpiryPayload)
	if p.Item != "IATF 16949" || p.DaysUntil != 40 {
		t.Fatalf("most urgent item must win, got %s at %d days", p.Item, p.DaysUntil)
	}
}

func TestEvaluate_ConditionalStatus(t *testing.T) {
	e := testEvaluator(t)
	snap := baseSnapshot()
	snap.Audits = []models.DatedItem{
		{Name: "Process Audit", Status: "Approved with conditions", ExpiresOn: asOf.AddDate(1, 0, 0).Format("2006-01-02")},
	}

	c := findCandidate(e.Evaluate(snap, asOf), models.ConditionConditionalStatus)
	if c == nil {
		t.Fatal("expected conditional-status candidate")
	}
	p := c.Payload.(models.StatusPayload)
	if p.Item != "Process Audit" || p.StatusText != "Approved with conditions" {
		t.Fatalf("unexpected status payload: %+v", p)
	}
}

func TestEvaluate_UnparseableDateSkipsOnlyExpiry(t *testing.T) {
	e := testEvaluator(t)
	snap := baseSnapshot()
	snap.Audits = []models.DatedItem{
		{Name: "Process Audit", Status: "Not Approved", ExpiresOn: "12/31/2026"},
	}

	cands := e.Evaluate(snap, asOf)
	if findCandidate(cands, models.ConditionConditionalStatus) == nil {
		t.Fatal("status condition must survive a bad expiry date")
	}
	for _, cond := range []models.ConditionType{models.ConditionExpiryFar, models.ConditionExpiryNear, models.ConditionExpired} {
		if findCandidate(cands, cond) != nil {
			t.Fatalf("%s must be skipped for an unparseable date", cond)
		}
	}
}

func TestEvaluate_Staleness(t *testing.T) {
	e := testEvaluator(t)

	cases := []struct {
		name   string
		offset int // days between asOf and the five-year mark
		want   models.ConditionType
	}{
		{"overdue", -10, models.ConditionStalenessOverdue},
		{"due today", 0, models.ConditionStalenessOverdue},
		{"inside warning window", 30, models.ConditionStalenessApproaching},
		{"outside warning window", 120, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := baseSnapshot()
			snap.IndexAssessedOn = asOf.AddDate(-5, 0, tc.offset).Format("2006-01-02")

			cands := e.Evaluate(snap, asOf)
			overdue := findCandidate(cands, models.ConditionStalenessOverdue)
			approaching := findCandidate(cands, models.ConditionStalenessApproaching)

			switch tc.want {
			case models.ConditionStalenessOverdue:
				if overdue == nil || approaching != nil {
					t.Fatalf("offset %d must yield overdue only", tc.offset)
				}
				p := overdue.Payload.(models.StalenessPayload)
				if p.DaysOverdue != -tc.offset {
					t.Fatalf("DaysOverdue = %d, want %d", p.DaysOverdue, -tc.offset)
				}
			case models.ConditionStalenessApproaching:
				if approaching == nil || overdue != nil {
					t.Fatalf("offset %d must yield approaching only", tc.offset)
				}
				p := approaching.Payload.(models.StalenessPayload)
				if p.DaysRemaining != tc.offset {
					t.Fatalf("DaysRemaining = %d, want %d", p.DaysRemaining, tc.offset)
				}
			case "":
				if overdue != nil || approaching != nil {
					t.Fatalf("offset %d must yield no staleness condition", tc.offset)
				}
			}
		})
	}
}

func TestEvaluate_UnresolvedRecipientDropsSubject(t *testing.T) {
	e := testEvaluator(t)
	snap := baseSnapshot()
	snap.GroupCode = "UNKNOWN"
	snap.QPM = models.TrendedIndicator{Prior: 40, Current: 55}

	if cands := e.Evaluate(snap, asOf); len(cands) != 0 {
		t.Fatalf("subject without recipient assignment produced %d candidates", len(cands))
	}
}

func TestEvaluate_AtMostOnePerConditionType(t *testing.T) {
	e := testEvaluator(t)
	snap := baseSnapshot()
	snap.QPM = models.TrendedIndicator{Prior: 40, Current: 55}
	snap.Audits = []models.DatedItem{
		{Name: "Process Audit", Status: "Approved with conditions", ExpiresOn: asOf.AddDate(0, 0, 60).Format("2006-01-02")},
	}
	snap.Certifications = []models.DatedItem{
		{Name: "ISO 9001", Status: "Failed", ExpiresOn: asOf.AddDate(0, 0, 30).Format("2006-01-02")},
	}
	snap.IndexAssessedOn = asOf.AddDate(-5, 0, -1).Format("2006-01-02")

	seen := make(map[models.ConditionType]int)
	for _, c := range e.Evaluate(snap, asOf) {
		seen[c.Condition]++
	}
	for cond, n := range seen {
		if n > 1 {
			t.Fatalf("condition %s fired %d times for one subject", cond, n)
		}
	}
	for _, want := range []models.ConditionType{
		models.ConditionTrendIncrease,
		models.ConditionThresholdCritical,
		models.ConditionExpiryNear,
		models.ConditionConditionalStatus,
		models.ConditionStalenessOverdue,
	} {
		if seen[want] == 0 {
			t.Fatalf("expected condition %s to fire", want)
		}
	}
}
