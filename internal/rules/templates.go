package rules

import (
	"bytes"
	"fmt"
	"html/template"

	"steward/internal/models"
)

// bodyContext is the data handed to every body template.
type bodyContext struct {
	SubjectID string
	P         models.Payload
}

var bodyTemplates = map[models.ConditionType]string{
	models.ConditionTrendIncrease: `
<p>Supplier <strong>{{.SubjectID}}</strong>: the {{.P.Indicator}} value rose to
<strong>{{printf "%.1f" .P.Current}}</strong> from {{printf "%.1f" .P.Prior}} in the prior period
({{printf "%.0f" .P.RatioPct}}% of prior).</p>
<p>Please review the recent quality trend with the supplier.</p>`,

	models.ConditionThresholdWarning: `
<p>Supplier <strong>{{.SubjectID}}</strong>: {{.P.Indicator}} is at
<strong>{{printf "%.1f" .P.Value}}</strong>, inside the warning band
(threshold {{printf "%.1f" .P.Threshold}}).</p>
<p>Monitor the supplier and agree on corrective actions if the value keeps rising.</p>`,

	models.ConditionThresholdCritical: `
<p>Supplier <strong>{{.SubjectID}}</strong>: {{.P.Indicator}} is at
<strong>{{printf "%.1f" .P.Value}}</strong>, above the critical threshold
of {{printf "%.1f" .P.Threshold}}.</p>
<p>Immediate follow-up is required. The escalation contact has been copied.</p>`,

	models.ConditionExpiryFar: `
<p>Supplier <strong>{{.SubjectID}}</strong>: the {{.P.Category}} <strong>{{.P.Item}}</strong>
expires on {{.P.ExpiresOn.Format "2006-01-02"}} ({{.P.DaysUntil}} days from now).</p>
<p>Plan the renewal with the supplier.</p>`,

	models.ConditionExpiryNear: `
<p>Supplier <strong>{{.SubjectID}}</strong>: the {{.P.Category}} <strong>{{.P.Item}}</strong>
expires on {{.P.ExpiresOn.Format "2006-01-02"}} ({{.P.DaysUntil}} days from now).</p>
<p>Renewal is due soon; confirm the supplier has scheduled it.</p>`,

	models.ConditionExpired: `
<p>Supplier <strong>{{.SubjectID}}</strong>: the {{.P.Category}} <strong>{{.P.Item}}</strong>
expired on {{.P.ExpiredOn.Format "2006-01-02"}} ({{.P.DaysSince}} days ago).</p>
<p>The supplier is operating without a valid {{.P.Category}}. Escalate the renewal.</p>`,

	models.ConditionConditionalStatus: `
<p>Supplier <strong>{{.SubjectID}}</strong>: the {{.P.Category}} <strong>{{.P.Item}}</strong>
currently reports status <strong>{{.P.StatusText}}</strong>.</p>
<p>Review the open findings with the supplier.</p>`,

	models.ConditionStalenessOverdue: `
<p>Supplier <strong>{{.SubjectID}}</strong>: the criticality index assessment from
{{.P.AssessedOn.Format "2006-01-02"}} passed its five-year mark on
{{.P.DueOn.Format "2006-01-02"}} ({{.P.DaysOverdue}} days ago).</p>
<p>Schedule a reassessment.</p>`,

	models.ConditionStalenessApproaching: `
<p>Supplier <strong>{{.SubjectID}}</strong>: the criticality index assessment from
{{.P.AssessedOn.Format "2006-01-02"}} reaches its five-year mark on
{{.P.DueOn.Format "2006-01-02"}} ({{.P.DaysRemaining}} days from now).</p>
<p>Plan the reassessment before the mark is passed.</p>`,
}

// Renderer turns a condition and its payload into the mail subject line and
// HTML body. Templates are parsed once at construction.
type Renderer struct {
	templates map[models.ConditionType]*template.Template
}

// NewRenderer parses all body templates.
func NewRenderer() (*Renderer, error) {
	parsed := make(map[models.ConditionType]*template.Template, len(bodyTemplates))
	for cond, text := range bodyTemplates {
		tmpl, err := template.New(string(cond)).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", cond, err)
		}
		parsed[cond] = tmpl
	}
	return &Renderer{templates: parsed}, nil
}

// Subject renders the mail subject line for a condition.
func (r *Renderer) Subject(cond models.ConditionType, subjectID, name string, payload models.Payload) string {
	label := subjectID
	if name != "" {
		label = fmt.Sprintf("%s (%s)", name, subjectID)
	}

	switch p := payload.(type) {
	case models.TrendPayload:
		return fmt.Sprintf("Supplier %s: %s increased %.0f%% vs prior period", label, p.Indicator, p.RatioPct-100)
	case models.ThresholdPayload:
		if cond == models.ConditionThresholdCritical {
			return fmt.Sprintf("Supplier %s: %s critical (%.1f)", label, p.Indicator, p.Value)
		}
		return fmt.Sprintf("Supplier %s: %s warning (%.1f)", label, p.Indicator, p.Value)
	case models.ExpiryPayload:
		return fmt.Sprintf("Supplier %s: %s %s expires in %d days", label, p.Category, p.Item, p.DaysUntil)
	case models.ExpiredPayload:
		return fmt.Sprintf("Supplier %s: %s %s expired %d days ago", label, p.Category, p.Item, p.DaysSince)
	case models.StatusPayload:
		return fmt.Sprintf("Supplier %s: %s %s reports %q", label, p.Category, p.Item, p.StatusText)
	case models.StalenessPayload:
		if cond == models.ConditionStalenessOverdue {
			return fmt.Sprintf("Supplier %s: index assessment overdue by %d days", label, p.DaysOverdue)
		}
		return fmt.Sprintf("Supplier %s: index assessment due in %d days", label, p.DaysRemaining)
	default:
		return fmt.Sprintf("Supplier %s: %s", label, cond)
	}
}

// Body renders the HTML body for a condition. The Dispatcher calls this again
// for persisted records, which store only the typed payload.
func (r *Renderer) Body(cond models.ConditionType, subjectID string, payload models.Payload) (string, error) {
	tmpl, ok := r.templates[cond]
	if !ok {
		return "", fmt.Errorf("no body template for condition %s", cond)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, bodyContext{SubjectID: subjectID, P: payload}); err != nil {
		return "", fmt.Errorf("render %s body: %w", cond, err)
	}
	return buf.String(), nil
}
