// Package dispatch sends due notifications through the mail collaborator and
// records per-run delivery outcomes.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"steward/internal/logging"
	"steward/internal/models"
	"steward/internal/rules"
	"steward/internal/schedule"
)

// Mailer is the external mail collaborator: it consumes a fully rendered
// message and reports success or failure.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, htmlBody string) error
}

// BodyRenderer re-renders mail bodies from the typed payloads persisted in
// the Schedule Store.
type BodyRenderer interface {
	Body(cond models.ConditionType, subjectID string, payload models.Payload) (string, error)
}

// sendPause keeps a fixed short gap between sends so the mail collaborator
// is not overwhelmed. Rate limit only, not a correctness requirement.
const sendPause = 500 * time.Millisecond

// Dispatcher processes one dispatch pass over the Schedule Store and the
// immediate side channel.
type Dispatcher struct {
	store    *schedule.Store
	policy   rules.Policy
	mailer   Mailer
	renderer BodyRenderer
	limiter  *rate.Limiter
	logger   logging.Logger
}

// NewDispatcher wires a dispatcher over its collaborators.
func NewDispatcher(store *schedule.Store, policy rules.Policy, mailer Mailer, renderer BodyRenderer, logger logging.Logger) *Dispatcher {
	return &Dispatcher{
		store:    store,
		policy:   policy,
		mailer:   mailer,
		renderer: renderer,
		limiter:  rate.NewLimiter(rate.Every(sendPause), 1),
		logger:   logger,
	}
}

// RunResult summarizes one dispatch pass.
type RunResult struct {
	RunID     string
	Attempted int
	Succeeded int
	Failed    int
}

// Run drains the immediate queue and sends every due record, most urgent
// first. Mail failures are per-notification and non-fatal; store failures
// abort the pass. Safe to resume after a crash: sent records are skipped and
// unattempted due records stay pending.
func (d *Dispatcher) Run(ctx context.Context, today time.Time) (RunResult, error) {
	today = dateOnly(today)
	result := RunResult{RunID: uuid.New().String()}

	immediates, err := d.store.DrainImmediates(ctx)
	if err != nil {
		return result, err
	}
	due, err := d.store.DueAsOf(ctx, today)
	if err != nil {
		return result, err
	}

	d.logger.WithFields(logging.Fields{
		"run_id":     result.RunID,
		"due":        len(due),
		"immediates": len(immediates),
		"as_of":      today.Format("2006-01-02"),
	}).Info("Starting dispatch run")

	for _, imm := range immediates {
		if err := d.limiter.Wait(ctx); err != nil {
			return result, err
		}

		sendErr := d.mailer.SendMail(ctx, imm.Recipient, imm.SubjectText, imm.Body)
		if err := d.recordOutcome(ctx, &result, models.DeliveryOutcome{
			RunID:     result.RunID,
			SubjectID: imm.SubjectID,
			Condition: imm.Condition,
			Recipient: imm.Recipient,
			Success:   sendErr == nil,
		}, sendErr); err != nil {
			return result, err
		}
	}

	for i := range due {
		n := due[i]
		if err := d.limiter.Wait(ctx); err != nil {
			return result, err
		}

		sendErr, storeErr := d.sendScheduled(ctx, n, today)
		if storeErr != nil {
			return result, storeErr
		}
		notificationID := n.ID
		if err := d.recordOutcome(ctx, &result, models.DeliveryOutcome{
			RunID:          result.RunID,
			NotificationID: &notificationID,
			SubjectID:      n.SubjectID,
			Condition:      n.Condition,
			Recipient:      n.Recipient,
			Success:        sendErr == nil,
		}, sendErr); err != nil {
			return result, err
		}
	}

	d.logger.WithFields(logging.Fields{
		"run_id":    result.RunID,
		"attempted": result.Attempted,
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("Dispatch run completed")

	return result, nil
}

// sendScheduled attempts one persisted notification and applies the matching
// status transition. sendErr is per-notification and non-fatal; storeErr
// aborts the run.
func (d *Dispatcher) sendScheduled(ctx context.Context, n models.ScheduledNotification, today time.Time) (sendErr, storeErr error) {
	cadence := n.Cadence
	interval := n.ResendIntervalDays
	if p, ok := d.policy.For(n.Condition); ok {
		cadence = p.Cadence
		interval = p.ResendIntervalDays
	}

	body, err := d.renderer.Body(n.Condition, n.SubjectID, n.Payload)
	if err == nil {
		err = d.mailer.SendMail(ctx, n.Recipient, n.SubjectText, body)
	}

	if err != nil {
		d.logger.WithError(err).WithFields(logging.Fields{
			"subject_id": n.SubjectID,
			"condition":  n.Condition,
			"recipient":  n.Recipient,
		}).Warn("Send failed, leaving record due for next run")
		return err, d.store.MarkFailed(ctx, n.ID)
	}

	// Only recurring records re-arm; a sent one-time record is retired.
	if cadence == models.CadenceRecurring {
		return nil, d.store.Rearm(ctx, n.ID, today, today.AddDate(0, 0, interval))
	}
	return nil, d.store.MarkSent(ctx, n.ID, today)
}

func (d *Dispatcher) recordOutcome(ctx context.Context, result *RunResult, o models.DeliveryOutcome, sendErr error) error {
	o.SentAt = time.Now().UTC()
	result.Attempted++
	if sendErr == nil {
		result.Succeeded++
	} else {
		result.Failed++
	}
	return d.store.RecordOutcome(ctx, o)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
