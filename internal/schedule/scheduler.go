package schedule

import (
	"context"
	"time"

	"steward/internal/logging"
	"steward/internal/models"
	"steward/internal/rules"
)

// Scheduler ingests notification candidates against the store, enforcing
// at-most-one-active-schedule-per-condition and the cadence semantics of the
// injected frequency policy.
type Scheduler struct {
	store  *Store
	policy rules.Policy
	logger logging.Logger
}

// NewScheduler creates a scheduler over a store and a frequency policy.
func NewScheduler(store *Store, policy rules.Policy, logger logging.Logger) *Scheduler {
	return &Scheduler{store: store, policy: policy, logger: logger}
}

// IngestSummary reports what one scheduling pass did with its batch.
type IngestSummary struct {
	Scheduled  int
	Immediates int
	Dropped    int
}

// Ingest processes a candidate batch as of the given date. Re-running on an
// identical batch with no elapsed time leaves the store unchanged.
func (s *Scheduler) Ingest(ctx context.Context, candidates []models.NotificationCandidate, today time.Time) (IngestSummary, error) {
	var summary IngestSummary

	for _, c := range candidates {
		policy, ok := s.policy.For(c.Condition)
		if !ok {
			s.logger.WithFields(logging.Fields{
				"subject_id": c.SubjectID,
				"condition":  c.Condition,
			}).Error("No cadence policy for condition, dropping candidate")
			summary.Dropped++
			continue
		}

		switch policy.Cadence {
		case models.CadenceImmediate:
			if err := s.store.EnqueueImmediate(ctx, c); err != nil {
				return summary, err
			}
			summary.Immediates++

		case models.CadenceOneTime, models.CadenceRecurring:
			inserted, err := s.ingestScheduled(ctx, c, policy, today)
			if err != nil {
				return summary, err
			}
			if inserted {
				summary.Scheduled++
			} else {
				summary.Dropped++
			}

		default:
			s.logger.WithFields(logging.Fields{
				"condition": c.Condition,
				"cadence":   policy.Cadence,
			}).Error("Unknown cadence class, dropping candidate")
			summary.Dropped++
		}
	}

	s.logger.WithFields(logging.Fields{
		"candidates": len(candidates),
		"scheduled":  summary.Scheduled,
		"immediates": summary.Immediates,
		"dropped":    summary.Dropped,
	}).Info("Candidate batch ingested")

	return summary, nil
}

func (s *Scheduler) ingestScheduled(ctx context.Context, c models.NotificationCandidate, policy rules.CadencePolicy, today time.Time) (bool, error) {
	nextDue := today
	inserted, err := s.store.InsertIfAbsent(ctx, models.ScheduledNotification{
		ID:                 NotificationID(c.SubjectID, c.Condition),
		SubjectID:          c.SubjectID,
		Condition:          c.Condition,
		FirstSeen:          today,
		NextDue:            &nextDue,
		Status:             models.StatusPending,
		Priority:           c.Priority,
		Recipient:          JoinRecipients(c.Recipients),
		SubjectText:        c.Subject,
		ResendIntervalDays: policy.ResendIntervalDays,
		Cadence:            policy.Cadence,
		Payload:            c.Payload,
	})
	if err != nil {
		return false, err
	}
	if inserted {
		return true, nil
	}

	// A record already exists. One-time conditions are never re-armed; for
	// recurring ones the existing record is left for the Dispatcher — only a
	// successful send advances the due date.
	if policy.Cadence == models.CadenceOneTime {
		s.logger.WithFields(logging.Fields{
			"subject_id": c.SubjectID,
			"condition":  c.Condition,
		}).Debug("One-time condition already scheduled, dropping candidate")
		return false, nil
	}

	existing, err := s.store.Get(ctx, c.SubjectID, c.Condition)
	if err != nil {
		return false, err
	}
	if existing != nil && existing.NextDue != nil && today.Before(*existing.NextDue) {
		s.logger.WithFields(logging.Fields{
			"subject_id": c.SubjectID,
			"condition":  c.Condition,
			"next_due":   existing.NextDue.Format("2006-01-02"),
		}).Debug("Recurring condition not yet due, dropping candidate")
	} else {
		s.logger.WithFields(logging.Fields{
			"subject_id": c.SubjectID,
			"condition":  c.Condition,
		}).Debug("Recurring condition already due, leaving record for dispatcher")
	}
	return false, nil
}
