// Package schedule owns the persistent notification schedule: the Schedule
// Store table, the immediate side-channel queue, the per-run delivery ledger,
// and the Scheduler that ingests candidates against them.
package schedule

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"steward/internal/logging"
	"steward/internal/models"
)

// NotificationID derives the dedup key for a (subject, condition type) pair.
// Deterministic, so re-ingesting the same condition always targets the same
// row.
func NotificationID(subjectID string, cond models.ConditionType) string {
	return uuid.NewSHA1(
		uuid.NameSpaceOID,
		[]byte(fmt.Sprintf("schedule:%s:%s", subjectID, cond)),
	).String()
}

// Store is the durable schedule store. Every mutation is a single atomic
// statement so an interrupted run can be restarted safely.
type Store struct {
	db     *sql.DB
	logger logging.Logger
}

// NewStore creates a store over an open database handle.
func NewStore(db *sql.DB, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

const notificationColumns = `id, subject_id, condition_type, first_seen, last_sent, next_due,
	       send_count, status, priority, recipient, subject_text,
	       resend_interval_days, cadence, payload`

// Get returns the live record for a (subject, condition type) pair, or nil
// when none exists.
func (s *Store) Get(ctx context.Context, subjectID string, cond models.ConditionType) (*models.ScheduledNotification, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+notificationColumns+`
		FROM steward.scheduled_notifications
		WHERE subject_id = $1 AND condition_type = $2
	`, subjectID, string(cond))

	n, err := scanNotification(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule for %s/%s: %w", subjectID, cond, err)
	}
	return n, nil
}

// InsertIfAbsent inserts a new schedule record unless one already exists for
// the same (subject, condition type) pair. Returns whether a row was
// inserted. Check-then-insert is a single statement, so a concurrent or
// restarted run cannot create a duplicate.
func (s *Store) InsertIfAbsent(ctx context.Context, n models.ScheduledNotification) (bool, error) {
	payload, err := models.MarshalPayload(n.Payload)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO steward.scheduled_notifications (
			id, subject_id, condition_type, first_seen, next_due,
			send_count, status, priority, recipient, subject_text,
			resend_interval_days, cadence, payload, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT DO NOTHING
	`, n.ID, n.SubjectID, string(n.Condition), n.FirstSeen, n.NextDue,
		string(n.Status), n.Priority, n.Recipient, n.SubjectText,
		n.ResendIntervalDays, string(n.Cadence), payload)
	if err != nil {
		return false, fmt.Errorf("insert schedule for %s/%s: %w", n.SubjectID, n.Condition, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// DueAsOf returns every record due as of the given date, most urgent first
// (ascending priority, then ascending first-seen). Failed records stay
// eligible for the identical due-check on the next run.
func (s *Store) DueAsOf(ctx context.Context, asOf time.Time) ([]models.ScheduledNotification, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+notificationColumns+`
		FROM steward.scheduled_notifications
		WHERE status IN ('pending', 'failed')
		  AND (next_due IS NULL OR next_due <= $1)
		ORDER BY priority ASC, first_seen ASC
	`, asOf)
	if err != nil {
		return nil, fmt.Errorf("query due notifications: %w", err)
	}
	defer rows.Close()

	var due []models.ScheduledNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due notification: %w", err)
		}
		due = append(due, *n)
	}
	return due, rows.Err()
}

// MarkSent finalizes a successful one-time send. The record is retired: it
// stays in the store but is never due again.
func (s *Store) MarkSent(ctx context.Context, id string, sentOn time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE steward.scheduled_notifications
		SET status = 'sent', send_count = send_count + 1, last_sent = $2,
		    next_due = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, sentOn)
	if err != nil {
		return fmt.Errorf("mark sent %s: %w", id, err)
	}
	return nil
}

// Rearm records a successful recurring send and schedules the next cycle.
func (s *Store) Rearm(ctx context.Context, id string, sentOn, nextDue time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE steward.scheduled_notifications
		SET status = 'pending', send_count = send_count + 1, last_sent = $2,
		    next_due = $3, updated_at = NOW()
		WHERE id = $1
	`, id, sentOn, nextDue)
	if err != nil {
		return fmt.Errorf("rearm %s: %w", id, err)
	}
	return nil
}

// MarkFailed records a failed send attempt without advancing the schedule,
// leaving the record due on the next run.
func (s *Store) MarkFailed(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE steward.scheduled_notifications
		SET status = 'failed', updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	return nil
}

// EnqueueImmediate adds a candidate to the immediate side channel. Entries
// are never deduplicated; each firing is a distinct row.
func (s *Store) EnqueueImmediate(ctx context.Context, c models.NotificationCandidate) error {
	payload, err := models.MarshalPayload(c.Payload)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO steward.immediate_queue (
			id, subject_id, condition_type, priority, recipient,
			subject_text, body, payload, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
	`, uuid.New().String(), c.SubjectID, string(c.Condition), c.Priority,
		JoinRecipients(c.Recipients), c.Subject, c.Body, payload)
	if err != nil {
		return fmt.Errorf("enqueue immediate for %s/%s: %w", c.SubjectID, c.Condition, err)
	}
	return nil
}

// DrainImmediates consumes the whole immediate queue in one atomic statement.
// Entries are gone once drained regardless of later send outcomes.
func (s *Store) DrainImmediates(ctx context.Context) ([]models.ImmediateNotification, error) {
	rows, err := s.db.QueryContext(ctx, `
		DELETE FROM steward.immediate_queue
		RETURNING id, subject_id, condition_type, priority, recipient, subject_text, body, created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("drain immediate queue: %w", err)
	}
	defer rows.Close()

	var drained []models.ImmediateNotification
	for rows.Next() {
		var n models.ImmediateNotification
		var cond string
		if err := rows.Scan(&n.ID, &n.SubjectID, &cond, &n.Priority,
			&n.Recipient, &n.SubjectText, &n.Body, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan immediate: %w", err)
		}
		n.Condition = models.ConditionType(cond)
		drained = append(drained, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(drained, func(i, j int) bool {
		if drained[i].Priority != drained[j].Priority {
			return drained[i].Priority < drained[j].Priority
		}
		return drained[i].CreatedAt.Before(drained[j].CreatedAt)
	})
	return drained, nil
}

// RecordOutcome appends one send attempt to the run ledger.
func (s *Store) RecordOutcome(ctx context.Context, o models.DeliveryOutcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO steward.delivery_outcomes (
			id, run_id, notification_id, subject_id, condition_type,
			recipient, success, sent_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.New().String(), o.RunID, o.NotificationID, o.SubjectID,
		string(o.Condition), o.Recipient, o.Success, o.SentAt)
	if err != nil {
		return fmt.Errorf("record outcome for %s/%s: %w", o.SubjectID, o.Condition, err)
	}
	return nil
}

// OutcomesForRun returns the ledger of one dispatch run in send order.
func (s *Store) OutcomesForRun(ctx context.Context, runID string) ([]models.DeliveryOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, notification_id, subject_id, condition_type, recipient, success, sent_at
		FROM steward.delivery_outcomes
		WHERE run_id = $1
		ORDER BY sent_at ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query outcomes for run %s: %w", runID, err)
	}
	defer rows.Close()

	var outcomes []models.DeliveryOutcome
	for rows.Next() {
		var o models.DeliveryOutcome
		var cond string
		var notificationID sql.NullString
		if err := rows.Scan(&o.RunID, &notificationID, &o.SubjectID, &cond,
			&o.Recipient, &o.Success, &o.SentAt); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Condition = models.ConditionType(cond)
		if notificationID.Valid {
			o.NotificationID = &notificationID.String
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// LatestRunID returns the run id of the most recent dispatch run, or
// database.ErrNoRows when no run has been recorded.
func (s *Store) LatestRunID(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id FROM steward.delivery_outcomes
		ORDER BY sent_at DESC
		LIMIT 1
	`).Scan(&runID)
	if err != nil {
		return "", err
	}
	return runID, nil
}

// JoinRecipients flattens a recipient list into the stored form.
func JoinRecipients(recipients []string) string {
	return strings.Join(recipients, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*models.ScheduledNotification, error) {
	var n models.ScheduledNotification
	var cond, status, cadence string
	var lastSent, nextDue sql.NullTime
	var payload []byte

	err := row.Scan(&n.ID, &n.SubjectID, &cond, &n.FirstSeen, &lastSent, &nextDue,
		&n.SendCount, &status, &n.Priority, &n.Recipient, &n.SubjectText,
		&n.ResendIntervalDays, &cadence, &payload)
	if err != nil {
		return nil, err
	}

	n.Condition = models.ConditionType(cond)
	n.Status = models.Status(status)
	n.Cadence = models.Cadence(cadence)
	if lastSent.Valid {
		t := lastSent.Time
		n.LastSent = &t
	}
	if nextDue.Valid {
		t := nextDue.Time
		n.NextDue = &t
	}

	n.Payload, err = models.UnmarshalPayload(payload)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
