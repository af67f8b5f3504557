package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"steward/internal/logging"
	"steward/internal/models"
)

func mustPayload(t *testing.T, p models.Payload) []byte {
	t.Helper()
	raw, err := models.MarshalPayload(p)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	return raw
}

func TestNotificationID_Deterministic(t *testing.T) {
	a := NotificationID("SUP-001", models.ConditionExpired)
	b := NotificationID("SUP-001", models.ConditionExpired)
	if a != b {
		t.Fatalf("same pair produced different ids: %s vs %s", a, b)
	}
	if NotificationID("SUP-001", models.ConditionExpiryNear) == a {
		t.Fatal("different condition types must produce different ids")
	}
	if NotificationID("SUP-002", models.ConditionExpired) == a {
		t.Fatal("different subjects must produce different ids")
	}
}

func TestGet_NoRowIsNotAnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db, logging.NewLogger())

	mock.ExpectQuery(`SELECT (.+) FROM steward.scheduled_notifications`).
		WithArgs("SUP-001", "expired").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	n, err := store.Get(context.Background(), "SUP-001", models.ConditionExpired)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != nil {
		t.Fatalf("expected nil record, got %+v", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDueAsOf_ScansFullRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db, logging.NewLogger())

	today := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	firstSeen := today.AddDate(0, 0, -30)
	nextDue := today.AddDate(0, 0, -2)
	payload := mustPayload(t, models.ThresholdPayload{Indicator: "QPM", Value: 55, Band: "critical", Threshold: 50})

	columns := []string{
		"id", "subject_id", "condition_type", "first_seen", "last_sent", "next_due",
		"send_count", "status", "priority", "recipient", "subject_text",
		"resend_interval_days", "cadence", "payload",
	}
	mock.ExpectQuery(`SELECT (.+) FROM steward.scheduled_notifications\s+WHERE status IN \('pending', 'failed'\)`).
		WithArgs(today).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(
			"id-1", "SUP-001", "threshold-critical", firstSeen, nil, nextDue,
			2, "failed", 1, "buyer@example.com", "QPM critical for SUP-001",
			28, "recurring", payload,
		))

	due, err := store.DueAsOf(context.Background(), today)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 due record, got %d", len(due))
	}

	n := due[0]
	if n.Condition != models.ConditionThresholdCritical || n.Status != models.StatusFailed {
		t.Fatalf("unexpected record: %+v", n)
	}
	if n.LastSent != nil {
		t.Fatal("last_sent NULL must scan to nil")
	}
	if n.NextDue == nil || !n.NextDue.Equal(nextDue) {
		t.Fatalf("next_due = %v, want %v", n.NextDue, nextDue)
	}
	p, ok := n.Payload.(models.ThresholdPayload)
	if !ok {
		t.Fatalf("payload type = %T", n.Payload)
	}
	if p.Band != "critical" || p.Value != 55 {
		t.Fatalf("payload roundtrip lost data: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDrainImmediates_SortsByPriorityThenAge(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db, logging.NewLogger())

	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	columns := []string{"id", "subject_id", "condition_type", "priority", "recipient", "subject_text", "body", "created_at"}
	mock.ExpectQuery(`DELETE FROM steward.immediate_queue\s+RETURNING`).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("i-1", "SUP-003", "trend-increase", 2, "a@example.com", "s", "b", base.Add(2*time.Minute)).
			AddRow("i-2", "SUP-001", "trend-increase", 1, "b@example.com", "s", "b", base.Add(time.Minute)).
			AddRow("i-3", "SUP-002", "trend-increase", 2, "c@example.com", "s", "b", base))

	drained, err := store.DrainImmediates(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := []string{drained[0].ID, drained[1].ID, drained[2].ID}
	want := []string{"i-2", "i-3", "i-1"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("drain order = %v, want %v", got, want)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOutcomesForRun_NullNotificationID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer db.Close()
	store := NewStore(db, logging.NewLogger())

	sentAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	columns := []string{"run_id", "notification_id", "subject_id", "condition_type", "recipient", "success", "sent_at"}
	mock.ExpectQuery(`SELECT (.+) FROM steward.delivery_outcomes`).
		WithArgs("run-1").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("run-1", nil, "SUP-001", "trend-increase", "a@example.com", true, sentAt).
			AddRow("run-1", "n-1", "SUP-002", "expired", "b@example.com", false, sentAt.Add(time.Second)))

	outcomes, err := store.OutcomesForRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].NotificationID != nil {
		t.Fatal("immediate outcome must carry a nil notification id")
	}
	if outcomes[1].NotificationID == nil || *outcomes[1].NotificationID != "n-1" {
		t.Fatalf("scheduled outcome lost its notification id: %+v", outcomes[1])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
