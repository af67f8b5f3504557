package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"steward/internal/logging"
)

func TestLoadBatchSkipsBadRecords(t *testing.T) {
	dir := t.TempDir()

	good := `{"subject_id":"SUP-1001","name":"Acme","group_code":"EE","qpm":{"current":35,"prior":30}}`
	if err := os.WriteFile(filepath.Join(dir, "supplier_1001.json"), []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "supplier_bad.json"), []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "supplier_noid.json"), []byte(`{"name":"NoID"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	snaps, err := LoadBatch(dir, logging.NewLogger())
	if err != nil {
		t.Fatalf("LoadBatch returned error: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if snaps[0].SubjectID != "SUP-1001" || snaps[0].QPM.Current != 35 {
		t.Errorf("unexpected snapshot: %+v", snaps[0])
	}
}

func TestLoadBatchMissingDirectory(t *testing.T) {
	if _, err := LoadBatch(filepath.Join(t.TempDir(), "missing"), logging.NewLogger()); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
