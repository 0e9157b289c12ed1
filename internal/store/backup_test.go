package store

import (
	"testing"
	"time"

	"github.com/dukerupert/taskcal/internal/model"
)

func TestBackupCreate(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))

	b, err := bs.Create("taskcal-20250310T020000Z.db.enc", "backups/taskcal-20250310T020000Z.db.enc")
	if err != nil {
		t.Fatalf("create backup: %v", err)
	}
	if b.ID == 0 {
		t.Error("expected non-zero ID")
	}
	if b.Status != model.BackupStatusPending {
		t.Errorf("status = %q, want %q", b.Status, model.BackupStatusPending)
	}
}

func TestBackupUpdateStatus(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	b, _ := bs.Create("test.db.enc", "backups/test.db.enc")

	if err := bs.UpdateStatus(b.ID, model.BackupStatusFailed, "upload failed"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	got, _ := bs.GetByID(b.ID)
	if got.Status != model.BackupStatusFailed {
		t.Errorf("status = %q, want %q", got.Status, model.BackupStatusFailed)
	}
	if got.ErrorMessage != "upload failed" {
		t.Errorf("error_message = %q, want %q", got.ErrorMessage, "upload failed")
	}
}

func TestBackupUpdateCompleted(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))
	b, _ := bs.Create("test.db.enc", "backups/test.db.enc")

	if err := bs.UpdateCompleted(b.ID, 1024*1024); err != nil {
		t.Fatalf("update completed: %v", err)
	}

	got, _ := bs.GetByID(b.ID)
	if got.Status != model.BackupStatusCompleted {
		t.Errorf("status = %q, want %q", got.Status, model.BackupStatusCompleted)
	}
	if got.SizeBytes != 1024*1024 {
		t.Errorf("size_bytes = %d, want %d", got.SizeBytes, 1024*1024)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}
}

func TestBackupListOrderAndLimit(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))

	bs.Create("first.db.enc", "backups/first.db.enc")
	time.Sleep(10 * time.Millisecond)
	bs.Create("second.db.enc", "backups/second.db.enc")
	time.Sleep(10 * time.Millisecond)
	bs.Create("third.db.enc", "backups/third.db.enc")

	all, err := bs.List(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Filename != "third.db.enc" {
		t.Errorf("first entry = %q, want %q", all[0].Filename, "third.db.enc")
	}

	limited, _ := bs.List(2)
	if len(limited) != 2 {
		t.Errorf("len = %d, want 2", len(limited))
	}
}

func TestBackupDeleteOlderThan(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))

	bs.Create("old.db.enc", "backups/old.db.enc")
	time.Sleep(50 * time.Millisecond)
	cutoff := time.Now().UTC()
	time.Sleep(50 * time.Millisecond)
	bs.Create("new.db.enc", "backups/new.db.enc")

	keys, err := bs.DeleteOlderThan(cutoff)
	if err != nil {
		t.Fatalf("delete older than: %v", err)
	}
	if len(keys) != 1 || keys[0] != "backups/old.db.enc" {
		t.Fatalf("deleted keys = %v, want [backups/old.db.enc]", keys)
	}

	remaining, _ := bs.List(10)
	if len(remaining) != 1 || remaining[0].Filename != "new.db.enc" {
		t.Errorf("remaining = %+v, want only new.db.enc", remaining)
	}
}

func TestBackupLatestCompleted(t *testing.T) {
	bs := NewBackupStore(setupTestDB(t))

	b1, _ := bs.Create("first.db.enc", "backups/first.db.enc")
	bs.UpdateCompleted(b1.ID, 100)
	time.Sleep(10 * time.Millisecond)
	b2, _ := bs.Create("second.db.enc", "backups/second.db.enc")
	bs.UpdateCompleted(b2.ID, 200)
	b3, _ := bs.Create("failed.db.enc", "backups/failed.db.enc")
	bs.UpdateStatus(b3.ID, model.BackupStatusFailed, "error")

	latest, err := bs.LatestCompleted()
	if err != nil {
		t.Fatalf("latest completed: %v", err)
	}
	if latest == nil || latest.Filename != "second.db.enc" {
		t.Fatalf("latest = %+v, want second.db.enc", latest)
	}
}
