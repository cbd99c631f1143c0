package core

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestAccountManager_LoadSave(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewAccountManager(tmpDir)

	id := uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")
	manager.Upsert(id, "TestPlayer")
	manager.SetHead(id, []byte{0x89, 'P', 'N', 'G'})
	if err := manager.SetSelected(id); err != nil {
		t.Fatalf("SetSelected failed: %v", err)
	}
	if err := manager.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	manager2 := NewAccountManager(tmpDir)
	if err := manager2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(manager2.Accounts) != 1 {
		t.Fatalf("Expected 1 account, got %d", len(manager2.Accounts))
	}
	if manager2.Accounts[0].Username != "TestPlayer" {
		t.Errorf("Expected name TestPlayer, got %s", manager2.Accounts[0].Username)
	}
	if manager2.Selected != id {
		t.Errorf("Expected selected %s, got %s", id, manager2.Selected)
	}
	if string(manager2.Accounts[0].Head) != "\x89PNG" {
		t.Errorf("Head bytes not preserved: %v", manager2.Accounts[0].Head)
	}
}

func TestAccountManager_LoadMissingFile(t *testing.T) {
	manager := NewAccountManager(t.TempDir())
	if err := manager.Load(); err != nil {
		t.Fatalf("Load on empty dir should succeed, got %v", err)
	}
	if len(manager.Accounts) != 0 {
		t.Errorf("Expected no accounts, got %d", len(manager.Accounts))
	}
}

func TestAccountManager_BackupUsedWhenPrimaryCorrupt(t *testing.T) {
	tmpDir := t.TempDir()
	manager := NewAccountManager(tmpDir)
	id := uuid.New()
	manager.Upsert(id, "First")
	if err := manager.Save(); err != nil {
		t.Fatal(err)
	}
	// Second save moves the first file to the backup.
	manager.Upsert(uuid.New(), "Second")
	if err := manager.Save(); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "accounts.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	manager2 := NewAccountManager(tmpDir)
	if err := manager2.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(manager2.Accounts) != 1 || manager2.Accounts[0].Username != "First" {
		t.Errorf("Expected backup contents, got %+v", manager2.Accounts)
	}
}

func TestAccountManager_SelectAndRemove(t *testing.T) {
	manager := NewAccountManager(t.TempDir())

	a, b := uuid.New(), uuid.New()
	manager.Upsert(a, "Alex")
	manager.Upsert(b, "bob")

	if manager.GetSelected() != nil {
		t.Error("Expected no selection by default")
	}
	if err := manager.SetSelected(b); err != nil {
		t.Errorf("SetSelected failed: %v", err)
	}
	if got := manager.GetSelected(); got == nil || got.ID != b {
		t.Errorf("Expected selected %s, got %+v", b, got)
	}
	if err := manager.SetSelected(uuid.New()); err == nil {
		t.Error("Expected error for missing account, got nil")
	}

	if !manager.Remove(b) {
		t.Fatal("Remove returned false")
	}
	if manager.Selected != uuid.Nil {
		t.Errorf("Removing the selected account should clear the selection")
	}
}

func TestAccountManager_UpsertReportsChanges(t *testing.T) {
	manager := NewAccountManager(t.TempDir())
	id := uuid.New()

	if !manager.Upsert(id, "Steve") {
		t.Error("First upsert should report a change")
	}
	if manager.Upsert(id, "Steve") {
		t.Error("Identical upsert should not report a change")
	}
	if !manager.Upsert(id, "Steve2") {
		t.Error("Rename should report a change")
	}
	if len(manager.Accounts) != 1 {
		t.Errorf("Expected 1 account, got %d", len(manager.Accounts))
	}
}

func TestAccountManager_Sorted(t *testing.T) {
	manager := NewAccountManager(t.TempDir())
	manager.Upsert(uuid.New(), "zed")
	manager.Upsert(uuid.New(), "Alex")
	manager.Upsert(uuid.New(), "bob")

	sorted := manager.Sorted()
	want := []string{"Alex", "bob", "zed"}
	for i, a := range sorted {
		if a.Username != want[i] {
			t.Errorf("position %d: got %s, want %s", i, a.Username, want[i])
		}
	}
}
