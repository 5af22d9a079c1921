package preferences

import (
	"path/filepath"
	"testing"
)

func TestPreferenceRoundTrip(t *testing.T) {
	repo, err := Open(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("failed to open preferences db: %v", err)
	}

	if err := repo.Set("00u123", "theme", "dark"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := repo.Set("00u123", "currency", "EUR"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	// Upsert overwrites, not duplicates.
	if err := repo.Set("00u123", "theme", "light"); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	prefs, err := repo.GetAll("00u123")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(prefs) != 2 || prefs["theme"] != "light" || prefs["currency"] != "EUR" {
		t.Errorf("unexpected preferences: %v", prefs)
	}

	// Other subjects are isolated.
	other, err := repo.GetAll("00u999")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("expected empty preferences for other subject, got %v", other)
	}
}
