package store

import (
	"testing"
	"time"
)

func TestProfileCreateAndLookups(t *testing.T) {
	db := setupTestDB(t)
	s := NewProfileStore(db)

	p, err := s.Create("Alice", "north", "hash")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.ID == 0 || p.DisplayName != "Alice" || p.District != "north" {
		t.Errorf("profile = %+v", p)
	}
	if p.LastSeen != nil {
		t.Errorf("LastSeen = %v, want nil", p.LastSeen)
	}

	name, err := s.DisplayName(p.ID)
	if err != nil || name != "Alice" {
		t.Errorf("DisplayName = %q, %v", name, err)
	}
	district, err := s.District(p.ID)
	if err != nil || district != "north" {
		t.Errorf("District = %q, %v", district, err)
	}
	hash, err := s.TokenHash(p.ID)
	if err != nil || hash != "hash" {
		t.Errorf("TokenHash = %q, %v", hash, err)
	}
}

func TestProfileMissing(t *testing.T) {
	s := NewProfileStore(setupTestDB(t))

	p, err := s.GetByID(42)
	if err != nil || p != nil {
		t.Errorf("GetByID = %v, %v; want nil, nil", p, err)
	}
	if name, err := s.DisplayName(42); err != nil || name != "" {
		t.Errorf("DisplayName = %q, %v", name, err)
	}
	if hash, err := s.TokenHash(42); err != nil || hash != "" {
		t.Errorf("TokenHash = %q, %v", hash, err)
	}
}

func TestTouchLastSeen(t *testing.T) {
	db := setupTestDB(t)
	s := NewProfileStore(db)
	id := createTestProfile(t, db, "Alice", "north")

	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	if err := s.TouchLastSeen(id, at); err != nil {
		t.Fatalf("TouchLastSeen: %v", err)
	}
	p, err := s.GetByID(id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if p.LastSeen == nil || !p.LastSeen.Equal(at) {
		t.Errorf("LastSeen = %v, want %v", p.LastSeen, at)
	}

	if err := s.TouchLastSeen(999, at); err == nil {
		t.Error("expected error for missing profile")
	}
}
