package store

import (
	"testing"
	"time"
)

func TestMessageCreate(t *testing.T) {
	db := setupTestDB(t)
	alice := createTestProfile(t, db, "Alice", "north")
	bob := createTestProfile(t, db, "Bob", "south")

	m, err := NewMessageStore(db).Create(alice, bob, "hello")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.SenderID != alice || m.RecipientID != bob || m.Content != "hello" {
		t.Errorf("message = %+v", m)
	}
	if m.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestClassAndBooking(t *testing.T) {
	db := setupTestDB(t)
	alice := createTestProfile(t, db, "Alice", "north")
	bob := createTestProfile(t, db, "Bob", "south")
	classes := NewClassStore(db)

	c, err := classes.Create(alice, "Intervals")
	if err != nil {
		t.Fatalf("Create class: %v", err)
	}
	got, err := classes.GetByID(c.ID)
	if err != nil || got == nil || got.TrainerID != alice || got.Title != "Intervals" {
		t.Errorf("GetByID = %+v, %v", got, err)
	}
	missing, err := classes.GetByID(999)
	if err != nil || missing != nil {
		t.Errorf("GetByID(999) = %v, %v; want nil, nil", missing, err)
	}

	b, err := NewBookingStore(db).Create(c.ID, bob)
	if err != nil {
		t.Fatalf("Create booking: %v", err)
	}
	if b.ClassID != c.ID || b.UserID != bob {
		t.Errorf("booking = %+v", b)
	}
}

func TestBookingRequiresClass(t *testing.T) {
	db := setupTestDB(t)
	bob := createTestProfile(t, db, "Bob", "south")

	if _, err := NewBookingStore(db).Create(999, bob); err == nil {
		t.Error("expected foreign key error for missing class")
	}
}

func TestEventCreate(t *testing.T) {
	db := setupTestDB(t)
	alice := createTestProfile(t, db, "Alice", "north")

	starts := time.Date(2024, 3, 3, 8, 0, 0, 0, time.UTC)
	e, err := NewEventStore(db).Create(alice, "Long run", "north", starts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if e.District != "north" || !e.StartsAt.Equal(starts) {
		t.Errorf("event = %+v", e)
	}
}
