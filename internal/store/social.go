package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/stride/internal/model"
)

type MessageStore struct {
	db *sql.DB
}

func NewMessageStore(db *sql.DB) *MessageStore {
	return &MessageStore{db: db}
}

func (s *MessageStore) Create(senderID, recipientID int64, content string) (*model.Message, error) {
	result, err := s.db.Exec(
		`INSERT INTO messages (sender_id, recipient_id, content) VALUES (?, ?, ?)`,
		senderID, recipientID, content,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	var m model.Message
	err = s.db.QueryRow(
		`SELECT id, sender_id, recipient_id, content, created_at FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Content, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get message: %w", err)
	}
	return &m, nil
}

type ClassStore struct {
	db *sql.DB
}

func NewClassStore(db *sql.DB) *ClassStore {
	return &ClassStore{db: db}
}

func (s *ClassStore) Create(trainerID int64, title string) (*model.Class, error) {
	result, err := s.db.Exec(`INSERT INTO classes (trainer_id, title) VALUES (?, ?)`, trainerID, title)
	if err != nil {
		return nil, fmt.Errorf("insert class: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *ClassStore) GetByID(id int64) (*model.Class, error) {
	var c model.Class
	err := s.db.QueryRow(
		`SELECT id, trainer_id, title, created_at FROM classes WHERE id = ?`, id,
	).Scan(&c.ID, &c.TrainerID, &c.Title, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get class: %w", err)
	}
	return &c, nil
}

type BookingStore struct {
	db *sql.DB
}

func NewBookingStore(db *sql.DB) *BookingStore {
	return &BookingStore{db: db}
}

func (s *BookingStore) Create(classID, userID int64) (*model.Booking, error) {
	result, err := s.db.Exec(`INSERT INTO bookings (class_id, user_id) VALUES (?, ?)`, classID, userID)
	if err != nil {
		return nil, fmt.Errorf("insert booking: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	var b model.Booking
	err = s.db.QueryRow(
		`SELECT id, class_id, user_id, created_at FROM bookings WHERE id = ?`, id,
	).Scan(&b.ID, &b.ClassID, &b.UserID, &b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return &b, nil
}

type EventStore struct {
	db *sql.DB
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Create(creatorID int64, title, district string, startsAt time.Time) (*model.Event, error) {
	result, err := s.db.Exec(
		`INSERT INTO events (creator_id, title, district, starts_at) VALUES (?, ?, ?, ?)`,
		creatorID, title, district, startsAt.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	var e model.Event
	err = s.db.QueryRow(
		`SELECT id, creator_id, title, district, starts_at, created_at FROM events WHERE id = ?`, id,
	).Scan(&e.ID, &e.CreatorID, &e.Title, &e.District, &e.StartsAt, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return &e, nil
}
