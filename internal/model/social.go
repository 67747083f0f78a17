package model

import "time"

type Profile struct {
	ID          int64      `json:"id"`
	DisplayName string     `json:"display_name"`
	District    string     `json:"district"`
	LastSeen    *time.Time `json:"last_seen,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

type Message struct {
	ID          int64     `json:"id"`
	SenderID    int64     `json:"sender_id"`
	RecipientID int64     `json:"recipient_id"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

type Class struct {
	ID        int64     `json:"id"`
	TrainerID int64     `json:"trainer_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

type Booking struct {
	ID        int64     `json:"id"`
	ClassID   int64     `json:"class_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

type Event struct {
	ID        int64     `json:"id"`
	CreatorID int64     `json:"creator_id"`
	Title     string    `json:"title"`
	District  string    `json:"district"`
	StartsAt  time.Time `json:"starts_at"`
	CreatedAt time.Time `json:"created_at"`
}
