package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/stride/internal/model"
)

type ProfileStore struct {
	db *sql.DB
}

func NewProfileStore(db *sql.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) Create(displayName, district, tokenHash string) (*model.Profile, error) {
	result, err := s.db.Exec(
		`INSERT INTO profiles (display_name, district, token_hash) VALUES (?, ?, ?)`,
		displayName, district, tokenHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	return s.GetByID(id)
}

func (s *ProfileStore) GetByID(id int64) (*model.Profile, error) {
	var p model.Profile
	var lastSeen sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, display_name, district, last_seen, created_at FROM profiles WHERE id = ?`, id,
	).Scan(&p.ID, &p.DisplayName, &p.District, &lastSeen, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		p.LastSeen = &t
	}
	return &p, nil
}

// DisplayName returns the profile's display name, or "" when the profile
// does not exist.
func (s *ProfileStore) DisplayName(id int64) (string, error) {
	var name string
	err := s.db.QueryRow(`SELECT display_name FROM profiles WHERE id = ?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get display name: %w", err)
	}
	return name, nil
}

// District returns the profile's district, or "" when unset or missing.
func (s *ProfileStore) District(id int64) (string, error) {
	var district string
	err := s.db.QueryRow(`SELECT district FROM profiles WHERE id = ?`, id).Scan(&district)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get district: %w", err)
	}
	return district, nil
}

// TokenHash returns the bcrypt hash of the profile's access token.
func (s *ProfileStore) TokenHash(id int64) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT token_hash FROM profiles WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get token hash: %w", err)
	}
	return hash, nil
}

// TouchLastSeen records user activity.
func (s *ProfileStore) TouchLastSeen(id int64, at time.Time) error {
	result, err := s.db.Exec(`UPDATE profiles SET last_seen = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update last seen: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("update last seen: profile %d not found", id)
	}
	return nil
}
