package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/taskcal/internal/model"
)

type PreferencesStore struct {
	db *sql.DB
}

func NewPreferencesStore(db *sql.DB) *PreferencesStore {
	return &PreferencesStore{db: db}
}

// Get returns the user's preferences, or nil if none were ever saved.
func (s *PreferencesStore) Get(userID string) (*model.AIPreferences, error) {
	var p model.AIPreferences
	err := s.db.QueryRow(
		`SELECT user_id, working_hours, preferred_times, selected_model, created_at, updated_at
		 FROM ai_preferences WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.WorkingHours, &p.PreferredTimes, &p.SelectedModel, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *PreferencesStore) Upsert(userID, workingHours, preferredTimes, selectedModel string) (*model.AIPreferences, error) {
	ts := now()
	_, err := s.db.Exec(
		`INSERT INTO ai_preferences (user_id, working_hours, preferred_times, selected_model, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   working_hours = excluded.working_hours,
		   preferred_times = excluded.preferred_times,
		   selected_model = excluded.selected_model,
		   updated_at = excluded.updated_at`,
		userID, workingHours, preferredTimes, selectedModel, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert preferences: %w", err)
	}
	return s.Get(userID)
}
