package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/taskcal/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	var subject sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.Name, &subject, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.GoogleSubject = stringPtr(subject)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}

const userCols = `id, email, name, google_subject, created_at, updated_at`

func (s *UserStore) Create(email, name string) (*model.User, error) {
	id := newID()
	ts := now()
	_, err := s.db.Exec(
		`INSERT INTO users (id, email, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, email, name, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(email string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByGoogleSubject(subject string) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE google_subject = ?`, subject)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by google subject: %w", err)
	}
	return u, nil
}

// UpsertGoogle resolves a Google identity to a local user. A known subject
// wins; otherwise an existing account with the same email is linked, and
// failing that a new user is created.
func (s *UserStore) UpsertGoogle(subject, email, name string) (*model.User, error) {
	u, err := s.GetByGoogleSubject(subject)
	if err != nil {
		return nil, err
	}
	if u == nil {
		u, err = s.GetByEmail(email)
		if err != nil {
			return nil, err
		}
	}
	if u == nil {
		id := newID()
		ts := now()
		_, err := s.db.Exec(
			`INSERT INTO users (id, email, name, google_subject, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, email, name, subject, ts, ts,
		)
		if err != nil {
			return nil, fmt.Errorf("insert google user: %w", err)
		}
		return s.GetByID(id)
	}

	_, err = s.db.Exec(
		`UPDATE users SET email = ?, name = ?, google_subject = ?, updated_at = ? WHERE id = ?`,
		email, name, subject, now(), u.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("link google user: %w", err)
	}
	return s.GetByID(u.ID)
}

func (s *UserStore) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
