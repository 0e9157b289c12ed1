package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/taskcal/internal/model"
)

type OAuthTokenStore struct {
	db *sql.DB
}

func NewOAuthTokenStore(db *sql.DB) *OAuthTokenStore {
	return &OAuthTokenStore{db: db}
}

// Save upserts the token. An empty refresh token keeps the stored one, since
// Google only returns it on first consent.
func (s *OAuthTokenStore) Save(tok model.OAuthToken) error {
	_, err := s.db.Exec(
		`INSERT INTO oauth_tokens (user_id, access_token, refresh_token, token_type, expiry, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   access_token = excluded.access_token,
		   refresh_token = CASE WHEN excluded.refresh_token = '' THEN oauth_tokens.refresh_token ELSE excluded.refresh_token END,
		   token_type = excluded.token_type,
		   expiry = excluded.expiry,
		   updated_at = excluded.updated_at`,
		tok.UserID, tok.AccessToken, tok.RefreshToken, tok.TokenType, nullTime(tok.Expiry), now(),
	)
	if err != nil {
		return fmt.Errorf("save oauth token: %w", err)
	}
	return nil
}

func (s *OAuthTokenStore) Get(userID string) (*model.OAuthToken, error) {
	var tok model.OAuthToken
	var expiry sql.NullTime
	err := s.db.QueryRow(
		`SELECT user_id, access_token, refresh_token, token_type, expiry, updated_at
		 FROM oauth_tokens WHERE user_id = ?`, userID,
	).Scan(&tok.UserID, &tok.AccessToken, &tok.RefreshToken, &tok.TokenType, &expiry, &tok.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get oauth token: %w", err)
	}
	tok.Expiry = timePtr(expiry)
	return &tok, nil
}
