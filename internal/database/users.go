package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"emoji-api/internal/shared"
)

// GetUserFromAPIKey resolves the identity owning an API key. Key issuance is
// owned by the auth provider; this only reads the mapping.
func (s *Store) GetUserFromAPIKey(ctx context.Context, apiKey string) (*shared.UserMetadata, error) {
	user := shared.UserMetadata{APIKey: apiKey}
	err := s.RDB.QueryRowContext(ctx, `
		SELECT
		api_key.user_id,
		COALESCE(api_key.email, ''),
		COALESCE(api_key.role, '')
		FROM api_key
		WHERE api_key.id = ?
		`, apiKey).Scan(&user.UserID, &user.Email, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrUnauthorized
	}
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to look up api key: %w", err), shared.ErrUnauthorized)
	}
	return &user, nil
}
