package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"emoji-api/internal/shared"

	"github.com/manifold-inc/manifold-sdk/lib/utils"
)

const emojiColumns = "id, prompt, image_url, storage_path, likes, creator_user_id, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmoji(row rowScanner) (*shared.Emoji, error) {
	var e shared.Emoji
	err := row.Scan(&e.ID, &e.Prompt, &e.ImageURL, &e.StoragePath, &e.Likes, &e.CreatorUserID, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// InsertEmoji writes a new emoji row. CreatedAt is filled in when zero.
func (s *Store) InsertEmoji(ctx context.Context, e *shared.Emoji) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	_, err := s.WDB.ExecContext(ctx,
		"INSERT INTO emoji ("+emojiColumns+") VALUES (?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.Prompt, e.ImageURL, e.StoragePath, e.Likes, e.CreatorUserID, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert emoji: %w", err)
	}
	return nil
}

func (s *Store) GetEmoji(ctx context.Context, id string) (*shared.Emoji, error) {
	e, err := scanEmoji(s.RDB.QueryRowContext(ctx, "SELECT "+emojiColumns+" FROM emoji WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Join(fmt.Errorf("emoji %s not found", id), shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get emoji: %w", err)
	}
	return e, nil
}

// ListEmojis returns emojis newest first
func (s *Store) ListEmojis(ctx context.Context, limit, offset int) ([]shared.Emoji, error) {
	rows, err := s.RDB.QueryContext(ctx,
		"SELECT "+emojiColumns+" FROM emoji ORDER BY created_at DESC, id LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list emojis: %w", err)
	}
	defer rows.Close()

	emojis := []shared.Emoji{}
	for rows.Next() {
		e, err := scanEmoji(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan emoji: %w", err)
		}
		emojis = append(emojis, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, utils.Wrap("Error iterating over emoji rows", err)
	}
	return emojis, nil
}

// IncrementLikes adds one like against the stored value and returns the new
// count as seen inside the same transaction.
func (s *Store) IncrementLikes(ctx context.Context, id string) (uint64, error) {
	var likes uint64
	err := ExecuteTransaction(ctx, s.WDB, []func(*sql.Tx) error{
		func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, "UPDATE emoji SET likes = likes + 1 WHERE id = ?", id)
			if err != nil {
				return fmt.Errorf("failed to increment likes: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read affected rows: %w", err)
			}
			if affected == 0 {
				return errors.Join(fmt.Errorf("emoji %s not found", id), shared.ErrNotFound)
			}
			return tx.QueryRowContext(ctx, "SELECT likes FROM emoji WHERE id = ?", id).Scan(&likes)
		},
	})
	if err != nil {
		return 0, err
	}
	return likes, nil
}
