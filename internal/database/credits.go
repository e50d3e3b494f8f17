package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"emoji-api/internal/shared"
)

// DecrementCredits takes one credit from the user. The balance row is locked
// for the length of the transaction so concurrent requests for the same user
// serialize on it; a refused decrement writes nothing.
func (s *Store) DecrementCredits(ctx context.Context, userID string) (*shared.CreditChange, error) {
	var change shared.CreditChange
	err := ExecuteTransaction(ctx, s.WDB, []func(*sql.Tx) error{
		func(tx *sql.Tx) error {
			var credits int64
			err := tx.QueryRowContext(ctx, "SELECT credits FROM profile WHERE user_id = ? FOR UPDATE", userID).Scan(&credits)
			if errors.Is(err, sql.ErrNoRows) {
				return shared.ErrUserNotFound
			}
			if err != nil {
				return fmt.Errorf("failed to get user credits: %w", err)
			}
			if credits <= 0 {
				return shared.ErrInsufficientCredit
			}

			res, err := tx.ExecContext(ctx,
				"UPDATE profile SET credits = credits - 1, updated_at = ? WHERE user_id = ? AND credits > 0",
				s.now(), userID)
			if err != nil {
				return fmt.Errorf("failed to decrement user credits: %w", err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("failed to read affected rows: %w", err)
			}
			if affected != 1 {
				return shared.ErrInsufficientCredit
			}
			change = shared.CreditChange{Before: credits, After: credits - 1}
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return &change, nil
}

// RefundCredit gives back one credit taken by DecrementCredits
func (s *Store) RefundCredit(ctx context.Context, userID string) (int64, error) {
	var credits int64
	err := ExecuteTransaction(ctx, s.WDB, []func(*sql.Tx) error{
		func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx,
				"UPDATE profile SET credits = credits + 1, updated_at = ? WHERE user_id = ?",
				s.now(), userID)
			if err != nil {
				return fmt.Errorf("failed to refund user credit: %w", err)
			}
			if affected, err := res.RowsAffected(); err == nil && affected == 0 {
				return shared.ErrUserNotFound
			}
			return tx.QueryRowContext(ctx, "SELECT credits FROM profile WHERE user_id = ?", userID).Scan(&credits)
		},
	})
	if err != nil {
		return 0, err
	}
	return credits, nil
}

func (s *Store) GetCredits(ctx context.Context, userID string) (int64, error) {
	var credits int64
	err := s.RDB.QueryRowContext(ctx, "SELECT credits FROM profile WHERE user_id = ?", userID).Scan(&credits)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Join(errors.New("no profile for user"), shared.ErrUserNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get user credits: %w", err)
	}
	return credits, nil
}

// EnsureProfile creates the user's profile with the given starting balance.
// An existing profile is left untouched and created is false.
func (s *Store) EnsureProfile(ctx context.Context, userID string, credits int64) (created bool, err error) {
	now := s.now()
	res, err := s.WDB.ExecContext(ctx,
		"INSERT IGNORE INTO profile (user_id, credits, created_at, updated_at) VALUES (?, ?, ?, ?)",
		userID, credits, now, now)
	if err != nil {
		return false, fmt.Errorf("failed to create profile: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected == 1, nil
}
