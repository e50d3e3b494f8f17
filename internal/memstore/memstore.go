// Package memstore provides in-process implementations of the ledger, emoji,
// user and blob stores. State lives in a single process, so it is only
// suitable for tests and local runs.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"emoji-api/internal/shared"
)

type Store struct {
	mu      sync.Mutex
	credits map[string]int64
	emojis  map[string]shared.Emoji
	apiKeys map[string]shared.UserMetadata
	now     func() time.Time

	insertErr error
}

func New() *Store {
	return &Store{
		credits: map[string]int64{},
		emojis:  map[string]shared.Emoji{},
		apiKeys: map[string]shared.UserMetadata{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SetCredits creates or overwrites a user's balance
func (s *Store) SetCredits(userID string, credits int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits[userID] = credits
}

// AddAPIKey registers an API key for a user
func (s *Store) AddAPIKey(apiKey, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKeys[apiKey] = shared.UserMetadata{UserID: userID}
}

// FailInserts makes every following InsertEmoji return err; nil clears it
func (s *Store) FailInserts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertErr = err
}

func (s *Store) EmojiCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.emojis)
}

func (s *Store) DecrementCredits(_ context.Context, userID string) (*shared.CreditChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credits, ok := s.credits[userID]
	if !ok {
		return nil, shared.ErrUserNotFound
	}
	if credits <= 0 {
		return nil, shared.ErrInsufficientCredit
	}
	s.credits[userID] = credits - 1
	return &shared.CreditChange{Before: credits, After: credits - 1}, nil
}

func (s *Store) RefundCredit(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credits, ok := s.credits[userID]
	if !ok {
		return 0, shared.ErrUserNotFound
	}
	s.credits[userID] = credits + 1
	return credits + 1, nil
}

func (s *Store) GetCredits(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	credits, ok := s.credits[userID]
	if !ok {
		return 0, shared.ErrUserNotFound
	}
	return credits, nil
}

func (s *Store) EnsureProfile(_ context.Context, userID string, credits int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.credits[userID]; ok {
		return false, nil
	}
	s.credits[userID] = credits
	return true, nil
}

func (s *Store) InsertEmoji(_ context.Context, e *shared.Emoji) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return s.insertErr
	}
	if _, ok := s.emojis[e.ID]; ok {
		return fmt.Errorf("duplicate emoji id %s", e.ID)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	s.emojis[e.ID] = *e
	return nil
}

func (s *Store) GetEmoji(_ context.Context, id string) (*shared.Emoji, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emojis[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return &e, nil
}

func (s *Store) ListEmojis(_ context.Context, limit, offset int) ([]shared.Emoji, error) {
	s.mu.Lock()
	all := make([]shared.Emoji, 0, len(s.emojis))
	for _, e := range s.emojis {
		all = append(all, e)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if offset >= len(all) {
		return []shared.Emoji{}, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (s *Store) IncrementLikes(_ context.Context, id string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.emojis[id]
	if !ok {
		return 0, shared.ErrNotFound
	}
	e.Likes++
	s.emojis[id] = e
	return e.Likes, nil
}

func (s *Store) GetUserFromAPIKey(_ context.Context, apiKey string) (*shared.UserMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.apiKeys[apiKey]
	if !ok {
		return nil, shared.ErrUnauthorized
	}
	u.APIKey = apiKey
	return &u, nil
}
