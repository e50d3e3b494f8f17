package emoji

import (
	"context"
	"errors"
	"fmt"

	"emoji-api/internal/metrics"
	"emoji-api/internal/shared"

	"github.com/google/uuid"
)

func validateID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.Join(fmt.Errorf("invalid emoji id %q", id), shared.ErrBadRequest)
	}
	return nil
}

func (h *EmojiHandler) ListLogic(ctx context.Context, limit, offset int) ([]shared.Emoji, error) {
	if limit <= 0 {
		limit = shared.DefaultListLimit
	}
	limit = min(limit, shared.MaxListLimit)
	offset = max(offset, 0)
	return h.Emojis.ListEmojis(ctx, limit, offset)
}

func (h *EmojiHandler) GetLogic(ctx context.Context, id string) (*shared.Emoji, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return h.Emojis.GetEmoji(ctx, id)
}

// LikeLogic increments the stored like count and returns the new value
func (h *EmojiHandler) LikeLogic(ctx context.Context, id string) (uint64, error) {
	if err := validateID(id); err != nil {
		return 0, err
	}
	likes, err := h.Emojis.IncrementLikes(ctx, id)
	if err != nil {
		return 0, err
	}
	metrics.Likes.Inc()
	return likes, nil
}

type DownloadOutput struct {
	Filename    string
	ContentType string
	Data        []byte
}

func (h *EmojiHandler) DownloadLogic(ctx context.Context, id string) (*DownloadOutput, error) {
	emoji, err := h.GetLogic(ctx, id)
	if err != nil {
		return nil, err
	}
	data, err := h.Blobs.Get(ctx, emoji.StoragePath)
	if err != nil {
		return nil, errors.Join(errors.New("failed to read emoji image"), err)
	}
	return &DownloadOutput{
		Filename:    shared.DownloadFilename(emoji.Prompt),
		ContentType: shared.ArtifactContentType,
		Data:        data,
	}, nil
}

func (h *EmojiHandler) CreditsLogic(ctx context.Context, userID string) (int64, error) {
	return h.Ledger.GetCredits(ctx, userID)
}

type InitProfileOutput struct {
	Created bool
	Credits int64
}

// InitProfileLogic creates the caller's profile with the starting balance if
// it does not exist yet
func (h *EmojiHandler) InitProfileLogic(ctx context.Context, userID string) (*InitProfileOutput, error) {
	if userID == "" {
		return nil, shared.ErrUnauthorized
	}
	created, err := h.Ledger.EnsureProfile(ctx, userID, h.Config.DefaultCredits)
	if err != nil {
		return nil, err
	}
	if created {
		return &InitProfileOutput{Created: true, Credits: h.Config.DefaultCredits}, nil
	}
	credits, err := h.Ledger.GetCredits(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &InitProfileOutput{Created: created, Credits: credits}, nil
}
