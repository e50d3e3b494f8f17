// Package emoji includes the generation lifecycle and the browse / like /
// download operations for emojis
package emoji

import (
	"context"
	"net"
	"net/http"
	"time"

	"emoji-api/internal/replicate"
	"emoji-api/internal/shared"

	"go.uber.org/zap"
)

// CreditLedger is the user balance store. DecrementCredits must check and
// decrement as one atomic operation.
type CreditLedger interface {
	DecrementCredits(ctx context.Context, userID string) (*shared.CreditChange, error)
	RefundCredit(ctx context.Context, userID string) (int64, error)
	GetCredits(ctx context.Context, userID string) (int64, error)
	EnsureProfile(ctx context.Context, userID string, credits int64) (bool, error)
}

type EmojiStore interface {
	InsertEmoji(ctx context.Context, e *shared.Emoji) error
	GetEmoji(ctx context.Context, id string) (*shared.Emoji, error)
	ListEmojis(ctx context.Context, limit, offset int) ([]shared.Emoji, error)
	IncrementLikes(ctx context.Context, id string) (uint64, error)
}

type Provider interface {
	CreatePrediction(ctx context.Context, req replicate.CreatePredictionRequest) (*replicate.Prediction, error)
	GetPrediction(ctx context.Context, id string) (*replicate.Prediction, error)
}

type BlobStore interface {
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
	Get(ctx context.Context, name string) ([]byte, error)
	PublicURL(name string) string
}

type Config struct {
	Params       GenerationParams
	PollInterval time.Duration
	PollMaxWait  time.Duration
	// RefundOnFailure gives the credit back when generation fails after the
	// decrement. Off means attempts, not successes, are billed.
	RefundOnFailure bool
	DefaultCredits  int64
	// Artifacts above this size fail the generation instead of being stored
	MaxArtifactBytes int64
}

func DefaultConfig() Config {
	return Config{
		Params:           DefaultParams(),
		PollInterval:     shared.PredictionPollingInterval,
		PollMaxWait:      shared.PredictionPollingMaxWait,
		DefaultCredits:   shared.DefaultUserCredits,
		MaxArtifactBytes: shared.MaxArtifactBytes,
	}
}

type EmojiHandler struct {
	Log        *zap.SugaredLogger
	Ledger     CreditLedger
	Emojis     EmojiStore
	Provider   Provider
	Blobs      BlobStore
	HTTPClient *http.Client
	Config     Config
}

func NewEmojiHandler(ledger CreditLedger, emojis EmojiStore, provider Provider, blobs BlobStore, log *zap.SugaredLogger, cfg Config) *EmojiHandler {
	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: 5 * time.Second,
		}).Dial,
		TLSHandshakeTimeout: 5 * time.Second,
		DisableKeepAlives:   false,
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = shared.PredictionPollingInterval
	}
	if cfg.PollMaxWait <= 0 {
		cfg.PollMaxWait = shared.PredictionPollingMaxWait
	}
	if cfg.MaxArtifactBytes <= 0 {
		cfg.MaxArtifactBytes = shared.MaxArtifactBytes
	}

	return &EmojiHandler{
		Log:        log,
		Ledger:     ledger,
		Emojis:     emojis,
		Provider:   provider,
		Blobs:      blobs,
		HTTPClient: &http.Client{Transport: tr, Timeout: shared.DefaultHTTPTimeout},
		Config:     cfg,
	}
}

func (h *EmojiHandler) logger(log *zap.SugaredLogger) *zap.SugaredLogger {
	if log != nil {
		return log
	}
	return h.Log
}
