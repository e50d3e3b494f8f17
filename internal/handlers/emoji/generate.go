package emoji

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"emoji-api/internal/metrics"
	"emoji-api/internal/replicate"
	"emoji-api/internal/shared"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type GenerateInput struct {
	Ctx    context.Context
	UserID string
	Prompt string
	Log    *zap.SugaredLogger
}

type GenerateOutput struct {
	Emoji            *shared.Emoji
	RemainingCredits int64
	PredictionID     string
	PollAttempts     int
}

// GenerateLogic spends one credit and runs a generation to completion. The
// credit is taken before anything is sent to the provider; a failure after
// that point only gives it back when RefundOnFailure is set.
func (h *EmojiHandler) GenerateLogic(input GenerateInput) (*GenerateOutput, error) {
	log := h.logger(input.Log)
	start := time.Now()

	if input.UserID == "" {
		return nil, shared.ErrUnauthorized
	}
	if strings.TrimSpace(input.Prompt) == "" {
		return nil, errors.Join(errors.New("prompt is required"), shared.ErrBadRequest)
	}
	if len([]rune(input.Prompt)) > shared.MaxPromptLength {
		return nil, errors.Join(fmt.Errorf("prompt longer than %d characters", shared.MaxPromptLength), shared.ErrBadRequest)
	}

	change, err := h.Ledger.DecrementCredits(input.Ctx, input.UserID)
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrInsufficientCredit):
			metrics.CreditOperations.WithLabelValues("decrement", "insufficient").Inc()
		case errors.Is(err, shared.ErrUserNotFound):
			metrics.CreditOperations.WithLabelValues("decrement", "not_found").Inc()
		default:
			metrics.CreditOperations.WithLabelValues("decrement", "error").Inc()
		}
		return nil, errors.Join(errors.New("failed to decrement credits"), err)
	}
	metrics.CreditOperations.WithLabelValues("decrement", "ok").Inc()
	log.Infow("Credit spent", "credits_before", change.Before, "credits_after", change.After)

	out, err := h.generate(input.Ctx, log, input.UserID, input.Prompt)
	if err != nil {
		metrics.GenerationCount.WithLabelValues("failed").Inc()
		metrics.GenerationDuration.WithLabelValues("failed").Observe(time.Since(start).Seconds())
		if h.Config.RefundOnFailure {
			h.refund(input.Ctx, log, input.UserID)
		}
		return out, err
	}

	metrics.GenerationCount.WithLabelValues("succeeded").Inc()
	metrics.GenerationDuration.WithLabelValues("succeeded").Observe(time.Since(start).Seconds())
	out.RemainingCredits = change.After
	return out, nil
}

func (h *EmojiHandler) refund(ctx context.Context, log *zap.SugaredLogger, userID string) {
	// The generation context may already be past its deadline
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	credits, err := h.Ledger.RefundCredit(ctx, userID)
	if err != nil {
		metrics.CreditOperations.WithLabelValues("refund", "error").Inc()
		log.Errorw("Failed to refund credit", "error", err)
		return
	}
	metrics.CreditOperations.WithLabelValues("refund", "ok").Inc()
	log.Infow("Credit refunded after failed generation", "credits", credits)
}

// generate drives Submitted -> Polling -> Succeeded|Failed and persists the
// result. The emoji row is the last write, so no failure leaves a record behind.
func (h *EmojiHandler) generate(ctx context.Context, log *zap.SugaredLogger, userID, prompt string) (*GenerateOutput, error) {
	prediction, err := h.Provider.CreatePrediction(ctx, replicate.CreatePredictionRequest{
		Version: h.Config.Params.Version,
		Input:   h.Config.Params.InputFor(prompt),
	})
	if err != nil {
		metrics.ErrorCount.WithLabelValues("create_prediction").Inc()
		return nil, errors.Join(errors.New("failed to submit prediction"), err, shared.ErrProviderJobFailed)
	}
	log = log.With("prediction_id", prediction.ID)
	log.Infow("Prediction submitted", "status", prediction.Status)
	out := &GenerateOutput{PredictionID: prediction.ID}

	prediction, attempts, err := h.waitForPrediction(ctx, log, prediction)
	out.PollAttempts = attempts
	if err != nil {
		metrics.PollAttempts.WithLabelValues("timeout").Observe(float64(attempts))
		return out, err
	}
	metrics.PollAttempts.WithLabelValues(prediction.Status).Observe(float64(attempts))

	if !prediction.Succeeded() {
		detail := prediction.ErrorDetail()
		log.Warnw("Prediction failed", "status", prediction.Status, "detail", detail)
		return out, errors.Join(fmt.Errorf("prediction failed: %s", detail), shared.ErrProviderJobFailed)
	}

	imageURL, err := extractImageURL(prediction.Output)
	if err != nil {
		return out, err
	}

	data, err := h.fetchArtifact(ctx, imageURL)
	if err != nil {
		metrics.ErrorCount.WithLabelValues("fetch_artifact").Inc()
		return out, err
	}

	name := uuid.NewString() + shared.ArtifactExtension
	path, err := h.Blobs.Put(ctx, name, shared.ArtifactContentType, data)
	if err != nil {
		metrics.ErrorCount.WithLabelValues("store_artifact").Inc()
		return out, errors.Join(err, shared.ErrStorageWriteFailed)
	}
	metrics.ArtifactBytes.Add(float64(len(data)))

	emoji := &shared.Emoji{
		ID:            uuid.NewString(),
		Prompt:        prompt,
		ImageURL:      h.Blobs.PublicURL(path),
		StoragePath:   path,
		Likes:         0,
		CreatorUserID: userID,
	}
	if err := h.Emojis.InsertEmoji(ctx, emoji); err != nil {
		metrics.ErrorCount.WithLabelValues("insert_emoji").Inc()
		log.Errorw("Emoji record not written, artifact left orphaned", "storage_path", path, "error", err)
		return out, errors.Join(err, shared.ErrRecordWriteFailed)
	}

	log.Infow("Emoji generated", "emoji_id", emoji.ID, "storage_path", path, "poll_attempts", attempts)
	out.Emoji = emoji
	return out, nil
}

// waitForPrediction polls until the prediction is terminal or PollMaxWait
// runs out. Failed status calls are logged and retried on the next tick.
func (h *EmojiHandler) waitForPrediction(ctx context.Context, log *zap.SugaredLogger, p *replicate.Prediction) (*replicate.Prediction, int, error) {
	ctx, cancel := context.WithTimeout(ctx, h.Config.PollMaxWait)
	defer cancel()

	ticker := time.NewTicker(h.Config.PollInterval)
	defer ticker.Stop()

	attempts := 0
	for !p.Terminal() {
		select {
		case <-ctx.Done():
			log.Errorw("Polling timeout for prediction", "attempts", attempts, "max_wait", h.Config.PollMaxWait.String())
			return nil, attempts, errors.Join(
				fmt.Errorf("prediction %s not finished after %s", p.ID, h.Config.PollMaxWait),
				ctx.Err(),
				shared.ErrGenerationTimeout,
			)
		case <-ticker.C:
			attempts++
			next, err := h.Provider.GetPrediction(ctx, p.ID)
			if err != nil {
				if ctx.Err() == nil {
					log.Warnw("Failed to poll prediction", "attempt", attempts, "error", err)
				}
				continue
			}
			p = next
			log.Debugw("Polled prediction", "attempt", attempts, "status", p.Status)
		}
	}
	return p, attempts, nil
}

// extractImageURL accepts only a non-empty output array whose first element
// is an http(s) URL string
func extractImageURL(output any) (string, error) {
	items, ok := output.([]any)
	if !ok || len(items) == 0 {
		return "", errors.Join(fmt.Errorf("expected non-empty output array, got %T", output), shared.ErrInvalidProviderOutput)
	}
	raw, ok := items[0].(string)
	if !ok {
		return "", errors.Join(fmt.Errorf("expected string image url, got %T", items[0]), shared.ErrInvalidProviderOutput)
	}
	parsed, err := url.Parse(raw)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return "", errors.Join(fmt.Errorf("invalid image url %q", raw), shared.ErrInvalidProviderOutput)
	}
	return raw, nil
}

func (h *EmojiHandler) fetchArtifact(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create artifact request: %w", err), shared.ErrArtifactFetchFailed)
	}
	res, err := h.HTTPClient.Do(req)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to fetch artifact: %w", err), shared.ErrArtifactFetchFailed)
	}
	defer func() {
		_ = res.Body.Close()
	}()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, errors.Join(fmt.Errorf("artifact fetch returned %s", res.Status), shared.ErrArtifactFetchFailed)
	}
	// One byte past the limit tells an oversized artifact from one that fits exactly
	limit := h.Config.MaxArtifactBytes
	data, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to read artifact: %w", err), shared.ErrArtifactFetchFailed)
	}
	if int64(len(data)) > limit {
		return nil, errors.Join(fmt.Errorf("artifact larger than %d bytes", limit), shared.ErrArtifactFetchFailed)
	}
	return data, nil
}
