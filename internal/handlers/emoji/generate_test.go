package emoji

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"emoji-api/internal/replicate"
	"emoji-api/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generate(env *testEnv, userID, prompt string) (*GenerateOutput, error) {
	return env.handler.GenerateLogic(GenerateInput{
		Ctx:    context.Background(),
		UserID: userID,
		Prompt: prompt,
	})
}

func TestGenerate_Success(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 3})

	out, err := generate(env, "u1", "a happy cat")
	require.NoError(t, err)
	require.NotNil(t, out.Emoji)

	assert.Equal(t, int64(2), out.RemainingCredits)
	assert.Equal(t, int64(2), env.balance("u1"))
	assert.Equal(t, uint64(0), out.Emoji.Likes)
	assert.Equal(t, "a happy cat", out.Emoji.Prompt)
	assert.Equal(t, "u1", out.Emoji.CreatorUserID)
	assert.Equal(t, env.blobs.PublicURL(out.Emoji.StoragePath), out.Emoji.ImageURL)
	assert.NotContains(t, out.Emoji.ImageURL, env.artifact.URL)
	stored, err := env.blobs.Get(context.Background(), out.Emoji.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)
	assert.Equal(t, 1, env.store.EmojiCount())

	record, err := env.store.GetEmoji(context.Background(), out.Emoji.ID)
	require.NoError(t, err)
	assert.Equal(t, "a happy cat", record.Prompt)
}

func TestGenerate_SendsFixedParams(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 1})

	_, err := generate(env, "u1", "a happy cat")
	require.NoError(t, err)

	require.Len(t, env.provider.requests, 1)
	req := env.provider.requests[0]
	assert.Equal(t, DefaultParams().Version, req.Version)
	input, ok := req.Input.(ModelInput)
	require.True(t, ok)
	assert.Equal(t, "A TOK emoji of a happy cat", input.Prompt)
	assert.Equal(t, 1024, input.Width)
	assert.Equal(t, 1024, input.Height)
	assert.Equal(t, 50, input.NumInferenceSteps)
	assert.Equal(t, 7.5, input.GuidanceScale)
	assert.Equal(t, "", input.NegativePrompt)
	assert.False(t, input.ApplyWatermark)
}

func TestGenerate_PollsUntilTerminal(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 1})
	env.provider.create = replicate.Prediction{ID: "pred-1", Status: replicate.StatusStarting}
	env.provider.polls = []replicate.Prediction{
		{Status: replicate.StatusProcessing},
		{Status: replicate.StatusProcessing},
		{Status: replicate.StatusSucceeded, Output: []any{env.artifact.URL + "/img.png"}},
	}

	out, err := generate(env, "u1", "a dog")
	require.NoError(t, err)
	assert.Equal(t, 3, out.PollAttempts)
	assert.Equal(t, "pred-1", out.PredictionID)
}

func TestGenerate_ZeroBalanceNeverReachesProvider(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 0})

	_, err := generate(env, "u1", "a happy cat")
	require.ErrorIs(t, err, shared.ErrInsufficientCredit)
	assert.Equal(t, int64(0), env.provider.creates.Load())
	assert.Equal(t, int64(0), env.balance("u1"))
}

func TestGenerate_UnknownUser(t *testing.T) {
	env := newTestEnv(t, map[string]int64{})

	_, err := generate(env, "ghost", "a happy cat")
	require.ErrorIs(t, err, shared.ErrUserNotFound)
	assert.Equal(t, int64(0), env.provider.creates.Load())
}

func TestGenerate_RejectsBadInputBeforeSpending(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 1})

	_, err := generate(env, "u1", "   ")
	require.ErrorIs(t, err, shared.ErrBadRequest)

	_, err = generate(env, "", "a cat")
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	assert.Equal(t, int64(1), env.balance("u1"))
}

func TestGenerate_FailedJobWritesNothing(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 2})
	env.provider.create = replicate.Prediction{ID: "pred-1", Status: replicate.StatusProcessing}
	env.provider.polls = []replicate.Prediction{{Status: replicate.StatusFailed, Error: "NSFW content detected"}}

	_, err := generate(env, "u1", "a cat")
	require.ErrorIs(t, err, shared.ErrProviderJobFailed)
	assert.Contains(t, err.Error(), "NSFW content detected")
	assert.Equal(t, 0, env.store.EmojiCount())
	assert.Equal(t, 0, env.blobs.Len())
	// no refund by default
	assert.Equal(t, int64(1), env.balance("u1"))
}

func TestGenerate_CanceledJobIsFailure(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 1})
	env.provider.create = replicate.Prediction{ID: "pred-1", Status: replicate.StatusCanceled}

	_, err := generate(env, "u1", "a cat")
	require.ErrorIs(t, err, shared.ErrProviderJobFailed)
}

func TestGenerate_InvalidOutput(t *testing.T) {
	for name, output := range map[string]any{
		"empty":        []any{},
		"wrong type":   []any{float64(42)},
		"nil":          nil,
		"not an array": "https://x/img.png",
		"not a url":    []any{"img.png"},
	} {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, map[string]int64{"u1": 1})
			env.provider.create = replicate.Prediction{ID: "pred-1", Status: replicate.StatusSucceeded, Output: output}

			_, err := generate(env, "u1", "a cat")
			require.ErrorIs(t, err, shared.ErrInvalidProviderOutput)
			assert.Equal(t, 0, env.blobs.Len())
			assert.Equal(t, 0, env.store.EmojiCount())
		})
	}
}

func TestGenerate_ArtifactFetchFailed(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 1})
	env.provider.create.Output = []any{env.artifact.URL + "/missing.png"}

	_, err := generate(env, "u1", "a cat")
	require.ErrorIs(t, err, shared.ErrArtifactFetchFailed)
	assert.Equal(t, 0, env.blobs.Len())
}

func TestGenerate_OversizedArtifactIsNotStored(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 2})
	env.handler.Config.MaxArtifactBytes = int64(len(pngBytes)) - 1

	_, err := generate(env, "u1", "a cat")
	require.ErrorIs(t, err, shared.ErrArtifactFetchFailed)
	assert.Equal(t, 0, env.blobs.Len())
	assert.Equal(t, 0, env.store.EmojiCount())

	// exactly at the limit still fits
	env.handler.Config.MaxArtifactBytes = int64(len(pngBytes))
	out, err := generate(env, "u1", "a cat")
	require.NoError(t, err)
	stored, err := env.blobs.Get(context.Background(), out.Emoji.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, stored)
}

func TestGenerate_StorageWriteFailed(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 1})
	env.blobs.FailPuts(errors.New("bucket unavailable"))

	_, err := generate(env, "u1", "a cat")
	require.ErrorIs(t, err, shared.ErrStorageWriteFailed)
	assert.Equal(t, 0, env.store.EmojiCount())
}

func TestGenerate_RecordWriteFailedLeavesOrphanedArtifact(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 1})
	env.store.FailInserts(errors.New("connection reset"))

	_, err := generate(env, "u1", "a cat")
	require.ErrorIs(t, err, shared.ErrRecordWriteFailed)
	assert.Equal(t, 1, env.blobs.Len())
	assert.Equal(t, 0, env.store.EmojiCount())
}

func TestGenerate_Timeout(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 1})
	env.handler.Config.PollMaxWait = 30 * time.Millisecond
	env.provider.create = replicate.Prediction{ID: "pred-1", Status: replicate.StatusStarting}
	env.provider.polls = []replicate.Prediction{{Status: replicate.StatusProcessing}}

	out, err := generate(env, "u1", "a cat")
	require.ErrorIs(t, err, shared.ErrGenerationTimeout)
	require.NotNil(t, out)
	assert.Positive(t, out.PollAttempts)
	assert.Equal(t, 0, env.store.EmojiCount())
}

func TestGenerate_PollErrorsAreRetried(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 1})
	env.provider.create = replicate.Prediction{ID: "pred-1", Status: replicate.StatusStarting}
	// polls is empty so every status call errors until it is filled in
	go func() {
		time.Sleep(20 * time.Millisecond)
		env.provider.mu.Lock()
		env.provider.polls = []replicate.Prediction{{Status: replicate.StatusSucceeded, Output: []any{env.artifact.URL + "/img.png"}}}
		env.provider.mu.Unlock()
	}()

	out, err := generate(env, "u1", "a cat")
	require.NoError(t, err)
	assert.NotNil(t, out.Emoji)
}

func TestGenerate_RefundPolicy(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 1})
	env.handler.Config.RefundOnFailure = true
	env.provider.create = replicate.Prediction{ID: "pred-1", Status: replicate.StatusFailed, Error: "boom"}

	_, err := generate(env, "u1", "a cat")
	require.ErrorIs(t, err, shared.ErrProviderJobFailed)
	// spent then given back
	assert.Equal(t, int64(1), env.balance("u1"))
}

func TestGenerate_SubmitFailure(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"u1": 1})
	env.provider.createErr = errors.New("replicate down")

	_, err := generate(env, "u1", "a cat")
	require.ErrorIs(t, err, shared.ErrProviderJobFailed)
	assert.Equal(t, int64(0), env.balance("u1"))
}

func TestGenerate_ConcurrentSameUser(t *testing.T) {
	for _, tc := range []struct{ balance, requests int }{
		{balance: 3, requests: 10},
		{balance: 5, requests: 5},
		{balance: 8, requests: 4},
	} {
		env := newTestEnv(t, map[string]int64{"u1": int64(tc.balance)})

		var wg sync.WaitGroup
		var mu sync.Mutex
		succeeded, refused := 0, 0
		for range tc.requests {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := generate(env, "u1", "a cat")
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, shared.ErrInsufficientCredit):
					refused++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, min(tc.balance, tc.requests), succeeded)
		assert.Equal(t, tc.requests-succeeded, refused)
		assert.Equal(t, int64(max(tc.balance-tc.requests, 0)), env.balance("u1"))
		assert.Equal(t, int64(succeeded), env.provider.creates.Load())
	}
}

func TestExtractImageURL(t *testing.T) {
	u, err := extractImageURL([]any{"https://x/img.png", "https://x/other.png"})
	require.NoError(t, err)
	assert.Equal(t, "https://x/img.png", u)
}
