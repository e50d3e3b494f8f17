package emoji

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"emoji-api/internal/shared"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEmoji(t *testing.T, env *testEnv, prompt string, createdAt time.Time) *shared.Emoji {
	t.Helper()
	name := uuid.NewString() + ".png"
	_, err := env.blobs.Put(context.Background(), name, "image/png", pngBytes)
	require.NoError(t, err)
	e := &shared.Emoji{
		ID:            uuid.NewString(),
		Prompt:        prompt,
		ImageURL:      env.blobs.PublicURL(name),
		StoragePath:   name,
		CreatorUserID: "u1",
		CreatedAt:     createdAt,
	}
	require.NoError(t, env.store.InsertEmoji(context.Background(), e))
	return e
}

func TestLike_ConcurrentCallersNeverLoseUpdates(t *testing.T) {
	env := newTestEnv(t, map[string]int64{})
	e := seedEmoji(t, env, "a cat", time.Now())

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.handler.LikeLogic(context.Background(), e.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := env.handler.GetLogic(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Likes)
}

func TestLike_Errors(t *testing.T) {
	env := newTestEnv(t, map[string]int64{})

	_, err := env.handler.LikeLogic(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, shared.ErrBadRequest)

	_, err = env.handler.LikeLogic(context.Background(), uuid.NewString())
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestList_NewestFirstAndClamped(t *testing.T) {
	env := newTestEnv(t, map[string]int64{})
	now := time.Now()
	older := seedEmoji(t, env, "older", now.Add(-time.Hour))
	newer := seedEmoji(t, env, "newer", now)

	emojis, err := env.handler.ListLogic(context.Background(), 0, -5)
	require.NoError(t, err)
	require.Len(t, emojis, 2)
	assert.Equal(t, newer.ID, emojis[0].ID)
	assert.Equal(t, older.ID, emojis[1].ID)

	emojis, err = env.handler.ListLogic(context.Background(), 1, 1)
	require.NoError(t, err)
	require.Len(t, emojis, 1)
	assert.Equal(t, older.ID, emojis[0].ID)
}

func TestDownload(t *testing.T) {
	env := newTestEnv(t, map[string]int64{})
	e := seedEmoji(t, env, "A Happy Cat wearing sunglasses!", time.Now())

	out, err := env.handler.DownloadLogic(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, pngBytes, out.Data)
	assert.Equal(t, "image/png", out.ContentType)
	assert.Equal(t, "emoji-a-happy-cat-wearing-.png", out.Filename)
}

func TestInitProfile(t *testing.T) {
	env := newTestEnv(t, map[string]int64{"existing": 7})

	out, err := env.handler.InitProfileLogic(context.Background(), "new-user")
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, int64(shared.DefaultUserCredits), out.Credits)

	out, err = env.handler.InitProfileLogic(context.Background(), "existing")
	require.NoError(t, err)
	assert.False(t, out.Created)
	assert.Equal(t, int64(7), out.Credits)

	credits, err := env.handler.CreditsLogic(context.Background(), "existing")
	require.NoError(t, err)
	assert.Equal(t, int64(7), credits)
}

func TestLoadParams(t *testing.T) {
	params, err := LoadParams("")
	require.NoError(t, err)
	assert.Equal(t, DefaultParams(), params)

	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
prompt_template: "a sticker of {prompt}"
input:
  num_inference_steps: 30
`), 0o600))

	params, err = LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, 30, params.Input.NumInferenceSteps)
	assert.Equal(t, 1024, params.Input.Width)
	assert.Equal(t, DefaultParams().Version, params.Version)
	assert.Equal(t, "a sticker of 100% cat", params.InputFor("100% cat").Prompt)

	require.NoError(t, os.WriteFile(path, []byte(`prompt_template: "no placeholder"`), 0o600))
	_, err = LoadParams(path)
	require.Error(t, err)
}
