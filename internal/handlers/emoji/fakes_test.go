package emoji

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"emoji-api/internal/memstore"
	"emoji-api/internal/replicate"

	"go.uber.org/zap"
)

// fakeProvider answers CreatePrediction with create and every poll with the
// next entry of polls, repeating the last one
type fakeProvider struct {
	mu        sync.Mutex
	create    replicate.Prediction
	createErr error
	polls     []replicate.Prediction
	requests  []replicate.CreatePredictionRequest
	creates   atomic.Int64
	gets      atomic.Int64
}

func (p *fakeProvider) CreatePrediction(_ context.Context, req replicate.CreatePredictionRequest) (*replicate.Prediction, error) {
	p.creates.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.createErr != nil {
		return nil, p.createErr
	}
	pred := p.create
	return &pred, nil
}

func (p *fakeProvider) GetPrediction(_ context.Context, id string) (*replicate.Prediction, error) {
	n := int(p.gets.Add(1))
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.polls) == 0 {
		return nil, errors.New("no polls configured")
	}
	idx := min(n-1, len(p.polls)-1)
	pred := p.polls[idx]
	pred.ID = id
	return &pred, nil
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake")

func newArtifactServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/img.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(pngBytes)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testEnv struct {
	handler  *EmojiHandler
	store    *memstore.Store
	provider *fakeProvider
	blobs    *memstore.Blobs
	artifact *httptest.Server
}

func newTestEnv(t *testing.T, balances map[string]int64) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    memstore.New(),
		provider: &fakeProvider{},
		blobs:    memstore.NewBlobs("https://storage.example.com/emojis"),
		artifact: newArtifactServer(t),
	}
	for userID, credits := range balances {
		env.store.SetCredits(userID, credits)
	}
	cfg := DefaultConfig()
	cfg.PollInterval = 2 * time.Millisecond
	cfg.PollMaxWait = 2 * time.Second
	env.handler = NewEmojiHandler(env.store, env.store, env.provider, env.blobs, zap.NewNop().Sugar(), cfg)
	env.provider.create = replicate.Prediction{
		ID:     "pred-1",
		Status: replicate.StatusSucceeded,
		Output: []any{env.artifact.URL + "/img.png"},
	}
	return env
}

// balance reads a user's credits, or -1 when the user has no profile
func (env *testEnv) balance(userID string) int64 {
	credits, err := env.store.GetCredits(context.Background(), userID)
	if err != nil {
		return -1
	}
	return credits
}
