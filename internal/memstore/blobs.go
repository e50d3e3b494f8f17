package memstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
)

var ErrObjectNotFound = errors.New("object not found")

type Blobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	baseURL string
	putErr  error
}

func NewBlobs(baseURL string) *Blobs {
	return &Blobs{objects: map[string][]byte{}, baseURL: baseURL}
}

// FailPuts makes every following Put return err; nil clears it
func (b *Blobs) FailPuts(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.putErr = err
}

func (b *Blobs) Put(_ context.Context, name, _ string, data []byte) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return "", b.putErr
	}
	if _, ok := b.objects[name]; ok {
		return "", fmt.Errorf("object %s already exists", name)
	}
	b.objects[name] = append([]byte(nil), data...)
	return name, nil
}

func (b *Blobs) Get(_ context.Context, name string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[name]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", name, ErrObjectNotFound)
	}
	return data, nil
}

func (b *Blobs) PublicURL(name string) string {
	return b.baseURL + "/" + url.PathEscape(name)
}

func (b *Blobs) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}
