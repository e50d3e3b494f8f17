// Package blob stores generated artifacts in Google Cloud Storage
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/storage/v1"
)

var (
	ErrObjectExists   = errors.New("object already exists")
	ErrObjectNotFound = errors.New("object not found")
)

type GCSStore struct {
	Service       *storage.Service
	Bucket        string
	PublicBaseURL string
}

func NewGCSStore(ctx context.Context, bucket, publicBaseURL string, opts ...option.ClientOption) (*GCSStore, error) {
	svc, err := storage.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to storage service: %w", err)
	}
	return &GCSStore{
		Service:       svc,
		Bucket:        bucket,
		PublicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}, nil
}

// Put writes data under name. An existing object with the same name is never
// replaced; the write fails with ErrObjectExists instead.
func (s *GCSStore) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	obj := &storage.Object{Name: name, ContentType: contentType}
	res, err := s.Service.Objects.Insert(s.Bucket, obj).
		Name(name).
		IfGenerationMatch(0).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("%w: %s", ErrObjectExists, name)
		}
		return "", fmt.Errorf("failed to upload object %s: %w", name, err)
	}
	return res.Name, nil
}

func (s *GCSStore) Get(ctx context.Context, name string) ([]byte, error) {
	res, err := s.Service.Objects.Get(s.Bucket, name).Context(ctx).Download()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, name)
		}
		return nil, fmt.Errorf("failed to download object %s: %w", name, err)
	}
	defer func() {
		_ = res.Body.Close()
	}()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", name, err)
	}
	return data, nil
}

// PublicURL is the anonymous read URL for an object in a public bucket
func (s *GCSStore) PublicURL(name string) string {
	return fmt.Sprintf("%s/%s/%s", s.PublicBaseURL, s.Bucket, url.PathEscape(name))
}
