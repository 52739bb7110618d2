package s3mock

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownRef = errors.New("unknown image ref")

// ImageStorage is the in-process stand-in used when no AWS credentials
// are configured. Refs resolve to data URIs instead of presigned URLs.
type ImageStorage struct {
	mu      sync.Mutex
	objects map[string]object
}

type object struct {
	data        []byte
	contentType string
}

func New() *ImageStorage {
	return &ImageStorage{
		objects: make(map[string]object),
	}
}

func (s *ImageStorage) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	ref := "mem/" + uuid.NewString()

	stored := make([]byte, len(data))
	copy(stored, data)

	s.mu.Lock()
	s.objects[ref] = object{data: stored, contentType: contentType}
	s.mu.Unlock()

	return ref, nil
}

func (s *ImageStorage) ResolveURL(ctx context.Context, ref string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	obj, ok := s.objects[ref]
	s.mu.Unlock()

	if !ok {
		return "", ErrUnknownRef
	}
	return "data:" + obj.contentType + ";base64," + base64.StdEncoding.EncodeToString(obj.data), nil
}
