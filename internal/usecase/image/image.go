package usecase_image

import (
	"context"
	"errors"
	"net/http"
	"time"
)

var (
	ErrNoImage          = errors.New("no image payload")
	ErrImageTooLarge    = errors.New("image too large")
	ErrImageNotFound    = errors.New("image not found")
	ErrImageUnavailable = errors.New("image storage unavailable")
)

//go:generate mockery --name=ImageRepository --output=./mocks/image/repository --filename=repository.go
type ImageRepository interface {
	Save(ctx context.Context, data []byte, contentType string) (string, error)
	ResolveURL(ctx context.Context, ref string, ttl time.Duration) (string, error)
}

const (
	defaultMaxBytes = 5 << 20
	resolveTTL      = 15 * time.Minute
)

type Usecase struct {
	images   ImageRepository
	maxBytes int
}

func New(images ImageRepository, maxBytes int) *Usecase {
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	return &Usecase{
		images:   images,
		maxBytes: maxBytes,
	}
}

// Save validates the uploaded payload and stores it, returning the opaque
// ref that participants pass through the room protocol.
func (u *Usecase) Save(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrNoImage
	}
	if len(data) > u.maxBytes {
		return "", ErrImageTooLarge
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	ref, err := u.images.Save(ctx, data, contentType)
	if err != nil {
		return "", errors.Join(ErrImageUnavailable, err)
	}
	return ref, nil
}

// ResolveURL exchanges a ref for something a client can actually fetch.
func (u *Usecase) ResolveURL(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", ErrImageNotFound
	}

	url, err := u.images.ResolveURL(ctx, ref, resolveTTL)
	if err != nil {
		return "", errors.Join(ErrImageUnavailable, err)
	}
	return url, nil
}
