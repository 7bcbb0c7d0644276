package avatar

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"net/http"
	"net/url"
	"time"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/singleflight"
	"iq-card-service/internal/domain"
)

const defaultMaxBytes = 2 << 20

// Inliner turns a remote image URL into an embeddable Image.
type Inliner interface {
	Inline(ctx context.Context, rawURL string) (Image, error)
}

// Cache stores inlined images keyed by their source URL.
type Cache interface {
	Get(ctx context.Context, key string) (Image, bool)
	Set(ctx context.Context, key string, img Image)
}

// NewHTTPClient returns the client used for provider probing.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Fetcher inlines remote avatars over HTTP. Concurrent requests for the same URL
// share one fetch and successful results are cached.
type Fetcher struct {
	client   *http.Client
	cache    Cache
	maxBytes int64
	sf       singleflight.Group
}

func NewFetcher(client *http.Client, cache Cache) *Fetcher {
	if client == nil {
		client = NewHTTPClient(5 * time.Second)
	}
	return &Fetcher{client: client, cache: cache, maxBytes: defaultMaxBytes}
}

// Inline fetches rawURL and checks that it decodes as an image. Every failure
// wraps domain.ErrNetworkUnavailable.
func (f *Fetcher) Inline(ctx context.Context, rawURL string) (Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return Image{}, fmt.Errorf("%w: unsupported avatar url %q", domain.ErrNetworkUnavailable, rawURL)
	}
	if f.cache != nil {
		if img, ok := f.cache.Get(ctx, rawURL); ok {
			return img, nil
		}
	}

	result, err, _ := f.sf.Do(rawURL, func() (interface{}, error) {
		img, err := f.fetch(ctx, rawURL)
		if err != nil {
			return Image{}, err
		}
		if f.cache != nil {
			f.cache.Set(ctx, rawURL, img)
		}
		return img, nil
	})
	if err != nil {
		return Image{}, err
	}
	return result.(Image), nil
}

func (f *Fetcher) fetch(ctx context.Context, rawURL string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Image{}, fmt.Errorf("%w: build request: %v", domain.ErrNetworkUnavailable, err)
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("Cache-Control", "no-store")

	resp, err := f.client.Do(req)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", domain.ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Image{}, fmt.Errorf("%w: avatar fetch %d", domain.ErrNetworkUnavailable, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("%w: read body: %v", domain.ErrNetworkUnavailable, err)
	}
	if int64(len(data)) > f.maxBytes {
		return Image{}, fmt.Errorf("%w: avatar larger than %d bytes", domain.ErrNetworkUnavailable, f.maxBytes)
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return Image{}, fmt.Errorf("%w: undecodable avatar: %v", domain.ErrNetworkUnavailable, err)
	}

	return Image{MIME: contentType(resp.Header.Get("Content-Type"), data), Data: data}, nil
}

func contentType(header string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "" && mt != "application/octet-stream" {
		return mt
	}
	return http.DetectContentType(data)
}

// FirstSuccess tries candidates in order and returns the first success with its
// index. No retries and no backoff: each step is cheap and the list is short.
func FirstSuccess[T any](ctx context.Context, candidates []string, try func(context.Context, string) (T, error)) (T, int, error) {
	var zero T
	var errs []error
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return zero, -1, err
		}
		v, err := try(ctx, candidate)
		if err == nil {
			return v, i, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return zero, -1, fmt.Errorf("%w: no candidates", domain.ErrNetworkUnavailable)
	}
	return zero, -1, errors.Join(errs...)
}

// Resolve walks the candidate chain for handle and falls back to initials of
// name when every provider fails. It never returns an error.
func (r *Resolver) Resolve(ctx context.Context, inliner Inliner, handle, name string) Image {
	img, _, err := FirstSuccess(ctx, r.Candidates(handle), inliner.Inline)
	if err == nil {
		return img
	}
	if name == "" {
		name = r.placeholder
		if handle != "" {
			name = "@" + handle
		}
	}
	return r.Initials(name)
}
