package client

import (
	"context"
	"sync"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/Rogue-Bear-Innovations/memberberries/internal/preview"
)

// PreviewClient fetches link previews through the server's preview
// endpoint. Successful payloads are memoized for the lifetime of the
// client, keyed by bookmark URL; failures are not cached.
type PreviewClient struct {
	http *resty.Client

	mu    sync.Mutex
	cache map[string]preview.Preview
}

func NewPreviewClient(baseURL, token string) *PreviewClient {
	return &PreviewClient{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("x-token", token),
		cache: make(map[string]preview.Preview),
	}
}

func (p *PreviewClient) Get(ctx context.Context, bookmarkURL string) (*preview.Preview, error) {
	p.mu.Lock()
	if cached, ok := p.cache[bookmarkURL]; ok {
		p.mu.Unlock()
		return &cached, nil
	}
	p.mu.Unlock()

	result := preview.Preview{}
	resp, err := p.http.R().
		SetContext(ctx).
		SetQueryParam("url", bookmarkURL).
		SetResult(&result).
		Get("/api/preview")
	if err != nil {
		return nil, errors.Wrap(err, "preview request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("fetch preview: %s", resp.Status())
	}

	p.mu.Lock()
	p.cache[bookmarkURL] = result
	p.mu.Unlock()

	return &result, nil
}
