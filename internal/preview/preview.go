package preview

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

type (
	// Preview is the flat metadata record extracted from a page.
	Preview struct {
		Title       string `json:"title,omitempty"`
		Description string `json:"description,omitempty"`
		Image       string `json:"image,omitempty"`
		URL         string `json:"url"`
	}

	// StatusError reports a non-2xx upstream response so the transport
	// layer can pass the status through.
	StatusError struct {
		Code int
	}

	Fetcher struct {
		client *resty.Client
		logger *zap.SugaredLogger
	}
)

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

func NewFetcher(logger *zap.SugaredLogger) *Fetcher {
	return &Fetcher{
		client: resty.New().
			SetHeader("User-Agent", userAgent).
			SetHeader("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"),
		logger: logger,
	}
}

// Fetch grabs the page behind rawURL and extracts title, description
// and image via a sequential metadata-tag lookup. No retry, no backoff.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Preview, error) {
	resp, err := f.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, errors.Wrap(err, "fetch url")
	}
	if resp.IsError() {
		return nil, &StatusError{Code: resp.StatusCode()}
	}

	// A direct image link has no HTML to scrape; synthesize the record.
	contentType := resp.Header().Get("Content-Type")
	if strings.HasPrefix(contentType, "image/") {
		return &Preview{
			Title:       imageTitle(rawURL),
			Description: "Direct Image URL",
			Image:       rawURL,
			URL:         rawURL,
		}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, errors.Wrap(err, "parse html")
	}

	getMeta := func(prop string) string {
		if v, ok := doc.Find(`meta[property="` + prop + `"]`).Attr("content"); ok {
			return v
		}
		v, _ := doc.Find(`meta[name="` + prop + `"]`).Attr("content")
		return v
	}
	getLink := func(rel string) string {
		v, _ := doc.Find(`link[rel="` + rel + `"]`).Attr("href")
		return v
	}

	title := firstNonEmpty(getMeta("og:title"), getMeta("twitter:title"), doc.Find("title").Text())
	description := firstNonEmpty(getMeta("og:description"), getMeta("twitter:description"), getMeta("description"))
	image := firstNonEmpty(
		getMeta("og:image"),
		getMeta("twitter:image"),
		getMeta("twitter:image:src"),
		getLink("image_src"),
		getLink("apple-touch-icon"),
		getLink("icon"),
	)
	image = resolveImage(image, rawURL)

	return &Preview{
		Title:       title,
		Description: description,
		Image:       image,
		URL:         rawURL,
	}, nil
}

// resolveImage turns a relative image reference into an absolute one
// against the source page. The original value is kept when resolution
// fails.
func resolveImage(image, pageURL string) string {
	if image == "" || strings.HasPrefix(image, "http") {
		return image
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return image
	}
	ref, err := url.Parse(image)
	if err != nil {
		return image
	}
	return base.ResolveReference(ref).String()
}

func imageTitle(rawURL string) string {
	parts := strings.Split(strings.TrimRight(rawURL, "/"), "/")
	if last := parts[len(parts)-1]; last != "" {
		return last
	}
	return "Image"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
