// Package client talks to the memberberries server: row CRUD over
// HTTP, the realtime change feed over websocket, and the preview
// endpoint with a session-scoped cache.
package client

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/Rogue-Bear-Innovations/memberberries/internal/store"
)

type (
	bookmarkWire struct {
		ID        string    `json:"id"`
		Title     string    `json:"title"`
		URL       string    `json:"url"`
		Category  *string   `json:"category"`
		UserID    string    `json:"user_id"`
		CreatedAt time.Time `json:"created_at"`
	}

	bookmarkBody struct {
		Title    string  `json:"title,omitempty"`
		URL      string  `json:"url,omitempty"`
		Category *string `json:"category"`
	}

	deleteBatchBody struct {
		IDs []string `json:"ids"`
	}

	// Client implements store.Remote against the HTTP routes.
	Client struct {
		http *resty.Client
	}
)

func New(baseURL, token string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Content-Type", "application/json").
			SetHeader("x-token", token),
	}
}

func (c *Client) List(ctx context.Context) ([]store.Bookmark, error) {
	rows := make([]bookmarkWire, 0)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(`{}`).
		SetResult(&rows).
		Post("/bookmark/list")
	if err != nil {
		return nil, errors.Wrap(err, "list request")
	}
	if resp.IsError() {
		return nil, errors.Errorf("list bookmarks: %s", resp.Status())
	}

	out := make([]store.Bookmark, len(rows))
	for i := range rows {
		out[i] = toBookmark(&rows[i])
	}
	return out, nil
}

func (c *Client) Create(ctx context.Context, f store.Fields) (store.Bookmark, error) {
	row := bookmarkWire{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(toBody(f)).
		SetResult(&row).
		Post("/bookmark")
	if err != nil {
		return store.Bookmark{}, errors.Wrap(err, "create request")
	}
	if resp.IsError() {
		return store.Bookmark{}, errors.Errorf("create bookmark: %s", resp.Status())
	}
	return toBookmark(&row), nil
}

func (c *Client) Update(ctx context.Context, id string, f store.Fields) (store.Bookmark, error) {
	row := bookmarkWire{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(toBody(f)).
		SetResult(&row).
		Patch("/bookmark/" + id)
	if err != nil {
		return store.Bookmark{}, errors.Wrap(err, "update request")
	}
	if resp.IsError() {
		return store.Bookmark{}, errors.Errorf("update bookmark: %s", resp.Status())
	}
	return toBookmark(&row), nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/bookmark/" + id)
	if err != nil {
		return errors.Wrap(err, "delete request")
	}
	if resp.IsError() {
		return errors.Errorf("delete bookmark: %s", resp.Status())
	}
	return nil
}

func (c *Client) DeleteBatch(ctx context.Context, ids []string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(deleteBatchBody{IDs: ids}).
		Post("/bookmark/delete")
	if err != nil {
		return errors.Wrap(err, "delete batch request")
	}
	if resp.IsError() {
		return errors.Errorf("delete batch: %s", resp.Status())
	}
	return nil
}

func toBody(f store.Fields) bookmarkBody {
	category := f.Category
	return bookmarkBody{Title: f.Title, URL: f.URL, Category: &category}
}

func toBookmark(row *bookmarkWire) store.Bookmark {
	category := ""
	if row.Category != nil {
		category = *row.Category
	}
	return store.Bookmark{
		ID:        row.ID,
		Title:     row.Title,
		URL:       row.URL,
		Category:  category,
		UserID:    row.UserID,
		CreatedAt: row.CreatedAt,
	}
}
