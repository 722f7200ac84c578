package client

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Rogue-Bear-Innovations/memberberries/internal/realtime"
	"github.com/Rogue-Bear-Innovations/memberberries/internal/store"
)

// Subscriber feeds the server's websocket change feed into the send
// end of a store event channel. The store owns the receive end; the
// channel is closed on teardown so a finished Run loop never applies
// stale events.
type Subscriber struct {
	wsURL  string
	token  string
	logger *zap.SugaredLogger
}

func NewSubscriber(wsURL, token string, logger *zap.SugaredLogger) *Subscriber {
	return &Subscriber{
		wsURL:  wsURL,
		token:  token,
		logger: logger,
	}
}

// Run dials the feed and forwards events until ctx is done or the
// socket drops. events is closed before returning, whatever the cause.
func (s *Subscriber) Run(ctx context.Context, events chan<- store.Event) error {
	defer close(events)

	header := http.Header{}
	header.Set("x-token", s.token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.wsURL, header)
	if err != nil {
		return errors.Wrap(err, "dial websocket")
	}
	defer conn.Close()

	// Unblock the read loop when the context goes away.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		event := realtime.Event{}
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "read event")
		}

		select {
		case events <- toStoreEvent(event):
		case <-ctx.Done():
			return nil
		}
	}
}

func toStoreEvent(event realtime.Event) store.Event {
	category := ""
	if event.Bookmark.Category != nil {
		category = *event.Bookmark.Category
	}
	return store.Event{
		Type: store.EventType(event.Type),
		Bookmark: store.Bookmark{
			ID:        event.Bookmark.ID,
			Title:     event.Bookmark.Title,
			URL:       event.Bookmark.URL,
			Category:  category,
			UserID:    event.Bookmark.UserID,
			CreatedAt: event.Bookmark.CreatedAt,
		},
	}
}
