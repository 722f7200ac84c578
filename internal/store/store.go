// Package store holds the client-side bookmark state for one session:
// an ordered list mutated by optimistic local edits and reconciled
// against the realtime change feed of the remote service.
package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrTitleRequired  = errors.New("title is required")
	ErrURLRequired    = errors.New("url is required")
	ErrInvalidURL     = errors.New("url is not a valid absolute URL")
	ErrDuplicateTitle = errors.New("a bookmark with this title already exists in this category")
	ErrNotFound       = errors.New("bookmark not found")
)

// NoticeDismissAfter is how long a surfaced notice should stay visible.
const NoticeDismissAfter = 4 * time.Second

const noticeBuffer = 16

type (
	// Bookmark is the client view of a row. An empty Category renders
	// as the "Uncategorized" bucket.
	Bookmark struct {
		ID        string
		Title     string
		URL       string
		Category  string
		UserID    string
		CreatedAt time.Time
	}

	Fields struct {
		Title    string
		URL      string
		Category string
	}

	EventType string

	// Event is one entry of the realtime feed, in delivery order.
	Event struct {
		Type     EventType
		Bookmark Bookmark
	}

	NoticeKind string

	// Notice is a transient user-facing notification; Kind selects the
	// styling only.
	Notice struct {
		Kind    NoticeKind
		Message string
	}

	// Remote is the row contract of the remote data service.
	Remote interface {
		List(ctx context.Context) ([]Bookmark, error)
		Create(ctx context.Context, f Fields) (Bookmark, error)
		Update(ctx context.Context, id string, f Fields) (Bookmark, error)
		Delete(ctx context.Context, id string) error
		DeleteBatch(ctx context.Context, ids []string) error
	}

	// Store owns the session's bookmark list and selection set. All
	// mutation goes through its methods; completions of in-flight
	// requests and inbound events apply in arrival order, last write
	// observed wins.
	Store struct {
		mu        sync.Mutex
		remote    Remote
		logger    *zap.SugaredLogger
		validate  *validator.Validate
		pollEvery time.Duration

		bookmarks []Bookmark
		selected  map[string]struct{}
		notices   chan Notice
	}
)

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"

	NoticeSuccess NoticeKind = "success"
	NoticeError   NoticeKind = "error"
)

// New builds an empty store. pollEvery > 0 enables the periodic full
// reload backstop inside Run; 0 disables it.
func New(remote Remote, pollEvery time.Duration, logger *zap.SugaredLogger) *Store {
	return &Store{
		remote:    remote,
		logger:    logger,
		validate:  validator.New(),
		pollEvery: pollEvery,
		bookmarks: make([]Bookmark, 0),
		selected:  make(map[string]struct{}),
		notices:   make(chan Notice, noticeBuffer),
	}
}

// Load replaces the local list wholesale with the remote set, newest
// first, and evicts selection ids that no longer exist.
func (s *Store) Load(ctx context.Context) error {
	bookmarks, err := s.remote.List(ctx)
	if err != nil {
		return errors.Wrap(err, "list bookmarks")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.bookmarks = bookmarks
	present := make(map[string]struct{}, len(bookmarks))
	for i := range bookmarks {
		present[bookmarks[i].ID] = struct{}{}
	}
	for id := range s.selected {
		if _, ok := present[id]; !ok {
			delete(s.selected, id)
		}
	}
	return nil
}

// Run applies inbound events in delivery order until the channel is
// closed or ctx is done. With a poll interval configured it also
// reloads the full set periodically as a consistency backstop.
func (s *Store) Run(ctx context.Context, events <-chan Event) error {
	var tick <-chan time.Time
	if s.pollEvery > 0 {
		t := time.NewTicker(s.pollEvery)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			s.Apply(event)
		case <-tick:
			if err := s.Load(ctx); err != nil {
				s.logger.Errorw("backstop reload failed", "error", err)
			}
		}
	}
}

// Apply reconciles one inbound event against local state. Inserts for
// an id already present are discarded, so echoes of our own writes and
// duplicate deliveries never produce a second copy.
func (s *Store) Apply(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Type {
	case EventInsert:
		if s.indexOf(event.Bookmark.ID) >= 0 {
			return
		}
		s.bookmarks = append([]Bookmark{event.Bookmark}, s.bookmarks...)
	case EventUpdate:
		if i := s.indexOf(event.Bookmark.ID); i >= 0 {
			s.bookmarks[i] = event.Bookmark
		}
	case EventDelete:
		s.removeLocked(event.Bookmark.ID)
	}
}

// Add validates the input, prepends an optimistic record under a
// temporary id and issues the create. On confirmation the temporary
// record is replaced in place by the assigned row; if the realtime
// echo landed first the temporary record is dropped instead, so
// exactly one record remains. On failure the temporary record is
// removed and an error notice is surfaced. No automatic retry.
func (s *Store) Add(ctx context.Context, f Fields) error {
	if err := s.validateFields(f, true); err != nil {
		return err
	}

	s.mu.Lock()
	for i := range s.bookmarks {
		if strings.EqualFold(s.bookmarks[i].Title, f.Title) && s.bookmarks[i].Category == f.Category {
			s.mu.Unlock()
			return ErrDuplicateTitle
		}
	}
	temp := Bookmark{
		ID:        "temp-" + uuid.New().String(),
		Title:     f.Title,
		URL:       f.URL,
		Category:  f.Category,
		CreatedAt: time.Now(),
	}
	s.bookmarks = append([]Bookmark{temp}, s.bookmarks...)
	s.mu.Unlock()

	created, err := s.remote.Create(ctx, f)
	if err != nil {
		s.mu.Lock()
		s.removeLocked(temp.ID)
		s.mu.Unlock()
		s.notify(NoticeError, "Could not save bookmark")
		return errors.Wrap(err, "create bookmark")
	}

	s.mu.Lock()
	if s.indexOf(created.ID) >= 0 {
		s.removeLocked(temp.ID)
	} else if i := s.indexOf(temp.ID); i >= 0 {
		s.bookmarks[i] = created
	}
	s.mu.Unlock()

	s.notify(NoticeSuccess, "Bookmark added")
	return nil
}

// Delete removes the record immediately and issues the remote delete.
// A remote failure is logged and noticed but not rolled back; the next
// reload or inbound event corrects the divergence.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	s.removeLocked(id)
	s.mu.Unlock()

	if err := s.remote.Delete(ctx, id); err != nil {
		s.logger.Errorw("delete bookmark failed", "id", id, "error", err)
		s.notify(NoticeError, "Could not delete bookmark")
		return
	}
	s.notify(NoticeSuccess, "Bookmark deleted")
}

// DeleteSelected removes every selected record optimistically and
// issues one batch delete. A failure rolls the optimistic state back
// through a forced reload.
func (s *Store) DeleteSelected(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	for _, id := range ids {
		s.removeLocked(id)
	}
	s.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	if err := s.remote.DeleteBatch(ctx, ids); err != nil {
		s.notify(NoticeError, "Could not delete selected bookmarks")
		if lerr := s.Load(ctx); lerr != nil {
			s.logger.Errorw("rollback reload failed", "error", lerr)
		}
		return errors.Wrap(err, "delete batch")
	}

	s.notify(NoticeSuccess, "Selected bookmarks deleted")
	return nil
}

// SaveEdit applies the edit optimistically, snapshotting the prior
// record as the sole rollback mechanism, then issues the remote
// update. On failure the snapshot is restored and exactly one error
// notice is surfaced.
func (s *Store) SaveEdit(ctx context.Context, id string, f Fields) error {
	if err := s.validateFields(f, false); err != nil {
		return err
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrNotFound
	}
	snapshot := s.bookmarks[i]
	s.bookmarks[i].Title = f.Title
	s.bookmarks[i].URL = f.URL
	s.bookmarks[i].Category = f.Category
	s.mu.Unlock()

	updated, err := s.remote.Update(ctx, id, f)
	if err != nil {
		s.mu.Lock()
		if j := s.indexOf(id); j >= 0 {
			s.bookmarks[j] = snapshot
		}
		s.mu.Unlock()
		s.notify(NoticeError, "Could not save edit")
		return errors.Wrap(err, "update bookmark")
	}

	s.mu.Lock()
	if j := s.indexOf(id); j >= 0 {
		s.bookmarks[j] = updated
	}
	s.mu.Unlock()

	s.notify(NoticeSuccess, "Bookmark updated")
	return nil
}

// ToggleSelect flips the selection of a present id and reports whether
// it is now selected. Unknown ids are ignored.
func (s *Store) ToggleSelect(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		return false
	}
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
		return false
	}
	s.selected[id] = struct{}{}
	return true
}

func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = make(map[string]struct{})
}

// Selected returns the ids currently marked for bulk action.
func (s *Store) Selected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) IsSelected(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.selected[id]
	return ok
}

// Bookmarks returns a copy of the current list in store order.
func (s *Store) Bookmarks() []Bookmark {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Bookmark, len(s.bookmarks))
	copy(out, s.bookmarks)
	return out
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.bookmarks)
}

// Notices delivers transient notifications for the view to render and
// auto-dismiss after NoticeDismissAfter.
func (s *Store) Notices() <-chan Notice {
	return s.notices
}

func (s *Store) validateFields(f Fields, checkTitle bool) error {
	if checkTitle && strings.TrimSpace(f.Title) == "" {
		return ErrTitleRequired
	}
	if strings.TrimSpace(f.URL) == "" {
		return ErrURLRequired
	}
	if err := s.validate.Var(f.URL, "url"); err != nil {
		return ErrInvalidURL
	}
	return nil
}

// removeLocked drops the id from the list and the selection set in the
// same step, keeping the selection a subset of the list. Callers hold
// the lock.
func (s *Store) removeLocked(id string) {
	if i := s.indexOf(id); i >= 0 {
		s.bookmarks = append(s.bookmarks[:i], s.bookmarks[i+1:]...)
	}
	delete(s.selected, id)
}

func (s *Store) indexOf(id string) int {
	for i := range s.bookmarks {
		if s.bookmarks[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) notify(kind NoticeKind, message string) {
	select {
	case s.notices <- Notice{Kind: kind, Message: message}:
	default:
		s.logger.Warnw("dropping notice, buffer full", "message", message)
	}
}
