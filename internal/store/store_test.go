package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRemote struct {
	mu sync.Mutex

	listResult []Bookmark
	listErr    error

	createResult Bookmark
	createErr    error
	// createHook runs before Create returns, to simulate the realtime
	// echo landing ahead of the confirmation.
	createHook func()

	updateResult Bookmark
	updateErr    error

	deleteErr      error
	deleteBatchErr error

	listCalls   int
	deletedIDs  []string
	deletedSets [][]string
}

func (f *fakeRemote) List(ctx context.Context) ([]Bookmark, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Bookmark, len(f.listResult))
	copy(out, f.listResult)
	return out, nil
}

func (f *fakeRemote) Create(ctx context.Context, fields Fields) (Bookmark, error) {
	if f.createHook != nil {
		f.createHook()
	}
	if f.createErr != nil {
		return Bookmark{}, f.createErr
	}
	return f.createResult, nil
}

func (f *fakeRemote) Update(ctx context.Context, id string, fields Fields) (Bookmark, error) {
	if f.updateErr != nil {
		return Bookmark{}, f.updateErr
	}
	return f.updateResult, nil
}

func (f *fakeRemote) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedIDs = append(f.deletedIDs, id)
	return f.deleteErr
}

func (f *fakeRemote) DeleteBatch(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedSets = append(f.deletedSets, ids)
	return f.deleteBatchErr
}

func newTestStore(remote *fakeRemote) *Store {
	return New(remote, 0, zap.NewNop().Sugar())
}

func drainNotices(s *Store) []Notice {
	notices := make([]Notice, 0)
	for {
		select {
		case n := <-s.Notices():
			notices = append(notices, n)
		default:
			return notices
		}
	}
}

func seed(s *Store, bookmarks ...Bookmark) {
	for i := len(bookmarks) - 1; i >= 0; i-- {
		s.Apply(Event{Type: EventInsert, Bookmark: bookmarks[i]})
	}
}

func ids(bookmarks []Bookmark) []string {
	out := make([]string, len(bookmarks))
	for i := range bookmarks {
		out[i] = bookmarks[i].ID
	}
	return out
}

func assertSelectionSubset(t *testing.T, s *Store) {
	t.Helper()
	present := make(map[string]struct{})
	for _, id := range ids(s.Bookmarks()) {
		present[id] = struct{}{}
	}
	for _, id := range s.Selected() {
		_, ok := present[id]
		assert.True(t, ok, "selected id %q not present in list", id)
	}
}

func TestAddReplacesTempWithAssignedRow(t *testing.T) {
	remote := &fakeRemote{
		createResult: Bookmark{ID: "srv-1", Title: "Wikipedia", URL: "https://wikipedia.org"},
	}
	s := newTestStore(remote)

	err := s.Add(context.Background(), Fields{Title: "Wikipedia", URL: "https://wikipedia.org"})
	require.NoError(t, err)

	got := s.Bookmarks()
	require.Len(t, got, 1)
	assert.Equal(t, "srv-1", got[0].ID)

	// The echo arriving afterwards must not insert a second copy.
	s.Apply(Event{Type: EventInsert, Bookmark: remote.createResult})
	assert.Equal(t, 1, s.Len())
}

func TestAddEchoBeforeConfirmation(t *testing.T) {
	remote := &fakeRemote{
		createResult: Bookmark{ID: "srv-1", Title: "Wikipedia", URL: "https://wikipedia.org"},
	}
	s := newTestStore(remote)
	remote.createHook = func() {
		s.Apply(Event{Type: EventInsert, Bookmark: remote.createResult})
	}

	err := s.Add(context.Background(), Fields{Title: "Wikipedia", URL: "https://wikipedia.org"})
	require.NoError(t, err)

	got := s.Bookmarks()
	require.Len(t, got, 1)
	assert.Equal(t, "srv-1", got[0].ID)
}

func TestAddValidation(t *testing.T) {
	s := newTestStore(&fakeRemote{})

	t.Run("empty title", func(t *testing.T) {
		err := s.Add(context.Background(), Fields{URL: "https://a.example.com"})
		assert.Equal(t, ErrTitleRequired, err)
	})

	t.Run("empty url", func(t *testing.T) {
		err := s.Add(context.Background(), Fields{Title: "a"})
		assert.Equal(t, ErrURLRequired, err)
	})

	t.Run("malformed url", func(t *testing.T) {
		err := s.Add(context.Background(), Fields{Title: "a", URL: "not a url"})
		assert.Equal(t, ErrInvalidURL, err)
	})

	t.Run("nothing inserted", func(t *testing.T) {
		assert.Equal(t, 0, s.Len())
	})
}

func TestAddDuplicateTitleWithinCategory(t *testing.T) {
	s := newTestStore(&fakeRemote{})
	seed(s, Bookmark{ID: "1", Title: "Docs", URL: "https://docs.example.com", Category: "Work"})

	err := s.Add(context.Background(), Fields{Title: "docs", URL: "https://other.example.com", Category: "Work"})
	assert.Equal(t, ErrDuplicateTitle, err)

	// Same title in another category is fine.
	remote := &fakeRemote{createResult: Bookmark{ID: "2", Title: "Docs", URL: "https://other.example.com", Category: "Home"}}
	s2 := newTestStore(remote)
	seed(s2, Bookmark{ID: "1", Title: "Docs", URL: "https://docs.example.com", Category: "Work"})
	err = s2.Add(context.Background(), Fields{Title: "Docs", URL: "https://other.example.com", Category: "Home"})
	assert.NoError(t, err)
}

func TestAddFailureRemovesTempRecord(t *testing.T) {
	remote := &fakeRemote{createErr: errors.New("boom")}
	s := newTestStore(remote)

	err := s.Add(context.Background(), Fields{Title: "a", URL: "https://a.example.com"})
	require.Error(t, err)

	assert.Equal(t, 0, s.Len())
	notices := drainNotices(s)
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeError, notices[0].Kind)
}

func TestDeleteThenDuplicateEvents(t *testing.T) {
	remote := &fakeRemote{}
	s := newTestStore(remote)
	seed(s,
		Bookmark{ID: "x", Title: "X", URL: "https://x.example.com"},
		Bookmark{ID: "y", Title: "Y", URL: "https://y.example.com"},
	)

	s.Delete(context.Background(), "x")
	assert.Equal(t, []string{"y"}, ids(s.Bookmarks()))

	// Two echoes of the same delete are both no-ops.
	s.Apply(Event{Type: EventDelete, Bookmark: Bookmark{ID: "x"}})
	assert.Equal(t, []string{"y"}, ids(s.Bookmarks()))
	s.Apply(Event{Type: EventDelete, Bookmark: Bookmark{ID: "x"}})
	assert.Equal(t, []string{"y"}, ids(s.Bookmarks()))
}

func TestDeleteFailureIsNotRolledBack(t *testing.T) {
	remote := &fakeRemote{deleteErr: errors.New("boom")}
	s := newTestStore(remote)
	seed(s, Bookmark{ID: "x", Title: "X", URL: "https://x.example.com"})

	s.Delete(context.Background(), "x")

	assert.Equal(t, 0, s.Len())
	notices := drainNotices(s)
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeError, notices[0].Kind)
}

func TestSelectionConsistency(t *testing.T) {
	remote := &fakeRemote{}
	s := newTestStore(remote)
	seed(s,
		Bookmark{ID: "a", Title: "A", URL: "https://a.example.com"},
		Bookmark{ID: "b", Title: "B", URL: "https://b.example.com"},
		Bookmark{ID: "c", Title: "C", URL: "https://c.example.com"},
	)

	assert.False(t, s.ToggleSelect("missing"))
	assert.True(t, s.ToggleSelect("a"))
	assert.True(t, s.ToggleSelect("b"))
	assertSelectionSubset(t, s)

	// Local delete evicts from both in the same step.
	s.Delete(context.Background(), "a")
	assert.False(t, s.IsSelected("a"))
	assertSelectionSubset(t, s)

	// Inbound delete event evicts too.
	s.Apply(Event{Type: EventDelete, Bookmark: Bookmark{ID: "b"}})
	assert.False(t, s.IsSelected("b"))
	assertSelectionSubset(t, s)
	assert.Empty(t, s.Selected())
}

func TestDeleteSelected(t *testing.T) {
	remote := &fakeRemote{}
	s := newTestStore(remote)
	seed(s,
		Bookmark{ID: "a", Title: "A", URL: "https://a.example.com"},
		Bookmark{ID: "b", Title: "B", URL: "https://b.example.com"},
		Bookmark{ID: "c", Title: "C", URL: "https://c.example.com"},
	)
	s.ToggleSelect("a")
	s.ToggleSelect("c")

	err := s.DeleteSelected(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"b"}, ids(s.Bookmarks()))
	assert.Empty(t, s.Selected())
	require.Len(t, remote.deletedSets, 1)
	assert.ElementsMatch(t, []string{"a", "c"}, remote.deletedSets[0])
}

func TestDeleteSelectedRollbackViaReload(t *testing.T) {
	serverTruth := []Bookmark{
		{ID: "a", Title: "A", URL: "https://a.example.com"},
		{ID: "b", Title: "B", URL: "https://b.example.com"},
	}
	remote := &fakeRemote{
		deleteBatchErr: errors.New("boom"),
		listResult:     serverTruth,
	}
	s := newTestStore(remote)
	seed(s, serverTruth...)
	s.ToggleSelect("a")

	err := s.DeleteSelected(context.Background())
	require.Error(t, err)

	// The forced reload restored the server state.
	assert.Equal(t, []string{"a", "b"}, ids(s.Bookmarks()))
	assert.Equal(t, 1, remote.listCalls)
	notices := drainNotices(s)
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeError, notices[0].Kind)
}

func TestDeleteSelectedEmptyIsNoop(t *testing.T) {
	remote := &fakeRemote{}
	s := newTestStore(remote)

	require.NoError(t, s.DeleteSelected(context.Background()))
	assert.Empty(t, remote.deletedSets)
	assert.Empty(t, drainNotices(s))
}

func TestSaveEditRollback(t *testing.T) {
	remote := &fakeRemote{updateErr: errors.New("boom")}
	s := newTestStore(remote)
	prev := Bookmark{ID: "a", Title: "A", URL: "https://a.example.com", Category: "Work", CreatedAt: time.Unix(100, 0)}
	seed(s, prev)

	err := s.SaveEdit(context.Background(), "a", Fields{Title: "A2", URL: "https://a2.example.com", Category: "Home"})
	require.Error(t, err)

	got := s.Bookmarks()
	require.Len(t, got, 1)
	assert.Equal(t, prev, got[0])

	notices := drainNotices(s)
	require.Len(t, notices, 1)
	assert.Equal(t, NoticeError, notices[0].Kind)
}

func TestSaveEditOptimistic(t *testing.T) {
	remote := &fakeRemote{
		updateResult: Bookmark{ID: "a", Title: "A2", URL: "https://a2.example.com", Category: "Home"},
	}
	s := newTestStore(remote)
	seed(s, Bookmark{ID: "a", Title: "A", URL: "https://a.example.com"})

	err := s.SaveEdit(context.Background(), "a", Fields{Title: "A2", URL: "https://a2.example.com", Category: "Home"})
	require.NoError(t, err)

	got := s.Bookmarks()
	require.Len(t, got, 1)
	assert.Equal(t, remote.updateResult, got[0])
}

func TestSaveEditValidation(t *testing.T) {
	s := newTestStore(&fakeRemote{})
	seed(s, Bookmark{ID: "a", Title: "A", URL: "https://a.example.com"})

	err := s.SaveEdit(context.Background(), "a", Fields{Title: "A", URL: "nope"})
	assert.Equal(t, ErrInvalidURL, err)

	err = s.SaveEdit(context.Background(), "missing", Fields{Title: "A", URL: "https://a.example.com"})
	assert.Equal(t, ErrNotFound, err)
}

func TestApplyReconciliation(t *testing.T) {
	s := newTestStore(&fakeRemote{})

	t.Run("insert prepends newest first", func(t *testing.T) {
		s.Apply(Event{Type: EventInsert, Bookmark: Bookmark{ID: "1", Title: "old"}})
		s.Apply(Event{Type: EventInsert, Bookmark: Bookmark{ID: "2", Title: "new"}})
		assert.Equal(t, []string{"2", "1"}, ids(s.Bookmarks()))
	})

	t.Run("duplicate insert delivery discarded", func(t *testing.T) {
		s.Apply(Event{Type: EventInsert, Bookmark: Bookmark{ID: "2", Title: "again"}})
		assert.Equal(t, []string{"2", "1"}, ids(s.Bookmarks()))
	})

	t.Run("update overwrites local state", func(t *testing.T) {
		s.Apply(Event{Type: EventUpdate, Bookmark: Bookmark{ID: "1", Title: "renamed"}})
		got := s.Bookmarks()
		assert.Equal(t, "renamed", got[1].Title)
	})

	t.Run("update for absent id is a no-op", func(t *testing.T) {
		s.Apply(Event{Type: EventUpdate, Bookmark: Bookmark{ID: "ghost", Title: "boo"}})
		assert.Equal(t, []string{"2", "1"}, ids(s.Bookmarks()))
	})
}

func TestLoadReplacesWholesaleAndEvictsSelection(t *testing.T) {
	remote := &fakeRemote{
		listResult: []Bookmark{
			{ID: "b", Title: "B", URL: "https://b.example.com"},
		},
	}
	s := newTestStore(remote)
	seed(s,
		Bookmark{ID: "a", Title: "A", URL: "https://a.example.com"},
		Bookmark{ID: "b", Title: "stale", URL: "https://b.example.com"},
	)
	s.ToggleSelect("a")
	s.ToggleSelect("b")

	require.NoError(t, s.Load(context.Background()))

	assert.Equal(t, []string{"b"}, ids(s.Bookmarks()))
	assert.Equal(t, []string{"b"}, s.Selected())
	assertSelectionSubset(t, s)
}

func TestRunAppliesEventsUntilChannelCloses(t *testing.T) {
	s := newTestStore(&fakeRemote{})
	events := make(chan Event)

	done := make(chan error, 1)
	go func() {
		done <- s.Run(context.Background(), events)
	}()

	events <- Event{Type: EventInsert, Bookmark: Bookmark{ID: "a", Title: "A"}}
	events <- Event{Type: EventDelete, Bookmark: Bookmark{ID: "a"}}
	close(events)

	require.NoError(t, <-done)
	assert.Equal(t, 0, s.Len())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s := newTestStore(&fakeRemote{})
	events := make(chan Event)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, events)
	}()

	cancel()
	assert.Equal(t, context.Canceled, <-done)
}
