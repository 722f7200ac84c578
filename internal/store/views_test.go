package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter(t *testing.T) {
	list := []Bookmark{
		{ID: "1", Title: "Wikipedia", URL: "https://wikipedia.org"},
		{ID: "2", Title: "News", URL: "https://news.example.com"},
	}

	t.Run("matches title substring case-insensitively", func(t *testing.T) {
		got := Filter(list, "wiki")
		require.Len(t, got, 1)
		assert.Equal(t, "Wikipedia", got[0].Title)
	})

	t.Run("matches url", func(t *testing.T) {
		got := Filter(list, "news.example")
		require.Len(t, got, 1)
		assert.Equal(t, "News", got[0].Title)
	})

	t.Run("matches category", func(t *testing.T) {
		tagged := append(list, Bookmark{ID: "3", Title: "Jira", URL: "https://jira.example.com", Category: "Work"})
		got := Filter(tagged, "work")
		require.Len(t, got, 1)
		assert.Equal(t, "Jira", got[0].Title)
	})

	t.Run("empty query matches all", func(t *testing.T) {
		assert.Len(t, Filter(list, ""), 2)
	})

	t.Run("input untouched", func(t *testing.T) {
		Filter(list, "wiki")
		assert.Equal(t, "Wikipedia", list[0].Title)
		assert.Equal(t, "News", list[1].Title)
	})
}

func TestSortedDoesNotChangeMembership(t *testing.T) {
	list := []Bookmark{
		{ID: "1", Title: "Wikipedia", URL: "https://wikipedia.org", CreatedAt: time.Unix(100, 0)},
		{ID: "2", Title: "News", URL: "https://news.example.com", CreatedAt: time.Unix(200, 0)},
		{ID: "3", Title: "archive", URL: "https://archive.org", CreatedAt: time.Unix(300, 0)},
	}
	filtered := Filter(list, "")

	for _, order := range []SortOrder{SortCreatedDesc, SortCreatedAsc, SortTitleAsc, SortTitleDesc} {
		got := Sorted(filtered, order)
		assert.ElementsMatch(t, filtered, got)
	}
}

func TestSortedOrders(t *testing.T) {
	list := []Bookmark{
		{ID: "1", Title: "beta", CreatedAt: time.Unix(100, 0)},
		{ID: "2", Title: "Alpha", CreatedAt: time.Unix(300, 0)},
		{ID: "3", Title: "gamma", CreatedAt: time.Unix(200, 0)},
	}

	assert.Equal(t, []string{"2", "3", "1"}, ids(Sorted(list, SortCreatedDesc)))
	assert.Equal(t, []string{"1", "3", "2"}, ids(Sorted(list, SortCreatedAsc)))
	assert.Equal(t, []string{"2", "1", "3"}, ids(Sorted(list, SortTitleAsc)))
	assert.Equal(t, []string{"3", "1", "2"}, ids(Sorted(list, SortTitleDesc)))

	// Sorting returns a copy, store order stays put.
	assert.Equal(t, []string{"1", "2", "3"}, ids(list))
}

func TestBuckets(t *testing.T) {
	list := []Bookmark{
		{ID: "1", Title: "A"},
		{ID: "2", Title: "B", Category: "Work"},
		{ID: "3", Title: "C"},
	}

	buckets := Buckets(list)
	require.Len(t, buckets, 2)
	assert.Equal(t, UncategorizedBucket, buckets[0].Name)
	assert.Len(t, buckets[0].Bookmarks, 2)
	assert.Equal(t, "Work", buckets[1].Name)
	assert.Len(t, buckets[1].Bookmarks, 1)
}

func TestBucketsOrderedByName(t *testing.T) {
	list := []Bookmark{
		{ID: "1", Title: "A", Category: "zeta"},
		{ID: "2", Title: "B", Category: "alpha"},
		{ID: "3", Title: "C", Category: "Mid"},
	}

	buckets := Buckets(list)
	names := make([]string, len(buckets))
	for i := range buckets {
		names[i] = buckets[i].Name
	}
	assert.Equal(t, []string{"Mid", "alpha", "zeta"}, names)
}
