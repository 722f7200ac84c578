package store

import (
	"sort"
	"strings"
)

// UncategorizedBucket is the display bucket for bookmarks without a
// category.
const UncategorizedBucket = "Uncategorized"

type SortOrder int

const (
	SortCreatedDesc SortOrder = iota
	SortCreatedAsc
	SortTitleAsc
	SortTitleDesc
)

// Bucket is a named display group of bookmarks sharing a category.
type Bucket struct {
	Name      string
	Bookmarks []Bookmark
}

// Filter returns the bookmarks matching the query by case-insensitive
// substring over title, url and category. An empty query matches all.
func Filter(bookmarks []Bookmark, query string) []Bookmark {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		if q == "" ||
			strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.URL), q) ||
			strings.Contains(strings.ToLower(b.Category), q) {
			out = append(out, b)
		}
	}
	return out
}

// Sorted returns a new slice in the requested order, leaving the input
// untouched. Ties keep their relative order.
func Sorted(bookmarks []Bookmark, order SortOrder) []Bookmark {
	out := make([]Bookmark, len(bookmarks))
	copy(out, bookmarks)

	switch order {
	case SortCreatedAsc:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	case SortTitleAsc:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
		})
	case SortTitleDesc:
		sort.SliceStable(out, func(i, j int) bool {
			return strings.ToLower(out[i].Title) > strings.ToLower(out[j].Title)
		})
	default:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out
}

// Buckets groups bookmarks by category, empty falling back to
// UncategorizedBucket, with bucket names in ascending lexical order.
func Buckets(bookmarks []Bookmark) []Bucket {
	byName := make(map[string][]Bookmark)
	for _, b := range bookmarks {
		name := b.Category
		if name == "" {
			name = UncategorizedBucket
		}
		byName[name] = append(byName[name], b)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Bucket, len(names))
	for i, name := range names {
		out[i] = Bucket{Name: name, Bookmarks: byName[name]}
	}
	return out
}
