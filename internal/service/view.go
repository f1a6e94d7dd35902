package service

import (
	"bookmark-manager/pkg/types"
	"net/url"
	"sort"
	"strings"
)

type SortKey string

const (
	SortByDate   SortKey = "date"
	SortByTitle  SortKey = "title"
	SortByDomain SortKey = "domain"
)

type ViewMode string

const (
	ViewGrid ViewMode = "grid"
	ViewList ViewMode = "list"
)

type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// Preferences holds the display settings the derived view is computed from
type Preferences struct {
	Mode   ViewMode
	Sort   SortKey
	Search string
	Theme  Theme
}

// DefaultPreferences returns the preferences of a fresh session
func DefaultPreferences() Preferences {
	return Preferences{
		Mode:  ViewGrid,
		Sort:  SortByDate,
		Theme: ThemeLight,
	}
}

// ParseSortKey validates a user-supplied sort key
func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortByDate, SortByTitle, SortByDomain:
		return k, nil
	}
	return "", ErrInvalidSort
}

// ParseViewMode validates a user-supplied view mode
func ParseViewMode(s string) (ViewMode, error) {
	switch m := ViewMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ViewGrid, ViewList:
		return m, nil
	}
	return "", ErrInvalidView
}

// DomainOf returns the hostname of rawURL without a leading "www.".
// When rawURL cannot be parsed as an absolute URL it is returned unchanged.
func DomainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// ComputeView filters cache by prefs.Search and orders it by prefs.Sort.
// The input slice is never modified.
func ComputeView(cache []types.Bookmark, prefs Preferences) []types.Bookmark {
	query := strings.ToLower(strings.TrimSpace(prefs.Search))

	view := make([]types.Bookmark, 0, len(cache))
	for _, b := range cache {
		if query == "" || matches(b, query) {
			view = append(view, b)
		}
	}

	switch prefs.Sort {
	case SortByTitle:
		sort.SliceStable(view, func(i, j int) bool {
			return view[i].Title < view[j].Title
		})
	case SortByDomain:
		sort.SliceStable(view, func(i, j int) bool {
			return DomainOf(view[i].URL) < DomainOf(view[j].URL)
		})
	default:
		sort.SliceStable(view, func(i, j int) bool {
			return view[i].CreatedAt.After(view[j].CreatedAt)
		})
	}
	return view
}

func matches(b types.Bookmark, query string) bool {
	return strings.Contains(strings.ToLower(b.Title), query) ||
		strings.Contains(strings.ToLower(b.URL), query) ||
		strings.Contains(strings.ToLower(DomainOf(b.URL)), query)
}
