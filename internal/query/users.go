package query

import (
	"cmp"
	"slices"
	"strings"

	"tapntrack/internal/access"
	"tapntrack/internal/model"
)

// UserSort selects the ordering of a roster view.
type UserSort string

const (
	SortNameAsc       UserSort = "name_asc"
	SortCreatedAtDesc UserSort = "createdAt_desc"
	SortLastLoginDesc UserSort = "lastLogin_desc"
)

// ParseUserSort accepts canonical and legacy names; default is by name.
func ParseUserSort(s string) UserSort {
	switch s {
	case string(SortCreatedAtDesc), "createdAt":
		return SortCreatedAtDesc
	case string(SortLastLoginDesc), "lastLogin":
		return SortLastLoginDesc
	}
	return SortNameAsc
}

// UserFilter holds the roster view parameters.
type UserFilter struct {
	Search string
	Active *bool
	SortBy UserSort
}

// Users applies search, the active flag and the caller's scope, then sorts.
// Callers outside ADMIN/TEACHER always get an empty view.
func Users(all []model.User, f UserFilter, caller access.Caller) []model.User {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	scope := access.UserScope(caller)

	out := make([]model.User, 0, len(all))
	for _, u := range all {
		if search != "" &&
			!strings.Contains(strings.ToLower(u.Name), search) &&
			!strings.Contains(strings.ToLower(u.Email), search) {
			continue
		}
		if f.Active != nil && u.IsActive != *f.Active {
			continue
		}
		if !scope(u) {
			continue
		}
		out = append(out, u)
	}

	var less func(a, b model.User) int
	switch ParseUserSort(string(f.SortBy)) {
	case SortCreatedAtDesc:
		less = func(a, b model.User) int { return cmp.Compare(b.CreatedAt, a.CreatedAt) }
	case SortLastLoginDesc:
		less = func(a, b model.User) int { return cmp.Compare(b.LastLoginTime, a.LastLoginTime) }
	default:
		less = func(a, b model.User) int { return strings.Compare(a.Name, b.Name) }
	}
	slices.SortStableFunc(out, less)
	return out
}
