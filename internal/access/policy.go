// Package access decides which users and tracks a caller may see or change.
package access

import (
	"errors"

	"tapntrack/internal/model"
)

// ErrForbidden is returned when the caller's role does not reach the target.
var ErrForbidden = errors.New("forbidden")

// Caller identifies who is asking.
type Caller struct {
	ID   string
	Role model.Role
}

type Permission string

const (
	PermissionUsersCreate Permission = "users.create"
	PermissionUsersManage Permission = "users.manage"
	PermissionLogsView    Permission = "logs.view"
	PermissionLogsManage  Permission = "logs.manage"
)

// RolePermissions maps roles to what they may do. Roles not listed get nothing.
var RolePermissions = map[model.Role][]Permission{
	model.RoleAdmin: {
		PermissionUsersCreate,
		PermissionUsersManage,
		PermissionLogsView,
		PermissionLogsManage,
	},
	model.RoleTeacher: {
		// scoped to the teacher's own students
		PermissionUsersManage,
		PermissionLogsView,
		PermissionLogsManage,
	},
}

// Allowed reports whether role holds perm.
func Allowed(role model.Role, perm Permission) bool {
	for _, p := range RolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// UserScope returns the predicate selecting users visible to c: admins see
// everyone except themselves, teachers see their own students, everyone
// else sees nobody.
func UserScope(c Caller) func(model.User) bool {
	switch c.Role {
	case model.RoleAdmin:
		return func(u model.User) bool { return u.UID != c.ID }
	case model.RoleTeacher:
		return func(u model.User) bool { return u.TeacherID != nil && *u.TeacherID == c.ID }
	default:
		return func(model.User) bool { return false }
	}
}

// TrackScope returns the predicate selecting tracks visible to c.
func TrackScope(c Caller) func(model.Track) bool {
	switch c.Role {
	case model.RoleAdmin:
		return func(model.Track) bool { return true }
	case model.RoleTeacher:
		return func(t model.Track) bool { return t.TeacherID == c.ID }
	default:
		return func(model.Track) bool { return false }
	}
}

// CanView reports whether c may see target.
func CanView(c Caller, target model.User) bool {
	return UserScope(c)(target)
}

// CanViewTrack reports whether c may see t.
func CanViewTrack(c Caller, t model.Track) bool {
	return TrackScope(c)(t)
}

// CanManageUser combines the manage permission with visibility.
func CanManageUser(c Caller, target model.User) bool {
	return Allowed(c.Role, PermissionUsersManage) && CanView(c, target)
}

// CanManageTrack combines the manage permission with visibility.
func CanManageTrack(c Caller, t model.Track) bool {
	return Allowed(c.Role, PermissionLogsManage) && CanViewTrack(c, t)
}
