package attendance

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"tapntrack/internal/access"
	"tapntrack/internal/model"
	"tapntrack/internal/query"
	"tapntrack/internal/stats"
)

// ListUsers loads every user and derives the caller's roster view.
func (s *Service) ListUsers(ctx context.Context, caller access.Caller, f query.UserFilter) ([]model.User, error) {
	defer observe("users", time.Now())
	all, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	return query.Users(all, f, caller), nil
}

// UserDetail is a user with their statistics and latest records.
type UserDetail struct {
	User    model.User    `json:"user"`
	Stats   stats.Summary `json:"stats"`
	Records []model.Track `json:"records"`
}

// GetUser returns a user the caller may see, with statistics computed
// from the user's tracks. The computed rate is written back to the user
// record.
func (s *Service) GetUser(ctx context.Context, caller access.Caller, uid string) (UserDetail, error) {
	u, err := s.repo.GetUser(ctx, uid)
	if err != nil {
		return UserDetail{}, err
	}
	if !access.CanView(caller, u) {
		return UserDetail{}, access.ErrForbidden
	}
	tracks, err := s.repo.TracksByUser(ctx, uid)
	if err != nil {
		return UserDetail{}, err
	}
	sum := stats.Summarize(uid, tracks)
	s.stats.Refresh(ctx, sum)
	if sum.TotalAttendance > 0 {
		u.AttendanceRate = sum.AttendanceRate
	}
	return UserDetail{
		User:    u,
		Stats:   sum,
		Records: stats.Recent(tracks, -1),
	}, nil
}

// Teachers lists active teachers by name, for assigning students.
func (s *Service) Teachers(ctx context.Context) ([]model.User, error) {
	all, err := s.repo.UsersByRole(ctx, model.RoleTeacher)
	if err != nil {
		return nil, err
	}
	out := slices.DeleteFunc(all, func(u model.User) bool { return !u.IsActive })
	slices.SortStableFunc(out, func(a, b model.User) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// UserPatch lists the editable user fields; nil leaves a field alone.
type UserPatch struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"isActive"`
}

// UpdateUser applies p to a user the caller manages.
func (s *Service) UpdateUser(ctx context.Context, caller access.Caller, uid string, p UserPatch) (model.User, error) {
	fields := model.Document{}
	var name string
	if p.Name != nil {
		n, err := model.CleanName(*p.Name)
		if err != nil {
			return model.User{}, err
		}
		name = n
		fields["name"] = n
	}
	if p.IsActive != nil {
		fields["isActive"] = *p.IsActive
	}

	u, err := s.repo.GetUser(ctx, uid)
	if err != nil {
		return model.User{}, err
	}
	if !access.CanManageUser(caller, u) {
		return model.User{}, access.ErrForbidden
	}
	if len(fields) == 0 {
		return u, nil
	}
	if err := s.repo.UpdateUser(ctx, uid, fields); err != nil {
		return model.User{}, err
	}
	if p.Name != nil {
		u.Name = name
	}
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	return u, nil
}

// DeleteUser hard-deletes a user the caller manages. Their tracks stay.
func (s *Service) DeleteUser(ctx context.Context, caller access.Caller, uid string) error {
	u, err := s.repo.GetUser(ctx, uid)
	if err != nil {
		return err
	}
	if !access.CanManageUser(caller, u) {
		return access.ErrForbidden
	}
	return s.repo.DeleteUser(ctx, uid)
}

// Bulk user actions.
const (
	ActionDelete     = "delete"
	ActionActivate   = "activate"
	ActionDeactivate = "deactivate"
)

// BulkUsers applies action to every listed user independently. The
// caller's roster view f is reloaded only when all items succeed.
func (s *Service) BulkUsers(ctx context.Context, caller access.Caller, action string, ids []string, f query.UserFilter) (BulkResult[model.User], error) {
	var apply func(ctx context.Context, uid string) error
	switch action {
	case ActionDelete:
		apply = func(ctx context.Context, uid string) error { return s.repo.DeleteUser(ctx, uid) }
	case ActionActivate, ActionDeactivate:
		active := action == ActionActivate
		apply = func(ctx context.Context, uid string) error {
			return s.repo.UpdateUser(ctx, uid, model.Document{"isActive": active})
		}
	default:
		return BulkResult[model.User]{}, model.Invalid("action", "unknown bulk action %q", action)
	}

	op := func(ctx context.Context, uid string) error {
		u, err := s.repo.GetUser(ctx, uid)
		if err != nil {
			return err
		}
		if !access.CanManageUser(caller, u) {
			return fmt.Errorf("user %s: %w", uid, access.ErrForbidden)
		}
		return apply(ctx, uid)
	}

	var res BulkResult[model.User]
	res.Report = s.bulk.Run(ctx, action+"_users", ids, op, func(ctx context.Context) {
		view, err := s.ListUsers(ctx, caller, f)
		if err != nil {
			return
		}
		res.View = view
	})
	return res, nil
}

// Dashboard is the landing view: today's counts, headline numbers and the
// latest taps, all within the caller's scope.
type Dashboard struct {
	Today  stats.DayCounts `json:"today"`
	Quick  stats.Quick     `json:"quick"`
	Recent []model.Track   `json:"recent"`
}

// Dashboard builds the landing view for caller.
func (s *Service) Dashboard(ctx context.Context, caller access.Caller) (Dashboard, error) {
	defer observe("dashboard", time.Now())
	users, err := s.repo.ListUsers(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	tracks, err := s.repo.ListTracks(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	visibleUsers := query.Users(users, query.UserFilter{}, caller)
	visibleTracks := query.Logs(tracks, query.LogFilter{}, caller)

	now := s.now()
	return Dashboard{
		Today:  stats.Today(visibleTracks, model.DateOf(now.UnixMilli())),
		Quick:  stats.QuickStats(visibleUsers, visibleTracks, query.WeekStart(now)),
		Recent: stats.Recent(visibleTracks, 5),
	}, nil
}

// UpdateProfile changes the caller's own display name.
func (s *Service) UpdateProfile(ctx context.Context, uid, name string) (model.User, error) {
	name, err := model.CleanName(name)
	if err != nil {
		return model.User{}, err
	}
	u, err := s.repo.GetUser(ctx, uid)
	if err != nil {
		return model.User{}, err
	}
	if err := s.repo.UpdateUser(ctx, uid, model.Document{"name": name}); err != nil {
		return model.User{}, err
	}
	u.Name = name
	return u, nil
}
