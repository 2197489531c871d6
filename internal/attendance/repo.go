package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tapntrack/internal/model"
	"tapntrack/internal/store"
)

// Repository gives typed access to the users, tracks and device
// collections of a record store.
type Repository struct {
	rs store.RecordStore
}

// NewRepository creates a repo.
func NewRepository(rs store.RecordStore) *Repository {
	return &Repository{rs: rs}
}

// Store exposes the underlying record store.
func (r *Repository) Store() store.RecordStore { return r.rs }

// -------- Users --------

// GetUser loads one user. A missing user yields store.ErrNotFound.
func (r *Repository) GetUser(ctx context.Context, uid string) (model.User, error) {
	doc, err := r.rs.Get(ctx, store.Users, uid)
	if err != nil {
		return model.User{}, fmt.Errorf("get user %s: %w", uid, err)
	}
	u := model.UserFromDocument(doc)
	if u.UID == "" {
		u.UID = uid
	}
	return u, nil
}

// ListUsers returns a snapshot of every user.
func (r *Repository) ListUsers(ctx context.Context) ([]model.User, error) {
	docs, err := r.rs.GetAll(ctx, store.Users)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return decodeUsers(docs), nil
}

// UsersByRole returns every user holding role.
func (r *Repository) UsersByRole(ctx context.Context, role model.Role) ([]model.User, error) {
	docs, err := r.rs.QueryByField(ctx, store.Users, "role", string(role))
	if err != nil {
		return nil, fmt.Errorf("users by role: %w", err)
	}
	return decodeUsers(docs), nil
}

// UserByEmail finds the account registered under email.
func (r *Repository) UserByEmail(ctx context.Context, email string) (model.User, error) {
	docs, err := r.rs.QueryByField(ctx, store.Users, "email", email)
	if err != nil {
		return model.User{}, fmt.Errorf("user by email: %w", err)
	}
	if len(docs) == 0 {
		return model.User{}, store.ErrNotFound
	}
	return model.UserFromDocument(docs[0]), nil
}

// UserByTag resolves an RFID tag to its user.
func (r *Repository) UserByTag(ctx context.Context, tag string) (model.User, error) {
	if tag == "" {
		return model.User{}, ErrUnknownTag
	}
	docs, err := r.rs.QueryByField(ctx, store.Users, "rfidTag", tag)
	if err != nil {
		return model.User{}, fmt.Errorf("user by tag: %w", err)
	}
	if len(docs) == 0 {
		return model.User{}, ErrUnknownTag
	}
	return model.UserFromDocument(docs[0]), nil
}

// SaveUser writes the full user document.
func (r *Repository) SaveUser(ctx context.Context, u model.User) error {
	if err := r.rs.Set(ctx, store.Users, u.UID, u.Document()); err != nil {
		return fmt.Errorf("save user %s: %w", u.UID, err)
	}
	return nil
}

// UpdateUser merges fields into an existing user.
func (r *Repository) UpdateUser(ctx context.Context, uid string, fields model.Document) error {
	if err := r.rs.UpdateFields(ctx, store.Users, uid, fields); err != nil {
		return fmt.Errorf("update user %s: %w", uid, err)
	}
	return nil
}

// DeleteUser removes the user document.
func (r *Repository) DeleteUser(ctx context.Context, uid string) error {
	if err := r.rs.Remove(ctx, store.Users, uid); err != nil {
		return fmt.Errorf("delete user %s: %w", uid, err)
	}
	return nil
}

// SetAttendanceRate caches a computed rate on the user record.
func (r *Repository) SetAttendanceRate(ctx context.Context, uid string, rate float64) error {
	return r.UpdateUser(ctx, uid, model.Document{"attendanceRate": rate})
}

// RecordLogin stamps a successful sign-in.
func (r *Repository) RecordLogin(ctx context.Context, u model.User, at time.Time) error {
	return r.UpdateUser(ctx, u.UID, model.Document{
		"lastLoginTime": at.UnixMilli(),
		"loginCount":    u.LoginCount + 1,
	})
}

func decodeUsers(docs []model.Document) []model.User {
	out := make([]model.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.UserFromDocument(d))
	}
	return out
}

// -------- Tracks --------

// GetTrack loads one track.
func (r *Repository) GetTrack(ctx context.Context, id string) (model.Track, error) {
	doc, err := r.rs.Get(ctx, store.Tracks, id)
	if err != nil {
		return model.Track{}, fmt.Errorf("get track %s: %w", id, err)
	}
	t := model.TrackFromDocument(doc)
	if t.ID == "" {
		t.ID = id
	}
	return t, nil
}

// ListTracks returns a snapshot of every track.
func (r *Repository) ListTracks(ctx context.Context) ([]model.Track, error) {
	docs, err := r.rs.GetAll(ctx, store.Tracks)
	if err != nil {
		return nil, fmt.Errorf("list tracks: %w", err)
	}
	return decodeTracks(docs), nil
}

// TracksByUser returns every track recorded for uid.
func (r *Repository) TracksByUser(ctx context.Context, uid string) ([]model.Track, error) {
	docs, err := r.rs.QueryByField(ctx, store.Tracks, "userId", uid)
	if err != nil {
		return nil, fmt.Errorf("tracks by user %s: %w", uid, err)
	}
	return decodeTracks(docs), nil
}

// SaveTrack writes the full track document.
func (r *Repository) SaveTrack(ctx context.Context, t model.Track) error {
	if err := r.rs.Set(ctx, store.Tracks, t.ID, t.Document()); err != nil {
		return fmt.Errorf("save track %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTrack merges fields into an existing track.
func (r *Repository) UpdateTrack(ctx context.Context, id string, fields model.Document) error {
	if err := r.rs.UpdateFields(ctx, store.Tracks, id, fields); err != nil {
		return fmt.Errorf("update track %s: %w", id, err)
	}
	return nil
}

// DeleteTrack removes a track.
func (r *Repository) DeleteTrack(ctx context.Context, id string) error {
	if err := r.rs.Remove(ctx, store.Tracks, id); err != nil {
		return fmt.Errorf("delete track %s: %w", id, err)
	}
	return nil
}

func decodeTracks(docs []model.Document) []model.Track {
	out := make([]model.Track, 0, len(docs))
	for _, d := range docs {
		out = append(out, model.TrackFromDocument(d))
	}
	return out
}

// -------- Devices --------

// UpsertDevice ensures a device record exists.
func (r *Repository) UpsertDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return errors.New("device id required")
	}
	_, err := r.rs.Get(ctx, store.Devices, deviceID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return r.rs.Set(ctx, store.Devices, deviceID, model.Document{
		"deviceId":     deviceID,
		"registeredAt": model.NowMillis(),
	})
}

// SaveRefreshToken stores a refresh token id for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, tokenID, subject string, expiresAt time.Time) error {
	return r.rs.Set(ctx, store.RefreshTokens, tokenID, model.Document{
		"subject":   subject,
		"expiresAt": expiresAt.UnixMilli(),
	})
}

// ConsumeRefreshToken removes tokenID and reports whether it was live.
// The removal is atomic, so concurrent refreshes with one token yield a
// single winner.
func (r *Repository) ConsumeRefreshToken(ctx context.Context, tokenID string) (bool, error) {
	doc, err := r.rs.Take(ctx, store.RefreshTokens, tokenID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume refresh token: %w", err)
	}
	return doc.Int64("expiresAt", 0) >= model.NowMillis(), nil
}
