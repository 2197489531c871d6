// Package store is the record store client: named collections of
// documents addressed by id, with equality queries on a single field.
package store

import (
	"context"
	"errors"

	"tapntrack/internal/model"
)

// Collections.
const (
	Users         = "users"
	Tracks        = "tracks"
	Credentials   = "credentials"
	Devices       = "devices"
	RefreshTokens = "refresh_tokens"
	ResetTokens   = "reset_tokens"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("store: document not found")

// RecordStore is implemented by every backend. GetAll returns a snapshot in
// the backend's iteration order. Returned documents are copies.
type RecordStore interface {
	Get(ctx context.Context, collection, id string) (model.Document, error)
	GetAll(ctx context.Context, collection string) ([]model.Document, error)
	QueryByField(ctx context.Context, collection, field string, value any) ([]model.Document, error)
	Set(ctx context.Context, collection, id string, doc model.Document) error
	UpdateFields(ctx context.Context, collection, id string, fields model.Document) error
	Remove(ctx context.Context, collection, id string) error
	// Take removes a document and returns it in one atomic step. Of two
	// concurrent Takes of the same id only one gets the document; the
	// other sees ErrNotFound.
	Take(ctx context.Context, collection, id string) (model.Document, error)
}

// Backend is a RecordStore holding resources that must be released.
type Backend interface {
	RecordStore
	Close() error
}

// merge applies fields over doc in place.
func merge(doc, fields model.Document) model.Document {
	if doc == nil {
		doc = model.Document{}
	}
	for k, v := range fields {
		doc[k] = v
	}
	return doc
}
