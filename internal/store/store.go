// Package store persists license records. Every operation touches one row,
// addressed by id, and is atomic for that row.
package store

import (
	"context"
	"errors"

	"license-server/internal/model"
)

var (
	ErrNotFound     = errors.New("license not found")
	ErrDuplicateKey = errors.New("license id already exists")
)

type Store interface {
	// Insert persists a new record; ErrDuplicateKey if the id exists.
	Insert(ctx context.Context, license *model.License) error
	// Lookup returns the record or ErrNotFound.
	Lookup(ctx context.Context, id string) (*model.License, error)
	// Revoke latches revoked=true and returns the number of matched rows
	// (0 or 1). Revoking twice still reports 1.
	Revoke(ctx context.Context, id string) (int64, error)
	// TouchLastSeen raises last_seen to ts. Missing rows are ignored and
	// last_seen never moves backwards.
	TouchLastSeen(ctx context.Context, id string, ts int64) error
}

const (
	expiringWindow = 30 * 86400
	recentWindow   = 86400
)

// Reporter pages and aggregates records for operators.
type Reporter interface {
	// List pages through records, newest first. page starts at 1.
	List(ctx context.Context, page, pageSize int) ([]model.License, int64, error)
	// Statistics counts records by lifecycle state at now (unix seconds).
	Statistics(ctx context.Context, now int64) (*model.LicenseStatistics, error)
}
