package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	IsInitialized(ctx context.Context) (bool, error)

	// Entry model related methods.
	CreateEntry(ctx context.Context, create *Entry) (*Entry, error)
	ListEntries(ctx context.Context, find *FindEntry) ([]*Entry, error)
	UpdateEntry(ctx context.Context, update *UpdateEntry) error
	DeleteEntry(ctx context.Context, delete *DeleteEntry) error

	// SearchEntriesByVector returns the eligible entries nearest to the given vector.
	// Drivers without a vector index return ErrVectorSearchUnsupported.
	SearchEntriesByVector(ctx context.Context, opts *VectorSearchOptions) ([]*Entry, error)

	// SystemSetting model related methods.
	UpsertSystemSetting(ctx context.Context, upsert *SystemSetting) (*SystemSetting, error)
	ListSystemSettings(ctx context.Context, find *FindSystemSetting) ([]*SystemSetting, error)
}
