// Package store provides the persistence backends the console can run on
// besides Postgres.
package store

import (
	"context"

	"github.com/sells-group/discovery-console/internal/discovery"
	"github.com/sells-group/discovery-console/internal/model"
)

// Store is a complete discovery backend: catalog, sessions, results and
// research-space attachments, plus lifecycle.
type Store interface {
	discovery.CatalogProvider
	discovery.SessionStore
	discovery.ResultStore
	discovery.SpaceAttacher

	ImportCatalog(ctx context.Context, entries []model.CatalogEntry) (int64, error)
	Migrate(ctx context.Context) error
	Close() error
}
