package plugins

import (
	"database/sql"

	"github.com/kilianp07/flexplan/config"
	"github.com/kilianp07/flexplan/core/planner"
	"github.com/kilianp07/flexplan/core/repository"
	"github.com/kilianp07/flexplan/infra/store"
)

// Backend is the persistence selected by the store section.
type Backend struct {
	Repo repository.Repository
	// History is nil when the backend keeps no price history.
	History planner.PriceHistory
	// DB is the shared database handle of SQL backends.
	DB *sql.DB
}

// Close releases the database handle.
func (b *Backend) Close() error {
	if b == nil || b.DB == nil {
		return nil
	}
	return b.DB.Close()
}

// StoreFactory builds a persistence backend from raw config.
type StoreFactory func(name string, conf map[string]any) (*Backend, error)

// ArchiveFactory builds a plan archive. A nil archive disables archiving.
type ArchiveFactory func(cfg config.ArchiveConfig, b *Backend) (store.Archive, error)

var (
	Stores   = map[string]StoreFactory{}
	Archives = map[string]ArchiveFactory{}
)

func RegisterStore(name string, f StoreFactory)     { Stores[name] = f }
func RegisterArchive(name string, f ArchiveFactory) { Archives[name] = f }
