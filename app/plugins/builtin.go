package plugins

import (
	"errors"
	"fmt"

	"github.com/kilianp07/flexplan/config"
	"github.com/kilianp07/flexplan/core/factory"
	"github.com/kilianp07/flexplan/core/repository"
	"github.com/kilianp07/flexplan/infra/store"
)

func init() {
	RegisterStore("memory", func(name string, _ map[string]any) (*Backend, error) {
		return &Backend{Repo: repository.NewMemoryRepository()}, nil
	})
	RegisterStore("sqlite", func(name string, conf map[string]any) (*Backend, error) {
		c := struct {
			Path string `json:"path"`
		}{Path: "flexplan.db"}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		db, err := store.OpenSQLite(c.Path)
		if err != nil {
			return nil, err
		}
		repo, err := store.NewSQLiteRepository(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		hist, err := store.NewPriceHistory(db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Backend{Repo: repo, History: hist, DB: db}, nil
	})

	RegisterArchive("none", func(config.ArchiveConfig, *Backend) (store.Archive, error) {
		return nil, nil
	})
	RegisterArchive("jsonl", func(cfg config.ArchiveConfig, _ *Backend) (store.Archive, error) {
		return store.NewJSONLArchive(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
	})
	RegisterArchive("sqlite", func(cfg config.ArchiveConfig, b *Backend) (store.Archive, error) {
		if b == nil || b.DB == nil {
			return nil, errors.New("sqlite archive requires the sqlite store")
		}
		return store.NewSQLiteArchive(b.DB)
	})
}

// NewBackend creates the backend named by cfg.
func NewBackend(cfg factory.ModuleConfig) (*Backend, error) {
	f, ok := Stores[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unknown store type %s", cfg.Type)
	}
	return f(cfg.Type, cfg.Conf)
}

// NewArchive creates the archive named by cfg.Backend.
func NewArchive(cfg config.ArchiveConfig, b *Backend) (store.Archive, error) {
	f, ok := Archives[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown archive backend %s", cfg.Backend)
	}
	return f(cfg, b)
}
