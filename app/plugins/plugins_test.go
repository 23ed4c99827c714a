package plugins

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexplan/config"
	"github.com/kilianp07/flexplan/core/factory"
	"github.com/kilianp07/flexplan/core/model"
)

func TestMemoryBackend(t *testing.T) {
	b, err := NewBackend(factory.ModuleConfig{Type: "memory"})
	require.NoError(t, err)
	assert.NotNil(t, b.Repo)
	assert.Nil(t, b.History)
	assert.NoError(t, b.Close())

	_, err = NewArchive(config.ArchiveConfig{Backend: "sqlite"}, b)
	assert.Error(t, err)
}

func TestSQLiteBackendAndArchive(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBackend(factory.ModuleConfig{Type: "sqlite", Conf: map[string]any{"path": filepath.Join(dir, "db.sqlite")}})
	require.NoError(t, err)
	defer func() { _ = b.Close() }()
	require.NotNil(t, b.History)

	a, err := NewArchive(config.ArchiveConfig{Backend: "sqlite"}, b)
	require.NoError(t, err)
	require.NoError(t, a.Append(context.Background(), model.Plan{Revision: "r1"}))
}

func TestNoneArchive(t *testing.T) {
	a, err := NewArchive(config.ArchiveConfig{Backend: "none"}, nil)
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestUnknownModules(t *testing.T) {
	_, err := NewBackend(factory.ModuleConfig{Type: "etcd"})
	assert.Error(t, err)
	_, err = NewArchive(config.ArchiveConfig{Backend: "s3"}, nil)
	assert.Error(t, err)
}
