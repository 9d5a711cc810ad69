// Package testutil builds throwaway infrastructure for package tests.
package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
	"github.com/Kwazak/umnfestival2026-sub004/internal/database"
	"github.com/Kwazak/umnfestival2026-sub004/internal/migration"
)

// NewDB opens a private in-memory SQLite database with all migrations applied.
// The pool is pinned to one connection so the in-memory schema survives for
// the whole test and concurrent callers serialise on it.
func NewDB(t testing.TB) *database.Connections {
	t.Helper()

	cfg := config.Config{
		Database: config.Database{
			Driver:       "sqlite",
			WriterDSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
			MaxOpenConns: 1,
			MaxIdleConns: 1,
		},
	}

	conns, err := database.Open(cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	migrator, err := migration.New(cfg, conns, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, migrator.Up(context.Background()))

	return conns
}
