package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Kwazak/umnfestival2026-sub004/internal/config"
)

func TestOpenSharesWriterWithoutReplica(t *testing.T) {
	conns, err := Open(config.Database{Driver: "sqlite", WriterDSN: "file::memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	assert.Same(t, conns.Writer, conns.Reader)
	assert.NoError(t, conns.Ping(context.Background()))
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open(config.Database{Driver: "oracle", WriterDSN: "x"})
	assert.Error(t, err)

	_, err = Open(config.Database{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestSlowQueryHook(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	conns, err := Open(config.Database{Driver: "sqlite", WriterDSN: "file::memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })

	// A zero threshold reports every statement as slow.
	conns.AddQueryHook(NewSlowQueryHook(0, zap.New(core)))

	ctx := context.Background()
	var one int
	require.NoError(t, conns.Writer.NewSelect().ColumnExpr("1").Scan(ctx, &one))
	require.Equal(t, 1, logs.FilterMessage("slow query").Len())

	_, err = conns.Writer.ExecContext(ctx, "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.Equal(t, 1, logs.FilterMessage("query failed").Len())
}

func TestSlowQueryHookIgnoresFastQueries(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	conns, err := Open(config.Database{Driver: "sqlite", WriterDSN: "file::memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conns.Close() })
	conns.AddQueryHook(NewSlowQueryHook(time.Hour, zap.New(core)))

	var one int
	require.NoError(t, conns.Writer.NewSelect().ColumnExpr("1").Scan(context.Background(), &one))
	assert.Zero(t, logs.Len())
}
