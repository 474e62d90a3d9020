package backend

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/attachvault/internal/config"
	"github.com/dharsanguruparan/attachvault/internal/storage"
)

func TestOpenFallsBackToMemory(t *testing.T) {
	b, err := Open(context.Background(), &config.Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)), false)
	require.NoError(t, err)
	defer b.Close()

	assert.IsType(t, &storage.MemoryIndex{}, b.Index)
	assert.IsType(t, &storage.MemoryBlobs{}, b.Blobs)
}

func TestOpenRequiresSharedStores(t *testing.T) {
	cfg := &config.Config{DatabaseURL: "postgres://localhost/attachvault"}
	_, err := Open(context.Background(), cfg, slog.Default(), true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required")
}
