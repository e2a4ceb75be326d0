package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certflow/internal/certification/ports"
	"certflow/internal/certification/store/memory"
	id "certflow/pkg/domain"
)

const sampleCatalog = `{
  "competencies": [
    {"id": "Welding", "name": "TIG welding", "required_kinds": ["ID", "cv"], "duration": "720h", "validity": "8760h"}
  ],
  "evaluators": [
    {"user_id": "6f1c2a8e-3b7d-4c1e-9a55-2f0d7c9e4b11", "name": "Ada", "capabilities": ["welding"], "capacity": 3}
  ],
  "managers": ["0b7e3c52-9d41-4f6a-8c2e-5a1d9f3e7b20"]
}`

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadCatalogIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	path := writeCatalog(t, sampleCatalog)

	require.NoError(t, loadCatalog(ctx, store, path))
	evaluatorUser, err := id.ParseUserID("6f1c2a8e-3b7d-4c1e-9a55-2f0d7c9e4b11")
	require.NoError(t, err)
	first, err := store.FindEvaluatorByUser(ctx, evaluatorUser)
	require.NoError(t, err)

	require.NoError(t, loadCatalog(ctx, store, path))
	second, err := store.FindEvaluatorByUser(ctx, evaluatorUser)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.Capacity)

	comp, err := store.GetCompetency(ctx, "welding")
	require.NoError(t, err)
	assert.Equal(t, []string{"cv", "id"}, comp.RequiredKinds)
	assert.Equal(t, 720*time.Hour, comp.Duration)
	assert.Equal(t, 8760*time.Hour, comp.ValidityPeriod)

	manager, err := id.ParseUserID("0b7e3c52-9d41-4f6a-8c2e-5a1d9f3e7b20")
	require.NoError(t, err)
	ok, err := store.HasCapability(ctx, manager, ports.CapabilityManageCandidates)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLoadCatalogRejectsBadDurations(t *testing.T) {
	path := writeCatalog(t, `{"competencies": [{"id": "x", "name": "X", "validity": "one year"}]}`)
	err := loadCatalog(context.Background(), memory.New(), path)
	assert.ErrorContains(t, err, "validity")
}
