package commands

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/genxsop/backend/internal/contracts"
	"github.com/wonny/genxsop/backend/internal/store/memory"
)

func TestMaskPassword(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"with password", "postgres://app:secret@db:5432/genxsop", "postgres://app:xxxxx@db:5432/genxsop"},
		{"no password", "postgres://app@db:5432/genxsop", "postgres://app@db:5432/genxsop"},
		{"no user", "postgres://db:5432/genxsop", "postgres://db:5432/genxsop"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := maskPassword(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "secret")
		})
	}
}

func TestRequestedModel(t *testing.T) {
	id, err := requestedModel("")
	require.NoError(t, err)
	assert.Nil(t, id)

	id, err = requestedModel(" ewma ")
	require.NoError(t, err)
	require.NotNil(t, id)
	assert.Equal(t, contracts.ModelEWMA, *id)

	_, err = requestedModel("xgboost")
	assert.ErrorIs(t, err, contracts.ErrBusinessRule)
}

func TestParsePeriod(t *testing.T) {
	p, err := parsePeriod("2025-03")
	require.NoError(t, err)
	assert.Equal(t, 2025, p.Year())
	assert.Equal(t, 3, int(p.Month()))
	assert.Equal(t, 1, p.Day())

	_, err = parsePeriod("2025-13")
	assert.Error(t, err)
}

func TestSeedMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
	  "products": [
	    {"product_id": 7, "history": [
	      {"period": "2024-01-01T00:00:00Z", "actual_qty": "100"},
	      {"period": "2024-02-01T00:00:00Z", "actual_qty": 120},
	      {"period": "2024-03-01T00:00:00Z", "actual_qty": "110.5"}
	    ]}
	  ]
	}`), 0o600))

	mem := memory.New()
	n, err := seedMemory(mem, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	series, err := mem.History().ActualsSeries(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, "110.5", series[2].ActualQty.String())

	_, err = seedMemory(mem, filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestSeedMemory_BundledSample(t *testing.T) {
	mem := memory.New()
	n, err := seedMemory(mem, filepath.Join("..", "..", "..", "config", "seed", "history.json"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []int64{1, 2} {
		series, err := mem.History().ActualsSeries(context.Background(), id)
		require.NoError(t, err)
		assert.Len(t, series, 30, "product %d", id)
	}
}
