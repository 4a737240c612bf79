package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadWorkload_PartialKeepsDefaults(t *testing.T) {
	path := writeFile(t, "w.yaml", "workers: 2\nops: 500\nmax_size: 128\nseed: 42\n")

	w, err := LoadWorkload(path)
	require.NoError(t, err)

	def := DefaultWorkload()
	assert.Equal(t, 2, w.Workers)
	assert.Equal(t, 500, w.Ops)
	assert.Equal(t, 128, w.MaxSize)
	assert.Equal(t, int64(42), w.Seed)
	assert.Equal(t, def.MinSize, w.MinSize)
	assert.InDelta(t, def.FreeRatio, w.FreeRatio, 1e-9)
	assert.Equal(t, def.MaxLive, w.MaxLive)
}

func TestLoadWorkload_Rejects(t *testing.T) {
	_, err := LoadWorkload(writeFile(t, "w.yaml", "wrokers: 2\n"))
	require.Error(t, err)

	_, err = LoadWorkload(writeFile(t, "w.yaml", "min_size: 64\nmax_size: 32\n"))
	require.ErrorIs(t, err, ErrBadWorkload)

	_, err = LoadWorkload(filepath.Join(t.TempDir(), "none.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestWorkload_Validate(t *testing.T) {
	tests := []struct {
		name string
		edit func(*Workload)
	}{
		{"no workers", func(w *Workload) { w.Workers = 0 }},
		{"negative ops", func(w *Workload) { w.Ops = -1 }},
		{"zero min", func(w *Workload) { w.MinSize = 0 }},
		{"ratios over one", func(w *Workload) { w.FreeRatio, w.ReallocRatio = 0.7, 0.4 }},
		{"negative ratio", func(w *Workload) { w.ReallocRatio = -0.1 }},
		{"no live", func(w *Workload) { w.MaxLive = 0 }},
	}
	require.NoError(t, DefaultWorkload().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := DefaultWorkload()
			tt.edit(&w)
			require.ErrorIs(t, w.Validate(), ErrBadWorkload)
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	w := DefaultWorkload()
	w.Ops = 2000
	assert.Equal(t, Generate(w, 9), Generate(w, 9))
	assert.NotEqual(t, Generate(w, 9).Ops, Generate(w, 10).Ops)
}

func TestGenerate_Shape(t *testing.T) {
	w := DefaultWorkload()
	w.Ops = 3000
	w.MinSize, w.MaxSize = 16, 64
	w.MaxLive = 50
	tr := Generate(w, 5)

	live := map[int]bool{}
	allocs, frees := 0, 0
	for _, op := range tr.Ops {
		switch op.Kind {
		case OpAlloc:
			require.False(t, live[op.ID], "id %d allocated twice", op.ID)
			live[op.ID] = true
			allocs++
		case OpFree:
			require.True(t, live[op.ID], "id %d freed while dead", op.ID)
			delete(live, op.ID)
			frees++
		case OpRealloc:
			require.True(t, live[op.ID])
		}
		if op.Kind != OpFree {
			require.GreaterOrEqual(t, op.Size, w.MinSize)
			require.LessOrEqual(t, op.Size, w.MaxSize)
		}
		require.LessOrEqual(t, len(live), w.MaxLive)
	}
	assert.Empty(t, live)
	assert.Equal(t, allocs, frees)
	assert.Equal(t, allocs, tr.NumIDs)
	assert.LessOrEqual(t, tr.SuggestedHeap, w.MaxLive*w.MaxSize)
}
