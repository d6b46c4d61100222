package cfr

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegretTableClampsToNonNegative(t *testing.T) {
	rt := NewRegretTable()
	rt.AddRegret("k1", "a1", -5.0)
	require.Equal(t, 0.0, rt.GetRegret("k1", "a1"))

	rt.AddRegret("k1", "a1", 3.0)
	rt.AddRegret("k1", "a1", -10.0)
	require.Equal(t, 0.0, rt.GetRegret("k1", "a1"))
}

func TestRegretTableAccumulates(t *testing.T) {
	rt := NewRegretTable()
	rt.AddRegret("k1", "a1", 2.0)
	rt.AddRegret("k1", "a1", 3.0)
	require.Equal(t, 5.0, rt.GetRegret("k1", "a1"))
}

func TestRegretTableHasSizeKeys(t *testing.T) {
	rt := NewRegretTable()
	require.False(t, rt.Has("k1"))
	require.Equal(t, 0, rt.Size())

	rt.AddRegret("k1", "a1", 1.0)
	rt.AddRegret("k2", "a1", 1.0)

	require.True(t, rt.Has("k1"))
	require.Equal(t, 2, rt.Size())
	require.ElementsMatch(t, []string{"k1", "k2"}, rt.Keys())
}

func TestRegretsForReturnsConsistentSnapshot(t *testing.T) {
	rt := NewRegretTable()
	rt.AddRegret("k1", "a1", 1.0)
	rt.AddRegret("k1", "a2", 2.0)

	snap := rt.RegretsFor("k1")
	require.Equal(t, map[string]float64{"a1": 1.0, "a2": 2.0}, snap)

	rt.AddRegret("k1", "a1", 100.0)
	require.Equal(t, 1.0, snap["a1"], "snapshot must not observe later mutations")
}

func TestRegretTablePrune(t *testing.T) {
	rt := NewRegretTable()
	rt.AddRegret("small", "a1", 0.001)
	rt.AddRegret("big", "a1", 5.0)

	dropped := rt.Prune(0.01)
	require.Equal(t, 1, dropped)
	require.False(t, rt.Has("small"))
	require.True(t, rt.Has("big"))
}

func TestRegretTableSaveLoadRoundTrip(t *testing.T) {
	rt := NewRegretTable()
	rt.AddRegret("k1", "0,1", 1.5)
	rt.AddRegret("k1", "3,2.5", 2.5)
	rt.AddRegret("k2", "1,0", 0.5)

	var buf bytes.Buffer
	require.NoError(t, rt.Save(&buf))

	loaded := NewRegretTable()
	require.NoError(t, loaded.Load(&buf))

	require.Equal(t, rt.Size(), loaded.Size())
	require.Equal(t, rt.RegretsFor("k1"), loaded.RegretsFor("k1"))
	require.Equal(t, rt.RegretsFor("k2"), loaded.RegretsFor("k2"))
}

func TestRegretTableConcurrentAddsDontLoseUpdates(t *testing.T) {
	rt := NewRegretTable()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt.AddRegret("shared", "a1", 1.0)
		}()
	}
	wg.Wait()
	require.Equal(t, 100.0, rt.GetRegret("shared", "a1"))
}
