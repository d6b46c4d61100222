package cfr

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveLoadStrategyRoundTrip(t *testing.T) {
	regrets := NewRegretTable()
	regrets.AddRegret("k1", "0,1", 4.0)

	strategy := NewStrategyTable()
	require.NoError(t, strategy.AddToSum("k1", "0,1", 2.0))
	strategy.SetCurrent("k1", "0,1", 1.0)

	base := filepath.Join(t.TempDir(), "blueprint")
	require.NoError(t, SaveStrategy(base, regrets, strategy))

	loadedRegrets := NewRegretTable()
	loadedStrategy := NewStrategyTable()
	require.NoError(t, LoadStrategy(base, loadedRegrets, loadedStrategy))

	require.Equal(t, regrets.RegretsFor("k1"), loadedRegrets.RegretsFor("k1"))
	require.Equal(t, strategy.Average("k1"), loadedStrategy.Average("k1"))
	require.Equal(t, strategy.Current("k1"), loadedStrategy.Current("k1"))
}

func TestLoadStrategyMissingFileIsIOError(t *testing.T) {
	base := filepath.Join(t.TempDir(), "does-not-exist")
	err := LoadStrategy(base, NewRegretTable(), NewStrategyTable())
	require.ErrorIs(t, err, ErrIOError)
}
