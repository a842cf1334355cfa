package memo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KyungWonPark/maskprofile/internal/volume"
	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	a := Key("filter_and_mask", "img", 3, true)
	assert.Len(t, a, 64)
	assert.Equal(t, a, Key("filter_and_mask", "img", 3, true))
	assert.NotEqual(t, a, Key("filter_and_mask", "img", 3, false))
	assert.NotEqual(t, a, Key("compute_epi_mask", "img", 3, true))
}

func TestFileIdentityTracksModification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "img.nii")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	before, err := FileIdentity(path)
	require.NoError(t, err)

	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))
	after, err := FileIdentity(path)
	require.NoError(t, err)
	assert.NotEqual(t, before, after)

	_, err = FileIdentity(path + ".missing")
	assert.Error(t, err)
}

func TestMatrixEntries(t *testing.T) {
	c, err := New(filepath.Join(t.TempDir(), "nilearn_cache"))
	require.NoError(t, err)

	key := Key("filter_and_mask", "x")
	_, ok := c.LoadMatrix(key)
	assert.False(t, ok)

	m := mat64.NewDense(2, 2, []float64{1, 2, 3, 4})
	require.NoError(t, c.StoreMatrix(key, m))

	got, ok := c.LoadMatrix(key)
	require.True(t, ok)
	assert.True(t, mat64.Equal(m, got))
}

func TestMaskEntries(t *testing.T) {
	c, err := New(t.TempDir())
	require.NoError(t, err)

	g := volume.Diagonal([3]int{3, 2, 2}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	m := volume.NewMask(g)
	m.Bits[1] = true
	m.Bits[10] = true

	key := Key("compute_epi_mask", "x")
	require.NoError(t, c.StoreMask(key, m))

	got, ok := c.LoadMask(key, g)
	require.True(t, ok)
	assert.Equal(t, m.Bits, got.Bits)

	// a grid of another shape never matches
	other := volume.Diagonal([3]int{2, 3, 2}, [3]float64{1, 1, 1}, [3]float64{0, 0, 0})
	_, ok = c.LoadMask(key, other)
	assert.False(t, ok)
}

func TestNilCacheIsDisabled(t *testing.T) {
	var c *Cache
	assert.NoError(t, c.StoreMatrix("k", mat64.NewDense(1, 1, nil)))
	_, ok := c.LoadMatrix("k")
	assert.False(t, ok)
}
