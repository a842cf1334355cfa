package masking

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/KyungWonPark/maskprofile/internal/calc"
	"github.com/KyungWonPark/maskprofile/internal/memo"
	"github.com/KyungWonPark/maskprofile/internal/volume"
	"github.com/gonum/matrix/mat64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

const frames = 20

var epiGrid = volume.Diagonal([3]int{12, 12, 10}, [3]float64{3, 3, 3}, [3]float64{-18, -18, -15})

func inSphere(g volume.Grid, idx int) bool {
	x, y, z := g.Coords(idx)
	p := g.World(float64(x), float64(y), float64(z))
	// centre of epiGrid in world space
	dx, dy, dz := p[0]+1.5, p[1]+1.5, p[2]+1.5
	return dx*dx+dy*dy+dz*dz <= 13.5*13.5
}

// syntheticEPI is a bright noisy ball on a dark background
func syntheticEPI() *volume.Volume {
	noise := distuv.Normal{Mu: 0, Sigma: 2}
	img := volume.New(epiGrid, frames)
	n := epiGrid.Len()
	for idx := 0; idx < n; idx++ {
		if !inSphere(epiGrid, idx) {
			continue
		}
		for t := 0; t < frames; t++ {
			img.Data[idx+t*n] = float32(100 + 5*math.Sin(float64(t)+float64(idx)) + noise.Rand())
		}
	}
	return img
}

func sphereMask(g volume.Grid) *volume.Mask {
	m := volume.NewMask(g)
	for i := range m.Bits {
		m.Bits[i] = inSphere(g, i)
	}
	return m
}

// blobs are smooth overlapping probabilistic maps
func blobs(g volume.Grid, centres [][3]float64) *volume.Volume {
	maps := volume.New(g, len(centres))
	n := g.Len()
	for idx := 0; idx < n; idx++ {
		x, y, z := g.Coords(idx)
		p := g.World(float64(x), float64(y), float64(z))
		for k, c := range centres {
			d2 := (p[0]-c[0])*(p[0]-c[0]) + (p[1]-c[1])*(p[1]-c[1]) + (p[2]-c[2])*(p[2]-c[2])
			maps.Data[idx+k*n] = float32(math.Exp(-d2 / 200))
		}
	}
	return maps
}

var centres = [][3]float64{{-8, 0, 0}, {6, 0, 0}, {0, 8, -3}}

func TestEPIThreshold(t *testing.T) {
	values := []float32{0, 0, 0, 0, 0, 0, 10, 10, 11, 10}
	thr, err := EPIThreshold(values, 0.2, 0.85)
	require.NoError(t, err)
	assert.Equal(t, 5.0, thr)

	_, err = EPIThreshold([]float32{1}, 0.2, 0.85)
	assert.Error(t, err)
	_, err = EPIThreshold(values, 0.9, 0.2)
	assert.Error(t, err)
}

func TestComputeEPIMask(t *testing.T) {
	pl := calc.Init(4)
	img := syntheticEPI()

	mask, err := ComputeEPIMask(pl, img, DefaultEPIOptions)
	require.NoError(t, err)
	assert.True(t, mask.Bits[epiGrid.Index(5, 5, 4)])
	assert.False(t, mask.Bits[epiGrid.Index(0, 0, 0)])
	assert.Len(t, mask.LargestComponent().Indices(), mask.Count())

	// the ball cannot survive a wide opening
	opts := DefaultEPIOptions
	opts.Opening = 6
	_, err = ComputeEPIMask(pl, img, opts)
	assert.True(t, errors.Is(err, ErrEmptyMask))
}

func TestMeanMask(t *testing.T) {
	pl := calc.Init(2)
	mask, err := MeanMask(pl, syntheticEPI())
	require.NoError(t, err)
	assert.Equal(t, sphereMask(epiGrid).Bits, mask.Bits)

	_, err = MeanMask(pl, volume.New(epiGrid, 1))
	assert.True(t, errors.Is(err, ErrEmptyMask))
}

func TestGreyMatterMask(t *testing.T) {
	g := volume.Diagonal([3]int{30, 30, 30}, [3]float64{1, 1, 1}, [3]float64{-15, -15, -15})
	template := volume.New(g, 1)
	for idx := range template.Data {
		x, y, z := g.Coords(idx)
		p := g.World(float64(x), float64(y), float64(z))
		r := math.Sqrt(p[0]*p[0] + p[1]*p[1] + p[2]*p[2])
		if r < 10 {
			template.Data[idx] = float32(1 - r/20)
		}
	}

	pl := calc.Init(3)
	mask, err := GreyMatterMask(pl, template, 3)
	require.NoError(t, err)
	assert.Equal(t, [3]float64{3, 3, 3}, mask.VoxelSize())
	assert.True(t, mask.Any())

	centre := g.AtResolution(3)
	assert.True(t, centre.Equal(mask.Grid))

	// integer templates are scaled to their maximum
	scaled := volume.New(g, 1)
	for i, v := range template.Data {
		scaled.Data[i] = v * 256
	}
	scaledMask, err := GreyMatterMask(pl, scaled, 3)
	require.NoError(t, err)
	assert.Equal(t, mask.Bits, scaledMask.Bits)

	same, err := GreyMatterMask(pl, template, 1)
	require.NoError(t, err)
	assert.True(t, same.Grid.Equal(g))
	assert.Greater(t, same.Count(), mask.Count())

	_, err = GreyMatterMask(pl, template, 0)
	assert.Error(t, err)
	_, err = GreyMatterMask(pl, volume.New(g, 1), 3)
	assert.True(t, errors.Is(err, ErrEmptyMask))
}

func TestNiftiMaskerPrecomputedMask(t *testing.T) {
	img := syntheticEPI()
	mask := sphereMask(epiGrid)

	masker := NewNiftiMasker(calc.Init(2), mask, nil)
	signals, err := masker.FitTransform(img)
	require.NoError(t, err)

	rows, cols := signals.Dims()
	require.Equal(t, frames, rows)
	require.Equal(t, mask.Count(), cols)
	for c, idx := range mask.Indices() {
		x, y, z := epiGrid.Coords(idx)
		for f := 0; f < frames; f += 7 {
			assert.InDelta(t, img.At(x, y, z, f), signals.At(f, c), 1e-4)
		}
	}
	assert.Same(t, mask, masker.MaskImg())
}

func TestNiftiMaskerComputesEPIMask(t *testing.T) {
	img := syntheticEPI()

	masker := NewNiftiMasker(nil, nil, nil)
	signals, err := masker.FitTransform(img)
	require.NoError(t, err)

	require.NotNil(t, masker.MaskImg())
	_, cols := signals.Dims()
	assert.Equal(t, masker.MaskImg().Count(), cols)
}

func TestNiftiMaskerOtherGrid(t *testing.T) {
	img := syntheticEPI()
	fine := volume.Diagonal([3]int{24, 24, 20}, [3]float64{1.5, 1.5, 1.5}, [3]float64{-18, -18, -15})
	mask := sphereMask(fine)

	signals, err := NewNiftiMasker(calc.Init(3), mask, nil).FitTransform(img)
	require.NoError(t, err)

	rows, cols := signals.Dims()
	assert.Equal(t, frames, rows)
	assert.Equal(t, mask.Count(), cols)
}

func TestNiftiMaskerStandardize(t *testing.T) {
	masker := NewNiftiMasker(calc.Init(2), sphereMask(epiGrid), nil)
	masker.Standardize = true

	signals, err := masker.FitTransform(syntheticEPI())
	require.NoError(t, err)

	rows, cols := signals.Dims()
	for c := 0; c < cols; c += 11 {
		var sum float64
		for r := 0; r < rows; r++ {
			sum += signals.At(r, c)
		}
		assert.InDelta(t, 0, sum/float64(rows), 1e-6)
	}
}

func TestNiftiMaskerErrors(t *testing.T) {
	masker := NewNiftiMasker(nil, sphereMask(epiGrid), nil)
	_, err := masker.Transform(syntheticEPI())
	assert.True(t, errors.Is(err, ErrNotFitted))

	empty := NewNiftiMasker(nil, volume.NewMask(epiGrid), nil)
	assert.True(t, errors.Is(empty.Fit(nil), ErrEmptyMask))

	assert.Error(t, NewNiftiMasker(nil, nil, nil).Fit(nil))
}

func TestNiftiMaskerMemory(t *testing.T) {
	dir := t.TempDir()
	cache, err := memo.New(filepath.Join(dir, "nilearn_cache"))
	require.NoError(t, err)

	img := syntheticEPI()
	img.Path = filepath.Join(dir, "func.nii")
	require.NoError(t, os.WriteFile(img.Path, []byte("stand-in"), 0o644))

	first := NewNiftiMasker(calc.Init(2), nil, cache)
	want, err := first.FitTransform(img)
	require.NoError(t, err)

	// a hit never looks at the voxels again
	for i := range img.Data {
		img.Data[i] = 0
	}
	second := NewNiftiMasker(calc.Init(2), nil, cache)
	got, err := second.FitTransform(img)
	require.NoError(t, err)

	assert.Equal(t, first.MaskImg().Bits, second.MaskImg().Bits)
	assert.True(t, mat64.Equal(want, got))

	// without a file there is nothing to key on
	img.Path = ""
	third := NewNiftiMasker(calc.Init(2), first.MaskImg(), cache)
	zeros, err := third.FitTransform(img)
	require.NoError(t, err)
	assert.Equal(t, 0.0, mat64.Max(zeros))
}

func TestMapsMasker(t *testing.T) {
	pl := calc.Init(3)
	img := syntheticEPI()
	maps := blobs(epiGrid, centres)

	masker := NewMapsMasker(pl, maps, sphereMask(epiGrid))
	signals, err := masker.FitTransform(img)
	require.NoError(t, err)

	rows, cols := signals.Dims()
	assert.Equal(t, frames, rows)
	assert.Equal(t, masker.Components(), cols)
	assert.Equal(t, len(centres), cols)
}

func TestMapsMaskerImplicitResampleMatchesExplicit(t *testing.T) {
	pl := calc.Init(3)
	img := syntheticEPI()
	mask := sphereMask(epiGrid)
	fine := volume.Diagonal([3]int{26, 26, 22}, [3]float64{1.5, 1.5, 1.5}, [3]float64{-20, -20, -17})
	maps := blobs(fine, centres)

	implicit, err := NewMapsMasker(pl, maps, mask).FitTransform(img)
	require.NoError(t, err)

	resampled, err := pl.Resample(maps, img.Grid, calc.Continuous)
	require.NoError(t, err)
	explicit, err := NewMapsMasker(pl, resampled, mask).FitTransform(img)
	require.NoError(t, err)

	assert.True(t, mat64.EqualApprox(implicit, explicit, 1e-6))
}

func TestMapsMaskerErrors(t *testing.T) {
	masker := NewMapsMasker(nil, blobs(epiGrid, centres), nil)
	_, err := masker.Transform(syntheticEPI())
	assert.True(t, errors.Is(err, ErrNotFitted))

	assert.Error(t, NewMapsMasker(nil, nil, nil).Fit())
	assert.True(t, errors.Is(NewMapsMasker(nil, blobs(epiGrid, centres), volume.NewMask(epiGrid)).Fit(), ErrEmptyMask))
}

// halves labels the left and right halves of the ball 1 and 2
func halves(g volume.Grid) *volume.Volume {
	labels := volume.New(g, 1)
	for idx := range labels.Data {
		if !inSphere(g, idx) {
			continue
		}
		x, y, z := g.Coords(idx)
		if g.World(float64(x), float64(y), float64(z))[0] < -1.5 {
			labels.Data[idx] = 1
		} else {
			labels.Data[idx] = 2
		}
	}
	return labels
}

func TestLabelsMaskerMeans(t *testing.T) {
	img := syntheticEPI()
	labels := halves(epiGrid)

	masker := NewLabelsMasker(calc.Init(2), labels, nil)
	signals, err := masker.FitTransform(img)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, masker.Columns())

	rows, cols := signals.Dims()
	require.Equal(t, frames, rows)
	require.Equal(t, 2, cols)

	n := epiGrid.Len()
	for f := 0; f < frames; f++ {
		var sum [2]float64
		var count [2]int
		for idx := 0; idx < n; idx++ {
			if l := int(labels.Data[idx]); l > 0 {
				sum[l-1] += float64(img.Data[idx+f*n])
				count[l-1]++
			}
		}
		for c := 0; c < 2; c++ {
			assert.InDelta(t, sum[c]/float64(count[c]), signals.At(f, c), 1e-3)
		}
	}
}

func TestLabelsMaskerResamplesAndKeepsRegions(t *testing.T) {
	pl := calc.Init(3)
	img := syntheticEPI()
	fine := volume.Diagonal([3]int{24, 24, 20}, [3]float64{1.5, 1.5, 1.5}, [3]float64{-18, -18, -15})
	labels := halves(fine)

	implicit, err := NewLabelsMasker(pl, labels, nil).FitTransform(img)
	require.NoError(t, err)

	resampled, err := pl.Resample(labels, img.Grid, calc.Nearest)
	require.NoError(t, err)
	explicit := NewLabelsMasker(pl, resampled, nil)
	explicit.Regions = RegionRange(3)
	signals, err := explicit.FitTransform(img)
	require.NoError(t, err)

	_, cols := implicit.Dims()
	assert.Equal(t, 2, cols)

	rows, cols := signals.Dims()
	require.Equal(t, 3, cols)
	for f := 0; f < rows; f++ {
		assert.InDelta(t, implicit.At(f, 0), signals.At(f, 0), 1e-6)
		assert.InDelta(t, implicit.At(f, 1), signals.At(f, 1), 1e-6)
		assert.Equal(t, 0.0, signals.At(f, 2))
	}
}

func TestLabelsMaskerErrors(t *testing.T) {
	masker := NewLabelsMasker(nil, halves(epiGrid), nil)
	_, err := masker.Transform(syntheticEPI())
	assert.True(t, errors.Is(err, ErrNotFitted))

	assert.Error(t, NewLabelsMasker(nil, nil, nil).Fit())
	assert.Error(t, NewLabelsMasker(nil, volume.New(epiGrid, 1), nil).Fit())
}

func TestRegionRange(t *testing.T) {
	assert.Equal(t, []int{1, 2, 3}, RegionRange(3))
	assert.Empty(t, RegionRange(0))
}

func BenchmarkNiftiMaskerTransform(b *testing.B) {
	img := syntheticEPI()
	fine := volume.Diagonal([3]int{36, 36, 30}, [3]float64{1, 1, 1}, [3]float64{-18, -18, -15})
	masker := NewNiftiMasker(calc.Init(0), sphereMask(fine), nil)
	require.NoError(b, masker.Fit(img))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := masker.Transform(img); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMapsMaskerTransform(b *testing.B) {
	img := syntheticEPI()
	fine := volume.Diagonal([3]int{26, 26, 22}, [3]float64{1.5, 1.5, 1.5}, [3]float64{-20, -20, -17})
	masker := NewMapsMasker(calc.Init(0), blobs(fine, centres), nil)
	require.NoError(b, masker.Fit())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := masker.Transform(img); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkLabelsMaskerTransform(b *testing.B) {
	img := syntheticEPI()
	masker := NewLabelsMasker(calc.Init(0), halves(epiGrid), nil)
	require.NoError(b, masker.Fit())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := masker.Transform(img); err != nil {
			b.Fatal(err)
		}
	}
}
