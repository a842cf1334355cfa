package masking

import (
	"fmt"
	"math"

	"github.com/KyungWonPark/maskprofile/internal/calc"
	"github.com/KyungWonPark/maskprofile/internal/volume"
	"github.com/gonum/matrix/mat64"
)

// onGrid resamples the optional mask onto grid and intersects it with keep
func onGrid(pl *calc.PipeLine, mask *volume.Mask, grid volume.Grid, keep func(idx int) bool) (*volume.Mask, error) {
	out := volume.NewMask(grid)
	if mask != nil {
		resampled, err := pl.ResampleMask(mask, grid)
		if err != nil {
			return nil, err
		}
		copy(out.Bits, resampled.Bits)
	} else {
		for i := range out.Bits {
			out.Bits[i] = true
		}
	}

	for i, b := range out.Bits {
		if b && !keep(i) {
			out.Bits[i] = false
		}
	}
	if !out.Any() {
		return nil, ErrEmptyMask
	}

	return out, nil
}

// MapsMasker extracts one signal per probabilistic map by least squares
type MapsMasker struct {
	Maps *volume.Volume // one map per frame
	Mask *volume.Mask   // optional

	pl     *calc.PipeLine
	fitted bool
}

// NewMapsMasker returns an extractor over maps restricted to mask (may be nil)
func NewMapsMasker(pl *calc.PipeLine, maps *volume.Volume, mask *volume.Mask) *MapsMasker {
	if pl == nil {
		pl = calc.Init(0)
	}
	return &MapsMasker{Maps: maps, Mask: mask, pl: pl}
}

// Fit checks the maps. Resampling is left to Transform, where the data grid is known.
func (m *MapsMasker) Fit() error {
	if m.Maps == nil || m.Maps.Frames < 1 {
		return fmt.Errorf("maps masker: no maps")
	}
	if m.Mask != nil && !m.Mask.Any() {
		return fmt.Errorf("maps masker: %w", ErrEmptyMask)
	}
	if m.pl == nil {
		m.pl = calc.Init(0)
	}
	m.fitted = true
	return nil
}

// Components returns the number of maps
func (m *MapsMasker) Components() int {
	return m.Maps.Frames
}

// Transform returns the frames by components signal of img
func (m *MapsMasker) Transform(img *volume.Volume) (*mat64.Dense, error) {
	if !m.fitted {
		return nil, fmt.Errorf("maps masker: %w", ErrNotFitted)
	}

	maps := m.Maps
	if !maps.Grid.Equal(img.Grid) {
		var err error
		maps, err = m.pl.Resample(maps, img.Grid, calc.Continuous)
		if err != nil {
			return nil, fmt.Errorf("maps masker: %w", err)
		}
	}

	n := maps.Len()
	mask, err := onGrid(m.pl, m.Mask, img.Grid, func(idx int) bool {
		for k := 0; k < maps.Frames; k++ {
			if maps.Data[idx+k*n] != 0 {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("maps masker: %w", err)
	}

	timeSeries, err := m.pl.Sample(img, mask)
	if err != nil {
		return nil, fmt.Errorf("maps masker: %w", err)
	}
	weights, err := m.pl.Sample(maps, mask)
	if err != nil {
		return nil, fmt.Errorf("maps masker: %w", err)
	}

	signals, err := m.pl.MapsLstsq(timeSeries, weights)
	if err != nil {
		return nil, fmt.Errorf("maps masker: %w", err)
	}
	return signals, nil
}

// FitTransform fits and transforms img
func (m *MapsMasker) FitTransform(img *volume.Volume) (*mat64.Dense, error) {
	if err := m.Fit(); err != nil {
		return nil, err
	}
	return m.Transform(img)
}

// LabelsMasker extracts the mean signal of every region of a label image
type LabelsMasker struct {
	Labels *volume.Volume
	Mask   *volume.Mask // optional
	// Regions overrides the region set read from Labels, e.g. to keep the
	// regions of an atlas that lost some of them to resampling
	Regions []int

	pl      *calc.PipeLine
	regions []int
}

// NewLabelsMasker returns an extractor over a label image restricted to mask (may be nil)
func NewLabelsMasker(pl *calc.PipeLine, labels *volume.Volume, mask *volume.Mask) *LabelsMasker {
	if pl == nil {
		pl = calc.Init(0)
	}
	return &LabelsMasker{Labels: labels, Mask: mask, pl: pl}
}

// Fit records the regions of the label image
func (m *LabelsMasker) Fit() error {
	if m.Labels == nil {
		return fmt.Errorf("labels masker: no label image")
	}
	if m.Mask != nil && !m.Mask.Any() {
		return fmt.Errorf("labels masker: %w", ErrEmptyMask)
	}
	regions := m.Regions
	if regions == nil {
		regions = m.Labels.Labels()
	}
	if len(regions) == 0 {
		return fmt.Errorf("labels masker: label image has no region")
	}
	if m.pl == nil {
		m.pl = calc.Init(0)
	}
	m.regions = regions
	return nil
}

// Columns returns the fitted region labels, in output column order
func (m *LabelsMasker) Columns() []int {
	return m.regions
}

// Transform returns the frames by regions signal of img. Regions lost to
// resampling or masking give zero columns.
func (m *LabelsMasker) Transform(img *volume.Volume) (*mat64.Dense, error) {
	if m.regions == nil {
		return nil, fmt.Errorf("labels masker: %w", ErrNotFitted)
	}

	labels := m.Labels.Frame(0)
	if !labels.Grid.Equal(img.Grid) {
		var err error
		labels, err = m.pl.Resample(labels, img.Grid, calc.Nearest)
		if err != nil {
			return nil, fmt.Errorf("labels masker: %w", err)
		}
	}

	mask, err := onGrid(m.pl, m.Mask, img.Grid, func(idx int) bool {
		return labels.Data[idx] != 0
	})
	if err != nil {
		return nil, fmt.Errorf("labels masker: %w", err)
	}

	timeSeries, err := m.pl.Sample(img, mask)
	if err != nil {
		return nil, fmt.Errorf("labels masker: %w", err)
	}

	indices := mask.Indices()
	voxelLabels := make([]int, len(indices))
	for r, idx := range indices {
		voxelLabels[r] = int(math.Round(float64(labels.Data[idx])))
	}

	return m.pl.LabelMeans(timeSeries, voxelLabels, m.regions), nil
}

// FitTransform fits and transforms img
func (m *LabelsMasker) FitTransform(img *volume.Volume) (*mat64.Dense, error) {
	if err := m.Fit(); err != nil {
		return nil, err
	}
	return m.Transform(img)
}

// RegionRange returns the labels 1..n of an atlas with n regions
func RegionRange(n int) []int {
	regions := make([]int, n)
	for i := range regions {
		regions[i] = i + 1
	}
	return regions
}
