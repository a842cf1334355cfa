package masking

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/KyungWonPark/maskprofile/internal/calc"
	"github.com/KyungWonPark/maskprofile/internal/volume"
	"github.com/gonum/floats"
)

var (
	// ErrNotFitted is returned by Transform before Fit
	ErrNotFitted = errors.New("masker is not fitted")
	// ErrEmptyMask is returned when a mask selects no voxel
	ErrEmptyMask = errors.New("mask is empty")
)

// EPIOptions tune the functional mask estimate
type EPIOptions struct {
	LowerCutoff float64 // fraction of the sorted mean intensities ignored at the low end
	UpperCutoff float64 // fraction of the sorted mean intensities ignored beyond it
	Opening     int     // erosions/dilations used to cut thin bridges
	Connected   bool    // keep only the largest connected component
}

// DefaultEPIOptions are the usual settings for a whole brain EPI run
var DefaultEPIOptions = EPIOptions{
	LowerCutoff: 0.2,
	UpperCutoff: 0.85,
	Opening:     2,
	Connected:   true,
}

// EPIThreshold finds the intensity splitting brain from background: the middle
// of the widest gap between consecutive sorted values inside the cutoff range.
func EPIThreshold(values []float32, lowerCutoff, upperCutoff float64) (float64, error) {
	n := len(values)
	if n < 2 {
		return 0, fmt.Errorf("epi threshold: %d values", n)
	}

	sorted := make([]float64, n)
	for i, v := range values {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			f = 0
		}
		sorted[i] = f
	}
	sort.Float64s(sorted)

	lower := int(math.Floor(lowerCutoff * float64(n)))
	upper := int(math.Floor(upperCutoff * float64(n)))
	if upper > n-1 {
		upper = n - 1
	}
	if lower < 0 || upper <= lower {
		return 0, fmt.Errorf("epi threshold: cutoffs %.2f..%.2f leave no range", lowerCutoff, upperCutoff)
	}

	delta := make([]float64, upper-lower)
	floats.SubTo(delta, sorted[lower+1:upper+1], sorted[lower:upper])
	ia := floats.MaxIdx(delta)

	return 0.5 * (sorted[ia+lower] + sorted[ia+lower+1]), nil
}

// ComputeEPIMask estimates the brain mask of a functional run from its mean image
func ComputeEPIMask(pl *calc.PipeLine, img *volume.Volume, opts EPIOptions) (*volume.Mask, error) {
	mean := pl.TemporalMean(img)

	thr, err := EPIThreshold(mean.Data, opts.LowerCutoff, opts.UpperCutoff)
	if err != nil {
		return nil, err
	}

	mask := pl.Threshold(mean, thr, false)
	return postProcess(mask, opts)
}

func postProcess(mask *volume.Mask, opts EPIOptions) (*volume.Mask, error) {
	if opts.Opening > 0 {
		mask = mask.Erode(opts.Opening)
	}
	if !mask.Any() {
		return nil, fmt.Errorf("compute epi mask: %w", ErrEmptyMask)
	}
	if opts.Connected {
		mask = mask.LargestComponent()
	}
	if opts.Opening > 0 {
		mask = mask.Dilate(2 * opts.Opening).Erode(opts.Opening)
	}

	return mask, nil
}

// MeanMask binarizes the mean image of a functional run: every voxel with a non-zero mean
func MeanMask(pl *calc.PipeLine, img *volume.Volume) (*volume.Mask, error) {
	mask := volume.Binarize(pl.TemporalMean(img), 0)
	if !mask.Any() {
		return nil, fmt.Errorf("mean mask: %w", ErrEmptyMask)
	}
	return mask, nil
}
