package masking

import (
	"fmt"

	"github.com/KyungWonPark/maskprofile/internal/calc"
	"github.com/KyungWonPark/maskprofile/internal/volume"
	"github.com/gonum/floats"
)

// GreyMatterThreshold and GreyMatterClosing are the defaults of GreyMatterMask
const (
	GreyMatterThreshold = 0.2
	GreyMatterClosing   = 2
)

// GreyMatterMask turns a grey matter probability template into a binary mask
// on an isotropic grid of resolutionMM covering the template.
func GreyMatterMask(pl *calc.PipeLine, template *volume.Volume, resolutionMM float64) (*volume.Mask, error) {
	if resolutionMM <= 0 {
		return nil, fmt.Errorf("grey matter mask: resolution %.2fmm", resolutionMM)
	}

	thr := GreyMatterThreshold
	// templates stored as integers carry probabilities scaled to their maximum
	first := template.Frame(0)
	values := make([]float64, len(first.Data))
	for i, v := range first.Data {
		values[i] = float64(v)
	}
	if peak := floats.Max(values); peak > 1 {
		thr *= peak
	}

	target := template.Grid.AtResolution(resolutionMM)
	resampled := first
	if !target.Equal(template.Grid) {
		var err error
		resampled, err = pl.Resample(first, target, calc.Continuous)
		if err != nil {
			return nil, fmt.Errorf("grey matter mask: %w", err)
		}
	}

	mask := pl.Threshold(resampled, thr, true).Close(GreyMatterClosing)
	if !mask.Any() {
		return nil, fmt.Errorf("grey matter mask: %w", ErrEmptyMask)
	}

	return mask, nil
}
