package calc

import (
	"fmt"

	"github.com/KyungWonPark/maskprofile/internal/volume"
	"github.com/gonum/matrix/mat64"
)

// Sample gathers the time series of every voxel in mask into a voxels by frames matrix.
// When img lives on another grid it is interpolated (continuous) at the mask voxels,
// which equals resampling img onto the mask grid and masking afterwards.
func (p *PipeLine) Sample(img *volume.Volume, mask *volume.Mask) (*mat64.Dense, error) {
	indices := mask.Indices()
	rows := len(indices)
	if rows == 0 {
		return nil, fmt.Errorf("sample: mask is empty")
	}

	timeSeries := mat64.NewDense(rows, img.Frames, nil)
	n := img.Len()

	if img.Grid.Equal(mask.Grid) {
		p.dispatch(rows, func(r int) {
			row := timeSeries.RawRowView(r)
			for t := range row {
				row[t] = float64(img.Data[indices[r]+t*n])
			}
		})
		return timeSeries, nil
	}

	s, err := newSampler(img, mask.Grid, Continuous)
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}

	p.dispatch(rows, func(r int) {
		var w weights
		x, y, z := mask.Coords(indices[r])
		sx, sy, sz := s.locate(x, y, z)
		s.weigh(sx, sy, sz, &w)

		row := timeSeries.RawRowView(r)
		for t := range row {
			row[t] = w.apply(img.Data[t*n : (t+1)*n])
		}
	})

	return timeSeries, nil
}
