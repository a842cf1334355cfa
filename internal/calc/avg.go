package calc

import (
	"github.com/KyungWonPark/maskprofile/internal/volume"
)

// TemporalMean averages a 4D volume over its frames
func (p *PipeLine) TemporalMean(v *volume.Volume) *volume.Volume {
	out := volume.New(v.Grid, 1)
	n := v.Len()
	nx, ny := v.Shape[0], v.Shape[1]
	div := float64(v.Frames)

	// one job per z slice
	p.dispatch(v.Shape[2], func(z int) {
		from := z * nx * ny
		to := from + nx*ny
		for i := from; i < to; i++ {
			var acc float64
			for t := 0; t < v.Frames; t++ {
				acc += float64(v.Data[i+t*n])
			}
			out.Data[i] = float32(acc / div)
		}
	})

	return out
}
