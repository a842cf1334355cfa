package calc

import (
	"github.com/KyungWonPark/maskprofile/internal/volume"
)

// Threshold marks voxels of the first frame at or above thr.
// With strict set, only voxels above thr are marked.
func (p *PipeLine) Threshold(v *volume.Volume, thr float64, strict bool) *volume.Mask {
	m := volume.NewMask(v.Grid)
	plane := v.Shape[0] * v.Shape[1]

	p.dispatch(v.Shape[2], func(z int) {
		for i := z * plane; i < (z+1)*plane; i++ {
			value := float64(v.Data[i])
			if strict {
				m.Bits[i] = value > thr
			} else {
				m.Bits[i] = value >= thr
			}
		}
	})

	return m
}
