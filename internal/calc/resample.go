package calc

import (
	"fmt"
	"math"

	"github.com/KyungWonPark/maskprofile/internal/volume"
	"github.com/gonum/matrix/mat64"
)

// Interpolation selects how off-lattice values are read
type Interpolation int

const (
	// Continuous is trilinear interpolation
	Continuous Interpolation = iota
	// Nearest picks the closest voxel, for label images
	Nearest
)

func (i Interpolation) String() string {
	switch i {
	case Nearest:
		return "nearest"
	default:
		return "continuous"
	}
}

// voxelMap returns the 4x4 transform from target voxel coordinates to source voxel coordinates
func voxelMap(src, dst volume.Grid) (*mat64.Dense, error) {
	var inv mat64.Dense
	if err := inv.Inverse(src.Affine); err != nil {
		return nil, fmt.Errorf("invert source affine: %w", err)
	}

	var m mat64.Dense
	m.Mul(&inv, dst.Affine)

	return &m, nil
}

// sampler reads a source volume at fractional voxel coordinates
type sampler struct {
	src    *volume.Volume
	m      [12]float64
	interp Interpolation
}

func newSampler(src *volume.Volume, dst volume.Grid, interp Interpolation) (*sampler, error) {
	m, err := voxelMap(src.Grid, dst)
	if err != nil {
		return nil, err
	}

	s := &sampler{src: src, interp: interp}
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			s.m[i*4+j] = m.At(i, j)
		}
	}

	return s, nil
}

// locate maps a target voxel onto source voxel coordinates
func (s *sampler) locate(x, y, z int) (float64, float64, float64) {
	fx, fy, fz := float64(x), float64(y), float64(z)
	m := &s.m
	return m[0]*fx + m[1]*fy + m[2]*fz + m[3],
		m[4]*fx + m[5]*fy + m[6]*fz + m[7],
		m[8]*fx + m[9]*fy + m[10]*fz + m[11]
}

// weights lists the source voxels and weights contributing to one target voxel.
// Locations outside the source yield no weights.
type weights struct {
	idx [8]int
	w   [8]float64
	n   int
}

func (s *sampler) weigh(sx, sy, sz float64, out *weights) {
	out.n = 0
	g := s.src.Grid

	if s.interp == Nearest {
		x, y, z := int(math.Round(sx)), int(math.Round(sy)), int(math.Round(sz))
		if g.Contains(x, y, z) {
			out.idx[0] = g.Index(x, y, z)
			out.w[0] = 1
			out.n = 1
		}
		return
	}

	const eps = 1e-6
	if sx < -eps || sy < -eps || sz < -eps ||
		sx > float64(g.Shape[0]-1)+eps || sy > float64(g.Shape[1]-1)+eps || sz > float64(g.Shape[2]-1)+eps {
		return
	}

	x0, y0, z0 := int(math.Floor(sx)), int(math.Floor(sy)), int(math.Floor(sz))
	dx, dy, dz := sx-float64(x0), sy-float64(y0), sz-float64(z0)

	for c := 0; c < 8; c++ {
		ox, oy, oz := c&1, c>>1&1, c>>2&1
		x, y, z := x0+ox, y0+oy, z0+oz

		w := 1.0
		if ox == 1 {
			w *= dx
		} else {
			w *= 1 - dx
		}
		if oy == 1 {
			w *= dy
		} else {
			w *= 1 - dy
		}
		if oz == 1 {
			w *= dz
		} else {
			w *= 1 - dz
		}

		if w == 0 || !g.Contains(x, y, z) {
			continue
		}
		out.idx[out.n] = g.Index(x, y, z)
		out.w[out.n] = w
		out.n++
	}
}

func (w *weights) apply(frame []float32) float64 {
	var acc float64
	for i := 0; i < w.n; i++ {
		acc += w.w[i] * float64(frame[w.idx[i]])
	}
	return acc
}

// Resample puts every frame of v onto the target grid
func (p *PipeLine) Resample(v *volume.Volume, target volume.Grid, interp Interpolation) (*volume.Volume, error) {
	s, err := newSampler(v, target, interp)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	out := volume.New(target, v.Frames)
	srcLen := v.Len()
	dstLen := target.Len()
	nx, ny := target.Shape[0], target.Shape[1]

	p.dispatch(target.Shape[2], func(z int) {
		var w weights
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				sx, sy, sz := s.locate(x, y, z)
				s.weigh(sx, sy, sz, &w)
				if w.n == 0 {
					continue
				}
				idx := target.Index(x, y, z)
				for t := 0; t < v.Frames; t++ {
					out.Data[idx+t*dstLen] = float32(w.apply(v.Data[t*srcLen : (t+1)*srcLen]))
				}
			}
		}
	})

	return out, nil
}

// ResampleMask resamples a mask with nearest interpolation
func (p *PipeLine) ResampleMask(m *volume.Mask, target volume.Grid) (*volume.Mask, error) {
	if m.Grid.Equal(target) {
		return m, nil
	}

	v, err := p.Resample(m.Volume(), target, Nearest)
	if err != nil {
		return nil, err
	}

	return volume.Binarize(v, 0.5), nil
}
