package volume

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/KyungWonPark/maskprofile/internal/cluster"
)

// Mask is a binary volume marking included voxels
type Mask struct {
	Grid
	Bits []bool
}

// NewMask returns an empty mask on g
func NewMask(g Grid) *Mask {
	return &Mask{Grid: g, Bits: make([]bool, g.Len())}
}

// Count returns the number of included voxels
func (m *Mask) Count() int {
	cnt := 0
	for _, b := range m.Bits {
		if b {
			cnt++
		}
	}
	return cnt
}

// Indices returns the flat indices of included voxels in grid order
func (m *Mask) Indices() []int {
	indices := make([]int, 0, m.Count())
	for i, b := range m.Bits {
		if b {
			indices = append(indices, i)
		}
	}
	return indices
}

// Any reports whether at least one voxel is included
func (m *Mask) Any() bool {
	for _, b := range m.Bits {
		if b {
			return true
		}
	}
	return false
}

// Clone returns a deep copy
func (m *Mask) Clone() *Mask {
	c := NewMask(m.Grid)
	copy(c.Bits, m.Bits)
	return c
}

// Volume converts the mask into a 0/1 volume
func (m *Mask) Volume() *Volume {
	v := New(m.Grid, 1)
	for i, b := range m.Bits {
		if b {
			v.Data[i] = 1
		}
	}
	return v
}

// Digest identifies the mask content and geometry
func (m *Mask) Digest() string {
	h := sha256.New()
	for _, s := range m.Shape {
		binary.Write(h, binary.LittleEndian, int64(s))
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			binary.Write(h, binary.LittleEndian, math.Float64bits(m.Affine.At(i, j)))
		}
	}
	packed := make([]byte, (len(m.Bits)+7)/8)
	for i, b := range m.Bits {
		if b {
			packed[i/8] |= 1 << uint(i%8)
		}
	}
	h.Write(packed)

	return hex.EncodeToString(h.Sum(nil))
}

// step runs one erosion (erode == true) or dilation with the 6-connected cross.
// Voxels beyond the border count as excluded.
func (m *Mask) step(erode bool) *Mask {
	out := NewMask(m.Grid)
	nx, ny, nz := m.Shape[0], m.Shape[1], m.Shape[2]

	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				idx := m.Index(x, y, z)
				if erode {
					if !m.Bits[idx] || x == 0 || y == 0 || z == 0 || x == nx-1 || y == ny-1 || z == nz-1 {
						continue
					}
					out.Bits[idx] = m.Bits[idx-1] && m.Bits[idx+1] &&
						m.Bits[idx-nx] && m.Bits[idx+nx] &&
						m.Bits[idx-nx*ny] && m.Bits[idx+nx*ny]
					continue
				}

				if m.Bits[idx] {
					out.Bits[idx] = true
					continue
				}
				out.Bits[idx] = (x > 0 && m.Bits[idx-1]) || (x < nx-1 && m.Bits[idx+1]) ||
					(y > 0 && m.Bits[idx-nx]) || (y < ny-1 && m.Bits[idx+nx]) ||
					(z > 0 && m.Bits[idx-nx*ny]) || (z < nz-1 && m.Bits[idx+nx*ny])
			}
		}
	}

	return out
}

// Erode applies iterations of binary erosion
func (m *Mask) Erode(iterations int) *Mask {
	out := m.Clone()
	for i := 0; i < iterations; i++ {
		out = out.step(true)
	}
	return out
}

// Dilate applies iterations of binary dilation
func (m *Mask) Dilate(iterations int) *Mask {
	out := m.Clone()
	for i := 0; i < iterations; i++ {
		out = out.step(false)
	}
	return out
}

// Close is dilation followed by erosion
func (m *Mask) Close(iterations int) *Mask {
	return m.Dilate(iterations).Erode(iterations)
}

// Open is erosion followed by dilation
func (m *Mask) Open(iterations int) *Mask {
	return m.Erode(iterations).Dilate(iterations)
}

// LargestComponent keeps only the biggest 6-connected component
func (m *Mask) LargestComponent() *Mask {
	out := NewMask(m.Grid)
	c, ok := cluster.Largest(m.Shape, m.Bits)
	if !ok {
		return out
	}
	for _, idx := range c.Members {
		out.Bits[idx] = true
	}
	return out
}
