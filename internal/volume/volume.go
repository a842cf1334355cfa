package volume

import (
	"fmt"
	"math"
	"sort"

	"github.com/gonum/matrix/mat64"
)

// Grid is a voxel lattice placed in world space
type Grid struct {
	Shape  [3]int
	Affine *mat64.Dense // 4 by 4, voxel to world
}

// NewGrid returns a grid with the given shape and a row-major 4x4 affine
func NewGrid(shape [3]int, affine []float64) Grid {
	if len(affine) != 16 {
		panic(fmt.Sprintf("volume: affine needs 16 values, got %d", len(affine)))
	}
	data := make([]float64, 16)
	copy(data, affine)
	return Grid{Shape: shape, Affine: mat64.NewDense(4, 4, data)}
}

// Diagonal returns a grid whose affine scales each axis by spacing and shifts by origin
func Diagonal(shape [3]int, spacing [3]float64, origin [3]float64) Grid {
	return NewGrid(shape, []float64{
		spacing[0], 0, 0, origin[0],
		0, spacing[1], 0, origin[1],
		0, 0, spacing[2], origin[2],
		0, 0, 0, 1,
	})
}

// Len returns the number of voxels of one frame
func (g Grid) Len() int {
	return g.Shape[0] * g.Shape[1] * g.Shape[2]
}

// Index returns the flat index of a voxel, x varying fastest
func (g Grid) Index(x, y, z int) int {
	return x + g.Shape[0]*(y+g.Shape[1]*z)
}

// Coords is the inverse of Index
func (g Grid) Coords(i int) (int, int, int) {
	x := i % g.Shape[0]
	i /= g.Shape[0]
	y := i % g.Shape[1]
	z := i / g.Shape[1]
	return x, y, z
}

// Contains reports whether x, y, z lies inside the lattice
func (g Grid) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < g.Shape[0] && y < g.Shape[1] && z < g.Shape[2]
}

// Equal reports whether both grids have the same shape and (nearly) the same affine
func (g Grid) Equal(o Grid) bool {
	if g.Shape != o.Shape {
		return false
	}
	if g.Affine == nil || o.Affine == nil {
		return g.Affine == o.Affine
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			if math.Abs(g.Affine.At(i, j)-o.Affine.At(i, j)) > 1e-4 {
				return false
			}
		}
	}
	return true
}

// VoxelSize returns the length of each affine column
func (g Grid) VoxelSize() [3]float64 {
	var size [3]float64
	for j := 0; j < 3; j++ {
		var acc float64
		for i := 0; i < 3; i++ {
			acc += g.Affine.At(i, j) * g.Affine.At(i, j)
		}
		size[j] = math.Sqrt(acc)
	}
	return size
}

// World maps voxel coordinates to world coordinates
func (g Grid) World(x, y, z float64) [3]float64 {
	var w [3]float64
	for i := 0; i < 3; i++ {
		w[i] = g.Affine.At(i, 0)*x + g.Affine.At(i, 1)*y + g.Affine.At(i, 2)*z + g.Affine.At(i, 3)
	}
	return w
}

// AtResolution returns an axis-aligned grid with isotropic spacing mm that covers the
// bounding box of g in world space.
func (g Grid) AtResolution(mm float64) Grid {
	lo := [3]float64{math.Inf(1), math.Inf(1), math.Inf(1)}
	hi := [3]float64{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for c := 0; c < 8; c++ {
		x := float64((c & 1) * (g.Shape[0] - 1))
		y := float64((c >> 1 & 1) * (g.Shape[1] - 1))
		z := float64((c >> 2 & 1) * (g.Shape[2] - 1))
		w := g.World(x, y, z)
		for i := 0; i < 3; i++ {
			lo[i] = math.Min(lo[i], w[i])
			hi[i] = math.Max(hi[i], w[i])
		}
	}

	var shape [3]int
	var origin [3]float64
	for i := 0; i < 3; i++ {
		first := math.Floor(lo[i]/mm + 1e-6)
		last := math.Ceil(hi[i]/mm - 1e-6)
		origin[i] = first * mm
		shape[i] = int(last-first) + 1
	}

	return Diagonal(shape, [3]float64{mm, mm, mm}, origin)
}

// Volume is a 3D or 4D image. Data holds Frames consecutive frames in grid order.
type Volume struct {
	Grid
	Frames int
	Data   []float32
	Path   string // file the volume was loaded from, if any
}

// New allocates a zeroed volume
func New(g Grid, frames int) *Volume {
	if frames < 1 {
		frames = 1
	}
	return &Volume{
		Grid:   g,
		Frames: frames,
		Data:   make([]float32, g.Len()*frames),
	}
}

// At returns the value of voxel x, y, z at frame t
func (v *Volume) At(x, y, z, t int) float32 {
	return v.Data[v.Index(x, y, z)+t*v.Len()]
}

// Set stores the value of voxel x, y, z at frame t
func (v *Volume) Set(x, y, z, t int, value float32) {
	v.Data[v.Index(x, y, z)+t*v.Len()] = value
}

// Frame returns frame t as a 3D volume sharing storage with v
func (v *Volume) Frame(t int) *Volume {
	n := v.Len()
	return &Volume{Grid: v.Grid, Frames: 1, Data: v.Data[t*n : (t+1)*n]}
}

// Labels returns the sorted distinct non-zero values of the first frame, rounded to integers
func (v *Volume) Labels() []int {
	seen := make(map[int]bool)
	for _, value := range v.Data[:v.Len()] {
		label := int(math.Round(float64(value)))
		if label != 0 {
			seen[label] = true
		}
	}

	labels := make([]int, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Ints(labels)

	return labels
}

// Binarize marks voxels of the first frame whose magnitude exceeds threshold
func Binarize(v *Volume, threshold float64) *Mask {
	m := NewMask(v.Grid)
	for i, value := range v.Data[:v.Len()] {
		m.Bits[i] = math.Abs(float64(value)) > threshold
	}
	return m
}
