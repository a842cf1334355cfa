package cluster

import (
	"sort"
)

// Cluster represents a 6-connected set of voxels
type Cluster struct {
	Identifier int
	Members    []int
}

// AddMember adds a member to the cluster
func (c *Cluster) AddMember(idx int) {
	c.Members = append(c.Members, idx)
	return
}

// Size returns the number of members
func (c *Cluster) Size() int {
	return len(c.Members)
}

// neighbours yields the flat indices of the face neighbours of idx
func neighbours(shape [3]int, idx int, fn func(int)) {
	nx, ny, nz := shape[0], shape[1], shape[2]
	x := idx % nx
	y := (idx / nx) % ny
	z := idx / (nx * ny)

	if x > 0 {
		fn(idx - 1)
	}
	if x < nx-1 {
		fn(idx + 1)
	}
	if y > 0 {
		fn(idx - nx)
	}
	if y < ny-1 {
		fn(idx + nx)
	}
	if z > 0 {
		fn(idx - nx*ny)
	}
	if z < nz-1 {
		fn(idx + nx*ny)
	}
}

// Label returns the 6-connected components of bits, largest first.
// Identifiers start at 1 in scan order.
func Label(shape [3]int, bits []bool) []Cluster {
	var clusters []Cluster

	membership := make([]int, len(bits))
	var stack []int

	for seed := range bits {
		if !bits[seed] || membership[seed] != 0 {
			continue
		}

		c := Cluster{Identifier: len(clusters) + 1}
		membership[seed] = c.Identifier
		stack = append(stack[:0], seed)

		for len(stack) > 0 {
			idx := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			c.AddMember(idx)

			neighbours(shape, idx, func(n int) {
				if bits[n] && membership[n] == 0 {
					membership[n] = c.Identifier
					stack = append(stack, n)
				}
			})
		}

		sort.Ints(c.Members)
		clusters = append(clusters, c)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return len(clusters[i].Members) > len(clusters[j].Members)
	})

	return clusters
}

// Largest returns the biggest component, ties going to the one found first.
// ok is false when bits has no set voxel.
func Largest(shape [3]int, bits []bool) (Cluster, bool) {
	clusters := Label(shape, bits)
	if len(clusters) == 0 {
		return Cluster{}, false
	}
	return clusters[0], true
}
