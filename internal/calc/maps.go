package calc

import (
	"fmt"
	"log"

	"github.com/gonum/matrix"
	"github.com/gonum/matrix/mat64"
)

// MapsLstsq regresses every frame of timeSeriesMat (voxels by frames) on the
// component maps (voxels by components). The result is frames by components.
func (p *PipeLine) MapsLstsq(timeSeriesMat *mat64.Dense, maps *mat64.Dense) (*mat64.Dense, error) {
	voxels, frames := timeSeriesMat.Dims()
	mapRows, components := maps.Dims()
	if voxels != mapRows {
		log.Fatalf("[ERROR] MapsLstsq: data has %d voxels but maps have %d\n", voxels, mapRows)
	}
	if voxels < components {
		return nil, fmt.Errorf("maps lstsq: %d voxels cannot resolve %d components", voxels, components)
	}

	var coef mat64.Dense
	if err := coef.Solve(maps, timeSeriesMat); err != nil {
		if _, ok := err.(matrix.Condition); !ok {
			return nil, fmt.Errorf("maps lstsq: %w", err)
		}
		// rank deficient: QR gives no usable answer, take the minimum norm one
		if err := pinvSolve(&coef, maps, timeSeriesMat); err != nil {
			return nil, fmt.Errorf("maps lstsq: %w", err)
		}
	}

	outputMat := mat64.NewDense(frames, components, nil)
	p.dispatch(frames, func(t int) {
		row := outputMat.RawRowView(t)
		for k := range row {
			row[k] = coef.At(k, t)
		}
	})

	return outputMat, nil
}

// pinvSolve stores the minimum norm least squares solution of a·x = b in x.
// Singular values below max(rows, cols)·eps·σmax are treated as zero.
func pinvSolve(x *mat64.Dense, a, b mat64.Matrix) error {
	var svd mat64.SVD
	if !svd.Factorize(a, matrix.SVDThin) {
		return fmt.Errorf("svd did not converge")
	}

	values := svd.Values(nil)
	var u, v mat64.Dense
	u.UFromSVD(&svd)
	v.VFromSVD(&svd)

	rows, cols := a.Dims()
	tol := 0.0
	if len(values) > 0 {
		tol = values[0] * float64(max(rows, cols)) * 0x1p-52
	}

	var utb mat64.Dense
	utb.Mul(u.T(), b)
	for i, sigma := range values {
		row := utb.RawRowView(i)
		for j := range row {
			if sigma > tol {
				row[j] /= sigma
			} else {
				row[j] = 0
			}
		}
	}

	x.Reset()
	x.Mul(&v, &utb)
	return nil
}
