package io

import (
	"fmt"
	"os"

	"github.com/gonum/matrix/mat64"
	"github.com/kshedden/gonpy"
)

// Mat64toNpy writes mat64 matrix to Python numpy npy binary file
func Mat64toNpy(path string, matrix *mat64.Dense) error {
	rows, cols := matrix.Dims()

	raw := matrix.RawMatrix()
	if raw.Stride == cols {
		return F64SlicetoNpy(path, []int{rows, cols}, raw.Data[:rows*cols])
	}

	// a view into a larger matrix is packed first
	packed := make([]float64, 0, rows*cols)
	for i := 0; i < rows; i++ {
		packed = append(packed, matrix.RawRowView(i)...)
	}
	return F64SlicetoNpy(path, []int{rows, cols}, packed)
}

// F64SlicetoNpy writes a row-major slice with the given shape
func F64SlicetoNpy(path string, shape []int, data []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("[Mat64toNpy] Failed to open file: %w", err)
	}

	// the writer closes f once the array is written
	w, err := gonpy.NewWriter(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("[Mat64toNpy] Failed to open file: %w", err)
	}
	w.Shape = shape
	w.Version = 2
	if err := w.WriteFloat64(data); err != nil {
		f.Close()
		return fmt.Errorf("[Mat64toNpy] Failed to write file: %w", err)
	}

	return nil
}

// NpytoF64Slice reads a Python numpy npy binary file and its shape
func NpytoF64Slice(path string) ([]int, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("[NpytoMat64] Failed to open file: %w", err)
	}
	defer f.Close()

	r, err := gonpy.NewReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("[NpytoMat64] Failed to open file: %w", err)
	}

	data, err := r.GetFloat64()
	if err != nil {
		return nil, nil, fmt.Errorf("[NpytoMat64] Failed to read file: %w", err)
	}

	return r.Shape, data, nil
}

// NpytoMat64 reads Python numpy npy binary file as mat64 matrix
func NpytoMat64(path string) (*mat64.Dense, error) {
	shape, data, err := NpytoF64Slice(path)
	if err != nil {
		return nil, err
	}
	if len(shape) != 2 {
		return nil, fmt.Errorf("[NpytoMat64] %s: expected 2 dimensions, got %v", path, shape)
	}

	rows := shape[0]
	cols := shape[1]

	matrix := mat64.NewDense(rows, cols, data)
	return matrix, nil
}
