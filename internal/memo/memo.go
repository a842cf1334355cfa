// Package memo keeps results of expensive masker steps on disk so a second run
// with the same inputs can skip them.
package memo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	mio "github.com/KyungWonPark/maskprofile/internal/io"
	"github.com/KyungWonPark/maskprofile/internal/volume"
	"github.com/gonum/matrix/mat64"
)

// Cache is a content-addressed directory of .npy files
type Cache struct {
	Dir string
}

// New creates the cache directory if needed
func New(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memo: %w", err)
	}
	return &Cache{Dir: dir}, nil
}

// Key digests a function name and the identities of its inputs
func Key(function string, parts ...interface{}) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s", function)
	for _, part := range parts {
		fmt.Fprintf(h, "\x00%v", part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FileIdentity identifies a file by path, size and modification time
func FileIdentity(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return fmt.Sprintf("%s:%d:%d", abs, info.Size(), info.ModTime().UnixNano()), nil
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.Dir, key[:2], key+".npy")
}

// store writes through a temp file so readers never see a partial entry
func (c *Cache) store(key string, write func(path string) error) error {
	dst := c.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("memo: %w", err)
	}

	tmp := dst + ".tmp"
	if err := write(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("memo: %w", err)
	}

	return os.Rename(tmp, dst)
}

// LoadMatrix returns the matrix stored under key, if any
func (c *Cache) LoadMatrix(key string) (*mat64.Dense, bool) {
	if c == nil {
		return nil, false
	}
	if _, err := os.Stat(c.path(key)); err != nil {
		return nil, false
	}

	m, err := mio.NpytoMat64(c.path(key))
	if err != nil {
		return nil, false
	}
	return m, true
}

// StoreMatrix saves m under key
func (c *Cache) StoreMatrix(key string, m *mat64.Dense) error {
	if c == nil {
		return nil
	}
	return c.store(key, func(path string) error {
		return mio.Mat64toNpy(path, m)
	})
}

// LoadMask returns the mask stored under key. The stored shape must match grid.
func (c *Cache) LoadMask(key string, grid volume.Grid) (*volume.Mask, bool) {
	if c == nil {
		return nil, false
	}
	if _, err := os.Stat(c.path(key)); err != nil {
		return nil, false
	}

	shape, data, err := mio.NpytoF64Slice(c.path(key))
	if err != nil || len(shape) != 3 || [3]int{shape[2], shape[1], shape[0]} != grid.Shape || len(data) != grid.Len() {
		return nil, false
	}

	m := volume.NewMask(grid)
	for i, value := range data {
		m.Bits[i] = value != 0
	}
	return m, true
}

// StoreMask saves the bits of m under key
func (c *Cache) StoreMask(key string, m *volume.Mask) error {
	if c == nil {
		return nil
	}

	data := make([]float64, len(m.Bits))
	for i, b := range m.Bits {
		if b {
			data[i] = 1
		}
	}
	// C order with x varying fastest
	shape := []int{m.Shape[2], m.Shape[1], m.Shape[0]}

	return c.store(key, func(path string) error {
		return mio.F64SlicetoNpy(path, shape, data)
	})
}
