package volume

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/KyungWonPark/nifti"
)

const headerSize = 348

// NIfTI-1 datatype codes
const (
	dtUint8   = 2
	dtInt16   = 4
	dtInt32   = 8
	dtFloat32 = 16
	dtFloat64 = 64
	dtInt8    = 256
	dtUint16  = 512
	dtUint32  = 768
)

// Header holds the geometry and storage fields of a NIfTI-1 header
type Header struct {
	Dim       [8]int16
	Datatype  int16
	Bitpix    int16
	Pixdim    [8]float32
	VoxOffset float32
	SclSlope  float32
	SclInter  float32
	QformCode int16
	SformCode int16
	Quatern   [3]float32 // b, c, d
	Qoffset   [3]float32
	Srow      [3][4]float32
	Order     binary.ByteOrder
}

// ReadHeader decodes a NIfTI-1 header in either byte order
func ReadHeader(r io.Reader) (Header, error) {
	var h Header

	raw := make([]byte, headerSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return h, fmt.Errorf("read nifti header: %w", err)
	}

	var order binary.ByteOrder = binary.LittleEndian
	if int32(order.Uint32(raw[0:4])) != headerSize {
		order = binary.BigEndian
		if int32(order.Uint32(raw[0:4])) != headerSize {
			return h, fmt.Errorf("read nifti header: sizeof_hdr is not %d", headerSize)
		}
	}

	var nh nifti.Nifti1Header
	if err := binary.Read(bytes.NewReader(raw), order, &nh); err != nil {
		return h, fmt.Errorf("read nifti header: %w", err)
	}
	if magic := string(nh.Magic[:3]); magic != "n+1" && magic != "ni1" {
		return h, fmt.Errorf("read nifti header: bad magic %q", magic)
	}

	h = Header{
		Dim:       nh.Dim,
		Datatype:  nh.Datatype,
		Bitpix:    nh.Bitpix,
		Pixdim:    nh.Pixdim,
		VoxOffset: nh.VoxOffset,
		SclSlope:  nh.SclSlope,
		SclInter:  nh.SclInter,
		QformCode: nh.QformCode,
		SformCode: nh.SformCode,
		Quatern:   [3]float32{nh.QuaternB, nh.QuaternC, nh.QuaternD},
		Qoffset:   [3]float32{nh.QoffsetX, nh.QoffsetY, nh.QoffsetZ},
		Srow:      [3][4]float32{nh.SrowX, nh.SrowY, nh.SrowZ},
		Order:     order,
	}

	return h, nil
}

// decoder converts one stored voxel into a float32
func (h Header) decoder() (int, func(b []byte) float32, error) {
	order := h.Order
	if order == nil {
		order = binary.LittleEndian
	}

	switch h.Datatype {
	case dtUint8:
		return 1, func(b []byte) float32 { return float32(b[0]) }, nil
	case dtInt8:
		return 1, func(b []byte) float32 { return float32(int8(b[0])) }, nil
	case dtInt16:
		return 2, func(b []byte) float32 { return float32(int16(order.Uint16(b))) }, nil
	case dtUint16:
		return 2, func(b []byte) float32 { return float32(order.Uint16(b)) }, nil
	case dtInt32:
		return 4, func(b []byte) float32 { return float32(int32(order.Uint32(b))) }, nil
	case dtUint32:
		return 4, func(b []byte) float32 { return float32(order.Uint32(b)) }, nil
	case dtFloat32:
		return 4, func(b []byte) float32 { return math.Float32frombits(order.Uint32(b)) }, nil
	case dtFloat64:
		return 8, func(b []byte) float32 { return float32(math.Float64frombits(order.Uint64(b))) }, nil
	default:
		return 0, nil, fmt.Errorf("unsupported nifti datatype %d", h.Datatype)
	}
}

// scaling reports the scl_slope/scl_inter pair to apply, if any
func (h Header) scaling() (slope, inter float32, ok bool) {
	if h.SclSlope == 0 || math.IsNaN(float64(h.SclSlope)) || (h.SclSlope == 1 && h.SclInter == 0) {
		return 1, 0, false
	}
	return h.SclSlope, h.SclInter, true
}

// Shape returns the spatial shape and the number of frames
func (h Header) Shape() ([3]int, int) {
	var shape [3]int
	for i := 0; i < 3; i++ {
		shape[i] = 1
		if int(h.Dim[0]) > i && h.Dim[i+1] > 0 {
			shape[i] = int(h.Dim[i+1])
		}
	}

	frames := 1
	if h.Dim[0] >= 4 && h.Dim[4] > 0 {
		frames = int(h.Dim[4])
	}
	// 5D maps (x, y, z, 1, k) are stored as k frames
	if h.Dim[0] >= 5 && h.Dim[5] > 1 {
		frames *= int(h.Dim[5])
	}

	return shape, frames
}

// Affine returns the voxel to world transform: sform when set, then qform,
// then plain pixdim scaling.
func (h Header) Affine() []float64 {
	if h.SformCode > 0 {
		a := make([]float64, 0, 16)
		for i := 0; i < 3; i++ {
			for j := 0; j < 4; j++ {
				a = append(a, float64(h.Srow[i][j]))
			}
		}
		return append(a, 0, 0, 0, 1)
	}

	dx, dy, dz := float64(h.Pixdim[1]), float64(h.Pixdim[2]), float64(h.Pixdim[3])
	if h.QformCode <= 0 {
		return []float64{
			dx, 0, 0, 0,
			0, dy, 0, 0,
			0, 0, dz, 0,
			0, 0, 0, 1,
		}
	}

	qfac := 1.0
	if h.Pixdim[0] < 0 {
		qfac = -1
	}
	b, c, d := float64(h.Quatern[0]), float64(h.Quatern[1]), float64(h.Quatern[2])
	a := math.Sqrt(math.Max(0, 1-(b*b+c*c+d*d)))
	dz *= qfac

	return []float64{
		(a*a + b*b - c*c - d*d) * dx, 2 * (b*c - a*d) * dy, 2 * (b*d + a*c) * dz, float64(h.Qoffset[0]),
		2 * (b*c + a*d) * dx, (a*a + c*c - b*b - d*d) * dy, 2 * (c*d - a*b) * dz, float64(h.Qoffset[1]),
		2 * (b*d - a*c) * dx, 2 * (c*d + a*b) * dy, (a*a + d*d - c*c - b*b) * dz, float64(h.Qoffset[2]),
		0, 0, 0, 1,
	}
}

// LoadGrid reads only the header of a NIfTI-1 file
func LoadGrid(path string) (Grid, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return Grid{}, 0, err
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return Grid{}, 0, fmt.Errorf("%s: %w", path, err)
	}

	shape, frames := h.Shape()
	return NewGrid(shape, h.Affine()), frames, nil
}

// Load reads a single-file, uncompressed NIfTI-1 image
func Load(path string) (*Volume, error) {
	if strings.HasSuffix(path, ".gz") {
		return nil, fmt.Errorf("load %s: compressed images must be inflated first", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	defer f.Close()

	h, err := ReadHeader(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	size, decode, err := h.decoder()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	shape, frames := h.Shape()
	v := New(NewGrid(shape, h.Affine()), frames)
	v.Path = path

	offset := int64(h.VoxOffset)
	if offset < headerSize {
		offset = headerSize
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	// NIfTI order is x fastest, then y, z and t, the same as Data
	raw := make([]byte, len(v.Data)*size)
	if _, err := io.ReadFull(f, raw); err != nil {
		return nil, fmt.Errorf("load %s: voxel data: %w", path, err)
	}
	for i := range v.Data {
		v.Data[i] = decode(raw[i*size : (i+1)*size])
	}

	if slope, inter, ok := h.scaling(); ok {
		for i, value := range v.Data {
			v.Data[i] = value*slope + inter
		}
	}

	return v, nil
}
