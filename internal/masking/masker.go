package masking

import (
	"fmt"

	"github.com/KyungWonPark/maskprofile/internal/calc"
	"github.com/KyungWonPark/maskprofile/internal/memo"
	"github.com/KyungWonPark/maskprofile/internal/volume"
	"github.com/gonum/matrix/mat64"
)

// NiftiMasker turns a 4D image into a frames by voxels matrix of the voxels in its mask
type NiftiMasker struct {
	// Mask selects the voxels. When nil, Fit estimates an EPI mask from the image.
	Mask *volume.Mask
	// EPI tunes the estimated mask
	EPI EPIOptions
	// Standardize z-scores every voxel time series
	Standardize bool
	// Memory memoizes mask estimation and masking; nil disables it
	Memory *memo.Cache

	pl     *calc.PipeLine
	fitted *volume.Mask
}

// NewNiftiMasker returns a masker over mask (nil to estimate one during Fit)
func NewNiftiMasker(pl *calc.PipeLine, mask *volume.Mask, memory *memo.Cache) *NiftiMasker {
	if pl == nil {
		pl = calc.Init(0)
	}
	return &NiftiMasker{
		Mask:   mask,
		EPI:    DefaultEPIOptions,
		Memory: memory,
		pl:     pl,
	}
}

// MaskImg returns the fitted mask
func (m *NiftiMasker) MaskImg() *volume.Mask {
	return m.fitted
}

// Fit settles the mask
func (m *NiftiMasker) Fit(img *volume.Volume) error {
	if m.pl == nil {
		m.pl = calc.Init(0)
	}

	if m.Mask != nil {
		if !m.Mask.Any() {
			return fmt.Errorf("nifti masker: %w", ErrEmptyMask)
		}
		m.fitted = m.Mask
		return nil
	}

	if img == nil {
		return fmt.Errorf("nifti masker: no mask and no image to compute one from")
	}

	key, memoize := m.key("compute_epi_mask", img, m.EPI)
	if memoize {
		if mask, ok := m.Memory.LoadMask(key, img.Grid); ok {
			m.fitted = mask
			return nil
		}
	}

	mask, err := ComputeEPIMask(m.pl, img, m.EPI)
	if err != nil {
		return fmt.Errorf("nifti masker: %w", err)
	}
	if memoize {
		if err := m.Memory.StoreMask(key, mask); err != nil {
			return fmt.Errorf("nifti masker: %w", err)
		}
	}

	m.fitted = mask
	return nil
}

// Transform returns the frames by voxels signal of img inside the fitted mask.
// An image on another grid is resampled onto the mask grid first.
func (m *NiftiMasker) Transform(img *volume.Volume) (*mat64.Dense, error) {
	if m.fitted == nil {
		return nil, fmt.Errorf("nifti masker: %w", ErrNotFitted)
	}

	key, memoize := m.key("filter_and_mask", img, m.fitted.Digest(), m.Standardize)
	if memoize {
		if signals, ok := m.Memory.LoadMatrix(key); ok {
			return signals, nil
		}
	}

	signals, err := m.signals(img)
	if err != nil {
		return nil, fmt.Errorf("nifti masker: %w", err)
	}
	if memoize {
		if err := m.Memory.StoreMatrix(key, signals); err != nil {
			return nil, fmt.Errorf("nifti masker: %w", err)
		}
	}

	return signals, nil
}

// FitTransform fits on img and transforms it
func (m *NiftiMasker) FitTransform(img *volume.Volume) (*mat64.Dense, error) {
	if err := m.Fit(img); err != nil {
		return nil, err
	}
	return m.Transform(img)
}

// signals samples img in the fitted mask and returns frames by voxels.
// The voxels by frames samples are dropped before returning.
func (m *NiftiMasker) signals(img *volume.Volume) (*mat64.Dense, error) {
	timeSeries, err := m.pl.Sample(img, m.fitted)
	if err != nil {
		return nil, err
	}

	if m.Standardize {
		m.pl.ZScoring(timeSeries, timeSeries)
	}

	return mat64.DenseCopyOf(timeSeries.T()), nil
}

// key is only usable for images read from disk
func (m *NiftiMasker) key(function string, img *volume.Volume, params ...interface{}) (string, bool) {
	if m.Memory == nil || img == nil || img.Path == "" {
		return "", false
	}
	id, err := memo.FileIdentity(img.Path)
	if err != nil {
		return "", false
	}
	return memo.Key(function, append([]interface{}{id}, params...)...), true
}
