package main

import (
	"log"
	"os"

	"github.com/KyungWonPark/maskprofile/internal/bench"
	"github.com/KyungWonPark/maskprofile/internal/calc"
	"github.com/KyungWonPark/maskprofile/internal/dataset"
	"github.com/KyungWonPark/maskprofile/internal/masking"
	"github.com/KyungWonPark/maskprofile/internal/memo"
	"github.com/KyungWonPark/maskprofile/internal/volume"
	"github.com/gonum/matrix/mat64"
)

// Report lines, in the order they are printed
const (
	precomputedEPIMask = "Precompute EPI mask precomputed"
	computedEPIMask    = "Masker compute EPI mask"
	greyMatter3mm      = "GM mask 3mm"
	greyMatter1mm      = "GM mask 1mm"

	mapsWithResample = "NiftiMapsMasker transform data with resample"
	resampleMaps     = "Resample probseg before masker"
	mapsNoResample   = "NiftiMapsMasker transform data no resample in masker object"
	labelsLowRes     = "NiftiLabelsMasker transform data with resampling low res"
	labelsHighRes    = "NiftiLabelsMasker transform data with resampling high res"
	labelsNoResample = "NiftiLabelsMasker transform data no resample in masker object"
)

var reportOrder = []string{
	precomputedEPIMask,
	computedEPIMask,
	greyMatter3mm,
	greyMatter1mm,
	mapsWithResample,
	resampleMaps,
	mapsNoResample,
	labelsLowRes,
	labelsHighRes,
	labelsNoResample,
}

func getenv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	DATADIR := getenv("DATA", "data")
	RESULTDIR := getenv("RESULT", "results")
	CACHEDIR := getenv("CACHE", "nilearn_cache")

	// kept for parity with the analysis layout, nothing is written there
	if err := os.MkdirAll(RESULTDIR, 0o755); err != nil {
		log.Fatalf("[ERROR] Results: %v\n", err)
	}

	pl := calc.Init(0)
	fetcher := dataset.NewFetcher(DATADIR)

	log.Println("Fetching ADHD sample...")
	adhd, err := fetcher.FetchADHD(1)
	if err != nil {
		log.Fatalf("[ERROR] Dataset: %v\n", err)
	}

	log.Println("Loading functional run...")
	fmri, err := volume.Load(adhd.Func[0])
	if err != nil {
		log.Fatalf("[ERROR] Dataset: %v\n", err)
	}

	log.Println("Fetching atlases...")
	difumo, err := fetcher.FetchDiFuMo(256, 3)
	if err != nil {
		log.Fatalf("[ERROR] Atlas: %v\n", err)
	}
	schaefer1mm, err := fetcher.FetchSchaefer2018(800, 7, 1)
	if err != nil {
		log.Fatalf("[ERROR] Atlas: %v\n", err)
	}
	schaefer2mm, err := fetcher.FetchSchaefer2018(800, 7, 2)
	if err != nil {
		log.Fatalf("[ERROR] Atlas: %v\n", err)
	}
	gmPath, err := fetcher.FetchMNI152GreyMatter()
	if err != nil {
		log.Fatalf("[ERROR] Atlas: %v\n", err)
	}

	log.Println("Loading atlases...")
	difumoMaps := mustLoad(difumo.Maps)
	schaefer1mmLabels := mustLoad(schaefer1mm.Maps)
	schaefer2mmLabels := mustLoad(schaefer2mm.Maps)
	gmTemplate := mustLoad(gmPath)

	log.Println("Computing reference masks...")
	gm3mm, err := masking.GreyMatterMask(pl, gmTemplate, 3)
	if err != nil {
		log.Fatalf("[ERROR] Mask: %v\n", err)
	}
	gm1mm, err := masking.GreyMatterMask(pl, gmTemplate, 1)
	if err != nil {
		log.Fatalf("[ERROR] Mask: %v\n", err)
	}
	epiMask, err := masking.MeanMask(pl, fmri)
	if err != nil {
		log.Fatalf("[ERROR] Mask: %v\n", err)
	}

	memory, err := memo.New(CACHEDIR)
	if err != nil {
		log.Fatalf("[ERROR] Cache: %v\n", err)
	}

	log.Printf("Timing %d configurations...\n", len(reportOrder))
	report := bench.NewReport(os.Stdout)

	// NiftiMasker: a nil mask is computed during fit. Images on another grid
	// than the mask are resampled onto the mask grid.
	niftiMaskerOptions := []struct {
		mask        *volume.Mask
		description string
	}{
		{epiMask, precomputedEPIMask},
		{nil, computedEPIMask},
		{gm3mm, greyMatter3mm},
		{gm1mm, greyMatter1mm},
	}

	for _, option := range niftiMaskerOptions {
		err := report.Run(option.description, func() error {
			preprocessor := masking.NewNiftiMasker(pl, option.mask, memory)
			_, err := preprocessor.FitTransform(fmri)
			return err
		})
		if err != nil {
			log.Fatalf("[ERROR] %s: %v\n", option.description, err)
		}
	}

	// Extract atlas: difumo
	mapsMasker := masking.NewMapsMasker(pl, difumoMaps, epiMask)
	if err := mapsMasker.Fit(); err != nil {
		log.Fatalf("[ERROR] Maps masker: %v\n", err)
	}
	timeTransform(report, mapsWithResample, mapsMasker.Transform, fmri)

	// Extract atlas: difumo, resampled beforehand
	var difumoResampled *volume.Volume
	err = report.Run(resampleMaps, func() error {
		var err error
		difumoResampled, err = pl.Resample(difumoMaps, epiMask.Grid, calc.Continuous)
		return err
	})
	if err != nil {
		log.Fatalf("[ERROR] Resample: %v\n", err)
	}
	mapsMasker = masking.NewMapsMasker(pl, difumoResampled, epiMask)
	if err := mapsMasker.Fit(); err != nil {
		log.Fatalf("[ERROR] Maps masker: %v\n", err)
	}
	timeTransform(report, mapsNoResample, mapsMasker.Transform, fmri)

	// Extract atlas: schaefer 800 2 mm
	labelsMasker := masking.NewLabelsMasker(pl, schaefer2mmLabels, epiMask)
	if err := labelsMasker.Fit(); err != nil {
		log.Fatalf("[ERROR] Labels masker: %v\n", err)
	}
	timeTransform(report, labelsLowRes, labelsMasker.Transform, fmri)

	// Extract atlas: schaefer 800 1 mm
	labelsMasker = masking.NewLabelsMasker(pl, schaefer1mmLabels, epiMask)
	if err := labelsMasker.Fit(); err != nil {
		log.Fatalf("[ERROR] Labels masker: %v\n", err)
	}
	timeTransform(report, labelsHighRes, labelsMasker.Transform, fmri)

	// Extract atlas: schaefer 800 2 mm, resampled beforehand
	schaeferResampled, err := pl.Resample(schaefer2mmLabels, epiMask.Grid, calc.Nearest)
	if err != nil {
		log.Fatalf("[ERROR] Resample: %v\n", err)
	}
	labelsMasker = masking.NewLabelsMasker(pl, schaeferResampled, epiMask)
	labelsMasker.Regions = masking.RegionRange(len(schaefer2mm.Labels))
	if err := labelsMasker.Fit(); err != nil {
		log.Fatalf("[ERROR] Labels masker: %v\n", err)
	}
	timeTransform(report, labelsNoResample, labelsMasker.Transform, fmri)

	return
}

func mustLoad(path string) *volume.Volume {
	v, err := volume.Load(path)
	if err != nil {
		log.Fatalf("[ERROR] Load: %v\n", err)
	}
	return v
}

func timeTransform(report *bench.Report, description string, transform func(*volume.Volume) (*mat64.Dense, error), img *volume.Volume) {
	err := report.Run(description, func() error {
		_, err := transform(img)
		return err
	})
	if err != nil {
		log.Fatalf("[ERROR] %s: %v\n", description, err)
	}
}
