package dataset

import (
	"fmt"
	"path"

	mio "github.com/KyungWonPark/maskprofile/internal/io"
)

var (
	// DiFuMoURL is formatted with the OSF id of one dimension
	DiFuMoURL = "https://osf.io/%s/download"
	// SchaeferBaseURL hosts the Schaefer 2018 parcellations in MNI space
	SchaeferBaseURL = "https://raw.githubusercontent.com/ThomasYeoLab/CBIG/v0.14.3-Update_Yeo2011_Schaefer2018_labelname/stable_projects/brain_parcellation/Schaefer2018_LocalGlobal/Parcellations/MNI/"
	// GreyMatterURL is the 1mm MNI152 2009a grey matter probability template
	GreyMatterURL = "https://raw.githubusercontent.com/nilearn/nilearn/main/nilearn/datasets/data/mni_icbm152_gm_tal_nlin_sym_09a_converted.nii.gz"
)

var difumoOSF = map[int]string{
	64:   "pqu9r",
	128:  "wjvd5",
	256:  "3vrct",
	512:  "9b76y",
	1024: "34792",
}

// Atlas is a fetched atlas image with one name per region or component
type Atlas struct {
	Maps   string
	Labels []string
}

// FetchDiFuMo fetches the probabilistic DiFuMo atlas
func (f *Fetcher) FetchDiFuMo(dimension int, resolutionMM int) (*Atlas, error) {
	id, ok := difumoOSF[dimension]
	if !ok || (resolutionMM != 2 && resolutionMM != 3) {
		return nil, fmt.Errorf("difumo %d/%dmm: %w", dimension, resolutionMM, ErrUnsupported)
	}

	dim := fmt.Sprint(dimension)
	res := fmt.Sprintf("%dmm", resolutionMM)
	src := Source{
		URL:     fmt.Sprintf(DiFuMoURL, id),
		Archive: Zip,
		Members: []Member{
			{Name: path.Join(dim, res, "maps.nii.gz"), Dest: path.Join(dim, res, "maps.nii")},
			{Name: path.Join(dim, "labels_"+dim+"_dictionary.csv"), Dest: path.Join(dim, "labels_"+dim+"_dictionary.csv")},
		},
	}

	paths, err := f.Fetch("difumo_atlases", src)
	if err != nil {
		return nil, fmt.Errorf("difumo: %w", err)
	}

	labels, err := mio.CSVColumn(paths[1], ',', "Difumo_names")
	if err != nil {
		return nil, fmt.Errorf("difumo labels: %w", err)
	}

	return &Atlas{Maps: paths[0], Labels: labels}, nil
}

// FetchSchaefer2018 fetches the Schaefer 2018 cortical parcellation
func (f *Fetcher) FetchSchaefer2018(nROIs int, yeoNetworks int, resolutionMM int) (*Atlas, error) {
	if nROIs < 100 || nROIs > 1000 || nROIs%100 != 0 ||
		(yeoNetworks != 7 && yeoNetworks != 17) ||
		(resolutionMM != 1 && resolutionMM != 2) {
		return nil, fmt.Errorf("schaefer %d/%d/%dmm: %w", nROIs, yeoNetworks, resolutionMM, ErrUnsupported)
	}

	stem := fmt.Sprintf("Schaefer2018_%dParcels_%dNetworks_order", nROIs, yeoNetworks)
	labelFile := stem + ".txt"
	mapFile := fmt.Sprintf("%s_FSLMNI152_%dmm.nii.gz", stem, resolutionMM)

	paths, err := f.Fetch("schaefer_2018",
		Source{
			URL:     SchaeferBaseURL + labelFile,
			Members: []Member{{Dest: labelFile}},
		},
		Source{
			URL:     SchaeferBaseURL + mapFile,
			Members: []Member{{Dest: mapFile[:len(mapFile)-len(".gz")]}},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("schaefer: %w", err)
	}

	labels, err := mio.CSVtoStrings(paths[0], '\t', 1)
	if err != nil {
		return nil, fmt.Errorf("schaefer labels: %w", err)
	}

	return &Atlas{Maps: paths[1], Labels: labels}, nil
}

// FetchMNI152GreyMatter fetches the 1mm grey matter probability template
func (f *Fetcher) FetchMNI152GreyMatter() (string, error) {
	paths, err := f.Fetch("mni152", Source{
		URL:     GreyMatterURL,
		Members: []Member{{Dest: "mni_icbm152_gm_tal_nlin_sym_09a_converted.nii"}},
	})
	if err != nil {
		return "", fmt.Errorf("mni152 grey matter: %w", err)
	}

	return paths[0], nil
}
