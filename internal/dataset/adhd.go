package dataset

import (
	"fmt"
	"path"
)

// ADHDBaseURL hosts the 40 subject resting state sample of the ADHD-200 release
var ADHDBaseURL = "https://www.nitrc.org/frs/download.php/"

// subject ids and their NITRC file ids, in release order
var adhdSubjects = []string{
	"0010042", "0010064", "0010128", "0021019", "0023008", "0023012",
	"0027011", "0027018", "0027034", "0027037", "1019436", "1206380",
	"1418396", "1517058", "1552181", "1562298", "1679142", "2014113",
	"2497695", "2950754", "3007585", "3154996", "3205761", "3520880",
	"3624598", "3699991", "3884955", "3902469", "3994098", "4016887",
	"4046678", "4134561", "4164316", "4275075", "6115230", "7774305",
	"8409791", "8697774", "9744150", "9750701",
}

const adhdFirstFileID = 7782

// ADHD lists the files of the fetched subjects
type ADHD struct {
	Subjects  []string
	Func      []string // 4D functional runs, one per subject
	Confounds []string // regressor tables, one per subject
}

// FetchADHD fetches the first n subjects of the ADHD resting state sample
func (f *Fetcher) FetchADHD(n int) (*ADHD, error) {
	if n < 1 || n > len(adhdSubjects) {
		return nil, fmt.Errorf("adhd: %d subjects: %w", n, ErrUnsupported)
	}

	ds := &ADHD{}
	var sources []Source
	for i, id := range adhdSubjects[:n] {
		funcName := path.Join("data", id, id+"_rest_tshift_RPI_voreg_mni.nii.gz")
		confName := path.Join("data", id, id+"_regressors.csv")
		sources = append(sources, Source{
			URL:     fmt.Sprintf("%s%d/adhd40_%s.tgz", ADHDBaseURL, adhdFirstFileID+i, id),
			Archive: Tgz,
			Members: []Member{
				{Name: funcName, Dest: path.Join(id, id+"_rest_tshift_RPI_voreg_mni.nii")},
				{Name: confName, Dest: path.Join(id, id+"_regressors.csv")},
			},
		})
		ds.Subjects = append(ds.Subjects, id)
	}

	paths, err := f.Fetch("adhd", sources...)
	if err != nil {
		return nil, fmt.Errorf("adhd: %w", err)
	}

	for i := 0; i < len(paths); i += 2 {
		ds.Func = append(ds.Func, paths[i])
		ds.Confounds = append(ds.Confounds, paths[i+1])
	}

	return ds, nil
}
