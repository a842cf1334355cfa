// Package dataset downloads reference MRI datasets and atlases into a local
// cache directory. Files already present in the cache are never fetched again.
package dataset

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrUnsupported is returned for dataset parameters with no published file
var ErrUnsupported = errors.New("unsupported dataset parameters")

// Archive is the packaging of a remote resource
type Archive int

const (
	// Plain is a single file, stored as is (inflated when it ends in .gz)
	Plain Archive = iota
	// Tgz is a gzip compressed tarball
	Tgz
	// Zip is a zip archive
	Zip
)

// Member maps a path inside an archive to a path relative to the dataset directory.
// For Plain sources Name is ignored.
type Member struct {
	Name string
	Dest string
}

// Source is one remote resource and the files kept from it
type Source struct {
	URL     string
	Archive Archive
	Members []Member
}

// Fetcher downloads sources into DataDir
type Fetcher struct {
	DataDir string
	Client  *http.Client
	Verbose bool
}

// NewFetcher returns a fetcher caching under dataDir
func NewFetcher(dataDir string) *Fetcher {
	return &Fetcher{
		DataDir: dataDir,
		Client:  &http.Client{Timeout: 30 * time.Minute},
		Verbose: true,
	}
}

func (f *Fetcher) logf(format string, args ...interface{}) {
	if f.Verbose {
		log.Printf(format, args...)
	}
}

// Fetch makes sure every member of every source exists under DataDir/dir and
// returns their absolute destinations, in source then member order.
func (f *Fetcher) Fetch(dir string, sources ...Source) ([]string, error) {
	root := filepath.Join(f.DataDir, dir)

	var paths []string
	for _, src := range sources {
		missing := false
		for _, m := range src.Members {
			dst := filepath.Join(root, m.Dest)
			paths = append(paths, dst)
			if _, err := os.Stat(dst); err != nil {
				missing = true
			}
		}

		if !missing {
			continue
		}

		if err := f.download(root, src); err != nil {
			return nil, fmt.Errorf("fetch %s: %w", src.URL, err)
		}
	}

	return paths, nil
}

func (f *Fetcher) download(root string, src Source) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	f.logf("Downloading %s\n", src.URL)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Get(src.URL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(root, ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		return err
	}
	f.logf("Downloaded %d bytes\n", n)

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return err
	}

	switch src.Archive {
	case Tgz:
		return extractTgz(tmp, root, src.Members)
	case Zip:
		return extractZip(tmp, n, root, src.Members)
	default:
		if len(src.Members) != 1 {
			return fmt.Errorf("plain source needs exactly one member, got %d", len(src.Members))
		}
		return install(tmp, filepath.Join(root, src.Members[0].Dest), src.URL)
	}
}
