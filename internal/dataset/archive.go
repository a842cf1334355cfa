package dataset

import (
	"archive/tar"
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	gzip "github.com/klauspost/pgzip"
)

// install writes r to dst through a temp file. Data named *.gz is inflated
// unless dst keeps the .gz suffix.
func install(r io.Reader, dst string, name string) error {
	if strings.HasSuffix(name, ".gz") && !strings.HasSuffix(dst, ".gz") {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("inflate %s: %w", name, err)
		}
		defer zr.Close()
		r = zr
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("write %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, dst)
}

// wanted indexes members by their archive path
func wanted(members []Member) map[string]Member {
	byName := make(map[string]Member, len(members))
	for _, m := range members {
		byName[path.Clean(m.Name)] = m
	}
	return byName
}

func extractTgz(r io.Reader, root string, members []Member) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("open tgz: %w", err)
	}
	defer zr.Close()

	byName := wanted(members)
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read tgz: %w", err)
		}

		m, ok := byName[path.Clean(hdr.Name)]
		if !ok || hdr.Typeflag != tar.TypeReg {
			continue
		}
		if err := install(tr, filepath.Join(root, m.Dest), hdr.Name); err != nil {
			return err
		}
		delete(byName, path.Clean(hdr.Name))
	}

	return missingMembers(byName)
}

func extractZip(r io.ReaderAt, size int64, root string, members []Member) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("open zip: %w", err)
	}

	byName := wanted(members)
	for _, file := range zr.File {
		m, ok := byName[path.Clean(file.Name)]
		if !ok {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return fmt.Errorf("read zip: %w", err)
		}
		err = install(rc, filepath.Join(root, m.Dest), file.Name)
		rc.Close()
		if err != nil {
			return err
		}
		delete(byName, path.Clean(file.Name))
	}

	return missingMembers(byName)
}

func missingMembers(left map[string]Member) error {
	if len(left) == 0 {
		return nil
	}
	names := make([]string, 0, len(left))
	for name := range left {
		names = append(names, name)
	}
	return fmt.Errorf("archive lacks %s", strings.Join(names, ", "))
}
