package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Footprint maps each measured storage path to its size in bytes.
type Footprint map[string]int64

// Total sums every measured path.
func (f Footprint) Total() int64 {
	var n int64
	for _, size := range f {
		n += size
	}
	return n
}

// MeasurePaths sizes the catalog database, the title index directory and
// the snapshot files. Directories are summed recursively. Empty and missing
// paths are left out of the result.
func MeasurePaths(paths ...string) (Footprint, error) {
	fp := make(Footprint, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, seen := fp[p]; seen {
			continue
		}
		size, err := pathSize(p)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		fp[p] = size
	}
	return fp, nil
}

func pathSize(root string) (int64, error) {
	info, err := os.Stat(root)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
		}
		return nil
	})
	return total, err
}
