package pim

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// CachedModel describes a model directory in the weights cache.
type CachedModel struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// ListCached returns the models in weightsCache that have a config.json, in
// name order. A missing cache directory is an empty cache.
func ListCached(weightsCache string) ([]CachedModel, error) {
	entries, err := os.ReadDir(weightsCache)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []CachedModel
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(weightsCache, e.Name())
		st, err := os.Stat(filepath.Join(dir, configFile))
		if err != nil || !st.Mode().IsRegular() {
			continue
		}
		size, err := dirSize(dir)
		if err != nil {
			return nil, err
		}
		out = append(out, CachedModel{
			Name:    e.Name(),
			Path:    dir,
			Size:    size,
			ModTime: st.ModTime(),
		})
	}
	return out, nil
}

func dirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			info, err := d.Info()
			if err != nil {
				return err
			}
			total += info.Size()
		}
		return nil
	})
	return total, err
}
