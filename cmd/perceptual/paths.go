package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/samcharles93/perceptual/internal/pim"
)

const (
	envConfig       = "PERCEPTUAL_CONFIG"
	envWeightsCache = "PERCEPTUAL_WEIGHTS_CACHE"
	envURLPrefix    = "PERCEPTUAL_URL_PREFIX"
)

// resolveWeightsCache returns the cache directory to use: dir with a leading
// "~/" expanded, or the loader default when dir is empty.
func resolveWeightsCache(dir string) string {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return pim.DefaultWeightsCache()
	}
	return filepath.Clean(expandHome(dir))
}

// resolveURLPrefix returns prefix, or the published archive location when
// it is empty.
func resolveURLPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return pim.DefaultURLPrefix
	}
	return prefix
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
