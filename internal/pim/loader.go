// Package pim loads pretrained Perceptual Information Metric models.
//
// Trained models are published as zip archives named after the model
// ("pim-1", "pim-5"). LoadTrained fetches the archive once into a local
// weights cache and reads the model from there on every later call:
//
//	<weights_cache>/<model>/config.json
//	<weights_cache>/<model>/weights
//
// The cache is assumed to have a single writer. Nothing here invalidates it;
// delete the model directory to force a fresh download.
package pim

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samcharles93/perceptual/internal/logger"
)

const (
	// DefaultURLPrefix is where trained model archives are published.
	DefaultURLPrefix = "https://storage.googleapis.com/tensorflow_compression/pim"

	// TestURLPrefix makes LoadTrained return an untrained model built from
	// DefaultParams without any network or filesystem access.
	TestURLPrefix = "test"

	configFile  = "config.json"
	weightsPath = "weights"
)

// DefaultWeightsCache returns the cache directory used when none is given.
func DefaultWeightsCache() string {
	return filepath.Join(os.TempDir(), "pim_weights")
}

// HTTPClient is the subset of *http.Client the loader needs.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Loader resolves model names to loaded models.
type Loader struct {
	urlPrefix  string
	httpClient HTTPClient
	log        logger.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithURLPrefix sets the base URL archives are fetched from. TestURLPrefix
// disables all I/O.
func WithURLPrefix(prefix string) LoaderOption {
	return func(l *Loader) {
		l.urlPrefix = strings.TrimRight(prefix, "/")
	}
}

// WithHTTPClient sets the client used for downloads. The default is
// http.DefaultClient, which imposes no timeout.
func WithHTTPClient(c HTTPClient) LoaderOption {
	return func(l *Loader) {
		if c != nil {
			l.httpClient = c
		}
	}
}

// WithLogger sets a logger for download progress. Logging is off by default.
func WithLogger(log logger.Logger) LoaderOption {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// NewLoader returns a Loader fetching from DefaultURLPrefix.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		urlPrefix:  DefaultURLPrefix,
		httpClient: http.DefaultClient,
		log:        logger.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// URLPrefix returns the base URL archives are fetched from.
func (l *Loader) URLPrefix() string { return l.urlPrefix }

// TestMode reports whether the loader skips all I/O.
func (l *Loader) TestMode() bool { return l.urlPrefix == TestURLPrefix }

// LoadTrained loads modelName with a default Loader. An empty weightsCache
// means DefaultWeightsCache.
func LoadTrained(ctx context.Context, modelName, weightsCache string) (*Model, error) {
	return NewLoader().LoadTrained(ctx, modelName, weightsCache)
}

// LoadTrained returns the trained model modelName, downloading and extracting
// its archive into weightsCache first if weightsCache/modelName does not
// exist. Errors are not retried.
func (l *Loader) LoadTrained(ctx context.Context, modelName, weightsCache string) (*Model, error) {
	if l.TestMode() {
		return NewModel(DefaultParams())
	}
	if err := ValidateName(modelName); err != nil {
		return nil, err
	}
	if weightsCache == "" {
		weightsCache = DefaultWeightsCache()
	}

	dir, err := l.Ensure(ctx, modelName, weightsCache)
	if err != nil {
		return nil, err
	}

	params, err := ReadParams(filepath.Join(dir, configFile))
	if err != nil {
		return nil, err
	}
	model, err := NewModel(params)
	if err != nil {
		return nil, err
	}
	if err := model.LoadWeights(filepath.Join(dir, weightsPath)); err != nil {
		return nil, err
	}
	l.log.Debug("loaded model", "model", modelName, "weights", model.WeightsSource(), "parameters", model.NumParameters())
	return model, nil
}

// Ensure makes weightsCache/modelName exist, downloading the archive on a
// cache miss, and returns its path. It does nothing in test mode.
func (l *Loader) Ensure(ctx context.Context, modelName, weightsCache string) (string, error) {
	if err := ValidateName(modelName); err != nil {
		return "", err
	}
	dir := filepath.Join(weightsCache, modelName)
	if l.TestMode() {
		return dir, nil
	}

	_, err := os.Stat(dir)
	switch {
	case err == nil:
		l.log.Debug("weights cache hit", "model", modelName, "path", dir)
		return dir, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", err
	}

	url := l.ArchiveURL(modelName)
	l.log.Info("downloading model weights", "model", modelName, "url", url)
	start := time.Now()
	data, err := l.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	files, err := extractZip(data, weightsCache)
	if err != nil {
		return "", err
	}
	l.log.Info("extracted model weights", "model", modelName, "path", weightsCache,
		"files", files, "bytes", len(data), "elapsed", time.Since(start).Round(time.Millisecond))

	if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("%w: archive for %s did not contain %s/", ErrArchive, modelName, modelName)
	}
	return dir, nil
}

// ArchiveURL returns {URLPrefix}/{modelName}.zip.
func (l *Loader) ArchiveURL(modelName string) string {
	return l.urlPrefix + "/" + modelName + ".zip"
}

// ValidateName rejects names that would resolve outside the cache directory.
func ValidateName(name string) error {
	switch {
	case strings.TrimSpace(name) == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}
