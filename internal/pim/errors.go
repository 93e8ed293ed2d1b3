package pim

import "errors"

// Sentinel errors for loading PIM models. Use errors.Is to classify; the
// returned errors wrap the underlying cause.
var (
	// ErrInvalidName indicates a model name that cannot be used as a cache
	// directory name.
	ErrInvalidName = errors.New("pim: invalid model name")

	// ErrDownload indicates the weights archive could not be fetched.
	ErrDownload = errors.New("pim: download failed")

	// ErrNotFound accompanies ErrDownload when the server has no archive for
	// the requested model.
	ErrNotFound = errors.New("pim: model not found")

	// ErrArchive indicates the weights archive could not be extracted.
	ErrArchive = errors.New("pim: invalid weights archive")

	// ErrConfig indicates a missing, malformed or out-of-range config.json.
	ErrConfig = errors.New("pim: invalid model config")

	// ErrWeights indicates the weight file could not be loaded.
	ErrWeights = errors.New("pim: invalid model weights")
)
