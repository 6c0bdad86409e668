package extract

import "errors"

var (
	// ErrUnsupportedFormat means the file extension is outside the allowed set.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtractionFailed means a supported file could not be read or parsed.
	ErrExtractionFailed = errors.New("content extraction failed")
)
