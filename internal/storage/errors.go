package storage

import "errors"

var (
	// ErrArtifactMissing means the local file scheduled for upload is gone.
	ErrArtifactMissing = errors.New("artifact file not found")

	// ErrStoreUnavailable means object storage rejected our credentials.
	ErrStoreUnavailable = errors.New("object storage credentials unavailable")

	// ErrUploadFailed covers every other upload failure.
	ErrUploadFailed = errors.New("failed to upload artifact")
)
