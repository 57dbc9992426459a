// Package storage implements the Storage Driver component: byte-level,
// content-addressed persistence of blobs and manifests. The core depends
// only on the Driver capability set below, so a second backend (a future
// object store) can be swapped in without touching the catalog or the
// upload session manager.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Read/Size/Delete when no content exists at
// the requested digest or path.
var ErrNotFound = errors.New("storage: not found")

// ByteRange identifies an inclusive byte range [Start, End], as
// used by the blob GET Range header and the upload chunk Content-Range
// header.
type ByteRange struct {
	Start, End int64
}

// Driver is the capability set the core storage concern depends on. Two
// variants exist: the local filesystem driver (in scope, fully
// implemented) and a placeholder S3 driver (named as an out-of-scope
// external collaborator by the core specification, wired here only so the
// interface boundary has a concrete body).
type Driver interface {
	// OpenAppend returns a writer positioned to append to the staging file
	// at path, creating it (and any parent directories) if necessary.
	OpenAppend(ctx context.Context, path string) (io.WriteCloser, error)

	// StageSize returns the current size of the staging file at path, or 0
	// if it does not yet exist.
	StageSize(ctx context.Context, path string) (int64, error)

	// OpenReadStaging opens the staging file at path for reading from the
	// beginning, used to rebuild hash state for an upload session
	// recovered after a restart.
	OpenReadStaging(ctx context.Context, path string) (io.ReadCloser, error)

	// Finalize atomically moves the staging file at stagingPath to the
	// content-addressed location for digest, returning the final path. If
	// content already exists at that address (a deduplication hit), the
	// staging file is discarded and the existing path is returned.
	Finalize(ctx context.Context, stagingPath, digest string) (string, error)

	// Read returns the bytes stored at digest, optionally restricted to a
	// byte range.
	Read(ctx context.Context, digest string, rng *ByteRange) (io.ReadCloser, error)

	// Size returns the size in bytes of the content stored at digest.
	Size(ctx context.Context, digest string) (int64, error)

	// Delete removes the content stored at digest.
	Delete(ctx context.Context, digest string) error

	// DeleteStaging removes a staging file (cancel / failed commit).
	DeleteStaging(ctx context.Context, stagingPath string) error

	// ManifestPath returns the on-disk location a manifest for repo/digest
	// would be stored at, following the layout in the core specification.
	ManifestPath(repo, algo, hex string) string

	// WriteManifest persists manifest bytes for repo at algo:hex, returning
	// the final path.
	WriteManifest(ctx context.Context, repo, algo, hex string, data []byte) (string, error)

	// ReadManifest returns the bytes stored at path.
	ReadManifest(ctx context.Context, path string) ([]byte, error)

	// DeleteManifest removes the manifest file at path.
	DeleteManifest(ctx context.Context, path string) error

	// DirSize returns the total size in bytes of everything stored under
	// repo, used for the repository disk-usage report.
	DirSize(ctx context.Context, repo string) (int64, error)
}
