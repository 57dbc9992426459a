package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/PThorpe92/Floundr/internal/dcontext"
)

// LocalDriver persists blobs and manifests on the local filesystem, laid
// out content-addressed under root: blobs at
// <root>/blobs/<algo>/<hex[0:2]>/<hex> and manifests at
// <root>/manifests/<repo>/<algo>/<hex>, matching the layout the original
// Rust storage driver (storage.rs) kept per-repository, generalized to the
// fully content-addressed scheme the core specification requires.
type LocalDriver struct {
	root string
}

// NewLocalDriver constructs a LocalDriver rooted at root.
func NewLocalDriver(root string) *LocalDriver {
	return &LocalDriver{root: root}
}

func (d *LocalDriver) blobPath(digest string) (string, error) {
	algo, hex, ok := splitDigest(digest)
	if !ok {
		return "", fmt.Errorf("storage: malformed digest %q", digest)
	}
	if len(hex) < 2 {
		return "", fmt.Errorf("storage: malformed digest %q", digest)
	}
	return filepath.Join(d.root, "blobs", algo, hex[:2], hex), nil
}

func splitDigest(digest string) (algo, hex string, ok bool) {
	parts := strings.SplitN(digest, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (d *LocalDriver) OpenAppend(ctx context.Context, path string) (io.WriteCloser, error) {
	full := filepath.Join(d.root, path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	dcontext.GetLoggerWithField(ctx, "path", full).Debug("opened staging file for append")
	return f, nil
}

func (d *LocalDriver) StageSize(ctx context.Context, path string) (int64, error) {
	full := filepath.Join(d.root, path)
	info, err := os.Stat(full)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (d *LocalDriver) OpenReadStaging(ctx context.Context, path string) (io.ReadCloser, error) {
	full := filepath.Join(d.root, path)
	f, err := os.Open(full)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return f, err
}

func (d *LocalDriver) Finalize(ctx context.Context, stagingPath, digest string) (string, error) {
	final, err := d.blobPath(digest)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(final); err == nil {
		// Deduplication hit: another commit already finalized this digest.
		_ = os.Remove(filepath.Join(d.root, stagingPath))
		return final, nil
	}
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return "", err
	}
	src := filepath.Join(d.root, stagingPath)
	if err := syncFile(src); err != nil {
		return "", err
	}
	if err := os.Rename(src, final); err != nil {
		if os.IsExist(err) {
			_ = os.Remove(src)
			return final, nil
		}
		return "", err
	}
	return final, nil
}

// syncFile flushes a file's contents to stable storage before the rename
// that makes it visible under its final content-addressed name, matching
// the "all writes are buffered and flushed before rename" requirement.
func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

func (d *LocalDriver) Read(ctx context.Context, digest string, rng *ByteRange) (io.ReadCloser, error) {
	path, err := d.blobPath(digest)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if rng == nil {
		return f, nil
	}
	if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}
	return &limitedReadCloser{r: io.LimitReader(f, rng.End-rng.Start+1), c: f}, nil
}

type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error               { return l.c.Close() }

func (d *LocalDriver) Size(ctx context.Context, digest string) (int64, error) {
	path, err := d.blobPath(digest)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (d *LocalDriver) Delete(ctx context.Context, digest string) error {
	path, err := d.blobPath(digest)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (d *LocalDriver) DeleteStaging(ctx context.Context, stagingPath string) error {
	err := os.Remove(filepath.Join(d.root, stagingPath))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *LocalDriver) ManifestPath(repo, algo, hex string) string {
	return filepath.Join(d.root, "manifests", repo, algo, hex)
}

func (d *LocalDriver) WriteManifest(ctx context.Context, repo, algo, hex string, data []byte) (string, error) {
	path := d.ManifestPath(repo, algo, hex)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", err
	}
	if err := syncFile(tmp); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return path, nil
}

func (d *LocalDriver) ReadManifest(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	return data, err
}

func (d *LocalDriver) DeleteManifest(ctx context.Context, path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d *LocalDriver) DirSize(ctx context.Context, repo string) (int64, error) {
	var total int64
	root := filepath.Join(d.root, "manifests", repo)
	_ = filepath.Walk(root, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, nil
}
