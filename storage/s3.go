package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// ErrUnsupported is returned by S3Driver operations the placeholder
// implementation does not carry — crash recovery (staging resumption
// across process restarts) in particular needs a multipart-upload-backed
// OpenAppend this driver does not implement. The core specification names
// the S3 backend as an out-of-scope external collaborator; this driver
// exists only so the Driver interface boundary has a second, real body.
var ErrUnsupported = errors.New("storage: s3 driver does not support this operation")

// S3Driver is a minimal Driver backed by an S3-compatible bucket. It
// implements blob Read/Size/Delete, a direct PutBlob, and manifest
// write/read/delete; the staging operations (OpenAppend, StageSize,
// OpenReadStaging, Finalize, DeleteStaging) and DirSize return
// ErrUnsupported, so no blob push that goes through staging succeeds.
type S3Driver struct {
	bucket string
	prefix string
	client *s3.S3
}

// NewS3Driver constructs an S3Driver for bucket, rooted at prefix within
// that bucket.
func NewS3Driver(region, bucket, prefix string) (*S3Driver, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("storage: creating aws session: %w", err)
	}
	return &S3Driver{bucket: bucket, prefix: prefix, client: s3.New(sess)}, nil
}

func (d *S3Driver) key(parts ...string) string {
	k := d.prefix
	for _, p := range parts {
		k += "/" + p
	}
	return k
}

// OpenAppend is unsupported: S3 has no native append; chunked staging for
// this backend would require the S3 multipart upload API, which is out of
// scope for the placeholder.
func (d *S3Driver) OpenAppend(ctx context.Context, path string) (io.WriteCloser, error) {
	return nil, ErrUnsupported
}

func (d *S3Driver) StageSize(ctx context.Context, path string) (int64, error) {
	return 0, ErrUnsupported
}

func (d *S3Driver) OpenReadStaging(ctx context.Context, path string) (io.ReadCloser, error) {
	return nil, ErrUnsupported
}

// Finalize is unsupported: with no OpenAppend there is no staged content
// to move to a content-addressed key.
func (d *S3Driver) Finalize(ctx context.Context, stagingPath, digest string) (string, error) {
	return "", ErrUnsupported
}

// PutBlob uploads content directly to the content-addressed key for
// digest, without the staging-then-finalize sequence OpenAppend/Finalize
// implement for the local driver. It is not part of the Driver interface
// and no server path calls it: blob pushes go through the upload manager.
func (d *S3Driver) PutBlob(ctx context.Context, digest string, content []byte) (string, error) {
	algo, hex, ok := splitDigest(digest)
	if !ok {
		return "", fmt.Errorf("storage: malformed digest %q", digest)
	}
	key := d.key("blobs", algo, hex[:2], hex)
	_, err := d.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return "", fmt.Errorf("storage: s3 PutObject: %w", err)
	}
	return key, nil
}

func (d *S3Driver) Read(ctx context.Context, digest string, rng *ByteRange) (io.ReadCloser, error) {
	algo, hex, ok := splitDigest(digest)
	if !ok {
		return nil, fmt.Errorf("storage: malformed digest %q", digest)
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key("blobs", algo, hex[:2], hex)),
	}
	if rng != nil {
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rng.Start, rng.End))
	}
	out, err := d.client.GetObject(input)
	if err != nil {
		return nil, fmt.Errorf("storage: s3 GetObject: %w", err)
	}
	return out.Body, nil
}

func (d *S3Driver) Size(ctx context.Context, digest string) (int64, error) {
	algo, hex, ok := splitDigest(digest)
	if !ok {
		return 0, fmt.Errorf("storage: malformed digest %q", digest)
	}
	out, err := d.client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key("blobs", algo, hex[:2], hex)),
	})
	if err != nil {
		return 0, fmt.Errorf("storage: s3 HeadObject: %w", err)
	}
	return aws.Int64Value(out.ContentLength), nil
}

func (d *S3Driver) Delete(ctx context.Context, digest string) error {
	algo, hex, ok := splitDigest(digest)
	if !ok {
		return fmt.Errorf("storage: malformed digest %q", digest)
	}
	_, err := d.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key("blobs", algo, hex[:2], hex)),
	})
	return err
}

func (d *S3Driver) DeleteStaging(ctx context.Context, stagingPath string) error {
	return ErrUnsupported
}

func (d *S3Driver) ManifestPath(repo, algo, hex string) string {
	return d.key("manifests", repo, algo, hex)
}

func (d *S3Driver) WriteManifest(ctx context.Context, repo, algo, hex string, data []byte) (string, error) {
	key := d.ManifestPath(repo, algo, hex)
	_, err := d.client.PutObject(&s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return "", fmt.Errorf("storage: s3 PutObject: %w", err)
	}
	return key, nil
}

func (d *S3Driver) ReadManifest(ctx context.Context, path string) ([]byte, error) {
	out, err := d.client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(path),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: s3 GetObject: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (d *S3Driver) DeleteManifest(ctx context.Context, path string) error {
	_, err := d.client.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(path),
	})
	return err
}

func (d *S3Driver) DirSize(ctx context.Context, repo string) (int64, error) {
	return 0, ErrUnsupported
}
