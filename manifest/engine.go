package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	godigest "github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"

	"github.com/PThorpe92/Floundr/catalog"
	"github.com/PThorpe92/Floundr/digest"
	"github.com/PThorpe92/Floundr/storage"
)

// referenceDigestRegexp-equivalent check: a reference is a digest if it
// parses as one; otherwise it is treated as a tag name. This mirrors
// get_manifest's reference dispatch in the original storage.rs.

// ErrBlobUnknown is returned when a manifest references a layer, config,
// or sub-manifest digest that does not exist within the same repository,
// matching §4.5 step 4's MANIFEST_BLOB_UNKNOWN disposition.
var ErrBlobUnknown = errors.New("manifest: references unknown blob or manifest")

// ErrNotAcceptable is returned by Get when none of the client's accepted
// media types match the stored manifest, matching §4.5 Get's
// MANIFEST_UNKNOWN-on-Accept-mismatch rule.
var ErrNotAcceptable = errors.New("manifest: no acceptable media type")

// Engine implements the Manifest Engine component: parsing and
// validating manifest bytes, persisting them through the Storage Driver,
// and maintaining the Catalog's manifest/manifest_layers/tags rows that
// back reference counting and tag resolution.
type Engine struct {
	store  *catalog.Store
	driver storage.Driver
}

// New constructs an Engine over store and driver.
func New(store *catalog.Store, driver storage.Driver) *Engine {
	return &Engine{store: store, driver: driver}
}

// PutResult reports what Put did, enough for the router to build the
// 201 response's Location and Docker-Content-Digest headers.
type PutResult struct {
	Digest digest.Digest
	Tagged string // the tag upserted, or "" if reference was already a digest
}

// Put implements §4.5's Put operation: parse, validate every referenced
// digest exists in repo, persist the bytes, link layers, and (if
// reference names a tag rather than a digest) upsert that tag.
func (e *Engine) Put(ctx context.Context, repo *catalog.Repository, reference, contentType string, body []byte) (*PutResult, error) {
	if len(body) > maxBodySize {
		return nil, ErrTooLarge
	}

	actual, err := digest.Of(digest.SHA256, body)
	if err != nil {
		return nil, fmt.Errorf("manifest: hashing body: %w", err)
	}

	parsed, err := Parse(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, err
	}

	blobIDs, err := e.resolveReferences(ctx, repo, parsed)
	if err != nil {
		return nil, err
	}

	path, err := e.driver.WriteManifest(ctx, repo.Name, actual.Algorithm.String(), actual.Hex, body)
	if err != nil {
		return nil, fmt.Errorf("manifest: persisting body: %w", err)
	}

	var subjectDigest *string
	if parsed.Subject != nil && parsed.Subject.Digest.String() != "" {
		s := parsed.Subject.Digest.String()
		subjectDigest = &s
	}

	m, err := e.store.PutManifest(ctx, repo.ID, actual.String(), parsed.MediaType, path, int64(len(body)), subjectDigest, blobIDs)
	if err != nil {
		return nil, fmt.Errorf("manifest: recording manifest: %w", err)
	}

	result := &PutResult{Digest: actual}
	if _, err := digest.Parse(reference); err != nil {
		// reference does not parse as a digest: it names a mutable tag.
		if _, err := e.store.PutTag(ctx, repo.ID, m.ID, reference); err != nil {
			return nil, fmt.Errorf("manifest: tagging: %w", err)
		}
		result.Tagged = reference
	}
	return result, nil
}

// resolveReferences verifies every blob or sub-manifest digest a parsed
// manifest names already exists in repo, returning the catalog blob IDs
// to link as manifest_layers. An index's "manifests" entries reference
// other manifests, not blobs, and carry no layer linkage of their own
// (§4.5 step 4's parenthetical).
func (e *Engine) resolveReferences(ctx context.Context, repo *catalog.Repository, parsed *Parsed) ([]int64, error) {
	if parsed.Kind == KindIndex {
		for _, d := range parsed.LayerDigests {
			if _, err := e.store.GetManifestByDigest(ctx, repo.Name, d); err != nil {
				if errors.Is(err, catalog.ErrNotFound) {
					return nil, ErrBlobUnknown
				}
				return nil, err
			}
		}
		return nil, nil
	}

	digests := parsed.AllReferencedDigests()
	blobIDs := make([]int64, 0, len(digests))
	for _, d := range digests {
		b, err := e.store.GetBlob(ctx, repo.Name, d)
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				return nil, ErrBlobUnknown
			}
			return nil, err
		}
		blobIDs = append(blobIDs, b.ID)
	}
	return blobIDs, nil
}

// Get implements §4.5's Get/Head operation: resolve reference (digest or
// tag), check it against the client's Accept list, and return the exact
// bytes previously persisted by Put.
func (e *Engine) Get(ctx context.Context, repo *catalog.Repository, reference string, accept []string) (*catalog.Manifest, []byte, error) {
	m, err := e.store.Resolve(ctx, repo.Name, reference)
	if err != nil {
		return nil, nil, err
	}
	if len(accept) > 0 && !acceptsMediaType(accept, m.MediaType) {
		return nil, nil, ErrNotAcceptable
	}
	data, err := e.driver.ReadManifest(ctx, m.FilePath)
	if err != nil {
		return nil, nil, fmt.Errorf("manifest: reading body: %w", err)
	}
	return m, data, nil
}

func acceptsMediaType(accept []string, mediaType string) bool {
	for _, a := range accept {
		if a == "*/*" || a == mediaType {
			return true
		}
	}
	return false
}

// Delete implements §4.5's Delete operation: resolve reference (digest or
// tag, matching Get's resolution order), remove the manifest row
// (cascading manifest_layers and tags and decrementing referenced blobs'
// ref_count via the catalog transaction), and remove the storage driver's
// copy.
func (e *Engine) Delete(ctx context.Context, repo *catalog.Repository, reference string) error {
	m, err := e.store.Resolve(ctx, repo.Name, reference)
	if err != nil {
		return err
	}
	if err := e.store.DeleteManifest(ctx, repo.Name, m.Digest); err != nil {
		return err
	}
	if err := e.driver.DeleteManifest(ctx, m.FilePath); err != nil {
		return fmt.Errorf("manifest: deleting body: %w", err)
	}
	return nil
}

// ListTags implements §4.5's List tags operation.
func (e *Engine) ListTags(ctx context.Context, repo *catalog.Repository, n int, last string) ([]string, error) {
	return e.store.ListTags(ctx, repo.Name, n, last)
}

// Referrers implements §4.5's Referrers operation: an OCI image index
// listing every manifest in repo whose subject points at digestStr.
func (e *Engine) Referrers(ctx context.Context, repo *catalog.Repository, digestStr, artifactType string) (*v1.Index, error) {
	rows, err := e.store.Referrers(ctx, repo.Name, digestStr, artifactType)
	if err != nil {
		return nil, err
	}
	idx := &v1.Index{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: v1.MediaTypeImageIndex,
	}
	for _, m := range rows {
		idx.Manifests = append(idx.Manifests, v1.Descriptor{
			MediaType: m.MediaType,
			Digest:    mustParseDigest(m.Digest),
			Size:      m.Size,
		})
	}
	return idx, nil
}

func mustParseDigest(s string) godigest.Digest {
	return godigest.Digest(s)
}
