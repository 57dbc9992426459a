// Package manifest implements the Manifest Engine component: parsing,
// validating, and persisting OCI image manifests, manifest lists/indexes,
// and the layer-linkage bookkeeping the reference-counting model depends
// on.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	v1 "github.com/opencontainers/image-spec/specs-go/v1"
)

// maxBodySize caps the size of a manifest request body, matching the
// teacher's maxManifestBodySize constant.
const maxBodySize = 4 << 20

// ErrTooLarge is returned when a manifest body exceeds maxBodySize.
var ErrTooLarge = errors.New("manifest: body exceeds maximum size")

// ErrUnsupportedMediaType is returned when a manifest's mediaType or
// schemaVersion names something this engine does not recognize.
var ErrUnsupportedMediaType = errors.New("manifest: unsupported media type")

// Kind distinguishes a single-platform image manifest from a
// multi-platform index/list, since the two have different layer
// linkage: an index's "layers" are other manifests, not blobs.
type Kind int

const (
	KindImage Kind = iota
	KindIndex
)

// Parsed is a manifest that has been unmarshalled and classified, with
// its declared layer and config blob digests extracted for reference
// counting.
type Parsed struct {
	Kind          Kind
	MediaType     string
	SchemaVersion int
	Raw           json.RawMessage
	ConfigDigest  string // empty for an index
	LayerDigests  []string
	Subject       *v1.Descriptor // OCI artifact manifest "subject" field, for referrers
}

type envelope struct {
	SchemaVersion int             `json:"schemaVersion"`
	MediaType     string          `json:"mediaType,omitempty"`
	Config        *v1.Descriptor  `json:"config,omitempty"`
	Layers        []v1.Descriptor `json:"layers,omitempty"`
	Manifests     []v1.Descriptor `json:"manifests,omitempty"`
	Subject       *v1.Descriptor  `json:"subject,omitempty"`
}

// Parse reads up to maxBodySize bytes from r, unmarshals them as a
// manifest envelope, and classifies it as an image manifest or an
// index/list based on the presence of "manifests" vs "layers"/"config".
func Parse(r io.Reader, declaredMediaType string) (*Parsed, error) {
	limited := io.LimitReader(r, maxBodySize+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("manifest: reading body: %w", err)
	}
	if len(body) > maxBodySize {
		return nil, ErrTooLarge
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("manifest: decoding json: %w", err)
	}
	if env.SchemaVersion != 2 {
		return nil, fmt.Errorf("%w: schemaVersion %d", ErrUnsupportedMediaType, env.SchemaVersion)
	}

	mediaType := env.MediaType
	if mediaType == "" {
		mediaType = declaredMediaType
	}

	p := &Parsed{
		MediaType:     mediaType,
		SchemaVersion: env.SchemaVersion,
		Raw:           json.RawMessage(body),
		Subject:       env.Subject,
	}

	switch {
	case len(env.Manifests) > 0 || isIndexMediaType(mediaType):
		p.Kind = KindIndex
		for _, d := range env.Manifests {
			p.LayerDigests = append(p.LayerDigests, d.Digest.String())
		}
	case env.Config != nil || isImageMediaType(mediaType):
		p.Kind = KindImage
		if env.Config != nil {
			p.ConfigDigest = env.Config.Digest.String()
		}
		for _, d := range env.Layers {
			p.LayerDigests = append(p.LayerDigests, d.Digest.String())
		}
	default:
		return nil, ErrUnsupportedMediaType
	}

	return p, nil
}

func isIndexMediaType(mt string) bool {
	return mt == v1.MediaTypeImageIndex || mt == "application/vnd.docker.distribution.manifest.list.v2+json"
}

func isImageMediaType(mt string) bool {
	switch mt {
	case v1.MediaTypeImageManifest,
		v1.MediaTypeImageConfig,
		"application/vnd.docker.distribution.manifest.v2+json",
		"application/vnd.docker.container.image.v1+json":
		return true
	default:
		return mt != "" // an explicit, unrecognized mediaType is still accepted as a leaf image manifest
	}
}

// AllReferencedDigests returns every blob digest a manifest's layer
// linkage needs recorded for reference counting: the config digest (for
// an image manifest) plus every layer digest.
func (p *Parsed) AllReferencedDigests() []string {
	if p.Kind == KindIndex {
		return nil
	}
	digests := make([]string, 0, len(p.LayerDigests)+1)
	if p.ConfigDigest != "" {
		digests = append(digests, p.ConfigDigest)
	}
	digests = append(digests, p.LayerDigests...)
	return digests
}
