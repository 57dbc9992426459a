// Package errcode implements the OCI Distribution Specification's error
// envelope: {"errors": [{"code", "message", "detail"}]}, translating the
// registry core's domain errors into the wire form §6 and §7 describe,
// grounded on the original implementation's codes.rs Code enum.
package errcode

import (
	"encoding/json"
	"net/http"
)

// Code names one of the OCI-specified error identifiers.
type Code string

const (
	BlobUnknown         Code = "BLOB_UNKNOWN"
	BlobUploadInvalid   Code = "BLOB_UPLOAD_INVALID"
	BlobUploadUnknown   Code = "BLOB_UPLOAD_UNKNOWN"
	DigestInvalid       Code = "DIGEST_INVALID"
	ManifestBlobUnknown Code = "MANIFEST_BLOB_UNKNOWN"
	ManifestInvalid     Code = "MANIFEST_INVALID"
	ManifestUnknown     Code = "MANIFEST_UNKNOWN"
	NameInvalid         Code = "NAME_INVALID"
	NameUnknown         Code = "NAME_UNKNOWN"
	SizeInvalid         Code = "SIZE_INVALID"
	Unauthorized        Code = "UNAUTHORIZED"
	Denied              Code = "DENIED"
	Unsupported         Code = "UNSUPPORTED"
	TooManyRequests     Code = "TOOMANYREQUESTS"
	RangeInvalid        Code = "RANGE_INVALID"
	Unknown             Code = "UNKNOWN"
)

// descriptions mirrors codes.rs's Code::description, the human-readable
// message every envelope entry carries alongside its machine code.
var descriptions = map[Code]string{
	BlobUnknown:         "blob unknown to registry",
	BlobUploadInvalid:   "blob upload invalid",
	BlobUploadUnknown:   "blob upload unknown to registry",
	DigestInvalid:       "provided digest did not match uploaded content",
	ManifestBlobUnknown: "manifest references a manifest or blob unknown to registry",
	ManifestInvalid:     "manifest invalid",
	ManifestUnknown:     "manifest unknown to registry",
	NameInvalid:         "invalid repository name",
	NameUnknown:         "repository name not known to registry",
	SizeInvalid:         "provided length did not match content length",
	Unauthorized:        "authentication required",
	Denied:              "requested access to the resource is denied",
	Unsupported:         "the operation is unsupported",
	TooManyRequests:     "too many requests",
	RangeInvalid:        "disallowed or unsatisfiable byte range",
	Unknown:             "unknown error",
}

// statusCodes mirrors codes.rs's Code::status_code, the HTTP status each
// error code maps to per §6's error table.
var statusCodes = map[Code]int{
	BlobUnknown:         http.StatusNotFound,
	BlobUploadInvalid:   http.StatusBadRequest,
	BlobUploadUnknown:   http.StatusNotFound,
	DigestInvalid:       http.StatusBadRequest,
	ManifestBlobUnknown: http.StatusBadRequest,
	ManifestInvalid:     http.StatusBadRequest,
	ManifestUnknown:     http.StatusNotFound,
	NameInvalid:         http.StatusBadRequest,
	NameUnknown:         http.StatusNotFound,
	SizeInvalid:         http.StatusBadRequest,
	Unauthorized:        http.StatusUnauthorized,
	Denied:              http.StatusForbidden,
	Unsupported:         http.StatusBadRequest,
	TooManyRequests:     http.StatusTooManyRequests,
	RangeInvalid:        http.StatusRequestedRangeNotSatisfiable,
	Unknown:             http.StatusInternalServerError,
}

// Status returns the HTTP status code associated with c.
func (c Code) Status() int {
	if s, ok := statusCodes[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

func (c Code) message() string {
	if m, ok := descriptions[c]; ok {
		return m
	}
	return "unknown error"
}

// Error is one entry of the OCI error envelope.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// Errors satisfies the error interface and is directly JSON-marshalable
// into the {"errors": [...]} envelope §6 specifies.
type Errors struct {
	List []Error `json:"errors"`
}

func (e *Errors) Error() string {
	if len(e.List) == 0 {
		return "errcode: empty error list"
	}
	return e.List[0].Message
}

// New constructs a single-entry Errors value for code, attaching detail
// (which may be nil).
func New(code Code, detail any) *Errors {
	return &Errors{List: []Error{{Code: code, Message: code.message(), Detail: detail}}}
}

// Status returns the HTTP status the first (and typically only) error in
// e maps to.
func (e *Errors) Status() int {
	if len(e.List) == 0 {
		return http.StatusInternalServerError
	}
	return e.List[0].Code.Status()
}

// WriteResponse writes e as the OCI JSON error envelope with the status
// its code maps to, setting Content-Type as the spec's examples do.
func WriteResponse(w http.ResponseWriter, e *Errors) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status())
	_ = json.NewEncoder(w).Encode(e)
}
