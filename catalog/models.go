package catalog

import "time"

// Repository is a named namespace blobs, manifests, and tags are scoped
// under. Visibility (IsPublic) governs whether an anonymous pull is
// allowed without a token.
type Repository struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	IsPublic  bool      `db:"is_public"`
	CreatedAt time.Time `db:"created_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

// RepositoryStats augments Repository with the aggregate counts the
// catalog listing endpoint reports alongside disk usage.
type RepositoryStats struct {
	Repository
	BlobCount     int64 `db:"blob_count"`
	TagCount      int64 `db:"tag_count"`
	ManifestCount int64 `db:"manifest_count"`
	DiskUsage     int64 `db:"-"`
	Tags          []string
}

// Blob is a content-addressed object linked to the repository it was
// pushed under.
type Blob struct {
	ID           int64     `db:"id"`
	RepositoryID int64     `db:"repository_id"`
	Digest       string    `db:"digest"`
	MediaType    string    `db:"media_type"`
	Size         int64     `db:"size"`
	FilePath     string    `db:"file_path"`
	RefCount     int64     `db:"ref_count"`
	CreatedAt    time.Time `db:"created_at"`
}

// UploadState names a position in the upload session state machine.
type UploadState string

const (
	UploadOpen      UploadState = "open"
	UploadCommitted UploadState = "committed"
	UploadCancelled UploadState = "cancelled"
)

// Upload is a chunked blob upload session in progress against a
// repository.
type Upload struct {
	ID               int64       `db:"id"`
	RepositoryID     int64       `db:"repository_id"`
	UUID             string      `db:"uuid"`
	FilePath         string      `db:"file_path"`
	State            UploadState `db:"state"`
	ChunkCount       int64       `db:"chunk_count"`
	SizeAtLastChunk  int64       `db:"size_at_last_chunk"`
	DigestAlgorithm  string      `db:"digest_algorithm"`
	MountFromDigest  *string     `db:"mount_from_digest"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

// Manifest is an image manifest, manifest list, or artifact manifest
// persisted under a repository.
type Manifest struct {
	ID             int64     `db:"id"`
	RepositoryID   int64     `db:"repository_id"`
	Digest         string    `db:"digest"`
	MediaType      string    `db:"media_type"`
	SubjectDigest  *string   `db:"subject_digest"`
	Size           int64     `db:"size"`
	FilePath       string    `db:"file_path"`
	CreatedAt      time.Time `db:"created_at"`
}

// ManifestLayer links a manifest to a blob it references, used for
// reference counting when a blob is considered for deletion.
type ManifestLayer struct {
	ID         int64     `db:"id"`
	ManifestID int64     `db:"manifest_id"`
	BlobID     int64     `db:"blob_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// Tag is a mutable name bound to a manifest digest within a repository.
type Tag struct {
	ID           int64     `db:"id"`
	RepositoryID int64     `db:"repository_id"`
	ManifestID   int64     `db:"manifest_id"`
	Tag          string    `db:"tag"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// User is an authenticated principal.
type User struct {
	ID        string    `db:"id"`
	Email     string    `db:"email"`
	Password  string    `db:"password" json:"-"`
	IsAdmin   bool      `db:"is_admin"`
	CreatedAt time.Time `db:"created_at" json:"-"`
}

// Client is an issued API key scoped to a user, used by non-interactive
// callers (CI pipelines, the TUI client) in place of a password login.
type Client struct {
	ID        int64     `db:"id"`
	ClientID  string    `db:"client_id"`
	UserID    string    `db:"user_id"`
	Secret    string    `db:"secret" json:"-"`
	CreatedAt time.Time `db:"created_at"`
}

// RepositoryScope records the actions (a comma-joined subset of
// pull/push/delete) a user holds against a repository.
type RepositoryScope struct {
	ID           int64  `db:"id"`
	UserID       string `db:"user_id"`
	RepositoryID int64  `db:"repository_id"`
	Actions      string `db:"actions"`
}

// Token is an audit record of a bearer token issued to account, carrying
// the narrowed scope string actually granted (the intersection of what
// was requested and what the account holds), matching tokens.rs's
// {token, account, client_id, expires} shape named in the data model.
// The JWT itself is self-validating; this row exists so issued tokens
// can be listed or revoked independently of decoding every live token.
type Token struct {
	ID        int64     `db:"id"`
	Token     string    `db:"token"`
	Account   string    `db:"account"`
	ClientID  *string   `db:"client_id"`
	Scope     string    `db:"scope"`
	IssuedAt  time.Time `db:"issued_at"`
	ExpiresAt time.Time `db:"expires_at"`
}
