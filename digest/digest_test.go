package digest

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValid(t *testing.T) {
	d, err := Parse("sha256:" + strings.Repeat("a", 64))
	require.NoError(t, err)
	require.Equal(t, SHA256, d.Algorithm)
}

func TestParseInvalidAlgorithm(t *testing.T) {
	_, err := Parse("md5:" + strings.Repeat("a", 32))
	require.ErrorIs(t, err, ErrInvalidDigest)
}

func TestParseWrongLength(t *testing.T) {
	_, err := Parse("sha256:abc")
	require.ErrorIs(t, err, ErrInvalidDigest)
}

func TestHasherMatchesOneShot(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 300)
	h, err := NewHasher(SHA256)
	require.NoError(t, err)
	h.Update(data[:100])
	h.Update(data[100:])
	streamed := h.Finalize()

	oneShot, err := Of(SHA256, data)
	require.NoError(t, err)
	require.Equal(t, oneShot, streamed)
}

func TestVerifyMismatch(t *testing.T) {
	actual, _ := Of(SHA256, []byte("hello"))
	err := Verify("sha256:"+strings.Repeat("0", 64), actual)
	require.ErrorIs(t, err, ErrMismatch)
}

func TestRehashReconstructsPrefix(t *testing.T) {
	data := []byte("chunked-upload-bytes")
	h, err := Rehash(SHA256, bytes.NewReader(data))
	require.NoError(t, err)
	want, _ := Of(SHA256, data)
	require.Equal(t, want, h.Finalize())
}
