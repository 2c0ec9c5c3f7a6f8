package assets

import (
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveSignsAndExpires(t *testing.T) {
	r := New("https://assets.example.com", []byte("secret"), 5*time.Minute)
	base := time.Unix(1_700_000_000, 0)
	r.now = func() time.Time { return base }

	resolved, err := r.Resolve("subtasks/42/ref.png")
	require.NoError(t, err)

	u, err := url.Parse(resolved)
	require.NoError(t, err)
	assert.Equal(t, "/subtasks/42/ref.png", u.Path)

	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	require.NoError(t, err)
	assert.Equal(t, base.Add(5*time.Minute).Unix(), expires)

	sig := u.Query().Get("sig")
	assert.True(t, r.Verify("subtasks/42/ref.png", expires, sig))

	// Past the lifetime the signature no longer verifies.
	r.now = func() time.Time { return base.Add(6 * time.Minute) }
	assert.False(t, r.Verify("subtasks/42/ref.png", expires, sig))
}

func TestResolvePassesThroughAbsoluteURLs(t *testing.T) {
	r := New("https://assets.example.com", []byte("secret"), time.Minute)
	resolved, err := r.Resolve("https://cdn.example.com/x.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/x.png", resolved)
}

func TestResolveRejectsEmptyRef(t *testing.T) {
	r := New("https://assets.example.com", []byte("secret"), time.Minute)
	_, err := r.Resolve("")
	assert.Error(t, err)
}

func TestTamperedSignatureFailsVerify(t *testing.T) {
	r := New("https://assets.example.com", []byte("secret"), time.Minute)
	expires := time.Now().Add(time.Minute).Unix()
	assert.False(t, r.Verify("a.png", expires, "deadbeef"))
}
