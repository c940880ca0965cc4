package s3

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gigsocket/internal/app/apperr"
)

// fakeS3 answers object HEAD requests for the keys it holds.
func fakeS3(t *testing.T, objects map[string]bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && objects[r.URL.Path] {
			w.Header().Set("Content-Length", "4")
			w.Header().Set("Content-Type", "image/png")
			w.Header().Set("ETag", `"abc"`)
			w.Header().Set("Last-Modified", time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC).Format(http.TimeFormat))
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newStore(t *testing.T, srv *httptest.Server) *AttachmentStore {
	t.Helper()
	client, err := NewClient(srv.URL, false, "key", "secret")
	require.NoError(t, err)
	store, err := NewAttachmentStore(client, "chat", "https://cdn.example.com/", nil)
	require.NoError(t, err)
	return store
}

func TestResolve(t *testing.T) {
	srv := fakeS3(t, map[string]bool{"/chat/u1/photo.png": true})
	store := newStore(t, srv)

	url, err := store.Resolve(context.Background(), "u1/photo.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/chat/u1/photo.png", url)

	url, err = store.Resolve(context.Background(), "https://cdn.example.com/chat/u1/photo.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/chat/u1/photo.png", url, "our own URLs resolve to themselves")
}

func TestResolveRejects(t *testing.T) {
	srv := fakeS3(t, map[string]bool{})
	store := newStore(t, srv)

	for _, ref := range []string{"u1/missing.png", "https://elsewhere.example/x.png", "../secret", " ", "a//b"} {
		_, err := store.Resolve(context.Background(), ref)
		require.Error(t, err, ref)
		assert.True(t, apperr.HasCode(err, apperr.CodeValidation), ref)
	}
}

func TestNewAttachmentStoreValidates(t *testing.T) {
	_, err := NewClient("", false, "k", "s")
	require.Error(t, err)

	srv := fakeS3(t, nil)
	client, err := NewClient(srv.URL, false, "k", "s")
	require.NoError(t, err)
	_, err = NewAttachmentStore(client, " ", "", nil)
	require.Error(t, err)

	store, err := NewAttachmentStore(client, "chat", "", nil)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/chat/k.png", store.objectURL("k.png"))
}
