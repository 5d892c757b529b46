package blob

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateKey(t *testing.T) {
	valid := []string{"gallery/2025/01jz.jpg", "events/abc-def_1.png", "a"}
	for _, k := range valid {
		assert.NoError(t, ValidateKey(k), k)
	}
	invalid := []string{"", "/abs", "../etc/passwd", "gallery/../x", "Upper.jpg", "a//b", "a/"}
	for _, k := range invalid {
		assert.ErrorIs(t, ValidateKey(k), ErrInvalidKey, k)
	}
}

func TestDiskStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewDiskStore(t.TempDir(), "https://cdn.example.org/media/")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "gallery/a.jpg", strings.NewReader("jpegdata"), "image/jpeg"))

	rc, err := store.Open(ctx, "gallery/a.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "jpegdata", string(data))
	assert.Equal(t, "https://cdn.example.org/media/gallery/a.jpg", store.URL("gallery/a.jpg"))

	require.NoError(t, store.Delete(ctx, "gallery/a.jpg"))
	_, err = store.Open(ctx, "gallery/a.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete(ctx, "gallery/a.jpg"), ErrNotFound)
}

func TestDiskStoreCanceledContext(t *testing.T) {
	store, err := NewDiskStore(t.TempDir(), "")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = store.Put(ctx, "x.png", strings.NewReader("data"), "image/png")
	require.Error(t, err)
	_, err = store.Open(context.Background(), "x.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

// fakeS3 implements the three path-style object calls the store makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = string(body)
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>missing</Message></Error>`)
			return
		}
		_, _ = io.WriteString(w, body)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3StoreAgainstFakeEndpoint(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store, err := NewS3Store(S3Options{
		Bucket:    "club-media",
		Region:    "eu-central-1",
		Endpoint:  srv.URL,
		AccessKey: "test",
		SecretKey: "test",
	})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "gallery/b.png", strings.NewReader("pngdata"), "image/png"))
	assert.Equal(t, "pngdata", fake.objects["/club-media/gallery/b.png"])
	assert.Equal(t, "image/png", fake.types["/club-media/gallery/b.png"])
	assert.Equal(t, srv.URL+"/club-media/gallery/b.png", store.URL("gallery/b.png"))

	rc, err := store.Open(ctx, "gallery/b.png")
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "pngdata", string(data))

	require.NoError(t, store.Delete(ctx, "gallery/b.png"))
	_, err = store.Open(ctx, "gallery/b.png")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestS3StoreRequiresBucket(t *testing.T) {
	_, err := NewS3Store(S3Options{Region: "eu-central-1"})
	assert.Error(t, err)
}
