package gallery

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/cache"
	"github.com/clubsite/server/internal/storage/blob"
	"github.com/clubsite/server/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu    sync.Mutex
	items map[string]MediaItem
}

func (m *memRepo) List(_ context.Context, album string) ([]MediaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []MediaItem
	for _, it := range m.items {
		if album == "" || it.Album == album {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memRepo) Get(_ context.Context, id string) (MediaItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return MediaItem{}, ErrNotFound
	}
	return it, nil
}

func (m *memRepo) Create(_ context.Context, it MediaItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[it.ID] = it
	return nil
}

func (m *memRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

var editor = auth.Actor{UserID: "01JXEDITOR000000000000000E", Username: "editor", Role: auth.RoleEditor}

func pngBytes(size int) []byte {
	header := []byte("\x89PNG\r\n\x1a\n")
	return append(header, bytes.Repeat([]byte{0}, size-len(header))...)
}

func newService(t *testing.T, maxBytes int64) (*Service, *memRepo, *blob.DiskStore) {
	t.Helper()
	disk, err := blob.NewDiskStore(t.TempDir(), "/media")
	require.NoError(t, err)
	repo := &memRepo{items: map[string]MediaItem{}}
	return NewService(repo, disk, auth.ClaimsAuthorizer, cache.New(time.Minute), nil, maxBytes), repo, disk
}

func TestUploadStoresSniffedImage(t *testing.T) {
	svc, _, disk := newService(t, 0)
	ctx := context.Background()

	item, err := svc.Upload(ctx, editor, UploadInput{Album: "bahar-senligi", Caption: "<b>Sahne</b>"}, bytes.NewReader(pngBytes(1024)))
	require.NoError(t, err)

	assert.Equal(t, "image/png", item.ContentType)
	assert.Equal(t, int64(1024), item.Size)
	assert.Equal(t, "Sahne", item.Caption)
	assert.True(t, strings.HasPrefix(item.Key, "gallery/bahar-senligi/"))
	assert.True(t, strings.HasSuffix(item.Key, ".png"))
	assert.Equal(t, "/media/"+item.Key, item.URL)

	rc, err := disk.Open(ctx, item.Key)
	require.NoError(t, err)
	defer rc.Close()
	stored, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Len(t, stored, 1024)

	items, err := svc.List(ctx, "bahar-senligi")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, item.ID, items[0].ID)
}

func TestUploadRejects(t *testing.T) {
	svc, repo, _ := newService(t, 2048)
	ctx := context.Background()

	_, err := svc.Upload(ctx, editor, UploadInput{Album: "album"}, strings.NewReader("<html><body>not an image</body></html>"))
	assert.ErrorIs(t, err, ErrUnsupportedType)

	_, err = svc.Upload(ctx, editor, UploadInput{Album: "album"}, bytes.NewReader(pngBytes(4096)))
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = svc.Upload(ctx, editor, UploadInput{Album: "album"}, bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmptyUpload)

	_, err = svc.Upload(ctx, editor, UploadInput{Album: "../etc"}, bytes.NewReader(pngBytes(64)))
	_, ok := validation.AsErrors(err)
	assert.True(t, ok)

	member := auth.Actor{UserID: "01JXMEMBER000000000000000M", Role: auth.RoleMember}
	_, err = svc.Upload(ctx, member, UploadInput{Album: "album"}, bytes.NewReader(pngBytes(64)))
	assert.ErrorIs(t, err, auth.ErrForbidden)

	assert.Empty(t, repo.items)
}

func TestDeleteRemovesBlob(t *testing.T) {
	svc, _, disk := newService(t, 0)
	ctx := context.Background()

	item, err := svc.Upload(ctx, editor, UploadInput{Album: "konser"}, bytes.NewReader(append([]byte("GIF89a"), make([]byte, 32)...)))
	require.NoError(t, err)
	assert.Equal(t, "image/gif", item.ContentType)

	_, err = svc.List(ctx, "konser")
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, editor, item.ID))

	_, err = disk.Open(ctx, item.Key)
	assert.ErrorIs(t, err, blob.ErrNotFound)

	items, err := svc.List(ctx, "konser")
	require.NoError(t, err)
	assert.Empty(t, items)

	assert.ErrorIs(t, svc.Delete(ctx, editor, item.ID), ErrNotFound)
}
