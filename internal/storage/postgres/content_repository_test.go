package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/domain/departments"
	"github.com/clubsite/server/internal/domain/events"
	"github.com/clubsite/server/internal/domain/faqs"
	"github.com/clubsite/server/internal/domain/gallery"
	"github.com/clubsite/server/internal/domain/ids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func insertDepartment(t *testing.T, store *Store, slug string, order int) departments.Department {
	t.Helper()
	now := time.Now().UTC()
	d := departments.Department{
		ID: ids.MustULID(), Slug: slug, Name: slug, DisplayOrder: order,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, store.Departments().Create(context.Background(), d))
	return d
}

func TestDepartmentRepository(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	repo := store.Departments()

	lead := insertUser(t, store, "lead", auth.RoleEditor)
	music := insertDepartment(t, store, "muzik", 2)
	insertDepartment(t, store, "tiyatro", 1)

	music.LeadUserID = lead.ID
	music.Name = "Müzik"
	require.NoError(t, repo.Update(ctx, music))

	got, err := repo.GetBySlug(ctx, "muzik")
	require.NoError(t, err)
	assert.Equal(t, "Müzik", got.Name)
	assert.Equal(t, lead.ID, got.LeadUserID)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "tiyatro", list[0].Slug)

	dup := music
	dup.ID = ids.MustULID()
	assert.ErrorIs(t, repo.Create(ctx, dup), departments.ErrSlugTaken)
}

func TestDepartmentDeleteWithEvents(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	d := insertDepartment(t, store, "doga", 0)
	e := insertEvent(t, store, func(e *events.Event) { e.DepartmentID = d.ID })

	assert.ErrorIs(t, store.Departments().Delete(ctx, d.ID, false), departments.ErrHasEvents)
	require.NoError(t, store.Departments().Delete(ctx, d.ID, true))

	got, err := store.Events().Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Empty(t, got.DepartmentID)
	assert.ErrorIs(t, store.Departments().Delete(ctx, d.ID, false), departments.ErrNotFound)
}

func TestFAQRepositoryReorder(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	repo := store.FAQs()

	now := time.Now().UTC()
	var created []string
	for i, q := range []string{"Nasıl üye olurum?", "Aidat ne kadar?", "Etkinlikler ücretli mi?"} {
		f := faqs.FAQ{
			ID: ids.MustULID(), Question: q, AnswerHTML: "<p>cevap</p>", Category: faqs.CategoryMembership,
			Position: i, Published: i != 1, CreatedAt: now, UpdatedAt: now,
		}
		require.NoError(t, repo.Create(ctx, f))
		created = append(created, f.ID)
	}

	published, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Len(t, published, 2)

	require.NoError(t, repo.SetPositions(ctx, []string{created[2], created[0], created[1]}))
	all, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, created[2], all[0].ID)

	assert.ErrorIs(t, repo.SetPositions(ctx, created[:2]), faqs.ErrReorderMismatch)
	assert.ErrorIs(t, repo.SetPositions(ctx, []string{created[0], created[1], ids.MustULID()}), faqs.ErrReorderMismatch)
}

func TestMediaRepository(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	repo := store.Media()

	now := time.Now().UTC()
	for i, album := range []string{"bahar", "bahar", "kis"} {
		id := ids.MustULID()
		require.NoError(t, repo.Create(ctx, gallery.MediaItem{
			ID: id, Album: album, Key: "gallery/" + album + "/" + id + ".jpg", URL: "/media/x.jpg",
			ContentType: "image/jpeg", Size: int64(100 + i), CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	items, err := repo.List(ctx, "bahar")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, int64(101), items[0].Size, "newest first")

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, repo.Delete(ctx, items[0].ID))
	_, err = repo.Get(ctx, items[0].ID)
	assert.ErrorIs(t, err, gallery.ErrNotFound)
}
