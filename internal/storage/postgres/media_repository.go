package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/clubsite/server/internal/domain/gallery"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MediaRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ gallery.Repository = (*MediaRepository)(nil)

func (r *MediaRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const mediaColumns = `id, album, caption, object_key, url, content_type, size_bytes, uploaded_by, created_at`

func scanMedia(row pgx.Row) (gallery.MediaItem, error) {
	var (
		m          gallery.MediaItem
		uploadedBy *string
	)
	err := row.Scan(&m.ID, &m.Album, &m.Caption, &m.Key, &m.URL, &m.ContentType, &m.Size, &uploadedBy, &m.CreatedAt)
	m.UploadedBy = derefString(uploadedBy)
	return m, err
}

func (r *MediaRepository) List(ctx context.Context, album string) (list []gallery.MediaItem, err error) {
	defer observe("media.list", time.Now(), &err)
	rows, err := r.queryer().Query(ctx, `
SELECT `+mediaColumns+`
  FROM media_items
 WHERE $1 = '' OR album = $1
 ORDER BY created_at DESC, id DESC
`, album)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		list = append(list, m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media: %w", err)
	}
	return list, nil
}

func (r *MediaRepository) Get(ctx context.Context, id string) (m gallery.MediaItem, err error) {
	defer observe("media.get", time.Now(), &err)
	m, err = scanMedia(r.queryer().QueryRow(ctx, `SELECT `+mediaColumns+` FROM media_items WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return gallery.MediaItem{}, gallery.ErrNotFound
		}
		return gallery.MediaItem{}, fmt.Errorf("get media: %w", err)
	}
	return m, nil
}

func (r *MediaRepository) Create(ctx context.Context, m gallery.MediaItem) (err error) {
	defer observe("media.create", time.Now(), &err)
	_, err = r.queryer().Exec(ctx, `
INSERT INTO media_items (id, album, caption, object_key, url, content_type, size_bytes, uploaded_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, m.ID, m.Album, m.Caption, m.Key, m.URL, m.ContentType, m.Size, nullString(m.UploadedBy), m.CreatedAt)
	if err != nil {
		return fmt.Errorf("create media: %w", err)
	}
	return nil
}

func (r *MediaRepository) Delete(ctx context.Context, id string) (err error) {
	defer observe("media.delete", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `DELETE FROM media_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete media: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return gallery.ErrNotFound
	}
	return nil
}
