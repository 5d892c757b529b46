package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/clubsite/server/internal/domain/faqs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type FAQRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ faqs.Repository = (*FAQRepository)(nil)

func (r *FAQRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const faqColumns = `id, question, answer_html, category, position, published, created_at, updated_at`

func scanFAQ(row pgx.Row) (faqs.FAQ, error) {
	var (
		f        faqs.FAQ
		category string
	)
	err := row.Scan(&f.ID, &f.Question, &f.AnswerHTML, &category, &f.Position, &f.Published, &f.CreatedAt, &f.UpdatedAt)
	f.Category = faqs.Category(category)
	return f, err
}

func (r *FAQRepository) List(ctx context.Context, publishedOnly bool) (list []faqs.FAQ, err error) {
	defer observe("faqs.list", time.Now(), &err)
	rows, err := r.queryer().Query(ctx, `
SELECT `+faqColumns+`
  FROM faqs
 WHERE published OR NOT $1
 ORDER BY position, created_at
`, publishedOnly)
	if err != nil {
		return nil, fmt.Errorf("list faqs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		f, err := scanFAQ(rows)
		if err != nil {
			return nil, fmt.Errorf("scan faq: %w", err)
		}
		list = append(list, f)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faqs: %w", err)
	}
	return list, nil
}

func (r *FAQRepository) Get(ctx context.Context, id string) (f faqs.FAQ, err error) {
	defer observe("faqs.get", time.Now(), &err)
	f, err = scanFAQ(r.queryer().QueryRow(ctx, `SELECT `+faqColumns+` FROM faqs WHERE id = $1`, id))
	if err != nil {
		if isNoRows(err) {
			return faqs.FAQ{}, faqs.ErrNotFound
		}
		return faqs.FAQ{}, fmt.Errorf("get faq: %w", err)
	}
	return f, nil
}

func (r *FAQRepository) Create(ctx context.Context, f faqs.FAQ) (err error) {
	defer observe("faqs.create", time.Now(), &err)
	_, err = r.queryer().Exec(ctx, `
INSERT INTO faqs (id, question, answer_html, category, position, published, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, f.ID, f.Question, f.AnswerHTML, string(f.Category), f.Position, f.Published, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create faq: %w", err)
	}
	return nil
}

func (r *FAQRepository) Update(ctx context.Context, f faqs.FAQ) (err error) {
	defer observe("faqs.update", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `
UPDATE faqs
   SET question = $2, answer_html = $3, category = $4, published = $5, updated_at = $6
 WHERE id = $1
`, f.ID, f.Question, f.AnswerHTML, string(f.Category), f.Published, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update faq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return faqs.ErrNotFound
	}
	return nil
}

func (r *FAQRepository) Delete(ctx context.Context, id string) (err error) {
	defer observe("faqs.delete", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `DELETE FROM faqs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete faq: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return faqs.ErrNotFound
	}
	return nil
}

// SetPositions requires ids to name every FAQ exactly once.
func (r *FAQRepository) SetPositions(ctx context.Context, ids []string) (err error) {
	defer observe("faqs.set_positions", time.Now(), &err)
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		var total int
		if err := tx.QueryRow(ctx, `SELECT count(*) FROM faqs`).Scan(&total); err != nil {
			return fmt.Errorf("count faqs: %w", err)
		}
		if total != len(ids) {
			return faqs.ErrReorderMismatch
		}

		batch := &pgx.Batch{}
		for i, id := range ids {
			batch.Queue(`UPDATE faqs SET position = $2, updated_at = now() WHERE id = $1`, id, i)
		}
		results := tx.SendBatch(ctx, batch)
		for range ids {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("set faq position: %w", err)
			}
			if tag.RowsAffected() == 0 {
				_ = results.Close()
				return faqs.ErrReorderMismatch
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
		return nil
	})
}
