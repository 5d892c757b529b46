package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/clubsite/server/internal/domain/departments"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DepartmentRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ departments.Repository = (*DepartmentRepository)(nil)

func (r *DepartmentRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const departmentColumns = `id, slug, name, description_html, lead_user_id, display_order, image_url, created_at, updated_at`

func scanDepartment(row pgx.Row) (departments.Department, error) {
	var (
		d    departments.Department
		lead *string
	)
	err := row.Scan(&d.ID, &d.Slug, &d.Name, &d.DescriptionHTML, &lead, &d.DisplayOrder, &d.ImageURL, &d.CreatedAt, &d.UpdatedAt)
	d.LeadUserID = derefString(lead)
	return d, err
}

func (r *DepartmentRepository) List(ctx context.Context) (list []departments.Department, err error) {
	defer observe("departments.list", time.Now(), &err)
	rows, err := r.queryer().Query(ctx, `SELECT `+departmentColumns+` FROM departments ORDER BY display_order, name`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		list = append(list, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate departments: %w", err)
	}
	return list, nil
}

func (r *DepartmentRepository) getBy(ctx context.Context, op, column string, value string) (d departments.Department, err error) {
	defer observe(op, time.Now(), &err)
	d, err = scanDepartment(r.queryer().QueryRow(ctx, `SELECT `+departmentColumns+` FROM departments WHERE `+column+` = $1`, value))
	if err != nil {
		if isNoRows(err) {
			return departments.Department{}, departments.ErrNotFound
		}
		return departments.Department{}, fmt.Errorf("%s: %w", op, err)
	}
	return d, nil
}

func (r *DepartmentRepository) GetByID(ctx context.Context, id string) (departments.Department, error) {
	return r.getBy(ctx, "departments.get_by_id", "id", id)
}

func (r *DepartmentRepository) GetBySlug(ctx context.Context, slug string) (departments.Department, error) {
	return r.getBy(ctx, "departments.get_by_slug", "slug", slug)
}

func mapDepartmentConflict(err error) error {
	if name, ok := constraintViolation(err, codeUniqueViolation); ok && name == "departments_slug_key" {
		return departments.ErrSlugTaken
	}
	return err
}

func (r *DepartmentRepository) Create(ctx context.Context, d departments.Department) (err error) {
	defer observe("departments.create", time.Now(), &err)
	_, err = r.queryer().Exec(ctx, `
INSERT INTO departments (id, slug, name, description_html, lead_user_id, display_order, image_url, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`, d.ID, d.Slug, d.Name, d.DescriptionHTML, nullString(d.LeadUserID), d.DisplayOrder, d.ImageURL, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		if mapped := mapDepartmentConflict(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("create department: %w", err)
	}
	return nil
}

func (r *DepartmentRepository) Update(ctx context.Context, d departments.Department) (err error) {
	defer observe("departments.update", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `
UPDATE departments
   SET slug = $2, name = $3, description_html = $4, lead_user_id = $5,
       display_order = $6, image_url = $7, updated_at = $8
 WHERE id = $1
`, d.ID, d.Slug, d.Name, d.DescriptionHTML, nullString(d.LeadUserID), d.DisplayOrder, d.ImageURL, d.UpdatedAt)
	if err != nil {
		if mapped := mapDepartmentConflict(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("update department: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return departments.ErrNotFound
	}
	return nil
}

func (r *DepartmentRepository) Delete(ctx context.Context, id string, force bool) (err error) {
	defer observe("departments.delete", time.Now(), &err)
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		if force {
			if _, err := tx.Exec(ctx, `UPDATE events SET department_id = NULL WHERE department_id = $1`, id); err != nil {
				return fmt.Errorf("detach events: %w", err)
			}
		}
		tag, err := tx.Exec(ctx, `DELETE FROM departments WHERE id = $1`, id)
		if err != nil {
			if _, ok := constraintViolation(err, codeForeignKeyViolation); ok {
				return departments.ErrHasEvents
			}
			return fmt.Errorf("delete department: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return departments.ErrNotFound
		}
		return nil
	})
}
