package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/domain/users"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ users.Repository = (*UserRepository)(nil)

func (r *UserRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const userColumns = `id, username, email, password_hash, role, active, last_login_at, created_at, updated_at`

func scanUser(row pgx.Row) (users.User, error) {
	var (
		u    users.User
		role string
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.Active, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
	u.Role = auth.Role(role)
	return u, err
}

func mapUserConflict(err error) error {
	if name, ok := constraintViolation(err, codeUniqueViolation); ok {
		switch name {
		case "users_username_key":
			return users.ErrUsernameTaken
		case "users_email_key":
			return users.ErrEmailTaken
		}
	}
	return err
}

func (r *UserRepository) Create(ctx context.Context, u users.User) (err error) {
	defer observe("users.create", time.Now(), &err)
	_, err = r.queryer().Exec(ctx, `
INSERT INTO users (id, username, email, password_hash, role, active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`, u.ID, u.Username, u.Email, u.PasswordHash, string(u.Role), u.Active, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if mapped := mapUserConflict(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) getBy(ctx context.Context, op, where string, arg any) (u users.User, err error) {
	defer observe(op, time.Now(), &err)
	u, err = scanUser(r.queryer().QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		if isNoRows(err) {
			return users.User{}, users.ErrNotFound
		}
		return users.User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (users.User, error) {
	return r.getBy(ctx, "users.get_by_id", "id = $1", id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (users.User, error) {
	return r.getBy(ctx, "users.get_by_username", "lower(username) = lower($1)", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (users.User, error) {
	return r.getBy(ctx, "users.get_by_email", "lower(email) = lower($1)", email)
}

func (r *UserRepository) List(ctx context.Context, f users.Filter) (list []users.User, total int, err error) {
	defer observe("users.list", time.Now(), &err)

	var (
		conds []string
		args  []any
	)
	if f.Role != nil {
		args = append(args, string(*f.Role))
		conds = append(conds, fmt.Sprintf("role = $%d", len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		conds = append(conds, fmt.Sprintf("active = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	if err = r.queryer().QueryRow(ctx, `SELECT count(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.queryer().Query(ctx, fmt.Sprintf(`SELECT %s FROM users%s ORDER BY username LIMIT $%d OFFSET $%d`,
		userColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		list = append(list, u)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate users: %w", err)
	}
	return list, total, nil
}

func (r *UserRepository) Update(ctx context.Context, u users.User) (err error) {
	defer observe("users.update", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `
UPDATE users
   SET username = $2, email = $3, role = $4, active = $5, updated_at = $6
 WHERE id = $1
`, u.ID, u.Username, u.Email, string(u.Role), u.Active, u.UpdatedAt)
	if err != nil {
		if mapped := mapUserConflict(err); mapped != err {
			return mapped
		}
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (err error) {
	defer observe("users.update_password", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UserRepository) TouchLogin(ctx context.Context, id string, at time.Time) (err error) {
	defer observe("users.touch_login", time.Now(), &err)
	if _, err = r.queryer().Exec(ctx, `UPDATE users SET last_login_at = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) (err error) {
	defer observe("users.delete", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return users.ErrNotFound
	}
	return nil
}

func (r *UserRepository) CountActiveAdmins(ctx context.Context) (n int, err error) {
	defer observe("users.count_admins", time.Now(), &err)
	err = r.queryer().QueryRow(ctx, `SELECT count(*) FROM users WHERE role = 'admin' AND active`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return n, nil
}

func (r *UserRepository) CreateInvitation(ctx context.Context, inv users.Invitation) (err error) {
	defer observe("users.create_invitation", time.Now(), &err)
	_, err = r.queryer().Exec(ctx, `
INSERT INTO user_invitations (id, user_id, token_hash, email, expires_at, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, inv.ID, inv.UserID, inv.TokenHash, inv.Email, inv.ExpiresAt, nullString(inv.CreatedBy), inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

func (r *UserRepository) GetInvitationByTokenHash(ctx context.Context, tokenHash string) (inv users.Invitation, err error) {
	defer observe("users.get_invitation", time.Now(), &err)
	var createdBy *string
	err = r.queryer().QueryRow(ctx, `
SELECT id, user_id, token_hash, email, expires_at, accepted_at, created_by, created_at
  FROM user_invitations
 WHERE token_hash = $1
`, tokenHash).Scan(&inv.ID, &inv.UserID, &inv.TokenHash, &inv.Email, &inv.ExpiresAt, &inv.AcceptedAt, &createdBy, &inv.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return users.Invitation{}, users.ErrNotFound
		}
		return users.Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	inv.CreatedBy = derefString(createdBy)
	return inv, nil
}

func (r *UserRepository) AcceptInvitation(ctx context.Context, inv users.Invitation, passwordHash string, at time.Time) (err error) {
	defer observe("users.accept_invitation", time.Now(), &err)
	return withTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
UPDATE user_invitations SET accepted_at = $2
 WHERE id = $1 AND accepted_at IS NULL AND expires_at > $2
`, inv.ID, at)
		if err != nil {
			return fmt.Errorf("mark invitation accepted: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return users.ErrInvalidToken
		}
		tag, err = tx.Exec(ctx, `
UPDATE users SET password_hash = $2, active = TRUE, updated_at = $3 WHERE id = $1
`, inv.UserID, passwordHash, at)
		if err != nil {
			return fmt.Errorf("activate user: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return users.ErrNotFound
		}
		return nil
	})
}

func (r *UserRepository) DeleteExpiredInvitations(ctx context.Context, before time.Time) (n int64, err error) {
	defer observe("users.delete_expired_invitations", time.Now(), &err)
	tag, err := r.queryer().Exec(ctx, `DELETE FROM user_invitations WHERE accepted_at IS NULL AND expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired invitations: %w", err)
	}
	return tag.RowsAffected(), nil
}
