package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/clubsite/server/internal/auth"
	"github.com/clubsite/server/internal/domain/ids"
	"github.com/clubsite/server/internal/domain/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepositoryCreateAndLookup(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	repo := store.Users()

	u := insertUser(t, store, "Ayse", auth.RoleAdmin)

	byName, err := repo.GetByUsername(ctx, "ayse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byName.ID)
	assert.Equal(t, auth.RoleAdmin, byName.Role)

	byEmail, err := repo.GetByEmail(ctx, "AYSE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = repo.GetByID(ctx, ids.MustULID())
	assert.ErrorIs(t, err, users.ErrNotFound)
}

func TestUserRepositoryUniqueConstraints(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	existing := insertUser(t, store, "mehmet", auth.RoleEditor)

	dup := existing
	dup.ID = ids.MustULID()
	dup.Email = "other@example.com"
	dup.Username = "MEHMET"
	assert.ErrorIs(t, store.Users().Create(ctx, dup), users.ErrUsernameTaken)

	dup.Username = "mehmet2"
	dup.Email = existing.Email
	assert.ErrorIs(t, store.Users().Create(ctx, dup), users.ErrEmailTaken)
}

func TestUserRepositoryListAndCountAdmins(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	repo := store.Users()

	insertUser(t, store, "admin1", auth.RoleAdmin)
	insertUser(t, store, "admin2", auth.RoleAdmin)
	editor := insertUser(t, store, "editor1", auth.RoleEditor)

	editor.Active = false
	editor.UpdatedAt = time.Now()
	require.NoError(t, repo.Update(ctx, editor))

	n, err := repo.CountActiveAdmins(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	role := auth.RoleAdmin
	list, total, err := repo.List(ctx, users.Filter{Role: &role, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, list, 1)
	assert.Equal(t, "admin1", list[0].Username)

	inactive := false
	list, total, err = repo.List(ctx, users.Filter{Active: &inactive, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, editor.ID, list[0].ID)
}

func TestUserRepositoryInvitationLifecycle(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()
	repo := store.Users()

	admin := insertUser(t, store, "admin", auth.RoleAdmin)
	now := time.Now().UTC()
	invitee := users.User{
		ID: ids.MustULID(), Username: "zeynep", Email: "zeynep@example.com",
		Role: auth.RoleEditor, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, invitee))

	inv := users.Invitation{
		ID: ids.MustULID(), UserID: invitee.ID, TokenHash: "hash-1", Email: invitee.Email,
		ExpiresAt: now.Add(7 * 24 * time.Hour), CreatedBy: admin.ID, CreatedAt: now,
	}
	require.NoError(t, repo.CreateInvitation(ctx, inv))

	got, err := repo.GetInvitationByTokenHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, inv.ID, got.ID)
	assert.Equal(t, admin.ID, got.CreatedBy)
	assert.Nil(t, got.AcceptedAt)

	require.NoError(t, repo.AcceptInvitation(ctx, got, "$2a$12$newhash", now))
	assert.ErrorIs(t, repo.AcceptInvitation(ctx, got, "$2a$12$again", now), users.ErrInvalidToken)

	activated, err := repo.GetByID(ctx, invitee.ID)
	require.NoError(t, err)
	assert.True(t, activated.Active)
	assert.Equal(t, "$2a$12$newhash", activated.PasswordHash)

	expired := users.Invitation{
		ID: ids.MustULID(), UserID: invitee.ID, TokenHash: "hash-2", Email: invitee.Email,
		ExpiresAt: now.Add(-time.Hour), CreatedAt: now.Add(-8 * 24 * time.Hour),
	}
	require.NoError(t, repo.CreateInvitation(ctx, expired))
	n, err := repo.DeleteExpiredInvitations(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetInvitationByTokenHash(ctx, "hash-2")
	assert.ErrorIs(t, err, users.ErrNotFound)
}
