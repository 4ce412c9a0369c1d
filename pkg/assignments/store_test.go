package assignments

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/botdeck/botdeck/pkg/access"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

const (
	existsQuery = `SELECT EXISTS`
	insertQuery = `INSERT INTO bot_users`
	selectQuery = `SELECT id, user_id, bot_id, role, is_active, created_at, updated_at`
	updateQuery = `UPDATE bot_users SET`
	deleteQuery = `DELETE FROM bot_users`
)

func assignmentRow(a *Assignment) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "user_id", "bot_id", "role", "is_active", "created_at", "updated_at"}).
		AddRow(a.ID, a.UserID, a.BotID, string(a.Role), a.IsActive, a.CreatedAt, a.UpdatedAt)
}

func TestStore_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery(existsQuery).WithArgs("user-1", "bot-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(insertQuery).WithArgs("user-1", "bot-1", "member", true).
			WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
				AddRow(int64(7), time.Now(), time.Now()))

		a := &Assignment{UserID: "user-1", BotID: "bot-1", Role: access.RoleMember, IsActive: true}
		require.NoError(t, NewStore(db).Create(ctx, a))
		assert.Equal(t, int64(7), a.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing pair is a conflict even when inactive", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery(existsQuery).WithArgs("user-1", "bot-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		a := &Assignment{UserID: "user-1", BotID: "bot-1", Role: access.RoleMember, IsActive: true}
		err := NewStore(db).Create(ctx, a)

		var dup *DuplicateAssignmentError
		require.ErrorAs(t, err, &dup)
		assert.Equal(t, "user-1", dup.UserID)
		assert.Equal(t, "bot-1", dup.BotID)
	})

	t.Run("racing insert surfaces the constraint violation as a conflict", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectQuery(existsQuery).WithArgs("user-1", "bot-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectQuery(insertQuery).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bot_users_user_id_bot_id_key"})

		a := &Assignment{UserID: "user-1", BotID: "bot-1", Role: access.RoleAdmin, IsActive: true}
		err := NewStore(db).Create(ctx, a)

		var dup *DuplicateAssignmentError
		assert.ErrorAs(t, err, &dup)
	})

	t.Run("superadmin is not an assignable role", func(t *testing.T) {
		db, _ := setupMockDB(t)
		defer db.Close()

		a := &Assignment{UserID: "user-1", BotID: "bot-1", Role: access.RoleSuperadmin, IsActive: true}
		err := NewStore(db).Create(ctx, a)
		assert.ErrorIs(t, err, ErrInvalidRole)
	})
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("role change leaves active flag alone", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		role := access.RoleAdmin
		updated := &Assignment{ID: 7, UserID: "user-1", BotID: "bot-1", Role: role, IsActive: true}
		mock.ExpectQuery(updateQuery).WithArgs("admin", int64(7)).
			WillReturnRows(assignmentRow(updated))

		got, err := NewStore(db).Update(ctx, 7, UpdateParams{Role: &role})
		require.NoError(t, err)
		assert.Equal(t, access.RoleAdmin, got.Role)
		assert.True(t, got.IsActive)
	})

	t.Run("deactivation leaves role alone", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		inactive := false
		updated := &Assignment{ID: 7, UserID: "user-1", BotID: "bot-1", Role: access.RoleMember, IsActive: false}
		mock.ExpectQuery(updateQuery).WithArgs(false, int64(7)).
			WillReturnRows(assignmentRow(updated))

		got, err := NewStore(db).Update(ctx, 7, UpdateParams{IsActive: &inactive})
		require.NoError(t, err)
		assert.Equal(t, access.RoleMember, got.Role)
		assert.False(t, got.IsActive)
	})

	t.Run("empty update reads back the row", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		current := &Assignment{ID: 7, UserID: "user-1", BotID: "bot-1", Role: access.RoleMember, IsActive: true}
		mock.ExpectQuery(selectQuery).WithArgs(int64(7)).
			WillReturnRows(assignmentRow(current))

		got, err := NewStore(db).Update(ctx, 7, UpdateParams{})
		require.NoError(t, err)
		assert.Equal(t, int64(7), got.ID)
	})

	t.Run("invalid role rejected before touching the database", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		bad := access.Role("owner")
		_, err := NewStore(db).Update(ctx, 7, UpdateParams{Role: &bad})
		assert.ErrorIs(t, err, ErrInvalidRole)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		role := access.RoleAdmin
		mock.ExpectQuery(updateQuery).WillReturnError(sql.ErrNoRows)

		_, err := NewStore(db).Update(ctx, 404, UpdateParams{Role: &role})
		assert.ErrorIs(t, err, ErrAssignmentNotFound)
	})
}

func TestStore_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec(deleteQuery).WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, NewStore(db).Delete(ctx, 7))
	})

	t.Run("unknown id", func(t *testing.T) {
		db, mock := setupMockDB(t)
		defer db.Close()

		mock.ExpectExec(deleteQuery).WithArgs(int64(404)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, NewStore(db).Delete(ctx, 404), ErrAssignmentNotFound)
	})
}

func TestStore_ListForUser(t *testing.T) {
	ctx := context.Background()

	db, mock := setupMockDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(selectQuery).WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "bot_id", "role", "is_active", "created_at", "updated_at"}).
			AddRow(int64(1), "user-1", "bot-a", "member", true, now, now).
			AddRow(int64(2), "user-1", "bot-b", "admin", false, now, now))

	list, err := NewStore(db).ListForUser(ctx, "user-1", false)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, access.RoleMember, list[0].Role)
	assert.False(t, list[1].IsActive)
}

func TestStore_GetByPair(t *testing.T) {
	ctx := context.Background()

	db, mock := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(selectQuery).WithArgs("user-1", "bot-1").
		WillReturnError(sql.ErrNoRows)

	_, err := NewStore(db).GetByPair(ctx, "user-1", "bot-1")
	assert.ErrorIs(t, err, ErrAssignmentNotFound)
	assert.False(t, errors.Is(err, sql.ErrNoRows))
}
