package auth_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarter-english/elt-trading-game/internal/auth"
	"github.com/smarter-english/elt-trading-game/internal/database/dbtest"
)

func TestPostgresStore(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	db := dbtest.Open(t)
	store := auth.NewPostgresStore(db.Pool())

	created, err := store.CreateTeacher(ctx, auth.Teacher{
		Email:        "Ada@School.org",
		PasswordHash: "hash",
		FirstName:    "Ada",
		Role:         auth.RolePending,
	})
	require.NoError(t, err)
	assert.NotEmpty(created.ID)
	assert.Equal("ada@school.org", created.Email)
	assert.False(created.CreatedAt.IsZero())

	_, err = store.CreateTeacher(ctx, auth.Teacher{Email: "ada@school.org", PasswordHash: "x", Role: auth.RolePending})
	assert.ErrorIs(err, auth.ErrDuplicateEmail)

	byEmail, err := store.TeacherByEmail(ctx, "ADA@school.org")
	require.NoError(t, err)
	assert.Equal(created.ID, byEmail.ID)
	assert.Equal("hash", byEmail.PasswordHash)

	_, err = store.TeacherByID(ctx, "not-a-uuid")
	assert.ErrorIs(err, auth.ErrAccountNotFound)
	_, err = store.TeacherByEmail(ctx, "nobody@school.org")
	assert.ErrorIs(err, auth.ErrAccountNotFound)

	renamed, err := store.UpdateName(ctx, created.ID, "Augusta", "King")
	require.NoError(t, err)
	assert.Equal("King", renamed.LastName)

	approved, err := store.SetRole(ctx, "ada@school.org", auth.RoleTeacher)
	require.NoError(t, err)
	assert.Equal(auth.RoleTeacher, approved.Role)

	_, err = store.CreateTeacher(ctx, auth.Teacher{Email: "bob@school.org", PasswordHash: "x", Role: auth.RolePending})
	require.NoError(t, err)

	pending, err := store.ListTeachers(ctx, auth.RolePending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal("bob@school.org", pending[0].Email)

	all, err := store.ListTeachers(ctx, "")
	require.NoError(t, err)
	assert.Len(all, 2)
}
