package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/db/dbtest"
	"github.com/molimor/molimor-backend/pkg/enums"
)

func TestFindByID(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	user := dbtest.MustCreateUser(t, conn, enums.UserRoleUser, "")

	found, err := repo.FindByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, found.Email)

	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListAdminDeviceTokens(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	dbtest.MustCreateUser(t, conn, enums.UserRoleAdmin, "admin-token-1")
	dbtest.MustCreateUser(t, conn, enums.UserRoleAdmin, "")
	dbtest.MustCreateUser(t, conn, enums.UserRoleUser, "buyer-token")

	tokens, err := repo.ListAdminDeviceTokens(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"admin-token-1"}, tokens)
}

func TestListAdminDeviceTokensEmpty(t *testing.T) {
	conn := dbtest.Open(t)
	tokens, err := NewRepository(conn).ListAdminDeviceTokens(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestFromModel(t *testing.T) {
	assert.Nil(t, FromModel(nil))
}
