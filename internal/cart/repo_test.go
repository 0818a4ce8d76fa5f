package cart

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/db/dbtest"
	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
)

func cartProductIDs(t *testing.T, conn *gorm.DB, userID uuid.UUID) []uuid.UUID {
	t.Helper()
	var rows []models.CartItem
	require.NoError(t, conn.Where("user_id = ?", userID).Order("quantity ASC").Find(&rows).Error)
	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ProductID)
	}
	return ids
}

func TestRemoveItemsIsIdempotentAndScoped(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	buyer := dbtest.MustCreateUser(t, conn, enums.UserRoleUser, "")
	other := dbtest.MustCreateUser(t, conn, enums.UserRoleUser, "")

	ordered := uuid.New()
	kept := uuid.New()
	require.NoError(t, conn.Create(&models.CartItem{UserID: buyer.ID, ProductID: ordered, Quantity: 1}).Error)
	require.NoError(t, conn.Create(&models.CartItem{UserID: buyer.ID, ProductID: kept, Quantity: 2}).Error)
	require.NoError(t, conn.Create(&models.CartItem{UserID: other.ID, ProductID: ordered, Quantity: 3}).Error)

	removed, err := repo.RemoveItems(context.Background(), buyer.ID, []uuid.UUID{ordered})
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	after := cartProductIDs(t, conn, buyer.ID)

	removed, err = repo.RemoveItems(context.Background(), buyer.ID, []uuid.UUID{ordered})
	require.NoError(t, err)
	assert.Zero(t, removed)
	assert.Equal(t, after, cartProductIDs(t, conn, buyer.ID), "second removal leaves the cart unchanged")

	assert.Equal(t, []uuid.UUID{kept}, cartProductIDs(t, conn, buyer.ID))
	assert.Equal(t, []uuid.UUID{ordered}, cartProductIDs(t, conn, other.ID))
}

func TestRemoveItemsNoProducts(t *testing.T) {
	removed, err := NewRepository(nil).RemoveItems(context.Background(), uuid.New(), nil)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
