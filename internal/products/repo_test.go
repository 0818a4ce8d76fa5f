package products

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/molimor/molimor-backend/pkg/db/dbtest"
)

func TestFindByIDsSkipsMissing(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	turmeric := dbtest.MustCreateProduct(t, conn, "turmeric", "18%")
	ginger := dbtest.MustCreateProduct(t, conn, "ginger", "5%")

	rows, err := repo.FindByIDs(context.Background(), []uuid.UUID{turmeric.ID, uuid.New(), ginger.ID})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	idx := Index(rows)
	assert.Equal(t, "18%", idx[turmeric.ID].GST)
	assert.Equal(t, "5%", idx[ginger.ID].GST)
}

func TestFindByIDsEmpty(t *testing.T) {
	rows, err := NewRepository(nil).FindByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
