package orders

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/db/models"
)

// Repository defines persistence operations for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindMaxOrderNumber(ctx context.Context) (int64, bool, error)
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, number int64) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	ListAdmin(ctx context.Context, filters AdminListFilters, limit, offset int) ([]models.Order, int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindMaxOrderNumber reports the highest order number, ok=false when the table is empty.
func (r *repository) FindMaxOrderNumber(ctx context.Context) (int64, bool, error) {
	var current sql.NullInt64
	row := r.db.WithContext(ctx).Model(&models.Order{}).Select("MAX(order_number)").Row()
	if err := row.Scan(&current); err != nil {
		return 0, false, err
	}
	return current.Int64, current.Valid, nil
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByOrderNumber(ctx context.Context, number int64) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("order_number = ?", number).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("order_number DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListAdmin(ctx context.Context, filters AdminListFilters, limit, offset int) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.UserID != nil {
		query = query.Where("user_id = ?", *filters.UserID)
	}
	if filters.StartDate != nil {
		query = query.Where("created_at >= ?", *filters.StartDate)
	}
	if filters.EndDate != nil {
		query = query.Where("created_at <= ?", *filters.EndDate)
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		query = query.Where(searchClause(r.db.Session(&gorm.Session{NewDB: true}), search))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Order
	err := query.
		Order("created_at DESC").
		Order("order_number DESC").
		Limit(limit).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// searchClause ORs a case-insensitive name match for every term, plus an exact
// order number match when the whole search is numeric.
func searchClause(db *gorm.DB, search string) *gorm.DB {
	clause := db
	for i, term := range strings.Fields(search) {
		pattern := "%" + strings.ToLower(term) + "%"
		cond := "LOWER(fname) LIKE ? OR LOWER(lname) LIKE ?"
		if i == 0 {
			clause = clause.Where(cond, pattern, pattern)
			continue
		}
		clause = clause.Or(cond, pattern, pattern)
	}
	if number, err := strconv.ParseInt(search, 10, 64); err == nil {
		clause = clause.Or("order_number = ?", number)
	}
	return clause
}
