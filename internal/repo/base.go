// Package repo has the pieces every gorm repository shares.
package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by repositories. Queries go through DB, or through On
// when the caller may pass an open transaction.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

func (b Base) DB(ctx context.Context) *gorm.DB {
	return bind(b.db, ctx)
}

// On runs on tx when it is set and on the shared handle otherwise.
func (b Base) On(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return bind(tx, ctx)
	}
	return b.DB(ctx)
}

func bind(db *gorm.DB, ctx context.Context) *gorm.DB {
	if ctx == nil {
		return db
	}
	return db.WithContext(ctx)
}
