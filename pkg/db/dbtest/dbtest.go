// Package dbtest opens in-memory sqlite databases with the order schema for
// repository tests.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/molimor/molimor-backend/pkg/db/models"
	"github.com/molimor/molimor-backend/pkg/enums"
)

var schema = []string{
	`CREATE TABLE users (
		id TEXT PRIMARY KEY,
		fname TEXT,
		lname TEXT,
		email TEXT NOT NULL,
		mobile TEXT,
		role TEXT NOT NULL DEFAULT 'user',
		fcm_token TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE products (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		sku TEXT,
		hsn_code TEXT,
		gst TEXT,
		image TEXT,
		price TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE cart_items (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		created_at DATETIME,
		updated_at DATETIME,
		UNIQUE (user_id, product_id)
	)`,
	`CREATE TABLE orders (
		id TEXT PRIMARY KEY,
		order_number INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		fname TEXT NOT NULL,
		lname TEXT NOT NULL,
		items TEXT NOT NULL,
		coupon_id TEXT,
		payment_method TEXT NOT NULL,
		street_address TEXT NOT NULL,
		country TEXT NOT NULL,
		state TEXT NOT NULL,
		city TEXT NOT NULL,
		pincode TEXT NOT NULL,
		shipping_address TEXT,
		shipping_country TEXT,
		shipping_state TEXT,
		shipping_city TEXT,
		shipping_pincode TEXT,
		shipping_charge TEXT NOT NULL DEFAULT '0',
		mobile TEXT NOT NULL,
		email TEXT NOT NULL,
		total_amount TEXT NOT NULL,
		order_note TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'processing',
		created_at DATETIME,
		updated_at DATETIME,
		CONSTRAINT orders_order_number_key UNIQUE (order_number)
	)`,
	`CREATE TABLE order_notifications (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE,
		is_mark INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME,
		updated_at DATETIME
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME,
		published_at DATETIME,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`,
}

// Open returns a private in-memory database with every order table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString()[:8])), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return conn
}

// MustCreateUser inserts a user with the given role and optional FCM token.
func MustCreateUser(t *testing.T, tx *gorm.DB, role enums.UserRole, fcmToken string) *models.User {
	t.Helper()
	user := &models.User{
		ID:    uuid.New(),
		FName: "Asha",
		LName: "Rao",
		Email: fmt.Sprintf("user_%s@example.com", uuid.NewString()[:8]),
		Role:  role,
	}
	if fcmToken != "" {
		user.FCMToken = &fcmToken
	}
	if err := tx.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// MustCreateProduct inserts a catalog product with the given GST label.
func MustCreateProduct(t *testing.T, tx *gorm.DB, title, gst string) *models.Product {
	t.Helper()
	product := &models.Product{
		ID:      uuid.New(),
		Title:   title,
		SKU:     strings.ToUpper(title) + "-1",
		HSNCode: "0910",
		GST:     gst,
		Price:   decimal.NewFromInt(100),
	}
	if err := tx.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// MustCreateOrder inserts an order for userID with the given number and items.
func MustCreateOrder(t *testing.T, tx *gorm.DB, userID uuid.UUID, number int64, items models.OrderItems) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:   number,
		UserID:        userID,
		FName:         "Asha",
		LName:         "Rao",
		Items:         items,
		PaymentMethod: "cod",
		StreetAddress: "12 MG Road",
		Country:       "India",
		State:         "KA",
		City:          "Bengaluru",
		Pincode:       "560001",
		Mobile:        "9999999999",
		Email:         "asha@example.com",
		TotalAmount:   items.Total(),
		Status:        enums.OrderStatusProcessing,
	}
	if err := tx.Create(order).Error; err != nil {
		t.Fatalf("create order: %v", err)
	}
	return order
}
