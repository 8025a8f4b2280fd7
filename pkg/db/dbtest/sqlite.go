// Package dbtest opens throwaway sqlite databases carrying the full schema.
package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/digital-fulfillment/pkg/db/models"
)

// Open returns an in-memory sqlite database private to the test. The pool is
// pinned to one connection so transactions serialize the way row locks would.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return conn
}

// SeedProduct inserts a product with n available codes and an offer mapping.
func SeedProduct(t testing.TB, conn *gorm.DB, offerID string, n int) (*models.Product, []models.Code) {
	t.Helper()

	product := &models.Product{Title: "Game " + offerID, ProductKey: "key-" + offerID}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	if offerID != "" {
		if err := conn.Create(&models.OfferMapping{OfferID: offerID, ProductID: product.ID}).Error; err != nil {
			t.Fatalf("create offer mapping: %v", err)
		}
	}

	codes := make([]models.Code, 0, n)
	for i := 0; i < n; i++ {
		code := models.Code{ProductID: product.ID, CodeText: fmt.Sprintf("%s-CODE-%03d", offerID, i)}
		if err := conn.Create(&code).Error; err != nil {
			t.Fatalf("create code: %v", err)
		}
		codes = append(codes, code)
	}
	return product, codes
}

// CountCodes counts a product's codes in the given status.
func CountCodes(t testing.TB, conn *gorm.DB, productID uuid.UUID, status string) int64 {
	t.Helper()
	var n int64
	if err := conn.Model(&models.Code{}).Where("product_id = ? AND status = ?", productID, status).Count(&n).Error; err != nil {
		t.Fatalf("count codes: %v", err)
	}
	return n
}

// CountDeliveryLogs counts delivery logs for an order item.
func CountDeliveryLogs(t testing.TB, conn *gorm.DB, orderID, itemID string) int64 {
	t.Helper()
	var n int64
	if err := conn.Model(&models.DeliveryLog{}).Where("order_id = ? AND item_id = ?", orderID, itemID).Count(&n).Error; err != nil {
		t.Fatalf("count delivery logs: %v", err)
	}
	return n
}
