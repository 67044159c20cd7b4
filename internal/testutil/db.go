// Package testutil provides database fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"backoffice/internal/database"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB opens a private in-memory SQLite database with the full schema.
// The pool is pinned to one connection so transactions serialize the way row
// locks would on PostgreSQL.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:backoffice_%d_%d?mode=memory&cache=shared&_busy_timeout=5000", dbSeq.Add(1), uuid.New().ID())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// SeedProduct inserts an active product with the given stock.
func SeedProduct(t *testing.T, db *gorm.DB, name string, stock int) *model.Product {
	t.Helper()
	p := &model.Product{
		Name:      name,
		Slug:      fmt.Sprintf("%s-%s", name, uuid.NewString()[:8]),
		SKU:       "SKU-" + name,
		BasePrice: decimal.NewFromInt(10),
		Stock:     stock,
		Status:    model.ProductStatusActive,
	}
	require.NoError(t, db.Create(p).Error)
	return p
}

// SeedVariant inserts an active variant under product with the given stock.
func SeedVariant(t *testing.T, db *gorm.DB, product *model.Product, name string, stock int) *model.ProductVariant {
	t.Helper()
	v := &model.ProductVariant{
		ProductID: product.ID,
		Name:      name,
		SKU:       product.SKU + "-" + name,
		Stock:     stock,
		IsActive:  true,
	}
	require.NoError(t, db.Create(v).Error)
	require.NoError(t, db.Model(&model.Product{}).Where("id = ?", product.ID).Update("has_variants", true).Error)
	return v
}

// SeedAccount inserts an account with an optional stored permission matrix.
func SeedAccount(t *testing.T, db *gorm.DB, role model.Role, approved bool, perms model.PermissionMatrix) *model.Account {
	t.Helper()
	a := &model.Account{
		SubjectID: "sub-" + uuid.NewString(),
		Email:     uuid.NewString()[:8] + "@example.com",
		Role:      role,
	}
	require.NoError(t, db.Create(a).Error)
	if approved {
		require.NoError(t, db.Model(&model.Account{}).Where("id = ?", a.ID).Update("is_approved", true).Error)
		a.IsApproved = true
	}
	if perms != nil {
		rows := perms.Rows(a.ID)
		require.NoError(t, db.Create(&rows).Error)
		a.Permissions = rows
	}
	return a
}

// StockOf reads the current product counter.
func StockOf(t *testing.T, db *gorm.DB, productID uuid.UUID) int {
	t.Helper()
	var p model.Product
	require.NoError(t, db.Unscoped().First(&p, "id = ?", productID).Error)
	return p.Stock
}

// VariantStockOf reads the current variant counter.
func VariantStockOf(t *testing.T, db *gorm.DB, variantID uuid.UUID) int {
	t.Helper()
	var v model.ProductVariant
	require.NoError(t, db.Unscoped().First(&v, "id = ?", variantID).Error)
	return v.Stock
}
