// Package testutil holds shared fixtures for package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"cardsite-backend/internal/database"
	"cardsite-backend/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const Password = "Sup3r-secret!"

var dbSeq atomic.Int64

// SetupDB points database.DB at a fresh in-memory SQLite database.
func SetupDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, dbSeq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		_ = sqlDB.Close()
	})
	return db
}

func CreateUser(t *testing.T, email string, role models.UserRole, mutate ...func(*models.User)) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u := &models.User{
		Name:         strings.Split(email, "@")[0],
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	for _, m := range mutate {
		m(u)
	}
	if err := database.DB.Create(u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func CreateBrand(t *testing.T, owner *models.User, slug string) *models.Brand {
	t.Helper()

	b := &models.Brand{
		OwnerID:  owner.ID,
		TenantID: owner.TenantID,
		Name:     strings.ToUpper(slug[:1]) + slug[1:],
		Slug:     slug,
	}
	if err := database.DB.Create(b).Error; err != nil {
		t.Fatalf("create brand: %v", err)
	}
	return b
}

func CreateBranch(t *testing.T, brand *models.Brand, slug string) *models.Branch {
	t.Helper()

	br := &models.Branch{
		BrandID:  brand.ID,
		Name:     slug,
		Slug:     slug,
		IsActive: true,
		Phone:    "+90 212 555 0000",
		Email:    slug + "@example.com",
	}
	if err := database.DB.Create(br).Error; err != nil {
		t.Fatalf("create branch: %v", err)
	}
	return br
}

func CreatePlan(t *testing.T, duration models.PlanDuration, branchLimit int) *models.SubscriptionPlan {
	t.Helper()

	p := &models.SubscriptionPlan{
		Name:        "Pro " + string(duration),
		Price:       49900,
		Currency:    "INR",
		Duration:    duration,
		BranchLimit: branchLimit,
		IsActive:    true,
	}
	if err := database.DB.Create(p).Error; err != nil {
		t.Fatalf("create plan: %v", err)
	}
	return p
}
