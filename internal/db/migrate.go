package db

import (
	"transaction_system/internal/domain" // Importing domain models
	"transaction_system/internal/utils"  // ID generation

	"github.com/sirupsen/logrus"

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
)

// Migrate performs automatic migration for the database schema and seeds the
// permission rows
func Migrate(dsn string) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true}) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err) // Log fatal error if connection fails
	}
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	err = db.AutoMigrate(
		&domain.User{},
		&domain.Permission{},
		&domain.Transaction{},
		&domain.TransactionEvent{},
		&domain.RateLimitWindow{},
	)
	if err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
	SeedPermissions(db)
	logrus.Info("Migration completed.") // Log successful migration
}

// SeedPermissions inserts the known permission rows if they are missing
func SeedPermissions(db *gorm.DB) {
	for _, name := range domain.AllPermissions {
		p := domain.Permission{ID: utils.NewID(), Name: name}
		// FirstOrCreate keeps reruns idempotent
		if err := db.Where("name = ?", name).FirstOrCreate(&p).Error; err != nil {
			logrus.Fatalf("seeding permission %s failed: %v", name, err)
		}
	}
}
