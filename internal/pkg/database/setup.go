package database

import (
	"fmt"
	"log"
	"time"

	"github.com/simplify-ai/simplify/app/models"
	"github.com/simplify-ai/simplify/internal/pkg/env"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var db *gorm.DB

func SetupDatabase() {
	var err error
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)

	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                      dsn,
			DefaultStringSize:        256,
			DisableDatetimePrecision: true,
		}), &gorm.Config{})
		if err == nil {
			if migErr := AutoMigrate(db); migErr != nil {
				log.Printf("Auto-migration failed: %v", migErr)
			}
			return
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	panic(err)
}

// AutoMigrate creates or updates the billing core tables.
func AutoMigrate(handle *gorm.DB) error {
	return handle.AutoMigrate(
		&models.Account{},
		&models.CreditAccount{},
		&models.PaymentSession{},
		&models.WebhookEvent{},
		&models.ProcessedInvoice{},
		&models.AuditEvent{},
	)
}

// GetDB returns the shared database handle.
func GetDB() *gorm.DB {
	return db
}

// SetDB swaps the shared handle; used by tests.
func SetDB(handle *gorm.DB) {
	db = handle
}
