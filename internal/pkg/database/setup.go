package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kazka-books/kazka/app/models"
	"github.com/kazka-books/kazka/internal/pkg/config"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// DSN builds the driver specific connection string.
func DSN(cfg config.Database) string {
	if cfg.Driver == "mysql" {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, cfg.SSLMode)
}

// Dialector returns the gorm dialector for the configured driver.
func Dialector(cfg config.Database) gorm.Dialector {
	if cfg.Driver == "mysql" {
		return mysql.New(mysql.Config{
			DSN:                       DSN(cfg),
			DefaultStringSize:         256,
			SkipInitializeWithVersion: false,
		})
	}
	return postgres.Open(DSN(cfg))
}

// Open connects to the database, retrying while the server starts up.
func Open(cfg config.Database) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(Dialector(cfg), &gorm.Config{TranslateError: true})
		if err == nil {
			return db, nil
		}

		log.Warnf("[Database] failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("connect %s database: %w", cfg.Driver, err)
}

// AutoMigrate creates the schema without the SQL migrations. Used for local
// development only; deployments run cmd/migrate.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.SubscriptionRequest{},
		&models.Payment{},
		&models.User{},
		&models.Profile{},
		&models.RegistrationTask{},
		&models.PaymentWebhookEvent{},
	)
}
