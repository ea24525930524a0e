package database

import (
	"fmt"
	"log"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/obafemi/settlecore/app/models"
	"github.com/obafemi/settlecore/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// Config holds the connection parameters for the MySQL database.
type Config struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// ConfigFromEnv reads the database configuration from the environment.
func ConfigFromEnv() Config {
	return Config{
		User:     env.GetEnv("DB_USER", ""),
		Password: env.GetEnv("DB_PASSWORD", ""),
		Host:     env.GetEnv("DB_HOST", "127.0.0.1"),
		Port:     env.GetEnv("DB_PORT", "3306"),
		Name:     env.GetEnv("DB_NAME", ""),
	}
}

// DSN renders the MySQL data source name.
func (c Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Connect opens the database and returns the handle. The handle is owned by
// the caller and passed into each component's constructor; there is no
// package-level connection state.
func Connect(cfg Config) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                      cfg.DSN(),
			DefaultStringSize:        256,
			DisableDatetimePrecision: true,
		}), &gorm.Config{})
		if err == nil {
			return db, nil
		}

		log.Printf("Failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, err
}

// Migrate applies the model schema. Production deployments run the SQL
// migrations in migrations/ via cmd/migrate instead.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.ProductVariant{},
		&models.Order{},
		&models.OrderItem{},
		&models.InventoryReservation{},
		&models.Payment{},
		&models.Refund{},
		&models.WebhookEvent{},
		&models.AuditLogEntry{},
	)
}

// Close releases the underlying connection pool on shutdown.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
