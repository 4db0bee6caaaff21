package database

import (
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/flowdeck-app/flowdeck/app/models"
	"github.com/flowdeck-app/flowdeck/internal/pkg/env"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

var (
	db     *gorm.DB
	dbOnce sync.Once
)

// SetupDatabase connects to MySQL and migrates the service's tables. The
// connection is established exactly once per process; handlers obtain the
// shared handle through GetDB.
func SetupDatabase() {
	dbOnce.Do(func() {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			env.GetEnv("DB_USER", ""),
			env.GetEnv("DB_PASSWORD", ""),
			env.GetEnv("DB_HOST", "127.0.0.1"),
			env.GetEnv("DB_PORT", "3306"),
			env.GetEnv("DB_NAME", ""),
		)

		var err error
		for i := 0; i < maxRetries; i++ {
			db, err = gorm.Open(mysql.New(mysql.Config{
				DSN:                      dsn,
				DefaultStringSize:        256,
				DisableDatetimePrecision: true,
			}), &gorm.Config{})
			if err == nil {
				if migrateErr := Migrate(db); migrateErr != nil {
					panic(migrateErr)
				}
				return
			}

			log.Printf("failed to connect to database (try %d/%d): %v", i+1, maxRetries, err)
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
			}
		}
		panic(err)
	})
}

// Migrate creates or updates the tables owned by this service. It is shared
// with the test setup, which runs it against SQLite.
func Migrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&models.IntegrationRecord{},
		&models.BillingCustomer{},
		&models.BillingSubscription{},
		&models.Workflow{},
	)
}

// GetDB returns the shared database handle, or nil before SetupDatabase ran.
func GetDB() *gorm.DB {
	return db
}

// SetDB swaps the shared handle; tests use it to point handlers at an
// in-memory database.
func SetDB(conn *gorm.DB) {
	db = conn
}
