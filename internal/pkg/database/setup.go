package database

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/ManuelReschke/MarketFox/app/models"
	"github.com/ManuelReschke/MarketFox/internal/pkg/config"
)

const maxRetries = 5
const retryDelay = 5 * time.Second

// DSN builds the MySQL data source name. Times are stored and read as UTC.
func DSN(cfg *config.Config) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
	)
}

// Open connects to MySQL, retrying while the server comes up.
func Open(cfg *config.Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	for i := 0; i < maxRetries; i++ {
		db, err = gorm.Open(mysql.New(mysql.Config{
			DSN:                       DSN(cfg),
			DefaultStringSize:         256,
			DisableDatetimePrecision:  true,
			DontSupportRenameIndex:    true,
			DontSupportRenameColumn:   true,
			SkipInitializeWithVersion: false,
		}), &gorm.Config{
			NowFunc: func() time.Time { return time.Now().UTC() },
		})
		if err == nil {
			return db, nil
		}

		log.Warnf("[Database] Failed to connect (try %d/%d): %v", i+1, maxRetries, err)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	return nil, fmt.Errorf("connect database: %w", err)
}

// Models lists every table owned by the service.
func Models() []interface{} {
	return []interface{}{
		&models.Plan{},
		&models.Business{},
		&models.CurrentPlan{},
		&models.Trial{},
		&models.Payment{},
		&models.WebhookEvent{},
		&models.ActivityLog{},
	}
}

// AutoMigrate creates or updates the schema. Production uses cmd/migrate.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// SeedPlans inserts the default catalog rows that do not exist yet.
func SeedPlans(db *gorm.DB) error {
	defaults := []models.Plan{
		{Type: models.PlanFree, Name: "Free", MaxProducts: 5, MaxImagesPerProduct: 1, Price: 0, IsActive: true},
		{Type: models.PlanBasic, Name: "Basic", MaxProducts: 50, MaxImagesPerProduct: 5, Price: 14999, IsActive: true},
		{Type: models.PlanPremium, Name: "Premium", MaxProducts: models.UnlimitedProducts, MaxImagesPerProduct: 10, CanFeatureProducts: true, Price: 29999, IsActive: true},
	}
	for i := range defaults {
		p := defaults[i]
		if err := db.Where("type = ?", p.Type).FirstOrCreate(&p).Error; err != nil {
			return fmt.Errorf("seed plan %s: %w", p.Type, err)
		}
	}
	return nil
}
