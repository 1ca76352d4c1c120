package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/pushfleet/broadcast-engine/internal/repository"
)

func Migrate(db *gorm.DB) error {
	m := gormigrate.New(db, gormigrate.DefaultOptions, []*gormigrate.Migration{
		{
			ID: "000001_create_subscribers",
			Migrate: func(tx *gorm.DB) error {
				return tx.AutoMigrate(&repository.SubscriberModel{})
			},
			Rollback: func(tx *gorm.DB) error {
				return tx.Migrator().DropTable(&repository.SubscriberModel{})
			},
		},
		createNotificationsTable(),
		createBatchOutcomesTable(),
	})

	return m.Migrate()
}
