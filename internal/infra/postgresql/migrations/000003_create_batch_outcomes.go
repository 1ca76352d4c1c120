package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"gorm.io/gorm"

	"github.com/pushfleet/broadcast-engine/internal/repository"
)

func createBatchOutcomesTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000003_create_batch_outcomes",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.BatchOutcomeModel{}); err != nil {
				return err
			}
			return tx.Exec(`CREATE INDEX IF NOT EXISTS idx_batch_outcomes_notification_id ON batch_outcomes (notification_id, id)`).Error
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.BatchOutcomeModel{})
		},
	}
}
