package warehouse

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates the reference tables.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&Sales{}, &Churn{}, &Job{}, &JobLog{}, &IncidentKB{}); err != nil {
		return fmt.Errorf("migrate warehouse: %w", err)
	}
	return nil
}
