package chat

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(&Session{}, &Message{}, &Job{}); err != nil {
		return fmt.Errorf("migrate chat: %w", err)
	}
	return nil
}
