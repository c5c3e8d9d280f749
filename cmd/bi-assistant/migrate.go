package main

import (
	"github.com/spf13/cobra"
	"github.com/suPer8Hu/bi-assistant/internal/chat"
	"github.com/suPer8Hu/bi-assistant/internal/db"
	"github.com/suPer8Hu/bi-assistant/internal/schemaindex"
	"github.com/suPer8Hu/bi-assistant/internal/warehouse"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the warehouse and chat tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newBase(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := warehouse.Migrate(ctx, a.db); err != nil {
			return err
		}
		if err := chat.Migrate(ctx, a.db); err != nil {
			return err
		}
		// the vector column needs pgvector
		if a.db.Dialector.Name() == db.DriverPostgres {
			if err := schemaindex.Migrate(ctx, a.db); err != nil {
				return err
			}
		}
		cmd.Println("migrations applied")
		return nil
	},
}
