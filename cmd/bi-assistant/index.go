package main

import (
	"errors"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/bi-assistant/internal/schemaindex"
)

var indexSchemaCmd = &cobra.Command{
	Use:   "index-schema",
	Short: "Embed warehouse column descriptions for schema hints (postgres + gemini)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newBase(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		emb, err := a.embedder(ctx)
		if err != nil {
			return err
		}
		if emb == nil {
			return errors.New("index-schema needs DB_DRIVER=postgres and GEMINI_API_KEY")
		}
		if err := schemaindex.Migrate(ctx, a.db); err != nil {
			return err
		}
		n, err := schemaindex.New(a.db, emb).Build(ctx, schemaindex.DefaultColumns)
		if err != nil {
			return err
		}
		cmd.Printf("indexed %d columns\n", n)
		return nil
	},
}
