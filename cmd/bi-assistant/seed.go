package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/bi-assistant/internal/warehouse"
)

var (
	seedDataDir  string
	seedTruncate bool
	seedRandom   uint64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load sales and churn CSVs, jobs, knowledge base and synthetic job logs",
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
		seed := seedRandom
		if seed == 0 {
			seed = uint64(time.Now().UnixNano())
		}
		rep, err := warehouse.NewSeeder(a.db, seed).Seed(ctx, warehouse.SeedOptions{
			DataDir:  seedDataDir,
			Truncate: seedTruncate,
		})
		if err != nil {
			return err
		}
		cmd.Printf("seeded sales=%d churn=%d jobs=%d kb=%d job_logs=%d\n", rep.Sales, rep.Churn, rep.Jobs, rep.KB, rep.JobLogs)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedDataDir, "data-dir", "data", "directory holding sales.csv and churn.csv")
	seedCmd.Flags().BoolVar(&seedTruncate, "truncate", false, "delete existing warehouse rows first")
	seedCmd.Flags().Uint64Var(&seedRandom, "seed", 0, "random seed for synthetic job logs (0 = time based)")
}
