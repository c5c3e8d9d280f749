package main

import (
	"errors"
	"time"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/bi-assistant/internal/config"
	"github.com/suPer8Hu/bi-assistant/internal/httpapi/middleware"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if cfg.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set; the API runs without auth")
		}
		tok, err := middleware.IssueToken(cfg.JWTSecret, tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		cmd.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "cli", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
