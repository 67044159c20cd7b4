package main

import (
	"errors"
	"fmt"
	"time"

	"backoffice/internal/cache"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/identity"
	"backoffice/pkg/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		defer database.Close(db)

		if err := database.Migrate(db); err != nil {
			return err
		}
		logger.Info("migrations applied")
		return nil
	},
}

var grantAdminCmd = &cobra.Command{
	Use:   "grant-admin",
	Short: "Promote an identity-provider subject to an approved ADMIN account",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		email, _ := cmd.Flags().GetString("email")
		if subject == "" || email == "" {
			return errors.New("--subject and --email are required")
		}

		cfg, db, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		defer database.Close(db)

		accounts := newAccountService(db, cache.NewAccountCache(nil, 0), cfg.Database.MaxRetries)
		account, err := accounts.GrantAdmin(cmd.Context(), subject, email)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "account %s (%s) is now ADMIN\n", account.ID, account.Email)
		return nil
	},
}

// tokenCmd mints a token for local development against the HS256 verifier.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a signed access token for local development",
	RunE: func(cmd *cobra.Command, args []string) error {
		subject, _ := cmd.Flags().GetString("subject")
		email, _ := cmd.Flags().GetString("email")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if subject == "" {
			return errors.New("--subject is required")
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cfg.IsProduction() {
			return errors.New("refusing to issue tokens in production")
		}
		token, err := identity.Issue(cfg.Auth.JWTSecret, cfg.Auth.Audience, identity.Identity{
			SubjectID:     subject,
			Email:         email,
			EmailVerified: true,
		}, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	grantAdminCmd.Flags().String("subject", "", "identity provider subject id")
	grantAdminCmd.Flags().String("email", "", "account email")

	tokenCmd.Flags().String("subject", "", "subject id to embed")
	tokenCmd.Flags().String("email", "", "email claim")
	tokenCmd.Flags().Duration("ttl", 12*time.Hour, "token lifetime")
}
