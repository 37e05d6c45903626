package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/templui/stravasync/internal/config"
	"github.com/templui/stravasync/internal/db"
	"github.com/templui/stravasync/internal/logger"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd, false)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(cmd, true)
		},
	})
	return cmd
}

func migrate(cmd *cobra.Command, down bool) error {
	cfg := config.Load()
	logger.Init(cfg.IsDevelopment(), cfg.SentryDSN)

	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(database) }()

	if down {
		err = db.MigrateDown(cmd.Context(), database.DB, cfg.DBDriver)
	} else {
		err = db.RunMigrations(cmd.Context(), database.DB, cfg.DBDriver)
	}
	if err != nil {
		return err
	}

	fmt.Println("==> Migrations done")
	return nil
}
