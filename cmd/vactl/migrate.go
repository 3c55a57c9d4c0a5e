package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/umrah-va-gateway/migrations"
)

func (a *app) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DatabaseURL == "" {
				return fmt.Errorf("database url is required")
			}
			if err := migrations.Up(a.cfg.DatabaseURL); err != nil {
				return err
			}
			return a.printVersion(cmd)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.DatabaseURL == "" {
				return fmt.Errorf("database url is required")
			}
			if steps <= 0 {
				return fmt.Errorf("--steps must be positive")
			}
			if err := migrations.Down(a.cfg.DatabaseURL, steps); err != nil {
				return err
			}
			return a.printVersion(cmd)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	return cmd
}

func (a *app) printVersion(cmd *cobra.Command) error {
	version, dirty, err := migrations.Version(a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
