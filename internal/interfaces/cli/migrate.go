package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/database/postgres"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the run store schema",
	}

	dsn := func(cmd *cobra.Command) (string, logging.Logger, error) {
		cliCtx, err := GetCLIContext(cmd)
		if err != nil {
			return "", nil, err
		}
		return postgres.FromConfig(cliCtx.Config.Database).DSN(), cliCtx.Logger, nil
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, logger, err := dsn(cmd)
			if err != nil {
				return err
			}
			if err := postgres.RunMigrations(url); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "migrate up failed")
			}
			logger.Info("Migrations applied")
			return printVersion(cmd, url)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back applied migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, logger, err := dsn(cmd)
			if err != nil {
				return err
			}
			if err := postgres.RollbackMigration(url, steps); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "migrate down failed")
			}
			logger.Info("Migrations rolled back", logging.Int("steps", steps))
			return printVersion(cmd, url)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	version := &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, _, err := dsn(cmd)
			if err != nil {
				return err
			}
			return printVersion(cmd, url)
		},
	}

	force := &cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied and clear the dirty flag",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.New(errors.ErrCodeBadRequest, "version must be an integer").WithDetail(args[0])
			}
			url, _, err := dsn(cmd)
			if err != nil {
				return err
			}
			if err := postgres.ForceMigrationVersion(url, v); err != nil {
				return errors.Wrap(err, errors.ErrCodeDatabaseError, "migrate force failed")
			}
			return printVersion(cmd, url)
		},
	}

	cmd.AddCommand(up, down, version, force)
	return cmd
}

func printVersion(cmd *cobra.Command, url string) error {
	v, dirty, err := postgres.MigrationStatus(url)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to read schema version")
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (%s)\n", v, state)
	return nil
}
