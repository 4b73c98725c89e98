package main

import (
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/platanos-shop/storefront/internal/config"
)

var migrationsPath string

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|version|force N]",
		Short: "Apply or inspect database migrations",
		Long: `Apply or inspect the schema migrations against DATABASE_URL.

Examples:
  storefront migrate up
  storefront migrate down
  storefront migrate force 1`,
		Args: cobra.RangeArgs(1, 2),
		RunE: runMigrate,
	}
	cmd.Flags().StringVar(&migrationsPath, "path", "migrations", "directory holding the migration files")
	return cmd
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	m, err := migrate.New("file://"+migrationsPath, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	defer m.Close()

	switch args[0] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "force":
		if len(args) < 2 {
			return errors.New("force needs a version")
		}
		v, perr := strconv.Atoi(args[1])
		if perr != nil {
			return fmt.Errorf("invalid version %q", args[1])
		}
		err = m.Force(v)
	case "version":
		v, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			return verr
		}
		log.Printf("version %d (dirty=%t)", v, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q", args[0])
	}
	if errors.Is(err, migrate.ErrNoChange) {
		log.Println("No migrations to apply")
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("migrate %s: done", args[0])
	return nil
}
