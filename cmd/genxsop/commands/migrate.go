package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/genxsop/backend/pkg/database"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "DB 마이그레이션",
	Long: `내장(goose) SQL 마이그레이션을 적용/되돌립니다.

Example:
  go run ./cmd/genxsop migrate up
  go run ./cmd/genxsop migrate down --steps 1
  go run ./cmd/genxsop migrate version`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "미적용 마이그레이션 적용",
	RunE:  runMigrateUp,
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "마이그레이션 되돌리기",
	RunE:  runMigrateDown,
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "현재 스키마 버전",
	RunE:  runMigrateVersion,
}

var migrateSteps int

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)

	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to revert")
}

// databaseURL loads config and requires DATABASE_URL
func databaseURL() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return "", err
	}
	return cfg.Database.URL, nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	dsn, err := databaseURL()
	if err != nil {
		return err
	}
	if err := database.Migrate(cmd.Context(), dsn); err != nil {
		return err
	}
	version, err := database.Version(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("migrations applied (version %d)", version))
	return nil
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	if migrateSteps < 1 {
		return fmt.Errorf("--steps must be >= 1")
	}
	dsn, err := databaseURL()
	if err != nil {
		return err
	}
	if err := database.Rollback(cmd.Context(), dsn, migrateSteps); err != nil {
		return err
	}
	PrintSuccess(fmt.Sprintf("%d migration(s) reverted", migrateSteps))
	return nil
}

func runMigrateVersion(cmd *cobra.Command, args []string) error {
	dsn, err := databaseURL()
	if err != nil {
		return err
	}
	version, err := database.Version(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	PrintKeyValue("Schema version", fmt.Sprintf("%d", version), 14)
	return nil
}
