package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/optrader/internal/ledger"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Ledger database management",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the trades schema (LEDGER_DRIVER sqlite or postgres)",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Open은 스키마 생성까지 수행
	store, err := ledger.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("migrate ledger: %w", err)
	}
	defer store.Close()

	log.WithField("driver", cfg.Ledger.Driver).Info("Ledger schema is up to date")
	fmt.Fprintf(cmd.OutOrStdout(), "✅ %s ledger migrated\n", cfg.Ledger.Driver)
	return nil
}
