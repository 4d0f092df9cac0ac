package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	storex "github.com/tanpawarit/Chative-Support-Router/commerce/store"
	"github.com/tanpawarit/Chative-Support-Router/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		version, err := database.Version(ctx, db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", version)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the demo catalogue (customers, products, known issues)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		db, err := openDatabase(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		catalog := storex.NewDemoCatalog()
		if err := storex.New(db).Seed(ctx, catalog); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d customers, %d products, %d issues (existing rows kept)\n",
			len(catalog.Customers), len(catalog.Products), len(catalog.Issues))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, seedCmd)
}
