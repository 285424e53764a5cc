package cmd

import (
	"fmt"

	"toolhost/internal/config"
	"toolhost/internal/registry/postgres"

	"github.com/spf13/cobra"
)

var dbDSN string

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the PostgreSQL registry",
}

var dbInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the toolhost schema",
	Long: `Create the toolhost schema and tables in PostgreSQL. Running it again
is harmless.

The connection string is taken from --dsn, then TOOLHOST_REGISTRY_DSN, then
registry.dsn in config.yaml.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn, err := resolveDSN()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		reg, err := postgres.Open(ctx, dsn)
		if err != nil {
			return err
		}
		defer reg.Close()

		if err := reg.Init(ctx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
		return nil
	},
}

var dbSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the SQL applied by db init",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), postgres.Schema())
	},
}

func resolveDSN() (string, error) {
	if dbDSN != "" {
		return dbDSN, nil
	}
	dir := configPath
	if dir == "" {
		var err error
		if dir, err = config.GetUserConfigDir(); err != nil {
			return "", err
		}
	}
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return "", err
	}
	if cfg.Registry.DSN == "" {
		return "", fmt.Errorf("no PostgreSQL DSN: use --dsn, %s or registry.dsn", config.EnvRegistryDSN)
	}
	return cfg.Registry.DSN, nil
}

func init() {
	dbInitCmd.Flags().StringVar(&dbDSN, "dsn", "", "PostgreSQL connection string")
	dbCmd.AddCommand(dbInitCmd, dbSchemaCmd)
	rootCmd.AddCommand(dbCmd)
}
