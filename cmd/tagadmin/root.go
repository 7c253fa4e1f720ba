// Root command for the tagadmin CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/assetops/tagledger/internal/repo"
	"github.com/assetops/tagledger/internal/service"
)

// Global flag values.
var (
	flagConfigFile  string
	flagDatabaseURL string
	flagJSON        bool
)

// ledger is the service instance shared by all subcommands,
// initialized by PersistentPreRunE.
var ledger *service.LedgerService

// pool is closed by PersistentPostRun after the subcommand finishes.
var pool *pgxpool.Pool

var rootCmd = &cobra.Command{
	Use:   "tagadmin",
	Short: "tagadmin administers the asset tag ledger",
	Long: `tagadmin is the operator CLI for the tag issuance ledger.
It previews and allocates tags, records confirmations by hand, re-seeds a
prefix's sequence after cleanup, and lists stale reservations.`,
	SilenceUsage:      true,
	PersistentPreRunE: initLedger,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if pool != nil {
			pool.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file (default: ~/.tagadmin.yaml)")
	rootCmd.PersistentFlags().StringVar(&flagDatabaseURL, "database-url", "", "Postgres connection string (overrides config and TAGADMIN_DATABASE_URL)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(allocateCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(staleCmd)
}

// initLedger resolves the connection string (flag > env > config file),
// opens the pool, and wires the repo and service.
func initLedger(cmd *cobra.Command, args []string) error {
	dsn, err := resolveDatabaseURL()
	if err != nil {
		return err
	}

	pool, err = pgxpool.New(context.Background(), dsn)
	if err != nil {
		return fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(cmd.Context()); err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}

	ledger = service.NewLedgerService(repo.NewLedgerRepo(pool))
	return nil
}

// resolveDatabaseURL returns the connection string following precedence:
// --database-url flag > TAGADMIN_DATABASE_URL env > database_url config key.
func resolveDatabaseURL() (string, error) {
	if flagDatabaseURL != "" {
		return flagDatabaseURL, nil
	}

	v := viper.New()
	v.SetEnvPrefix("tagadmin")
	v.AutomaticEnv()

	if flagConfigFile != "" {
		v.SetConfigFile(flagConfigFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		v.SetConfigName(".tagadmin")
		v.SetConfigType("yaml")
		v.AddConfigPath(home)
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine as long as the env var is set.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && flagConfigFile != "" {
			return "", fmt.Errorf("read config: %w", err)
		}
	}

	dsn := v.GetString("database_url")
	if dsn == "" {
		return "", fmt.Errorf("no database URL: set --database-url, TAGADMIN_DATABASE_URL, or database_url in ~/.tagadmin.yaml")
	}
	return dsn, nil
}

// printResult writes v as indented JSON when --json is set, otherwise calls
// plain to produce the human-readable form.
func printResult(v any, plain func()) error {
	if !flagJSON {
		plain()
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
