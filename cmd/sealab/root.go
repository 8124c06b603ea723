package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/rpggio/sealab/internal/app"
	"github.com/rpggio/sealab/internal/config"
	"github.com/rpggio/sealab/internal/logging"
)

type globalFlags struct {
	dbPath       string
	ledgerDriver string
	ledgerPath   string
	keyPath      string
	verbose      bool
	jsonOut      bool
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "sealab",
		Short: "sealab - A/B tests with encrypted parameters",
		Long: `sealab registers A/B tests whose numeric parameters are stored only as
ciphertext, and discloses them to the key holder after a signed challenge.

Examples:
  # Register a test
  sealab create "Checkout button" --a control --b green --param-a 0.12 --param-b 0.15

  # List your active tests
  sealab list --mine --status active

  # Decrypt both parameters of a test
  sealab disclose test-1700000000000-1a2b3c4d`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "SQLite database path (overrides SEALAB_DB_PATH)")
	root.PersistentFlags().StringVar(&g.ledgerDriver, "ledger", "", "Ledger driver: memory|file|sqlite|postgres|remote")
	root.PersistentFlags().StringVar(&g.ledgerPath, "ledger-path", "", "Ledger file for the file driver")
	root.PersistentFlags().StringVar(&g.keyPath, "key", "", "Signer key file")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Log at debug level")
	root.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "Print JSON instead of text")

	root.AddCommand(
		newCreateCmd(g),
		newListCmd(g),
		newGetCmd(g),
		newCompleteCmd(g),
		newStatsCmd(g),
		newAverageCmd(g),
		newDiscloseCmd(g),
		newActivityCmd(g),
		newKeygenCmd(g),
		newAPIKeyCmd(g),
		newLedgerCmd(g),
	)
	return root
}

// loadConfig applies command line overrides on top of config.Load.
func (g *globalFlags) loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if g.dbPath != "" {
		cfg.DB.Path = g.dbPath
	}
	if g.ledgerDriver != "" {
		cfg.Ledger.Driver = g.ledgerDriver
	}
	if g.ledgerPath != "" {
		cfg.Ledger.Path = g.ledgerPath
	}
	if g.keyPath != "" {
		cfg.Signer.KeyPath = g.keyPath
	}
	if g.verbose {
		cfg.Log.Level = "debug"
	} else if cfg.Log.File == "" {
		cfg.Log.Level = "warn"
	}
	return cfg, cfg.Validate()
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func (g *globalFlags) withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	logger, closer, err := logging.New(cfg.Log, true)
	if err != nil {
		return err
	}
	defer closer.Close()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
