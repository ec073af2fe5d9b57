package main

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"oasisrun/internal/config"
	"oasisrun/internal/store"
)

// version is stamped at build time.
var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "oasisrun",
		Short:         "Catastrophe model run orchestrator",
		Long:          "oasisrun resolves model risk keys, generates Oasis input files and drives\nthe calculation engine over named-pipe process chains.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "oasisrun.json", "JSON configuration file")
	root.PersistentFlags().Bool("verbose", false, "verbose logging")

	root.AddCommand(
		newGenerateKeysCmd(),
		newGenerateOasisFilesCmd(),
		newGenerateLossesCmd(),
		newRunCmd(),
		newServerCmd(),
		newTestAPICmd(),
		newRunsCmd(),
	)
	return root
}

// loadInputs merges the flags the user actually set with the JSON config
// file. Flag names map to config keys by swapping hyphens for underscores.
func loadInputs(cmd *cobra.Command) (*config.InputValues, error) {
	confPath, _ := cmd.Flags().GetString("config")
	overrides := map[string]string{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "config", "verbose":
			return
		}
		overrides[strings.ReplaceAll(f.Name, "-", "_")] = f.Value.String()
	})
	return config.Load(confPath, overrides)
}

func newLogger(cmd *cobra.Command) *log.Logger {
	flags := log.LstdFlags
	if v, _ := cmd.Flags().GetBool("verbose"); v {
		flags |= log.Lmicroseconds
	}
	return log.New(os.Stderr, "oasisrun: ", flags)
}

// openRegistry opens the run history database, defaulting to
// ~/.oasisrun/runs.db.
func openRegistry(iv *config.InputValues) (*store.Store, error) {
	path, err := iv.GetPath("run_registry_path", "", false)
	if err != nil {
		return nil, err
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dir := filepath.Join(home, ".oasisrun")
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "runs.db")
	}
	return store.Open(path)
}
