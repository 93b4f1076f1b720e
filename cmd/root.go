package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/telhawk-systems/rangehawk/internal/catalog"
	"github.com/telhawk-systems/rangehawk/internal/config"
	"github.com/telhawk-systems/rangehawk/internal/logging"
	"github.com/telhawk-systems/rangehawk/internal/output"
)

var (
	cfgFile      string
	scenariosDir string
	cfg          *config.Config
	logger       *logging.Logger
	printer      *output.Printer
)

var rootCmd = &cobra.Command{
	Use:   "rangehawk",
	Short: "Synthetic incident datasets and grading for SOC training",
	Long: `rangehawk generates synthetic security incidents for analyst training.

Each scenario instance is a set of log files (authentication, process,
network, IAM, API, storage) that tell one consistent attack story buried
in benign noise, together with an answer key. Trainee submissions are
graded against the key with per-scenario rubrics, either from the command
line or through the grading service.`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./rangehawk.yaml or $HOME/.rangehawk/rangehawk.yaml)")
	rootCmd.PersistentFlags().StringVar(&scenariosDir, "scenarios-dir", "", "directory of additional scenario definitions")
	rootCmd.PersistentFlags().String("output", "table", "output format: table, json")
	rootCmd.PersistentFlags().String("log-level", "", "log level override: debug, info, warn, error")
}

func initConfig(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return err
	}

	level := cfg.Logging.Level
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}
	logger = logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(level), cfg.Logging.Format)
	logging.SetDefault(logger)

	outFlag, _ := cmd.Flags().GetString("output")
	format, err := output.ParseFormat(outFlag)
	if err != nil {
		return err
	}
	printer = &output.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr(), Format: format}
	return nil
}

// loadCatalog returns the built-in scenarios plus any found in --scenarios-dir.
func loadCatalog() (*catalog.Catalog, error) {
	cat, err := catalog.Builtin()
	if err != nil {
		return nil, err
	}
	if scenariosDir == "" {
		return cat, nil
	}

	extra, err := catalog.Load(os.DirFS(scenariosDir), ".")
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", scenariosDir, err)
	}
	for _, d := range extra.List() {
		if err := cat.Add(d); err != nil {
			return nil, err
		}
	}
	return cat, nil
}
