package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/config"
)

var (
	cfg *config.Config

	providerOverride string
	logLevelOverride string
)

var rootCmd = &cobra.Command{
	Use:   "evidence-cli",
	Short: "Evidence quality evaluation for research papers",
	Long:  "Evaluates research documents with a language model, synthesizes across papers, normalizes DOI citations and exports key findings.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		applyOverrides(cfg)

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

// applyOverrides lets flags win over config file and environment.
func applyOverrides(c *config.Config) {
	if providerOverride != "" {
		c.Provider.Name = providerOverride
	}
	if logLevelOverride != "" {
		c.Log.Level = logLevelOverride
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&providerOverride, "provider", "", "language model provider: anthropic, openai or gemini")
	rootCmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "log level (debug, info, warn, error)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
