package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/rxscout/backend/config"
)

var (
	cfg         *config.Config
	flushLogger = func() {}
)

var rootCmd = &cobra.Command{
	Use:   "rxscout",
	Short: "Medication price and pharmacy lookup",
	Long:  "Turns free-text medication queries into ranked pharmacies, price comparisons, generic alternatives and medication summaries gathered from web search.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		_, flush, err := config.InitLogger(cfg.Log)
		if err != nil {
			return eris.Wrap(err, "init logger")
		}
		flushLogger = flush

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		flushLogger()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
