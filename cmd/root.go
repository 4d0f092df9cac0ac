// Package cmd holds the support-router command line.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tanpawarit/Chative-Support-Router/pkg/config"
	logx "github.com/tanpawarit/Chative-Support-Router/pkg/logger"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "support-router",
	Short: "Customer support conversation router",
	Long: `support-router classifies each customer message as sales, tech support,
order inquiry or escalation and lets the matching assistant answer it with
tools over the product, customer and order store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if envFile == "" {
			return nil
		}
		config.SetEnvFile(envFile)
		// The logger was initialised from ./.env on import; redo it with
		// the explicit file.
		conf, err := config.New[logx.Config]("LOG")
		if err != nil {
			return err
		}
		logx.Init(*conf)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to a .env file (default ./.env when present)")
}
