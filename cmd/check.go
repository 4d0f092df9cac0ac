package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	llmx "github.com/tanpawarit/Chative-Support-Router/agent/llm"
	"github.com/tanpawarit/Chative-Support-Router/pkg/config"
	openrouterx "github.com/tanpawarit/Chative-Support-Router/pkg/openrouter"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that every configured model is served by OpenRouter",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		llmCfg, err := config.New[llmx.Config]("OPENROUTER")
		if err != nil {
			return fmt.Errorf("openrouter config: %w", err)
		}
		if err := llmCfg.Validate(); err != nil {
			return err
		}

		client := openrouterx.NewClient(llmCfg.OpenRouterFor(llmx.RoleClassifier))
		var failed int
		for _, role := range llmx.Roles() {
			modelName := llmCfg.OpenRouterFor(role).Model
			if err := openrouterx.VerifyModel(ctx, client, modelName); err != nil {
				failed++
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-40s FAIL %v\n", role, modelName, err)
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-40s ok\n", role, modelName)
		}
		if failed > 0 {
			return fmt.Errorf("%d model(s) unavailable", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
