package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/jpycli/internal/setup"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run the first-start wizard",
	Long: `Run the interactive wizard that creates or imports a keystore account.

It does nothing when the keystore already holds an account; use
'jpycli wallet create' or 'jpycli wallet import' to add more.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !setup.IsInteractive() {
			setup.PrintInstructions()
			return fmt.Errorf("setup requires an interactive terminal")
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		result, err := setup.RunWizard(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("setup failed: %w", err)
		}
		if result.Cancelled || result.Skipped {
			return nil
		}

		fmt.Printf("\nAccount ready: %s\nRun 'jpycli' to start.\n", result.WalletAddress)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
