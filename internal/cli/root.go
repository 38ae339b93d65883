package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/yolodolo42/jpycli/internal/config"
	"github.com/yolodolo42/jpycli/internal/setup"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "jpycli",
		Short: "Terminal wallet for JPYC",
		Long: `jpycli is a terminal wallet for the JPYC stablecoin on Polygon,
Ethereum and Avalanche.

It connects to a local keystore account, reads JPYC and native balances,
switches networks and sends JPYC transfers. Every transaction is shown and
must be approved before it is signed.

Run without a subcommand to start the interactive shell.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if setup.NeedsSetup(cfg.DataDir) {
				if !setup.IsInteractive() {
					setup.PrintInstructions()
					return fmt.Errorf("setup required: add a keystore account first")
				}
				result, err := setup.RunWizard(cfg.DataDir)
				if err != nil {
					return fmt.Errorf("setup failed: %w", err)
				}
				if result.Cancelled {
					return nil
				}
			}

			return RunShell()
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.jpycli/config.yaml)")
	rootCmd.PersistentFlags().String("network", "", "Network to use: polygon, ethereum or avalanche")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory holding the keystore and history (default is $HOME/.jpycli)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	_ = viper.BindPFlag("network", rootCmd.PersistentFlags().Lookup("network"))
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// A .env in the working directory may carry JPYCLI_* overrides; it is optional.
	_ = godotenv.Load()

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir := config.DefaultDataDir()
		if err := os.MkdirAll(configDir, 0700); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config directory: %v\n", err)
		}

		viper.AddConfigPath(configDir)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	config.ConfigureEnv(viper.GetViper())

	// A missing config file is fine; a broken one is not.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "Warning: could not read config %s: %v\n", filepath.Clean(viper.ConfigFileUsed()), err)
		}
	}
}
