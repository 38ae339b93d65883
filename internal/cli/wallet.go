package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/jpycli/internal/ui"
	"github.com/yolodolo42/jpycli/internal/wallet"
)

const minPasswordLen = 8

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage keystore accounts",
	Long:  `Create, import and list the encrypted keystore accounts jpycli signs with.`,
}

var walletCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new account",
	Args:  cobra.NoArgs,
	RunE:  runWalletCreate,
}

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an account from a private key",
	Args:  cobra.NoArgs,
	RunE:  runWalletImport,
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keystore accounts",
	Args:  cobra.NoArgs,
	RunE:  runWalletList,
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletCreateCmd)
	walletCmd.AddCommand(walletImportCmd)
	walletCmd.AddCommand(walletListCmd)

	walletImportCmd.Flags().String("key", "", "Private key to import (hex, with or without 0x prefix)")
}

func openKeystore() (*wallet.KeystoreManager, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	km, err := wallet.NewKeystoreManager(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keystore: %w", err)
	}
	return km, nil
}

// readNewPassword asks twice and enforces the minimum length.
func readNewPassword(prompt string) (string, error) {
	password, err := readPassword(prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if err := checkNewPassword(password, ""); err != nil {
		return "", err
	}
	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}
	if err := checkNewPassword(password, confirm); err != nil {
		return "", err
	}
	return password, nil
}

// checkNewPassword validates a password and, when confirm is set, that it matches.
func checkNewPassword(password, confirm string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	if confirm != "" && password != confirm {
		return fmt.Errorf("passwords do not match")
	}
	return nil
}

func runWalletCreate(cmd *cobra.Command, args []string) error {
	km, err := openKeystore()
	if err != nil {
		return err
	}

	password, err := readNewPassword("Enter password for new account: ")
	if err != nil {
		return err
	}

	account, err := km.CreateAccount(password)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	fmt.Println()
	fmt.Println(ui.SuccessStyle.Render(ui.SymbolCheck + " Account created"))
	fmt.Printf("Address:  %s\n", account.Address.Hex())
	fmt.Printf("Keystore: %s\n", account.URL.Path)
	fmt.Println("\nBack up the keystore file and remember the password. Neither can be recovered.")
	return nil
}

func runWalletImport(cmd *cobra.Command, args []string) error {
	privateKey, _ := cmd.Flags().GetString("key")
	if privateKey == "" {
		fmt.Print("Enter private key (hex): ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		privateKey = strings.TrimSpace(line)
	}
	if privateKey == "" {
		return fmt.Errorf("private key is required")
	}

	km, err := openKeystore()
	if err != nil {
		return err
	}

	password, err := readNewPassword("Enter password to encrypt the key: ")
	if err != nil {
		return err
	}

	account, err := km.ImportKey(privateKey, password)
	if err != nil {
		return fmt.Errorf("failed to import key: %w", err)
	}

	fmt.Println()
	fmt.Println(ui.SuccessStyle.Render(ui.SymbolCheck + " Account imported"))
	fmt.Printf("Address:  %s\n", account.Address.Hex())
	fmt.Printf("Keystore: %s\n", account.URL.Path)
	return nil
}

func runWalletList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	km, err := wallet.NewKeystoreManager(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to initialize keystore: %w", err)
	}

	addresses := km.Addresses()
	if len(addresses) == 0 {
		fmt.Println("No accounts found.")
		fmt.Println("Use 'jpycli wallet create' or 'jpycli wallet import' first.")
		return nil
	}

	preferred := cfg.PreferredAccount()
	fmt.Printf("Found %d account(s):\n\n", len(addresses))
	for i, addr := range addresses {
		marker := ""
		if addr == preferred {
			marker = ui.SystemStyle.Render("  (default)")
		}
		fmt.Printf("%d. %s%s\n", i+1, addr.Hex(), marker)
	}
	return nil
}
