// Package setup runs the first-start wizard that puts an account into the keystore.
package setup

import (
	"fmt"
	"os"

	"github.com/yolodolo42/jpycli/internal/wallet"
	"golang.org/x/term"
)

// Status is what the data directory already holds.
type Status struct {
	HasWallet     bool
	WalletAddress string
}

// DetectStatus inspects the keystore under dataDir. A missing keystore is not an error.
func DetectStatus(dataDir string) Status {
	km, err := wallet.NewKeystoreManager(dataDir)
	if err != nil {
		return Status{}
	}
	addresses := km.Addresses()
	if len(addresses) == 0 {
		return Status{}
	}
	return Status{HasWallet: true, WalletAddress: addresses[0].Hex()}
}

// NeedsSetup reports whether the keystore has no account yet.
func NeedsSetup(dataDir string) bool {
	return !DetectStatus(dataDir).HasWallet
}

// IsInteractive returns true if stdin is a terminal.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// PrintInstructions explains how to add an account without the wizard.
func PrintInstructions() {
	fmt.Println("jpycli needs a keystore account to connect.")
	fmt.Println("")
	fmt.Println("Create or import one:")
	fmt.Println("  jpycli wallet create")
	fmt.Println("  jpycli wallet import --key <hex>")
	fmt.Println("")
	fmt.Println("Or run jpycli in a terminal to use the guided setup.")
}
