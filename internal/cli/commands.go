package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/yolodolo42/jpycli/internal/history"
	"github.com/yolodolo42/jpycli/internal/session"
	"github.com/yolodolo42/jpycli/internal/ui"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List supported networks",
	Args:  cobra.NoArgs,
	RunE:  runNetworks,
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show JPYC and native balances",
	Long:  `Connect the keystore account and show its JPYC and native balances on the selected network.`,
	Args:  cobra.NoArgs,
	RunE:  runBalance,
}

var sendCmd = &cobra.Command{
	Use:   "send <to> <amount>",
	Short: "Send JPYC",
	Long: `Send a JPYC transfer from the keystore account.

The amount is in whole JPYC with up to 18 decimals, e.g. 1500 or 0.25.
The transaction is shown for approval before it is signed.`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show transfer history",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(networksCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(historyCmd)

	sendCmd.Flags().BoolP("yes", "y", false, "Approve network additions and the transaction without prompting")
	historyCmd.Flags().Int("limit", 20, "Maximum number of records to show (0 for all)")
}

func runNetworks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	fmt.Println(ui.RenderNetworks(registry, cfg.Network))
	return nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	a, err := newApp(newTerminalApprover(false), ui.NewLineNotifier(os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	if err := a.connect(ctx, ""); err != nil {
		return err
	}
	snap := a.wallet.State()
	if !snap.Balances.Valid() {
		if err := a.wallet.Refresh(ctx); err != nil {
			return err
		}
		snap = a.wallet.State()
	}
	fmt.Println(ui.RenderBalances(snap))
	return nil
}

func runSend(cmd *cobra.Command, args []string) error {
	assumeYes, _ := cmd.Flags().GetBool("yes")

	// Reject malformed input before any prompt.
	if _, err := session.ParseAddress(args[0]); err != nil {
		return err
	}
	if _, err := session.ParseAmount(args[1]); err != nil {
		return err
	}

	a, err := newApp(newTerminalApprover(assumeYes), ui.NewLineNotifier(os.Stderr))
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Provider.ReceiptTimeout)
	defer cancel()

	if err := a.connect(ctx, ""); err != nil {
		return err
	}
	record, err := a.wallet.Transfer(ctx, args[0], args[1])
	if record != nil {
		fmt.Println(ui.RenderHistory(a.registry, []history.Record{*record}))
	}
	if err != nil {
		return err
	}
	fmt.Println(ui.RenderBalances(a.wallet.State()))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	registry, err := cfg.Registry()
	if err != nil {
		return err
	}
	kv, err := history.OpenSQLiteKV(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer kv.Close()

	records := history.NewStore(kv, nil).Load()
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	fmt.Println(ui.RenderHistory(registry, records))
	return nil
}
