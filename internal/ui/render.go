package ui

import (
	"fmt"
	"strings"

	"github.com/yolodolo42/jpycli/internal/chain"
	"github.com/yolodolo42/jpycli/internal/history"
	"github.com/yolodolo42/jpycli/internal/session"
)

const timeLayout = "2006-01-02 15:04:05"

// RenderStatus is the one-line session summary shown above the prompt.
func RenderStatus(snap session.Snapshot) string {
	if !snap.Connected || snap.Account == nil {
		return SystemStyle.Render(SymbolHollow + " not connected (/connect)")
	}

	parts := []string{
		SuccessStyle.Render(SymbolBullet) + " " + AddressStyle.Render(ShortAddress(snap.Account.Hex())),
	}
	if snap.Network == nil {
		parts = append(parts, WarningStyle.Render("no network"))
		return strings.Join(parts, "  ")
	}
	parts = append(parts, snap.Network.ChainName)
	parts = append(parts, BalanceStyle.Render(snap.Balances.TokenDisplay()+" "+snap.Network.TokenSymbol))
	parts = append(parts, snap.Balances.NativeDisplay()+" "+snap.Network.NativeCurrency.Symbol)
	return strings.Join(parts, "  ")
}

// RenderBalances is the multi-line balance panel.
func RenderBalances(snap session.Snapshot) string {
	if !snap.Connected || snap.Account == nil || snap.Network == nil {
		return SystemStyle.Render("Not connected.")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Account  %s\n", AddressStyle.Render(snap.Account.Hex()))
	fmt.Fprintf(&b, "Network  %s (chain %s)\n", snap.Network.ChainName, snap.Network.ChainID)
	fmt.Fprintf(&b, "%-8s %s\n", snap.Network.TokenSymbol, BalanceStyle.Render(snap.Balances.TokenDisplay()))
	fmt.Fprintf(&b, "%-8s %s", snap.Network.NativeCurrency.Symbol, snap.Balances.NativeDisplay())
	return b.String()
}

// RenderNetworks lists the registry, marking currentKey.
func RenderNetworks(registry *chain.Registry, currentKey string) string {
	var b strings.Builder
	for _, n := range registry.Networks() {
		marker := SymbolHollow
		if n.Key == currentKey {
			marker = SuccessStyle.Render(SymbolBullet)
		}
		fmt.Fprintf(&b, "%s %-10s %-20s %6s  %s %s\n",
			marker, n.Key, n.ChainName, n.ChainID, n.TokenSymbol, SystemStyle.Render(n.TokenAddress.Hex()))
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderHistory lists records most recent first, with explorer links where known.
func RenderHistory(registry *chain.Registry, records []history.Record) string {
	if len(records) == 0 {
		return SystemStyle.Render("No transactions yet.")
	}

	var b strings.Builder
	for i, r := range records {
		glyph := SuccessStyle.Render(SymbolCheck)
		if r.Status != history.StatusSuccess {
			glyph = ErrorStyle.Render(SymbolCross)
		}
		symbol := "JPYC"
		if n, ok := registry.Get(r.Network); ok {
			symbol = n.TokenSymbol
		}
		fmt.Fprintf(&b, "%s %s  %s %s → %s  %s\n",
			glyph,
			SystemStyle.Render(r.Time().Local().Format(timeLayout)),
			BalanceStyle.Render(r.Amount), symbol,
			AddressStyle.Render(ShortAddress(r.To)),
			r.Network)
		if url, err := history.ExplorerTxURL(registry, r); err == nil {
			b.WriteString("  " + SystemStyle.Render(url) + "\n")
		} else {
			b.WriteString("  " + SystemStyle.Render(r.Hash) + "\n")
		}
		if i < len(records)-1 {
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
