package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/yolodolo42/jpycli/internal/chain"
)

// SelectorItem is one choosable row.
type SelectorItem struct {
	ID          string
	Label       string
	Description string
	Current     bool
}

// Selector is an interactive single-choice list. It starts on the current item.
type Selector struct {
	title  string
	items  []SelectorItem
	cursor int
	chosen int
	done   bool
}

// NewSelector creates a selector over items.
func NewSelector(title string, items []SelectorItem) *Selector {
	cursor := 0
	for i, item := range items {
		if item.Current {
			cursor = i
			break
		}
	}
	return &Selector{title: title, items: items, cursor: cursor, chosen: -1}
}

// NetworkItems lists the registry's networks in order, marking currentKey.
func NetworkItems(registry *chain.Registry, currentKey string) []SelectorItem {
	networks := registry.Networks()
	items := make([]SelectorItem, 0, len(networks))
	for _, n := range networks {
		items = append(items, SelectorItem{
			ID:          n.Key,
			Label:       n.ChainName,
			Description: fmt.Sprintf("chain %s · %s", n.ChainID, n.NativeCurrency.Symbol),
			Current:     n.Key == currentKey,
		})
	}
	return items
}

// NewNetworkSelector is a selector over the supported networks.
func NewNetworkSelector(registry *chain.Registry, currentKey string) *Selector {
	return NewSelector("Switch network", NetworkItems(registry, currentKey))
}

// Done reports whether the user picked an item or cancelled.
func (s *Selector) Done() bool {
	return s.done
}

// Choice returns the picked item ID; ok is false while active or after cancel.
func (s *Selector) Choice() (id string, ok bool) {
	if !s.done || s.chosen < 0 || s.chosen >= len(s.items) {
		return "", false
	}
	return s.items[s.chosen].ID, true
}

// Update moves the cursor or finishes the selection on enter/esc.
func (s *Selector) Update(msg tea.Msg) *Selector {
	key, ok := msg.(tea.KeyMsg)
	if s.done || !ok {
		return s
	}
	switch key.String() {
	case "up", "k":
		if s.cursor > 0 {
			s.cursor--
		}
	case "down", "j":
		if s.cursor < len(s.items)-1 {
			s.cursor++
		}
	case "enter":
		s.chosen = s.cursor
		s.done = true
	case "esc", "q":
		s.done = true
	}
	return s
}

// View renders the list, or nothing once done.
func (s *Selector) View() string {
	if s.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(HelpStyle.Render(s.title + " (↑/↓ navigate, enter select, esc cancel)"))
	b.WriteString("\n\n")

	for i, item := range s.items {
		label := item.Label
		if label == "" {
			label = item.ID
		}
		label = fmt.Sprintf("%-24s", label)

		if i == s.cursor {
			b.WriteString(SelectorCursor.Render(SymbolArrow) + " " + SelectorActive.Render(label))
		} else {
			b.WriteString("  " + SelectorItemStyle.Render(label))
		}

		desc := item.Description
		if item.Current {
			desc += " (current)"
		}
		if desc != "" {
			b.WriteString(SelectorDim.Render(desc))
		}
		b.WriteString("\n")
	}
	return b.String()
}
