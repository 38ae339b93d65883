package setup

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/yolodolo42/jpycli/internal/ui"
)

var (
	borderColor = lipgloss.Color("62") // Purple

	// BoxStyle frames the welcome and completion screens.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(1, 2)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ui.ColorDim)

	Checkmark = ui.SuccessStyle.Render(ui.SymbolCheck)
)
