package ui

import (
	"fmt"
	"io"
	"sync"

	"github.com/yolodolo42/jpycli/internal/session"
)

// ToastLine renders one notification with its severity glyph.
func ToastLine(message string, severity session.Severity) string {
	switch severity {
	case session.SeveritySuccess:
		return SuccessStyle.Render(SymbolCheck + " " + message)
	case session.SeverityWarning:
		return WarningStyle.Render(SymbolWarning + " " + message)
	default:
		return ErrorStyle.Render(SymbolCross + " " + message)
	}
}

// LineNotifier writes notifications as lines to w. Used by one-shot commands.
type LineNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

func NewLineNotifier(w io.Writer) *LineNotifier {
	return &LineNotifier{w: w}
}

func (n *LineNotifier) Loading(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, SystemStyle.Render(SymbolPending+" "+message+"..."))
}

func (n *LineNotifier) LoadingDone() {}

func (n *LineNotifier) Toast(message string, severity session.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, ToastLine(message, severity))
}
