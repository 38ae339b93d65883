package ui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Prompt is the single-line command input. Up/down recall previously submitted lines.
type Prompt struct {
	input   textinput.Model
	past    []string
	recall  int
	focused bool
}

// NewPrompt creates a focused prompt showing placeholder while empty.
func NewPrompt(placeholder string) *Prompt {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 256
	ti.Width = 76
	ti.Prompt = ""
	ti.Focus()
	return &Prompt{input: ti, focused: true}
}

func (p *Prompt) Focus() tea.Cmd {
	p.focused = true
	return p.input.Focus()
}

func (p *Prompt) Blur() {
	p.focused = false
	p.input.Blur()
}

func (p *Prompt) Focused() bool {
	return p.focused
}

func (p *Prompt) SetWidth(w int) {
	p.input.Width = w - 4
}

func (p *Prompt) Value() string {
	return p.input.Value()
}

func (p *Prompt) SetValue(s string) {
	p.input.SetValue(s)
	p.input.CursorEnd()
}

// Submit records the current line for recall and clears the input.
func (p *Prompt) Submit() string {
	line := p.input.Value()
	if line != "" && (len(p.past) == 0 || p.past[len(p.past)-1] != line) {
		p.past = append(p.past, line)
	}
	p.recall = len(p.past)
	p.input.Reset()
	return line
}

// Update handles recall keys and forwards everything else to the text input.
func (p *Prompt) Update(msg tea.Msg) (*Prompt, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyUp:
			if p.recall > 0 {
				p.recall--
				p.SetValue(p.past[p.recall])
			}
			return p, nil
		case tea.KeyDown:
			if p.recall < len(p.past)-1 {
				p.recall++
				p.SetValue(p.past[p.recall])
			} else {
				p.recall = len(p.past)
				p.input.Reset()
			}
			return p, nil
		}
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return p, cmd
}

func (p *Prompt) View() string {
	style := SelectorDim
	if p.focused {
		style = PromptStyle
	}
	return style.Render(SymbolPrompt) + " " + p.input.View()
}
