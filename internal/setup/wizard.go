package setup

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/yolodolo42/jpycli/internal/ui"
	"github.com/yolodolo42/jpycli/internal/wallet"
)

// WizardStep is the current screen of the wizard.
type WizardStep int

const (
	StepWelcome WizardStep = iota
	StepWalletChoice
	StepImportKey
	StepPassword
	StepCreating
	StepComplete
)

const (
	choiceCreate = "create"
	choiceImport = "import"
	choiceSkip   = "skip"

	minPasswordLen = 8
)

// Result is what the wizard did.
type Result struct {
	WalletAddress string
	Imported      bool
	Cancelled     bool
	Skipped       bool
}

// WizardModel is the bubbletea model of the first-start wizard.
type WizardModel struct {
	step     WizardStep
	dataDir  string
	quitting bool

	choice       *ui.Selector
	selected     string
	keyInput     textinput.Model
	passInput    textinput.Model
	confirmInput textinput.Model
	confirming   bool
	errMsg       string

	walletAddress string

	spinner  spinner.Model
	progress progress.Model

	result *Result
}

type walletCreatedMsg struct {
	address string
	err     error
}

func secretInput(placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = placeholder
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'
	in.CharLimit = limit
	in.Width = 50
	return in
}

func walletChoices() *ui.Selector {
	return ui.NewSelector("Add a keystore account", []ui.SelectorItem{
		{ID: choiceCreate, Label: "Create a new account", Description: "fresh random key"},
		{ID: choiceImport, Label: "Import a private key", Description: "hex, with or without 0x"},
		{ID: choiceSkip, Label: "Skip for now", Description: "use jpycli wallet later"},
	})
}

// NewWizard creates the wizard for dataDir.
func NewWizard(dataDir string) *WizardModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.TitleStyle

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 40

	return &WizardModel{
		step:         StepWelcome,
		dataDir:      dataDir,
		choice:       walletChoices(),
		keyInput:     secretInput("Paste the private key", 70),
		passInput:    secretInput("Enter password (8+ chars)", 100),
		confirmInput: secretInput("Confirm password", 100),
		spinner:      sp,
		progress:     prog,
	}
}

func (m WizardModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink)
}

func (m WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.result = &Result{Cancelled: true}
			m.quitting = true
			return m, tea.Quit
		}

		switch m.step {
		case StepWelcome:
			if msg.Type == tea.KeyEnter {
				m.step = StepWalletChoice
			}
			return m, nil

		case StepWalletChoice:
			return m.updateWalletChoice(msg)

		case StepImportKey:
			if msg.Type == tea.KeyEsc {
				return m.back()
			}
			if msg.Type == tea.KeyEnter {
				return m.updateImportKey()
			}

		case StepPassword:
			if msg.Type == tea.KeyEsc {
				return m.back()
			}
			if msg.Type == tea.KeyEnter {
				return m.updatePassword()
			}

		case StepCreating:
			return m, nil

		case StepComplete:
			if msg.Type == tea.KeyEnter {
				m.quitting = true
				return m, tea.Quit
			}
			return m, nil
		}

	case walletCreatedMsg:
		if msg.err != nil {
			m.errMsg = msg.err.Error()
			m.step = StepPassword
			m.confirming = false
			m.passInput.Reset()
			m.confirmInput.Reset()
			cmd := m.passInput.Focus()
			return m, cmd
		}
		m.walletAddress = msg.address
		m.result = &Result{WalletAddress: msg.address, Imported: m.selected == choiceImport}
		m.step = StepComplete
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	switch m.step {
	case StepImportKey:
		m.keyInput, cmd = m.keyInput.Update(msg)
	case StepPassword:
		if m.confirming {
			m.confirmInput, cmd = m.confirmInput.Update(msg)
		} else {
			m.passInput, cmd = m.passInput.Update(msg)
		}
	}
	return m, cmd
}

// back returns to the account choice and clears every secret typed so far.
func (m WizardModel) back() (tea.Model, tea.Cmd) {
	m.keyInput.Reset()
	m.passInput.Reset()
	m.confirmInput.Reset()
	m.keyInput.Blur()
	m.passInput.Blur()
	m.confirmInput.Blur()
	m.confirming = false
	m.errMsg = ""
	m.choice = walletChoices()
	m.step = StepWalletChoice
	return m, nil
}

func (m WizardModel) updateWalletChoice(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.choice.Update(msg)
	if !m.choice.Done() {
		return m, nil
	}

	id, ok := m.choice.Choice()
	if !ok {
		m.choice = walletChoices()
		m.step = StepWelcome
		return m, nil
	}

	m.selected = id
	m.errMsg = ""
	switch id {
	case choiceCreate:
		m.step = StepPassword
		cmd := m.passInput.Focus()
		return m, cmd
	case choiceImport:
		m.step = StepImportKey
		cmd := m.keyInput.Focus()
		return m, cmd
	default:
		m.result = &Result{Skipped: true}
		m.quitting = true
		return m, tea.Quit
	}
}

func (m WizardModel) updateImportKey() (tea.Model, tea.Cmd) {
	key := strings.TrimPrefix(strings.TrimSpace(m.keyInput.Value()), "0x")
	if len(key) != 64 {
		m.errMsg = "A private key is 64 hex characters"
		return m, nil
	}
	m.errMsg = ""
	m.keyInput.Blur()
	m.step = StepPassword
	cmd := m.passInput.Focus()
	return m, cmd
}

func (m WizardModel) updatePassword() (tea.Model, tea.Cmd) {
	if !m.confirming {
		if len(m.passInput.Value()) < minPasswordLen {
			m.errMsg = fmt.Sprintf("Password must be at least %d characters", minPasswordLen)
			return m, nil
		}
		m.errMsg = ""
		m.confirming = true
		m.passInput.Blur()
		cmd := m.confirmInput.Focus()
		return m, cmd
	}

	if m.passInput.Value() != m.confirmInput.Value() {
		m.errMsg = "Passwords do not match. Try again."
		m.confirmInput.Reset()
		return m, nil
	}
	m.errMsg = ""
	m.step = StepCreating
	return m, m.storeAccount()
}

// storeAccount writes the new or imported key into the keystore.
func (m WizardModel) storeAccount() tea.Cmd {
	password := m.passInput.Value()
	key := strings.TrimSpace(m.keyInput.Value())
	importing := m.selected == choiceImport
	dataDir := m.dataDir

	return func() tea.Msg {
		km, err := wallet.NewKeystoreManager(dataDir)
		if err != nil {
			return walletCreatedMsg{err: err}
		}
		if importing {
			account, err := km.ImportKey(key, password)
			if err != nil {
				return walletCreatedMsg{err: err}
			}
			return walletCreatedMsg{address: account.Address.Hex()}
		}
		account, err := km.CreateAccount(password)
		if err != nil {
			return walletCreatedMsg{err: err}
		}
		return walletCreatedMsg{address: account.Address.Hex()}
	}
}

func (m WizardModel) View() string {
	if m.quitting {
		if m.result != nil && m.result.Cancelled {
			return ui.SystemStyle.Render("\n  Setup cancelled.\n\n")
		}
		return ""
	}

	var b strings.Builder
	if m.step > StepWelcome && m.step < StepComplete {
		b.WriteString("\n" + m.renderProgress() + "\n")
	}

	switch m.step {
	case StepWelcome:
		b.WriteString(m.viewWelcome())
	case StepWalletChoice:
		b.WriteString("\n" + m.choice.View())
	case StepImportKey:
		b.WriteString(m.viewSecret("Import Private Key", "The key is encrypted with a password before it is stored.", m.keyInput))
	case StepPassword:
		b.WriteString(m.viewPassword())
	case StepCreating:
		b.WriteString(fmt.Sprintf("\n  %s Encrypting keystore...\n", m.spinner.View()))
	case StepComplete:
		b.WriteString(m.viewComplete())
	}

	if m.errMsg != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", ui.ErrorStyle.Render(ui.SymbolCross+" "+m.errMsg)))
	}
	return b.String()
}

func (m WizardModel) renderProgress() string {
	current := 1
	switch m.step {
	case StepPassword, StepCreating:
		current = 2
	case StepComplete:
		current = 3
	}
	bar := m.progress.ViewAs(float64(current) / 3)
	return fmt.Sprintf("  %s\n%s", bar, ui.SystemStyle.Render("  Account      Password      Ready"))
}

func (m WizardModel) viewWelcome() string {
	box := BoxStyle.Render(
		ui.TitleStyle.Render("Welcome to jpycli") + "\n" +
			SubtitleStyle.Render("Terminal wallet for JPYC on Polygon, Ethereum and Avalanche") + "\n\n" +
			"No keystore account was found. Let's add one.",
	)
	return "\n\n" + box + "\n\n" + ui.HelpStyle.Render("  Press Enter to continue...")
}

func (m WizardModel) viewSecret(title, note string, in textinput.Model) string {
	var b strings.Builder
	b.WriteString("\n" + ui.TitleStyle.Render("  "+title) + "\n\n")
	b.WriteString(SubtitleStyle.Render("  "+note) + "\n\n")
	b.WriteString("  " + in.View() + "\n\n")
	b.WriteString(ui.HelpStyle.Render("  Enter to continue • Esc back"))
	return b.String()
}

func (m WizardModel) viewPassword() string {
	var b strings.Builder
	b.WriteString("\n" + ui.TitleStyle.Render("  Keystore Password") + "\n\n")
	b.WriteString(SubtitleStyle.Render("  This encrypts the key on disk and is asked on every connect.") + "\n")
	b.WriteString(SubtitleStyle.Render(fmt.Sprintf("  Requirements: %d+ characters", minPasswordLen)) + "\n\n")
	if !m.confirming {
		b.WriteString("  " + m.passInput.View() + "\n")
	} else {
		b.WriteString(fmt.Sprintf("  Password: %s\n\n", ui.SuccessStyle.Render(ui.SymbolCheck+" set")))
		b.WriteString("  " + m.confirmInput.View() + "\n")
	}
	b.WriteString("\n" + ui.HelpStyle.Render("  Enter to continue • Esc back"))
	return b.String()
}

func (m WizardModel) viewComplete() string {
	verb := "created"
	if m.selected == choiceImport {
		verb = "imported"
	}
	content := fmt.Sprintf(
		"%s\n\n"+
			"Account %s: %s\n\n"+
			"%s\n"+
			"  /connect\n"+
			"  /balance\n"+
			"  /send <to> <amount>",
		ui.TitleStyle.Render("You're all set!"),
		verb,
		ui.AddressStyle.Render(m.walletAddress),
		SubtitleStyle.Render("Back up the keystore file. Then try:"),
	)
	return "\n\n" + BoxStyle.Render(content) + "\n\n" + ui.HelpStyle.Render("  Press Enter to start jpycli...")
}

// RunWizard runs the wizard against dataDir.
func RunWizard(dataDir string) (*Result, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if status := DetectStatus(dataDir); status.HasWallet {
		return &Result{WalletAddress: status.WalletAddress}, nil
	}

	p := tea.NewProgram(*NewWizard(dataDir), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	result := final.(WizardModel).result
	if result == nil {
		result = &Result{Cancelled: true}
	}
	return result, nil
}
