package cli

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"github.com/yolodolo42/jpycli/internal/history"
	"github.com/yolodolo42/jpycli/internal/provider"
	"github.com/yolodolo42/jpycli/internal/session"
	"github.com/yolodolo42/jpycli/internal/ui"
	"go.uber.org/zap"
)

const shellHelp = `Commands:
  /connect                   Connect the keystore account
  /switch [network]          Switch network (no argument opens a picker)
  /balance                   Refresh balances
  /send <to> <amount>        Send JPYC
  /history                   Show transfer history
  /address                   Show the connected address
  /networks                  List supported networks
  /provider account <addr>   Change account from the wallet side
  /provider chain <network>  Change chain from the wallet side
  /provider disconnect       Disconnect from the wallet side
  /clear                     Clear the screen
  /quit                      Exit`

type lineKind int

const (
	lineSystem lineKind = iota
	lineUser
	lineOutput
	lineToast
	lineError
)

type shellLine struct {
	kind     lineKind
	text     string
	severity session.Severity
}

// Messages delivered to the shell from operation goroutines.
type (
	toastMsg struct {
		text     string
		severity session.Severity
	}
	loadingMsg     struct{ text string }
	loadingDoneMsg struct{}
	opDoneMsg      struct {
		output string
		err    error
	}
	approveMsg struct {
		req   provider.Request
		reply chan bool
	}
	unlockMsg struct {
		candidates []common.Address
		reply      chan unlockReply
	}
	eventsStoppedMsg struct{ err error }
)

type unlockReply struct {
	account  common.Address
	password string
	ok       bool
}

// unlockPrompt is an in-progress account unlock: pick an account, then type its password.
type unlockPrompt struct {
	candidates []common.Address
	picker     *ui.Selector
	account    common.Address
	password   textinput.Model
	reply      chan unlockReply
}

// shellNotifier forwards session notifications into the program's event loop.
type shellNotifier struct {
	send func(tea.Msg)
}

func (n shellNotifier) Loading(message string) { n.send(loadingMsg{text: message}) }
func (n shellNotifier) LoadingDone()           { n.send(loadingDoneMsg{}) }
func (n shellNotifier) Toast(message string, severity session.Severity) {
	n.send(toastMsg{text: message, severity: severity})
}

// shellApprover asks the user inside the shell and blocks the calling operation
// until they answer or ctx ends.
type shellApprover struct {
	send func(tea.Msg)
}

func (a shellApprover) Approve(ctx context.Context, req provider.Request) (bool, error) {
	reply := make(chan bool, 1)
	a.send(approveMsg{req: req, reply: reply})
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (a shellApprover) Unlock(ctx context.Context, candidates []common.Address) (common.Address, string, bool, error) {
	reply := make(chan unlockReply, 1)
	a.send(unlockMsg{candidates: candidates, reply: reply})
	select {
	case r := <-reply:
		return r.account, r.password, r.ok, nil
	case <-ctx.Done():
		return common.Address{}, "", false, ctx.Err()
	}
}

// walletControls are changes made from the wallet side, outside the session.
// *provider.Local implements it.
type walletControls interface {
	SelectAccount(ctx context.Context, account common.Address) error
	SelectChain(chainID *big.Int) error
	Disconnect()
}

// shellOps is what the shell drives.
type shellOps struct {
	wallet   *session.Wallet
	controls walletControls
}

type model struct {
	ctx context.Context
	ops shellOps

	prompt   *ui.Prompt
	viewport viewport.Model
	spinner  spinner.Model
	lines    []shellLine

	loading  string
	approval *approveMsg
	unlock   *unlockPrompt
	picker   *ui.Selector

	width    int
	height   int
	ready    bool
	quitting bool
}

func newModel(ctx context.Context, ops shellOps) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.TitleStyle

	return model{
		ctx:     ctx,
		ops:     ops,
		prompt:  ui.NewPrompt("/connect to start, /help for commands"),
		spinner: sp,
		lines: []shellLine{{
			kind: lineSystem,
			text: "Welcome to jpycli. Type /connect to unlock your keystore account, /help for commands.",
		}},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.declinePending()
			m.quitting = true
			return m, tea.Quit
		}
		if m.approval != nil {
			return m.updateApproval(msg)
		}
		if m.unlock != nil {
			return m.updateUnlock(msg)
		}
		if m.picker != nil {
			return m.updatePicker(msg)
		}
		if msg.Type == tea.KeyEnter {
			input := strings.TrimSpace(m.prompt.Submit())
			if input == "" {
				return m, nil
			}
			m.append(shellLine{kind: lineUser, text: input})
			return m.handleCommand(input)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-9)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 9
		}
		m.prompt.SetWidth(msg.Width)
		m.refreshViewport()

	case toastMsg:
		m.append(shellLine{kind: lineToast, text: msg.text, severity: msg.severity})
		return m, nil

	case loadingMsg:
		m.loading = msg.text
		return m, nil

	case loadingDoneMsg:
		m.loading = ""
		return m, nil

	case opDoneMsg:
		m.loading = ""
		if msg.output != "" {
			m.append(shellLine{kind: lineOutput, text: msg.output})
		}
		if msg.err != nil && !session.IsKind(msg.err, session.Busy) {
			m.append(shellLine{kind: lineError, text: msg.err.Error()})
		}
		return m, nil

	case approveMsg:
		m.approval = &msg
		m.prompt.Blur()
		return m, nil

	case unlockMsg:
		m.unlock = newUnlockPrompt(msg)
		m.prompt.Blur()
		if m.unlock.picker == nil {
			return m, m.unlock.password.Focus()
		}
		return m, nil

	case eventsStoppedMsg:
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.append(shellLine{kind: lineError, text: "wallet events stopped: " + msg.err.Error()})
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	// Typed keys belong to the prompt; only paging keys and the mouse scroll the log.
	if key, ok := msg.(tea.KeyMsg); ok && key.Type != tea.KeyPgUp && key.Type != tea.KeyPgDown {
		var cmd tea.Cmd
		m.prompt, cmd = m.prompt.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func newUnlockPrompt(msg unlockMsg) *unlockPrompt {
	pw := textinput.New()
	pw.Prompt = ""
	pw.EchoMode = textinput.EchoPassword
	pw.EchoCharacter = '•'
	pw.CharLimit = 256

	u := &unlockPrompt{candidates: msg.candidates, password: pw, reply: msg.reply}
	if len(msg.candidates) == 1 {
		u.account = msg.candidates[0]
		return u
	}
	items := make([]ui.SelectorItem, 0, len(msg.candidates))
	for i, c := range msg.candidates {
		items = append(items, ui.SelectorItem{ID: c.Hex(), Label: c.Hex(), Current: i == 0})
	}
	u.picker = ui.NewSelector("Unlock account", items)
	return u
}

func (m model) updateApproval(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var approved bool
	switch strings.ToLower(msg.String()) {
	case "y":
		approved = true
	case "n", "esc", "enter":
	default:
		return m, nil
	}
	m.approval.reply <- approved
	m.approval = nil
	return m, m.prompt.Focus()
}

func (m model) updateUnlock(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	u := m.unlock
	if u.picker != nil {
		u.picker.Update(msg)
		if !u.picker.Done() {
			return m, nil
		}
		id, ok := u.picker.Choice()
		if !ok {
			return m.finishUnlock(unlockReply{})
		}
		u.account = common.HexToAddress(id)
		u.picker = nil
		return m, u.password.Focus()
	}

	switch msg.Type {
	case tea.KeyEsc:
		return m.finishUnlock(unlockReply{})
	case tea.KeyEnter:
		password := u.password.Value()
		if password == "" {
			return m.finishUnlock(unlockReply{})
		}
		return m.finishUnlock(unlockReply{account: u.account, password: password, ok: true})
	}
	var cmd tea.Cmd
	u.password, cmd = u.password.Update(msg)
	return m, cmd
}

func (m model) finishUnlock(r unlockReply) (tea.Model, tea.Cmd) {
	m.unlock.reply <- r
	m.unlock = nil
	return m, m.prompt.Focus()
}

func (m model) updatePicker(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.picker.Update(msg)
	if !m.picker.Done() {
		return m, nil
	}
	key, ok := m.picker.Choice()
	m.picker = nil
	focus := m.prompt.Focus()
	if !ok {
		return m, focus
	}
	return m, tea.Batch(focus, m.switchTo(key))
}

// declinePending answers any open prompt with a refusal so blocked operations return.
func (m *model) declinePending() {
	if m.approval != nil {
		m.approval.reply <- false
		m.approval = nil
	}
	if m.unlock != nil {
		m.unlock.reply <- unlockReply{}
		m.unlock = nil
	}
}

func (m model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if !m.ready {
		return "Initializing...\n"
	}

	var b strings.Builder
	b.WriteString(ui.TitleStyle.Render("  jpycli · JPYC wallet") + "\n\n")
	b.WriteString(m.viewport.View() + "\n")
	b.WriteString(ui.StatusBarStyle.Render(ui.RenderStatus(m.ops.wallet.State())) + "\n")

	switch {
	case m.approval != nil:
		b.WriteString("\n" + renderApproval(m.approval.req) + "\n")
	case m.unlock != nil && m.unlock.picker != nil:
		b.WriteString("\n" + m.unlock.picker.View())
	case m.unlock != nil:
		b.WriteString(fmt.Sprintf("\n  Password for %s: %s\n", ui.ShortAddress(m.unlock.account.Hex()), m.unlock.password.View()))
	case m.picker != nil:
		b.WriteString("\n" + m.picker.View())
	case m.loading != "":
		b.WriteString(fmt.Sprintf("\n  %s %s...\n", m.spinner.View(), m.loading))
	default:
		b.WriteString("\n")
	}

	b.WriteString(m.prompt.View() + "\n")
	b.WriteString(ui.HelpStyle.Render("  /help • /connect • /switch • /send • /history • Ctrl+C to exit"))
	return b.String()
}

func renderApproval(req provider.Request) string {
	var b strings.Builder
	b.WriteString("  " + ui.WarningStyle.Render(req.Title) + "\n")
	for _, d := range req.Details {
		b.WriteString("    " + d + "\n")
	}
	b.WriteString("  " + ui.PromptStyle.Render("Approve? [y/N]"))
	return b.String()
}

func (m *model) append(line shellLine) {
	m.lines = append(m.lines, line)
	m.refreshViewport()
}

func (m *model) refreshViewport() {
	if !m.ready {
		return
	}
	var content strings.Builder
	for _, l := range m.lines {
		switch l.kind {
		case lineUser:
			content.WriteString(ui.UserStyle.Render(ui.SymbolPrompt+" ") + l.text)
		case lineToast:
			content.WriteString(ui.ToastLine(l.text, l.severity))
		case lineError:
			content.WriteString(ui.ErrorStyle.Render("Error: ") + l.text)
		case lineOutput:
			content.WriteString(l.text)
		default:
			content.WriteString(ui.SystemStyle.Render(l.text))
		}
		content.WriteString("\n\n")
	}
	m.viewport.SetContent(content.String())
	m.viewport.GotoBottom()
}

// run executes op off the event loop and reports its outcome as an opDoneMsg.
func (m model) run(op func(ctx context.Context) (string, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		out, err := op(ctx)
		return opDoneMsg{output: out, err: err}
	}
}

func (m model) handleCommand(input string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "/quit", "/exit", "/q":
		m.quitting = true
		return m, tea.Quit

	case "/help", "/?":
		m.append(shellLine{kind: lineSystem, text: shellHelp})
		return m, nil

	case "/clear":
		m.lines = nil
		m.refreshViewport()
		return m, nil

	case "/connect":
		w := m.ops.wallet
		return m, m.run(func(ctx context.Context) (string, error) {
			if err := w.Connect(ctx); err != nil {
				return "", err
			}
			return ui.RenderBalances(w.State()), nil
		})

	case "/switch":
		if len(args) == 0 {
			m.picker = ui.NewNetworkSelector(m.ops.wallet.Registry(), m.ops.wallet.State().NetworkKey)
			return m, nil
		}
		return m, m.switchTo(strings.ToLower(args[0]))

	case "/balance":
		w := m.ops.wallet
		return m, m.run(func(ctx context.Context) (string, error) {
			if err := w.Refresh(ctx); err != nil {
				return "", err
			}
			return ui.RenderBalances(w.State()), nil
		})

	case "/send":
		if len(args) != 2 {
			m.append(shellLine{kind: lineError, text: "usage: /send <to> <amount>"})
			return m, nil
		}
		w := m.ops.wallet
		to, amount := args[0], args[1]
		return m, m.run(func(ctx context.Context) (string, error) {
			record, err := w.Transfer(ctx, to, amount)
			if record == nil {
				return "", err
			}
			return ui.RenderHistory(w.Registry(), []history.Record{*record}), err
		})

	case "/history":
		m.append(shellLine{kind: lineOutput, text: ui.RenderHistory(m.ops.wallet.Registry(), m.ops.wallet.History())})
		return m, nil

	case "/address":
		snap := m.ops.wallet.State()
		if snap.Account == nil {
			m.append(shellLine{kind: lineError, text: "not connected"})
			return m, nil
		}
		m.append(shellLine{kind: lineOutput, text: ui.AddressStyle.Render(snap.Account.Hex())})
		return m, nil

	case "/networks":
		m.append(shellLine{kind: lineOutput, text: ui.RenderNetworks(m.ops.wallet.Registry(), m.ops.wallet.State().NetworkKey)})
		return m, nil

	case "/provider":
		return m.handleProviderCommand(args)

	default:
		m.append(shellLine{kind: lineError, text: fmt.Sprintf("Unknown command: %s. Type /help for available commands.", cmd)})
		return m, nil
	}
}

func (m model) switchTo(key string) tea.Cmd {
	w := m.ops.wallet
	return m.run(func(ctx context.Context) (string, error) {
		if err := w.SwitchTo(ctx, key); err != nil {
			return "", err
		}
		return ui.RenderBalances(w.State()), nil
	})
}

// handleProviderCommand simulates changes made in the wallet itself, which reach
// the session only through provider events.
func (m model) handleProviderCommand(args []string) (tea.Model, tea.Cmd) {
	local := m.ops.controls
	if local == nil {
		m.append(shellLine{kind: lineError, text: "no wallet provider"})
		return m, nil
	}
	if len(args) == 0 {
		m.append(shellLine{kind: lineError, text: "usage: /provider account <addr> | chain <network> | disconnect"})
		return m, nil
	}

	switch strings.ToLower(args[0]) {
	case "disconnect":
		local.Disconnect()
		return m, nil

	case "account":
		if len(args) != 2 {
			m.append(shellLine{kind: lineError, text: "usage: /provider account <addr>"})
			return m, nil
		}
		account, err := session.ParseAddress(args[1])
		if err != nil {
			m.append(shellLine{kind: lineError, text: err.Error()})
			return m, nil
		}
		return m, m.run(func(ctx context.Context) (string, error) {
			return "", local.SelectAccount(ctx, account)
		})

	case "chain":
		if len(args) != 2 {
			m.append(shellLine{kind: lineError, text: "usage: /provider chain <network>"})
			return m, nil
		}
		network, ok := m.ops.wallet.Registry().Get(strings.ToLower(args[1]))
		if !ok {
			m.append(shellLine{kind: lineError, text: fmt.Sprintf("unknown network %q", args[1])})
			return m, nil
		}
		if err := local.SelectChain(network.ChainID); err != nil {
			m.append(shellLine{kind: lineError, text: err.Error()})
		}
		return m, nil
	}

	m.append(shellLine{kind: lineError, text: fmt.Sprintf("unknown provider action %q", args[0])})
	return m, nil
}

// programSender defers to the program once it exists; messages sent before that are dropped.
type programSender struct {
	p *tea.Program
}

func (s *programSender) send(msg tea.Msg) {
	if s.p != nil {
		s.p.Send(msg)
	}
}

// RunShell starts the interactive wallet shell.
func RunShell() error {
	sender := &programSender{}
	a, err := newApp(shellApprover{send: sender.send}, shellNotifier{send: sender.send})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := tea.NewProgram(newModel(ctx, shellOps{wallet: a.wallet, controls: a.provider}), tea.WithAltScreen(), tea.WithContext(ctx))
	sender.p = p

	go func() {
		err := a.wallet.RunEvents(ctx)
		a.log.Debug("event loop stopped", zap.Error(err))
		p.Send(eventsStoppedMsg{err: err})
	}()

	_, err = p.Run()
	stop()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
