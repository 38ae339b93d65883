package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/yolodolo42/jpycli/internal/provider"
	"github.com/yolodolo42/jpycli/internal/ui"
	"golang.org/x/term"
)

// terminalApprover prompts on stdin/stdout for one-shot commands.
type terminalApprover struct {
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
	password  func(prompt string) (string, error)
}

func newTerminalApprover(assumeYes bool) *terminalApprover {
	return &terminalApprover{
		in:        bufio.NewReader(os.Stdin),
		out:       os.Stdout,
		assumeYes: assumeYes,
		password:  readPassword,
	}
}

func readPassword(prompt string) (string, error) {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(password), nil
}

func (a *terminalApprover) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *terminalApprover) Unlock(ctx context.Context, candidates []common.Address) (common.Address, string, bool, error) {
	account := candidates[0]
	if len(candidates) > 1 {
		fmt.Fprintln(a.out, "Select account:")
		for i, c := range candidates {
			fmt.Fprintf(a.out, "  %d. %s\n", i+1, c.Hex())
		}
		fmt.Fprint(a.out, "Account [1]: ")
		line, err := a.readLine(ctx)
		if err != nil {
			return common.Address{}, "", false, err
		}
		idx, ok := parseChoice(line, len(candidates))
		if !ok {
			return common.Address{}, "", false, nil
		}
		account = candidates[idx]
	}

	password, err := a.password(fmt.Sprintf("Password for %s: ", ui.ShortAddress(account.Hex())))
	if err != nil {
		return common.Address{}, "", false, err
	}
	if password == "" {
		return common.Address{}, "", false, nil
	}
	return account, password, true, nil
}

// parseChoice maps a 1-based answer to an index; empty means the first entry.
func parseChoice(line string, n int) (int, bool) {
	if line == "" {
		return 0, true
	}
	i, err := strconv.Atoi(line)
	if err != nil || i < 1 || i > n {
		return 0, false
	}
	return i - 1, true
}

func (a *terminalApprover) Approve(ctx context.Context, req provider.Request) (bool, error) {
	fmt.Fprintln(a.out, ui.TitleStyle.Render(req.Title))
	for _, d := range req.Details {
		fmt.Fprintln(a.out, "  "+d)
	}
	if a.assumeYes {
		fmt.Fprintln(a.out, ui.SystemStyle.Render("  approved (--yes)"))
		return true, nil
	}

	fmt.Fprint(a.out, "Approve? [y/N]: ")
	line, err := a.readLine(ctx)
	if err != nil {
		return false, err
	}
	return isYes(line), nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
