// SPDX-License-Identifier: MPL-2.0

package acquire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNoTerminal is returned when credentials are needed but stdin is not
// interactive.
var ErrNoTerminal = errors.New("credentials required but no terminal is attached")

type (
	// Prompter asks the user for credentials for a repository.
	Prompter interface {
		Credentials(ctx context.Context, source string) (Credentials, error)
	}

	// TerminalPrompter reads a username line and an unechoed password.
	TerminalPrompter struct {
		In  *os.File
		Out io.Writer
	}
)

// NewTerminalPrompter prompts on stdin/stderr.
func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stderr}
}

// Credentials implements Prompter.
func (p *TerminalPrompter) Credentials(ctx context.Context, source string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	fd := int(p.In.Fd()) //nolint:gosec // file descriptors fit in int
	if !term.IsTerminal(fd) {
		return Credentials{}, ErrNoTerminal
	}

	fmt.Fprintf(p.Out, "Credentials for %s\nUsername: ", source)
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return Credentials{}, fmt.Errorf("read username: %w", err)
	}

	fmt.Fprint(p.Out, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(p.Out)
	if err != nil {
		return Credentials{}, fmt.Errorf("read password: %w", err)
	}
	return Credentials{Username: strings.TrimSpace(line), Password: string(pw)}, nil
}
