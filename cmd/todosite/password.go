// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Todosite Contributors

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readTerminalPassword prints prompt to stderr and reads a password from
// the terminal without echo. The caller should clear the returned slice.
func readTerminalPassword(prompt string) ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, oops.Code("PASSWORD_PROMPT_FAILED").
			Errorf("stdin is not a terminal; use --password-stdin")
	}

	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, oops.Code("PASSWORD_PROMPT_FAILED").Wrap(err)
	}
	return pw, nil
}

// readLine reads one line of stdin, without its line ending. A final line
// without a newline is accepted.
func (a *app) readLine(cmd *cobra.Command) (string, error) {
	if a.stdin == nil {
		a.stdin = bufio.NewReader(cmd.InOrStdin())
	}
	line, err := a.stdin.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", oops.Code("STDIN_READ_FAILED").With("operation", "read stdin").Wrap(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword reads one password, from a line of stdin when fromStdin is
// set and from a no-echo prompt otherwise. Surrounding spaces are kept.
func (a *app) readPassword(cmd *cobra.Command, prompt string, fromStdin bool) (string, error) {
	if fromStdin {
		return a.readLine(cmd)
	}
	pw, err := a.deps.PasswordReader(prompt)
	if err != nil {
		return "", err
	}
	defer clear(pw)
	return string(pw), nil
}

// readNewPassword reads a password to be set. Prompted passwords are asked
// for twice.
func (a *app) readNewPassword(cmd *cobra.Command, prompt string, fromStdin bool) (string, error) {
	pw, err := a.readPassword(cmd, prompt, fromStdin)
	if err != nil || fromStdin {
		return pw, err
	}
	confirm, err := a.readPassword(cmd, "Confirm password: ", false)
	if err != nil {
		return "", err
	}
	if confirm != pw {
		return "", oops.Code("PASSWORD_MISMATCH").Errorf("passwords do not match")
	}
	return pw, nil
}
