// Package safety gates destructive runs. Simulation mode never
// mutates, force skips the prompt, and everything else requires the
// operator to type an exact confirmation literal.
package safety

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ConfirmLiteral is what the operator must type, exactly, to let a
// destructive run proceed.
const ConfirmLiteral = "ERASE"

// Gate holds the shared simulation and confirmation state for a run.
type Gate struct {
	WhatIf bool
	Force  bool
	In     io.Reader
	Out    io.Writer
}

// Confirm asks the operator to approve a destructive action. It
// returns true when the run may proceed:
//
//   - what-if mode proceeds (the runner substitutes messages for
//     mutations anyway)
//   - force proceeds without prompting
//   - otherwise the operator must type the confirmation literal; any
//     other input aborts with no changes
func (g *Gate) Confirm(action string) (bool, error) {
	if g.WhatIf || g.Force {
		return true, nil
	}

	fmt.Fprintf(g.Out, "%s\nType %s to continue: ", action, ConfirmLiteral)
	line, err := bufio.NewReader(g.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	if strings.TrimRight(line, "\r\n") != ConfirmLiteral {
		fmt.Fprintln(g.Out, "Aborted, no changes made.")
		return false, nil
	}
	return true, nil
}
