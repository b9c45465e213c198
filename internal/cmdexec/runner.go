// Package cmdexec runs the external OS tools the storage engine
// orchestrates (lvm2, sgdisk, mkfs, mount, ...). Commands are modelled
// as steps with a required/advisory kind: a required step failing
// aborts the operation it belongs to, an advisory step failing is
// logged and skipped, because the kernel's view of partitions and
// device nodes converges asynchronously anyway.
package cmdexec

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Kind classifies how a step failure is handled.
type Kind int

const (
	// Required steps abort the surrounding operation on failure.
	Required Kind = iota
	// Advisory steps log a warning on failure and continue.
	Advisory
)

// Step is one external command invocation.
type Step struct {
	Desc   string // what the step does, used in logs and errors
	Kind   Kind
	Query  bool // read-only; runs for real even in what-if mode
	Name   string
	Args   []string
	Remedy string // optional command the operator can run by hand
}

// Command returns the full command line for display.
func (s Step) Command() string {
	if len(s.Args) == 0 {
		return s.Name
	}
	return s.Name + " " + strings.Join(s.Args, " ")
}

// StepError reports a failed required step with enough context for the
// operator to retry it by hand.
type StepError struct {
	Desc    string
	Command string
	Output  string
	Remedy  string
	Err     error
}

func (e *StepError) Error() string {
	msg := fmt.Sprintf("%s: %q failed: %v", e.Desc, e.Command, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\noutput: " + out
	}
	if e.Remedy != "" {
		msg += "\nto retry by hand: " + e.Remedy
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

// Runner executes steps. The real implementation shells out; the
// what-if implementation prints the plan instead.
type Runner interface {
	// Run executes the step and returns its combined output.
	Run(ctx context.Context, step Step) (string, error)

	// LookPath reports whether a tool is available on the host.
	LookPath(name string) (string, error)
}

// Exec runs steps with os/exec.
type Exec struct {
	Log *zap.Logger
}

// NewExec returns a Runner backed by os/exec.
func NewExec(log *zap.Logger) *Exec {
	return &Exec{Log: log}
}

func (e *Exec) Run(ctx context.Context, step Step) (string, error) {
	e.Log.Debug("run", zap.String("step", step.Desc), zap.String("command", step.Command()))

	out, err := exec.CommandContext(ctx, step.Name, step.Args...).CombinedOutput()
	if err != nil {
		if step.Kind == Advisory {
			e.Log.Warn("advisory step failed, continuing",
				zap.String("step", step.Desc),
				zap.String("command", step.Command()),
				zap.Error(err))
			return string(out), nil
		}
		return string(out), &StepError{
			Desc:    step.Desc,
			Command: step.Command(),
			Output:  string(out),
			Remedy:  step.Remedy,
			Err:     err,
		}
	}
	return string(out), nil
}

func (e *Exec) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// WhatIf substitutes a "would run" message for every mutation. Steps
// marked Query are read-only and still execute for real, so the
// simulated plan is computed against true host state.
type WhatIf struct {
	Log  *zap.Logger
	Exec *Exec
}

// NewWhatIf returns a Runner that prints the plan without executing.
func NewWhatIf(log *zap.Logger) *WhatIf {
	return &WhatIf{Log: log, Exec: NewExec(log)}
}

func (w *WhatIf) Run(ctx context.Context, step Step) (string, error) {
	if step.Query {
		return w.Exec.Run(ctx, step)
	}
	w.Log.Info("WHATIF: would run", zap.String("step", step.Desc), zap.String("command", step.Command()))
	return "", nil
}

func (w *WhatIf) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
