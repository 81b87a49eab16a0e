// SPDX-License-Identifier: AGPL-3.0-or-later

// Package executor runs single shell commands with bounded output capture.
// It knows nothing about plans, budgets, or approvals; callers hand it one
// already-vetted command at a time.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultMaxOutputBytes = 4096

// Config holds runtime options for command dispatch.
type Config struct {
	Shell          string              // defaults to sh
	WorkDir        string              // defaults to the process working directory
	Env            []string            // nil inherits the process environment
	MaxOutputBytes int                 // preview cap, defaults to 4096
	Redact         func(string) string // applied to captured output, nil skips
}

// Result is the outcome of one dispatched command. A non-zero exit code is
// not an error at this layer; Err is set only when the command could not be
// started or was cut short by the context.
type Result struct {
	Command       string
	ExitCode      int
	Stdout        string
	Stderr        string
	OutputPreview string
	Duration      time.Duration
	TimedOut      bool
	Aborted       bool
	Err           error
}

// Success reports a clean zero exit.
func (r Result) Success() bool {
	return r.Err == nil && r.ExitCode == 0 && !r.TimedOut && !r.Aborted
}

func (r Result) String() string {
	return fmt.Sprintf("%s (exit %d in %s)", r.Command, r.ExitCode, r.Duration.Round(time.Millisecond))
}

// Run dispatches one command through the shell and waits for it. The
// context carries both the abort signal and the wall-clock deadline; the
// result distinguishes the two.
func Run(ctx context.Context, command string, cfg Config) Result {
	shell := cfg.Shell
	if shell == "" {
		shell = "sh"
	}
	maxOut := cfg.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = defaultMaxOutputBytes
	}

	res := Result{Command: command, ExitCode: -1}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = cfg.WorkDir
	if cfg.Env != nil {
		cmd.Env = cfg.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if cfg.Redact != nil {
		res.Stdout = cfg.Redact(res.Stdout)
		res.Stderr = cfg.Redact(res.Stderr)
	}
	res.OutputPreview = buildPreview(res.Stdout, res.Stderr, maxOut)

	switch {
	case err == nil:
		res.ExitCode = 0
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.TimedOut = true
		res.Err = ctx.Err()
	case errors.Is(ctx.Err(), context.Canceled):
		res.Aborted = true
		res.Err = ctx.Err()
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.Err = err
		}
	}
	return res
}

// buildPreview interleaves stdout then stderr into a capped preview string.
func buildPreview(stdout, stderr string, maxBytes int) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(stdout, "\n"))
	if stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strings.TrimRight(stderr, "\n"))
	}
	out := b.String()
	if len(out) > maxBytes {
		out = out[:maxBytes] + "\n... (output truncated)"
	}
	return out
}
