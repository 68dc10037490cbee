package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"gopkg.in/alessio/shellescape.v1"
)

// stderrTailLines bounds how much engine output is carried in a RunError.
const stderrTailLines = 8

// Output holds both captured streams of one engine run.
type Output struct {
	Stdout string
	Stderr string
}

// Combined joins stdout and stderr the way diagnostic parsers expect.
func (o Output) Combined() string {
	return o.Stdout + "\n" + o.Stderr
}

// RunError reports a non-zero engine exit.
type RunError struct {
	Command  string
	ExitCode int
	Tail     string
	Err      error
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Command, e.ExitCode)
	if e.Tail != "" {
		msg += ": " + e.Tail
	}
	return msg
}

func (e *RunError) Unwrap() error { return e.Err }

func execRunner(ctx context.Context, binary string, args []string) (Output, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, fmt.Errorf("%s: %w", binary, ctxErr)
	}
	runErr := &RunError{Command: binary, ExitCode: -1, Tail: tail(out.Stderr, stderrTailLines), Err: err}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		runErr.ExitCode = exitErr.ExitCode()
	}
	return out, runErr
}

func commandLine(binary string, args []string) string {
	quoted := make([]string, 0, len(args)+1)
	quoted = append(quoted, shellescape.Quote(binary))
	for _, arg := range args {
		quoted = append(quoted, shellescape.Quote(arg))
	}
	return strings.Join(quoted, " ")
}

func tail(text string, lines int) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	parts := strings.Split(text, "\n")
	if len(parts) > lines {
		parts = parts[len(parts)-lines:]
	}
	return strings.Join(parts, " | ")
}
