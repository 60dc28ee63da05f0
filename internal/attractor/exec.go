package attractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ExecOracle runs an external analysis program. The program reads ebnf on
// stdin and prints a JSON Result on stdout.
type ExecOracle struct {
	Command string
	Args    []string
	// Timeout bounds a single call; zero leaves it to the caller's context.
	Timeout time.Duration
}

func (o *ExecOracle) Analyze(ctx context.Context, ebnf string) (*Result, error) {
	if o.Command == "" {
		return nil, fmt.Errorf("%w: no command configured", ErrOracleUnavailable)
	}
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, o.Command, o.Args...)
	cmd.Stdin = strings.NewReader(ebnf)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrOracleUnavailable, o.Command, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s exited with %d: %s", ErrOracleUnavailable, o.Command, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrOracleUnavailable, o.Command, err)
	}
	return decodeResult(stdout.Bytes())
}
