// Package input reads interactive answers from the terminal.
package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

var (
	stdin  io.Reader = os.Stdin
	stderr io.Writer = os.Stderr
)

// PromptLine prints prompt to stderr and reads one line from stdin.
// Cancelling ctx abandons the read.
func PromptLine(ctx context.Context, prompt string) (string, error) {
	_, _ = fmt.Fprint(stderr, prompt)

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- result{line: strings.TrimRight(line, "\r\n"), err: err}
	}()

	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Confirm asks a yes/no question; only y/yes count as yes.
func Confirm(ctx context.Context, question string) (bool, error) {
	line, err := PromptLine(ctx, question+" [y/N]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
