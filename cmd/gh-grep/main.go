// Package main implements gh-grep, a grep across files in many GitHub
// repositories that reads them through the API instead of cloning.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fyrsmithlabs/gh-grep/internal/output"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command line and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if code := exitCode(err); code != 0 {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return code
	}
	return 0
}

// exitCode maps a run error to a process exit code. A reader closing
// the pipe early (head(1)) is not a failure.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case output.IsBrokenPipe(err):
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		return 1
	}
}
