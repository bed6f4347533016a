// File: cmd/sast-agent/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/sast-agent/cmd"
)

func main() {
	// Cancel in-flight completion requests on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx)
	stop()
	os.Exit(code)
}

// run maps the command result to a process exit code.
func run(ctx context.Context) int {
	if err := cmd.Execute(ctx); err != nil {
		return 1
	}
	return 0
}
