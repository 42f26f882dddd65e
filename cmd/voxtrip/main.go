// Package main provides the voxtrip CLI process entrypoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/voxtrip/internal/app"
)

func main() {
	os.Exit(run())
}

// run wires process signals to the application runner. An interrupt while a
// session is active dismisses it and releases the microphone before exit.
func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
