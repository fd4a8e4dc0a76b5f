// Package main is the entry point for the dake build tool.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/grindlemire/graft"
	"go.trai.ch/dake/cmd/dake/commands"
	"go.trai.ch/dake/internal/app"
	"go.trai.ch/dake/internal/core/domain"
	_ "go.trai.ch/dake/internal/wiring"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, _, err := graft.ExecuteFor[*app.Components](ctx)
	if err != nil {
		// The logger is not available when initialization itself failed.
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		return 1
	}

	cli := commands.New(components.App)
	cli.SetArgs(args)

	if err := cli.Execute(ctx); err != nil {
		components.Logger.Error(err)

		var exitErr *domain.ExitError
		if errors.As(err, &exitErr) && exitErr.Code > 0 {
			return exitErr.Code
		}
		return 1
	}
	return 0
}
