// Command nst is the operator CLI of the lesson hub.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/nst-ai/lesson-hub/internal/interface/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
