// Command provcap inspects and maintains provenance stores.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/roach88/provcap/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	stop()
	os.Exit(cli.GetExitCode(err))
}
