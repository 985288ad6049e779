// Command server runs the PrivyLock REST API together with the gRPC health
// endpoint. Configuration comes from the environment, an optional JSON file
// and command line flags, in increasing order of precedence.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/privylock/internal/server"
	"github.com/dmitrijs2005/privylock/internal/server/config"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "privylock: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	app.Run(ctx)
	return nil
}
