package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dmitrijs2005/privylock/internal/vaultctl"
)

func main() {
	cmd := vaultctl.NewRootCmd(vaultctl.DefaultOpener, os.Stdout)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
