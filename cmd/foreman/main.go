package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/example/foreman/internal/cli"
)

func main() {
	err := cli.RootCmd().ExecuteContext(context.Background())
	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || !exitErr.Silent() {
			fmt.Fprintln(os.Stderr, err)
		}
	}
	os.Exit(cli.ExitCode(err))
}
