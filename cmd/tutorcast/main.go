package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			// describeError turns an expired-session 401 into a sign-in
			// hint for any command that surfaced it raw.
			fmt.Fprintln(os.Stderr, describeError(err))
		}
		os.Exit(1)
	}
}
