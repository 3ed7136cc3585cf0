package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ytmusicdl/internal/downloader"
)

// exitRestart tells a service supervisor that the manager asked this
// downloader to restart, as opposed to a crash.
const exitRestart = 3

func main() {
	os.Exit(exitCode(newRootCommand().Execute()))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, downloader.ErrRestartRequested):
		fmt.Fprintln(os.Stderr, "downloader restarting on manager request")
		return exitRestart
	case errors.Is(err, context.Canceled):
		return 1
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
}
