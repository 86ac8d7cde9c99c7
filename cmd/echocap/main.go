package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
)

const version = "0.1.0"

func init() {
	// the tray and the hotkey need the main OS thread
	runtime.LockOSThread()
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
