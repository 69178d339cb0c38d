// Package main provides the estudo command-line client.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/sakif/estudogame/internal/cli"
)

var Version = "0.1.0"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	app := &cli.App{Version: Version}
	os.Exit(app.Run(context.Background(), os.Args[1:]))
}
