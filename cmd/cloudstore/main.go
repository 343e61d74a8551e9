// Command cloudstore uploads, resolves and removes files in an object-storage
// bucket, either directly or through an HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := makeRootCmd(ctx, &app{}).Execute(); err != nil {
		stop()
		os.Exit(1)
	}
}
