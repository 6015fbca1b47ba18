// Command api runs the dsein HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"

	"github.com/dseinapp/dsein-server/internal/di"
	"github.com/dseinapp/dsein-server/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	injector := di.NewContainer()
	if err := di.Bootstrap(injector); err != nil {
		fmt.Fprintf(os.Stderr, "dsein: %v\n", err)
		_ = injector.Shutdown()
		os.Exit(1)
	}
	log := do.MustInvoke[*logger.Logger](injector)

	<-ctx.Done()
	stop()
	log.Info("Shutting down server gracefully...")

	// Handles shut down in reverse dependency order: HTTP drains before the
	// store closes.
	if err := injector.Shutdown(); err != nil {
		log.Error("Shutdown error", "error", err)
	}
	log.Info("Shutdown complete")
}
