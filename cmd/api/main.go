// Command api runs the edge-plane process: the API gateway, the auth
// session surface, and the notification intake API in one server.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/fx"

	"github.com/nimbusgate/core/internal/infra/config"
	fxmodule "github.com/nimbusgate/core/internal/infra/fx"
)

// Exit codes: 0 success, 1 configuration error, 2 dependency unavailable
// at start, 3 runtime fatal.
const (
	exitOK = iota
	exitConfig
	exitDependency
	exitRuntime
)

func main() {
	os.Exit(run())
}

func run() int {
	// Configuration is validated before the dependency graph is built so a
	// bad environment exits 1, not 2.
	if _, err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return exitConfig
	}

	app := fx.New(
		fxmodule.Module,
		fx.Invoke(fxmodule.RegisterServers),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		return exitDependency
	}

	sig := <-app.Wait()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), fx.DefaultTimeout)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown error: %v\n", err)
		return exitRuntime
	}

	if sig.ExitCode != 0 {
		return exitRuntime
	}
	return exitOK
}
