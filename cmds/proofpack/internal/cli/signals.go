package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// withInterrupt cancels the returned context with a descriptive cause on
// SIGINT or SIGTERM so the run still tears its process tree down.
func withInterrupt(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case sig := <-signals:
			cancel(fmt.Errorf("interrupted by %s", sig))
		case <-done:
		}
	}()

	return ctx, func() {
		signal.Stop(signals)
		close(done)
		cancel(nil)
	}
}
