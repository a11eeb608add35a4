package main

import (
	"context"
	"log/slog"
	"os"
)

type stopper interface{ Stop() }

// #region stop-on-signal
// stopOnSignal turns the first signal on sigs into a cooperative s.Stop(),
// which lets the round in progress finish and be scored. A second signal
// cancels the returned context and aborts the round.
func stopOnSignal(parent context.Context, sigs <-chan os.Signal, s stopper, log *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case sig := <-sigs:
			log.Info("stopping after the current round; interrupt again to abort", "signal", sig.String())
			s.Stop()
		case <-ctx.Done():
			return
		}
		select {
		case sig := <-sigs:
			log.Warn("aborting the current round", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
// #endregion stop-on-signal
