package main

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/triplet-evolve/internal/api"
	"github.com/danielpatrickdp/triplet-evolve/internal/feedback"
	"github.com/danielpatrickdp/triplet-evolve/internal/telemetry"
)

var serveFlags struct {
	listen string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve feedback intake, reports and single-sentence processing over HTTP",
	Long: `Starts the HTTP API without running evolution. Feedback goes straight to the
database and is picked up by the next run; /v1/report serves the last
finished run and /v1/process refines sentences with the stored best
parameters.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.listen, "listen", "", "listen address (overrides api.listen)")
}

// storeFeedback adapts a feedback.Store to the API's sink.
type storeFeedback struct {
	feedback.Store
}

func (s storeFeedback) AddUserFeedback(e feedback.Entry) error { return s.Append(e) }
func (s storeFeedback) Feedback() []feedback.Entry           { return s.Snapshot() }

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("serve needs storage.db_path")
	}
	defer st.Close()

	proc, closer, err := buildProcessor(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	if p, ok, err := st.BestParams(); err == nil && ok {
		proc.Tune(p)
	}

	collector := telemetry.NewCollector()
	srv := api.NewServer(api.Deps{
		Feedback:       storeFeedback{st.Feedback()},
		Reports:        st,
		Processor:      proc,
		Observer:       collector,
		Metrics:        collector.Handler(),
		MaxIterations:  cfg.Evolution.MaxIterationsPerSentence,
		ProcessTimeout: cfg.Evolution.SentenceTimeout,
	})

	addr := cfg.API.Listen
	if serveFlags.listen != "" {
		addr = serveFlags.listen
	}
	return srv.ListenAndServe(ctx, addr)
}
