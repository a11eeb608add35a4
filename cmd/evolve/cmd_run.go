package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/triplet-evolve/internal/api"
	"github.com/danielpatrickdp/triplet-evolve/internal/datasource"
	"github.com/danielpatrickdp/triplet-evolve/internal/evolution"
	"github.com/danielpatrickdp/triplet-evolve/internal/feedback"
	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
	"github.com/danielpatrickdp/triplet-evolve/internal/telemetry"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

var runFlags struct {
	input  []string
	serve  bool
	report string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the evolution loop until it converges or exhausts its rounds",
	Long: `Runs evolution rounds over a sentence batch. Each round refines every
evaluated sentence, scores the round, checks the stop rules and, if the run
continues, adjusts the extraction parameters.

The initial batch comes from --input files; without them the configured data
sources are asked for one. Ctrl-C stops the run after the current round and
still writes the report; a second Ctrl-C aborts the round in progress.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.StringSliceVarP(&runFlags.input, "input", "i", nil, "initial sentence files (.jsonl, .yaml, .txt, optionally .zst)")
	f.BoolVar(&runFlags.serve, "serve", false, "serve the HTTP API while the run is in progress")
	f.StringVarP(&runFlags.report, "report", "o", "", "report path (overrides storage.report_path; .zst compresses)")
}

func runRun(cmd *cobra.Command, _ []string) error {
	log := logging.New("cli")

	proc, closer, err := buildProcessor(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	source, err := buildSource(cfg)
	if err != nil {
		return err
	}

	collector := telemetry.NewCollector()
	opts := []evolution.Option{
		evolution.WithObserver(collector),
		evolution.WithOptimizer(cfg.OptimizerSettings()),
	}
	if source != nil {
		opts = append(opts, evolution.WithDataSource(source))
	}

	var fbStore feedback.Store = feedback.NewMemoryStore()
	var reports api.ReportSource
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		fbStore = st.Feedback()
		reports = st
		opts = append(opts,
			evolution.WithRecorder(st),
			evolution.WithParamSeeder(st),
		)
	}
	opts = append(opts, evolution.WithFeedbackStore(fbStore))

	orch, err := evolution.New(proc, cfg.Evolution, opts...)
	if err != nil {
		return err
	}

	initial, err := loadInputs(runFlags.input)
	if err != nil {
		return err
	}

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	ctx, cancel := stopOnSignal(cmd.Context(), sigs, orch, log)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	sideCtx, stopSide := context.WithCancel(gctx)

	if cfg.Feedback.InboxDir != "" {
		inbox, err := feedback.NewInbox(cfg.Feedback.InboxDir, fbStore)
		if err != nil {
			stopSide()
			return err
		}
		g.Go(func() error {
			defer inbox.Stop()
			return inbox.Start(sideCtx)
		})
	}
	if runFlags.serve {
		srv := api.NewServer(api.Deps{
			Feedback:       orch,
			Best:           orch,
			Reports:        reports,
			Processor:      proc,
			Observer:       collector,
			Metrics:        collector.Handler(),
			MaxIterations:  cfg.Evolution.MaxIterationsPerSentence,
			ProcessTimeout: cfg.Evolution.SentenceTimeout,
		})
		g.Go(func() error { return srv.ListenAndServe(sideCtx, cfg.API.Listen) })
	}

	var report evolution.Report
	g.Go(func() error {
		defer stopSide()
		var runErr error
		report, runErr = orch.Run(gctx, initial)
		return runErr
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	path := cfg.Storage.ReportPath
	if runFlags.report != "" {
		path = runFlags.report
	}
	if path != "" {
		if err := evolution.WriteReport(path, report); err != nil {
			return err
		}
		log.Info("report written", "path", path)
	}
	printReport(cmd, report)
	return nil
}

func loadInputs(paths []string) ([]triplet.Sentence, error) {
	var out []triplet.Sentence
	for _, p := range paths {
		s, err := datasource.ReadSentences(p)
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
	}
	return out, nil
}

func printReport(cmd *cobra.Command, r evolution.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run:        %s\n", r.RunID)
	fmt.Fprintf(out, "Verdict:    %s (%s)\n", r.Verdict, r.Reason)
	fmt.Fprintf(out, "Rounds:     %d (best %d)\n", r.TotalRounds, r.BestRound)
	fmt.Fprintf(out, "Best:       accuracy %.4f, completeness %.4f, integrity %.4f\n",
		r.Best.Accuracy, r.Best.Completeness, r.Best.ArgumentIntegrity)
	fmt.Fprintf(out, "Parameters: temperature %.3f, rule_strictness %.3f, argument_check %.3f, sampling_ratio %.2f\n",
		r.BestParams.Temperature, r.BestParams.RuleStrictness, r.BestParams.ArgumentCheck, r.BestParams.SamplingRatio)
	fmt.Fprintf(out, "Trend:      %s\n", r.Trend())
	fmt.Fprintf(out, "Data:       %d -> %d sentences, %d refreshes (%d skipped)\n",
		r.Data.InitialSize, r.Data.FinalSize, r.Data.Refreshes, r.Data.SkippedRefreshes)
	if r.Satisfaction.Count > 0 {
		fmt.Fprintf(out, "Feedback:   %d entries, average %.1f (%s)\n",
			r.Satisfaction.Count, r.Satisfaction.Average, r.Satisfaction.Level)
	}
	fmt.Fprintf(out, "Elapsed:    %s\n", r.Elapsed.Round(time.Millisecond))
}
