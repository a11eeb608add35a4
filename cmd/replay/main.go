package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/triplet-evolve/internal/evolution"
	"github.com/danielpatrickdp/triplet-evolve/internal/optimize"
	"github.com/danielpatrickdp/triplet-evolve/internal/replay"
	"github.com/danielpatrickdp/triplet-evolve/internal/store"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to evolve.db (DB mode)")
	runID := flag.String("run", "", "run to replay in DB mode (default: most recent)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/evolve.db [--run RUN_ID]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		exitCode = runDBMode(*dbPath, *runID)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-extract

func runDBMode(dbPath, runID string) int {
	st, err := store.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	if runID == "" {
		runs, err := st.ListRuns(1)
		if err != nil {
			fmt.Fprintf(os.Stderr, "find latest run: %v\n", err)
			return 2
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "no runs recorded")
			return 2
		}
		runID = runs[0].RunID
	}

	run, err := st.GetRun(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "get run: %v\n", err)
		return 2
	}
	cfg := evolution.DefaultConfig()
	if err := json.Unmarshal([]byte(run.ConfigJSON), &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "parse run config: %v\n", err)
		return 2
	}

	history, err := st.RoundHistory(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "round history: %v\n", err)
		return 2
	}
	if len(history) == 0 {
		fmt.Fprintf(os.Stderr, "run %s has no recorded rounds\n", runID)
		return 2
	}

	versions, err := st.ListVersions(runID)
	if err != nil || len(versions) == 0 {
		fmt.Fprintf(os.Stderr, "list versions: %v\n", err)
		return 2
	}
	start := versions[0].Params

	entries, err := st.Provenance(runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query provenance: %v\n", err)
		return 2
	}
	var recorded []string
	for _, e := range entries {
		if e.TriggerType == "round" {
			recorded = append(recorded, e.Decision)
		}
	}

	config := replay.ReplayConfig{Detector: cfg.Detector(), Optimizer: optimize.DefaultConfig()}
	results := replay.Replay(history, start, config)

	fmt.Printf("Run %s (recorded verdict %s)\n\n", runID, run.Verdict)
	return printComparison(results, recorded)
}

// #endregion db-extract

// #region output

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	results := replay.Replay(f.History, f.Start(), f.Config.ToReplayConfig())

	expected := make([]string, len(f.ExpectedResults))
	for i, e := range f.ExpectedResults {
		expected[i] = string(e.Verdict)
	}

	return printComparison(results, expected)
}

// printComparison outputs a comparison table and returns exit code.
// expected holds the reference verdicts (from DB or fixture).
func printComparison(results []replay.ReplayResult, expected []string) int {
	fmt.Printf("%-6s| %-18s| %-18s| %-9s| %s\n", "Round", "Expected", "Replayed", "Composite", "Match")
	fmt.Printf("%-6s+%-19s+%-19s+%-10s+%s\n",
		"------", "-------------------", "-------------------", "----------", "------")

	matches := 0
	total := len(results)
	if len(expected) < total {
		total = len(expected)
	}

	for i := 0; i < total; i++ {
		exp := expected[i]
		got := string(results[i].Verdict)
		match := "DIFF"
		if exp == got {
			match = "OK"
			matches++
		}
		fmt.Printf("%-6d| %-18s| %-18s| %-9.4f| %s\n", results[i].Round, exp, got, results[i].Composite, match)
	}

	s := replay.Summarize(results)
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", total, matches, total-matches)
	fmt.Printf("Best round %d (composite %.4f), %d adjustments, %d no-ops\n",
		s.BestRound, s.BestComposite, s.Adjustments, s.NoOps)
	if s.FinalVerdict != "" && !s.FinalVerdict.Terminal() {
		fmt.Println("History ended before any stop rule fired")
	}

	if total-matches > 0 || len(results) != len(expected) {
		return 1
	}
	return 0
}

// #endregion output
