package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/triplet-evolve/internal/refine"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

var processFlags struct {
	jsonOut bool
	warm    bool
}

var processCmd = &cobra.Command{
	Use:   "process [sentence ...]",
	Short: "Refine single sentences and show every iteration",
	Long: `Runs the extract/validate/revise loop on each argument. Without arguments
it reads sentences from stdin, one per line, until EOF or "quit".`,
	RunE: runProcess,
}

func init() {
	f := processCmd.Flags()
	f.BoolVar(&processFlags.jsonOut, "json", false, "print results as JSON")
	f.BoolVar(&processFlags.warm, "warm", true, "start from the stored best parameters when available")
}

func runProcess(cmd *cobra.Command, args []string) error {
	proc, closer, err := buildProcessor(cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if processFlags.warm {
		if st, err := openStore(cfg); err == nil && st != nil {
			if p, ok, err := st.BestParams(); err == nil && ok {
				proc.Tune(p)
			}
			st.Close()
		}
	}

	out := cmd.OutOrStdout()
	if len(args) > 0 {
		for _, s := range args {
			if err := processOne(cmd.Context(), out, proc, s); err != nil {
				return err
			}
		}
		return nil
	}

	fmt.Fprintln(out, `Type a sentence (or "quit" to exit):`)
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		if err := processOne(cmd.Context(), out, proc, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func processOne(ctx context.Context, out io.Writer, proc *refine.Controller, sentence string) error {
	res := proc.Process(ctx, sentence, cfg.Evolution.MaxIterationsPerSentence)
	if processFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetEscapeHTML(false)
		return enc.Encode(res)
	}

	fmt.Fprintf(out, "\n%s\n", sentence)
	for _, it := range res.Iterations {
		mark := "x"
		if it.Validation.Valid {
			mark = "ok"
		}
		fmt.Fprintf(out, "  [%d] %-2s %s\n", it.Index, mark, triplet.Format(it.Triplet))
		for _, is := range it.Validation.Issues {
			fmt.Fprintf(out, "         - %s\n", is)
		}
	}
	fmt.Fprintf(out, "  => %s (%s, %d iterations)\n", triplet.Format(res.Final), res.Status, len(res.Iterations))
	if res.Err != "" {
		fmt.Fprintf(out, "  error: %s\n", res.Err)
	}
	return nil
}
