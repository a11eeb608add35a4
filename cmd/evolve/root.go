// evolve runs the triplet extraction evolution loop.
//
// Usage:
//
//	evolve run      [--config evolve.yaml] [--serve] [--input sentences.jsonl]
//	evolve process  [sentence ...]
//	evolve feedback add --sentence <s> --rating <0-10> [--subject ...]
//	evolve serve    [--listen host:port]
//	evolve inspect  [--run id] [--json]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/triplet-evolve/internal/config"
	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	configPath string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Self-tuning triplet extraction with an extractor/validator loop",
	Long: "evolve extracts (subject, predicate, object, modifiers) triplets from sentences,\n" +
		"refines them against a validator, and tunes its own parameters round by round\n" +
		"until accuracy reaches the target or stops improving.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (.yaml, .yml or .toml)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
