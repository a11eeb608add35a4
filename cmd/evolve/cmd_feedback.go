package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/triplet-evolve/internal/feedback"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

var feedbackFlags struct {
	sentence  string
	subject   string
	predicate string
	object    string
	modifiers map[string]string
	rating    float64
	comment   string
}

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record and summarize user ratings",
}

var feedbackAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Store one rating of an extracted triplet",
	RunE:  runFeedbackAdd,
}

var feedbackSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the satisfaction summary over stored ratings",
	RunE:  runFeedbackSummary,
}

func init() {
	f := feedbackAddCmd.Flags()
	f.StringVar(&feedbackFlags.sentence, "sentence", "", "rated sentence (required)")
	f.StringVar(&feedbackFlags.subject, "subject", "", "triplet subject")
	f.StringVar(&feedbackFlags.predicate, "predicate", "", "triplet predicate")
	f.StringVar(&feedbackFlags.object, "object", "", "triplet object")
	f.StringToStringVar(&feedbackFlags.modifiers, "modifier", nil, "triplet modifier key=value (repeatable)")
	f.Float64Var(&feedbackFlags.rating, "rating", -1, "rating from 0 to 10 (required)")
	f.StringVar(&feedbackFlags.comment, "comment", "", "free-text comment")
	_ = feedbackAddCmd.MarkFlagRequired("sentence")
	_ = feedbackAddCmd.MarkFlagRequired("rating")

	feedbackCmd.AddCommand(feedbackAddCmd)
	feedbackCmd.AddCommand(feedbackSummaryCmd)
}

func runFeedbackAdd(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("feedback add needs storage.db_path")
	}
	defer st.Close()

	entry := feedback.Entry{
		Sentence: feedbackFlags.sentence,
		Triplet: triplet.Triplet{
			Subject:   feedbackFlags.subject,
			Predicate: feedbackFlags.predicate,
			Object:    feedbackFlags.object,
			Modifiers: feedbackFlags.modifiers,
		},
		Rating:  feedbackFlags.rating,
		Comment: feedbackFlags.comment,
	}
	if err := st.Feedback().Append(entry); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Stored rating %.1f for %q\n", entry.Rating, entry.Sentence)
	return nil
}

func runFeedbackSummary(cmd *cobra.Command, _ []string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("feedback summary needs storage.db_path")
	}
	defer st.Close()

	entries, err := st.Feedback().List()
	if err != nil {
		return err
	}
	s := feedback.Summarize(entries)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Entries: %d\n", s.Count)
	fmt.Fprintf(out, "Average: %.2f\n", s.Average)
	fmt.Fprintf(out, "Level:   %s\n", s.Level)
	return nil
}
