package datasource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region types
// Source yields candidate sentences whose quality meets a threshold.
type Source interface {
	FetchBatch(ctx context.Context, qualityThreshold float64) ([]triplet.Sentence, error)
}
// #endregion types

// #region filter
// Filter scores sentences that carry no quality yet and keeps those at or
// above threshold.
func Filter(in []triplet.Sentence, threshold float64) []triplet.Sentence {
	out := make([]triplet.Sentence, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s.Text) == "" {
			continue
		}
		if s.Quality == 0 {
			s.Quality = Score(s.Text)
		}
		if s.Quality >= threshold {
			out = append(out, s)
		}
	}
	return out
}

// Dedupe drops sentences whose normalized text already appears earlier in
// in or in seen. seen is extended with what is kept; nil is allowed.
func Dedupe(in []triplet.Sentence, seen map[string]bool) []triplet.Sentence {
	if seen == nil {
		seen = make(map[string]bool, len(in))
	}
	out := make([]triplet.Sentence, 0, len(in))
	for _, s := range in {
		key := triplet.Normalize(s.Text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
// #endregion filter

// #region multi
// Multi fetches from every source in order and merges the results. A source
// that fails is logged and skipped; Multi fails only if all of them do.
type Multi struct {
	sources []Source
	logger  *slog.Logger
}

// NewMulti combines sources.
func NewMulti(sources ...Source) *Multi {
	return &Multi{sources: sources, logger: logging.New("datasource")}
}

func (m *Multi) FetchBatch(ctx context.Context, qualityThreshold float64) ([]triplet.Sentence, error) {
	var (
		all  []triplet.Sentence
		errs []error
	)
	for i, src := range m.sources {
		got, err := src.FetchBatch(ctx, qualityThreshold)
		if err != nil {
			m.logger.Warn("source failed", "index", i, "error", err)
			errs = append(errs, err)
			continue
		}
		all = append(all, got...)
	}
	if len(m.sources) > 0 && len(errs) == len(m.sources) {
		return nil, fmt.Errorf("all sources failed: %w", errors.Join(errs...))
	}
	return Dedupe(all, nil), nil
}
// #endregion multi

// #region format
// Summary renders sentences as a numbered list for CLI output.
func Summary(sentences []triplet.Sentence) string {
	if len(sentences) == 0 {
		return ""
	}
	var b strings.Builder
	for i, s := range sentences {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Text)
		var meta []string
		if s.Source != "" {
			meta = append(meta, s.Source)
		}
		if s.Domain != "" {
			meta = append(meta, s.Domain)
		}
		meta = append(meta, fmt.Sprintf("quality=%.2f", s.Quality))
		fmt.Fprintf(&b, "   %s\n", strings.Join(meta, ", "))
		if s.Reference != nil {
			fmt.Fprintf(&b, "   Reference: %s\n", triplet.Format(*s.Reference))
		}
	}
	return b.String()
}
// #endregion format
