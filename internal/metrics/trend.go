package metrics

// Trend labels the direction of accuracy over a history.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendDeclining Trend = "declining"
	TrendStable    Trend = "stable"
	TrendUnknown   Trend = "insufficient_data"
)

// trendBand is the absolute accuracy change treated as noise.
const trendBand = 0.05

// TrendOf compares the latest accuracy with the first one in history.
func TrendOf(history []Snapshot) Trend {
	if len(history) < 2 {
		return TrendUnknown
	}
	delta := history[len(history)-1].Accuracy - history[0].Accuracy
	switch {
	case delta > trendBand:
		return TrendImproving
	case delta < -trendBand:
		return TrendDeclining
	default:
		return TrendStable
	}
}
