package feedback

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/triplet-evolve/internal/logging"
	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

// #region entry
// MaxRating is the top of the rating scale.
const MaxRating = 10

// Entry is one user rating of an extracted triplet.
type Entry struct {
	ID        string          `json:"id"`
	Sentence  string          `json:"sentence"`
	Triplet   triplet.Triplet `json:"triplet"`
	Rating    float64         `json:"rating"`
	Comment   string          `json:"comment,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ErrInvalidEntry is returned for entries that cannot be stored.
var ErrInvalidEntry = errors.New("invalid feedback entry")

// Normalize fills in a missing ID and timestamp and checks the entry.
func (e Entry) Normalize() (Entry, error) {
	if strings.TrimSpace(e.Sentence) == "" {
		return e, fmt.Errorf("%w: empty sentence", ErrInvalidEntry)
	}
	if e.Rating < 0 || e.Rating > MaxRating {
		return e, fmt.Errorf("%w: rating %.1f outside [0, %d]", ErrInvalidEntry, e.Rating, MaxRating)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.Triplet = e.Triplet.Clone()
	return e, nil
}
// #endregion entry

// #region store
// Store is an append-only collection of feedback entries. Snapshot returns
// a copy that later appends do not affect.
type Store interface {
	Append(Entry) error
	Snapshot() []Entry
}

// MemoryStore keeps entries in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	logger  *slog.Logger
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{logger: logging.New("feedback")}
}

// Append validates and stores e.
func (s *MemoryStore) Append(e Entry) error {
	e, err := e.Normalize()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	n := len(s.entries)
	s.mu.Unlock()
	s.logger.Debug("feedback appended", "id", e.ID, "rating", e.Rating, "total", n)
	return nil
}

// Snapshot returns a copy of every entry in append order.
func (s *MemoryStore) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Len reports how many entries are stored.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
// #endregion store

// #region satisfaction
// Level buckets an average rating.
type Level string

const (
	LevelVerySatisfied Level = "very_satisfied"
	LevelSatisfied     Level = "satisfied"
	LevelNeutral       Level = "neutral"
	LevelDissatisfied  Level = "dissatisfied"
	LevelNoData        Level = "no_data"
)

// Satisfaction summarizes a set of ratings.
type Satisfaction struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
	Level   Level   `json:"level"`
}

// Summarize averages the ratings and buckets the result.
func Summarize(entries []Entry) Satisfaction {
	if len(entries) == 0 {
		return Satisfaction{Level: LevelNoData}
	}
	var sum float64
	for _, e := range entries {
		sum += e.Rating
	}
	avg := sum / float64(len(entries))
	out := Satisfaction{Count: len(entries), Average: avg}
	switch {
	case avg >= 8:
		out.Level = LevelVerySatisfied
	case avg >= 6:
		out.Level = LevelSatisfied
	case avg >= 4:
		out.Level = LevelNeutral
	default:
		out.Level = LevelDissatisfied
	}
	return out
}
// #endregion satisfaction
