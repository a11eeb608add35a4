package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/triplet-evolve/internal/feedback"
)

// FeedbackStore is a feedback.Store backed by the feedback table.
type FeedbackStore struct {
	s *Store
}

// Feedback returns a feedback.Store sharing this database.
func (s *Store) Feedback() *FeedbackStore {
	return &FeedbackStore{s: s}
}

// Append validates and inserts e. Re-appending an existing ID is a no-op.
func (f *FeedbackStore) Append(e feedback.Entry) error {
	e, err := e.Normalize()
	if err != nil {
		return err
	}
	tripletJSON, err := json.Marshal(e.Triplet)
	if err != nil {
		return fmt.Errorf("marshal triplet: %w", err)
	}
	_, err = f.s.db.Exec(
		`INSERT INTO feedback (id, sentence, triplet_json, rating, comment, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		e.ID, e.Sentence, string(tripletJSON), e.Rating, nullIfEmpty(e.Comment),
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

// Snapshot returns all entries oldest first. Read errors are logged and
// yield whatever was read before the failure.
func (f *FeedbackStore) Snapshot() []feedback.Entry {
	out, err := f.List()
	if err != nil {
		f.s.logger.Error("feedback snapshot failed", "error", err)
	}
	return out
}

// List is Snapshot with the error returned.
func (f *FeedbackStore) List() ([]feedback.Entry, error) {
	rows, err := f.s.db.Query(
		`SELECT id, sentence, triplet_json, rating, comment, created_at FROM feedback ORDER BY rowid`,
	)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	var out []feedback.Entry
	for rows.Next() {
		var (
			e           feedback.Entry
			tripletJSON string
			comment     *string
			createdStr  string
		)
		if err := rows.Scan(&e.ID, &e.Sentence, &tripletJSON, &e.Rating, &comment, &createdStr); err != nil {
			return out, fmt.Errorf("scan row: %w", err)
		}
		if err := json.Unmarshal([]byte(tripletJSON), &e.Triplet); err != nil {
			return out, fmt.Errorf("unmarshal triplet: %w", err)
		}
		if comment != nil {
			e.Comment = *comment
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ feedback.Store = (*FeedbackStore)(nil)
