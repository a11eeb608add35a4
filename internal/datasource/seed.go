package datasource

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/triplet-evolve/internal/triplet"
)

//go:embed corpus.yaml
var corpusYAML []byte

type corpusGroup struct {
	Domain    string   `yaml:"domain"`
	Sentences []string `yaml:"sentences"`
}

// Seed serves the built-in corpus. Each fetch returns the next PerSource
// sentences of every group, wrapping around, so successive refreshes rotate
// through the corpus.
type Seed struct {
	perSource int

	mu     sync.Mutex
	offset int
	groups []string
	corpus map[string]corpusGroup
}

// NewSeed parses the embedded corpus. perSource ≤ 0 returns whole groups.
func NewSeed(perSource int) (*Seed, error) {
	var corpus map[string]corpusGroup
	if err := yaml.Unmarshal(corpusYAML, &corpus); err != nil {
		return nil, fmt.Errorf("parse seed corpus: %w", err)
	}
	groups := make([]string, 0, len(corpus))
	for name := range corpus {
		groups = append(groups, name)
	}
	sort.Strings(groups)
	return &Seed{perSource: perSource, groups: groups, corpus: corpus}, nil
}

// Sources lists the corpus group names.
func (s *Seed) Sources() []string { return append([]string(nil), s.groups...) }

func (s *Seed) FetchBatch(ctx context.Context, qualityThreshold float64) ([]triplet.Sentence, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	offset := s.offset
	if s.perSource > 0 {
		s.offset += s.perSource
	}
	s.mu.Unlock()

	var out []triplet.Sentence
	for _, name := range s.groups {
		g := s.corpus[name]
		n := len(g.Sentences)
		if n == 0 {
			continue
		}
		take := n
		if s.perSource > 0 && s.perSource < n {
			take = s.perSource
		}
		for i := 0; i < take; i++ {
			text := g.Sentences[(offset+i)%n]
			out = append(out, triplet.Sentence{
				Text:    text,
				Source:  name,
				Domain:  g.Domain,
				Quality: Score(text),
			})
		}
	}
	return Dedupe(Filter(out, qualityThreshold), nil), nil
}
