// Package search ranks likely-duplicate records by fuzzy string similarity.
// It is read-only and runs outside any merge transaction; callers re-validate
// identities at merge time.
package search

import (
	"sort"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/lherron/curio/internal/domain"
	"github.com/lherron/curio/internal/store"
)

// Request describes one candidate search.
type Request struct {
	Type      string   // registered record type name
	Query     string   // free text to match against
	Fields    []string // fields to compare; empty means all mergeable fields
	Threshold int      // minimum score 0-100, clamped
}

// Service performs candidate searches against the catalog.
type Service struct {
	store *store.Store
}

// New creates a search service over the given store.
func New(s *store.Store) *Service {
	return &Service{store: s}
}

// Find scores every record of the requested type against the query using
// token-set similarity (case- and word-order-insensitive), drops candidates
// below the threshold, and returns the rest sorted by descending score with
// UUID as the stable tie-break.
func (s *Service) Find(req Request) ([]domain.ScoredCandidate, error) {
	t, err := s.store.Registry().Lookup(req.Type)
	if err != nil {
		return nil, err
	}

	fields := req.Fields
	if len(fields) == 0 {
		fields = t.Fields
	} else {
		for _, field := range fields {
			if !t.HasField(field) {
				return nil, domain.Validationf("record type %q has no field %q", t.Name, field)
			}
		}
	}

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.Validationf("empty search query")
	}

	threshold := req.Threshold
	if threshold < 0 {
		threshold = 0
	}
	if threshold > 100 {
		threshold = 100
	}

	candidates, err := s.store.Records.List(s.store.DB(), t)
	if err != nil {
		return nil, err
	}

	var scored []domain.ScoredCandidate
	for _, cand := range candidates {
		haystack := joinFields(cand, fields)
		if haystack == "" {
			continue
		}
		// Force full processing (lowercase, strip punctuation); the
		// library defaults to raw comparison unlike its Python namesake.
		score := fuzzy.TokenSetRatio(query, haystack, true, true)
		if score < threshold {
			continue
		}
		scored = append(scored, domain.ScoredCandidate{Candidate: cand, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Candidate.UUID < scored[j].Candidate.UUID
	})

	return scored, nil
}

// joinFields concatenates the requested field values into one haystack.
func joinFields(cand domain.Candidate, fields []string) string {
	var parts []string
	for _, field := range fields {
		if v, ok := cand.Fields[field]; ok && v != nil {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
	}
	return strings.Join(parts, " ")
}
