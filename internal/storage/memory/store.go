// Package memory keeps the usage ledger in process memory. It is used when
// no SQLite path is configured; totals reset on restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tjfontaine/polyglot-llm-bridge/internal/storage"
)

type Store struct {
	mu     sync.RWMutex
	seen   map[string]struct{}
	totals map[string]*storage.ModelTotals
}

var _ storage.UsageStore = (*Store)(nil)

func New() *Store {
	return &Store{
		seen:   make(map[string]struct{}),
		totals: make(map[string]*storage.ModelTotals),
	}
}

func (s *Store) Record(ctx context.Context, rec *storage.UsageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.seen[rec.RequestID]; exists {
		return fmt.Errorf("request %s already recorded", rec.RequestID)
	}
	s.seen[rec.RequestID] = struct{}{}

	t, ok := s.totals[rec.Model]
	if !ok {
		t = &storage.ModelTotals{Model: rec.Model}
		s.totals[rec.Model] = t
	}
	t.Requests++
	if rec.Status >= 400 {
		t.Errors++
	}
	t.InputTokens += int64(rec.InputTokens)
	t.OutputTokens += int64(rec.OutputTokens)
	return nil
}

func (s *Store) Totals(ctx context.Context) ([]storage.ModelTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.ModelTotals, 0, len(s.totals))
	for _, t := range s.totals {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out, nil
}

func (s *Store) Close() error { return nil }
