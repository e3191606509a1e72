// Package catalog is the read surface shared by the HTTP API and the MCP
// server: collection listings, queries, lookups, validation and search.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/quarry/internal/apperr"
	"github.com/starford/quarry/internal/metrics"
	"github.com/starford/quarry/internal/models"
	"github.com/starford/quarry/internal/query"
	"github.com/starford/quarry/internal/schema"
	"github.com/starford/quarry/internal/search"
	"github.com/starford/quarry/internal/store"
)

// Searcher runs full-text searches within one collection.
type Searcher interface {
	Search(collection, q string, limit int) ([]search.Hit, error)
}

// CollectionSummary describes one configured collection.
type CollectionSummary struct {
	Name      string    `json:"name"`
	Available bool      `json:"available"`
	Error     string    `json:"error,omitempty"`
	Items     int       `json:"items"`
	Invalid   int       `json:"invalid"`
	Version   uint64    `json:"version"`
	BuiltAt   time.Time `json:"built_at,omitzero"`
}

// CollectionDetail adds the schema to a summary.
type CollectionDetail struct {
	CollectionSummary
	Schema schema.Definition `json:"schema"`
}

// Page is one page of query results.
type Page struct {
	Items      []*models.Item `json:"items"`
	TotalCount int            `json:"total_count"`
	Skip       int            `json:"skip"`
	Top        int            `json:"top"`
	Query      string         `json:"query"`
	Version    uint64         `json:"version"`
}

// Service answers catalog requests from a store registry.
type Service struct {
	reg     *store.Registry
	search  Searcher
	metrics *metrics.Metrics
	opts    query.Options
}

// NewService creates a catalog. searcher and m may be nil.
func NewService(reg *store.Registry, searcher Searcher, m *metrics.Metrics, opts query.Options) *Service {
	return &Service{reg: reg, search: searcher, metrics: m, opts: opts}
}

// MaxPageSize is the page size applied when a query has no top.
func (s *Service) MaxPageSize() int {
	if s.opts.MaxPageSize > 0 {
		return s.opts.MaxPageSize
	}
	return query.DefaultMaxPageSize
}

// Collections lists every configured collection, available or not.
func (s *Service) Collections(_ context.Context) []CollectionSummary {
	statuses := s.reg.List()
	out := make([]CollectionSummary, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, summarize(st))
	}
	return out
}

// Collection returns the summary and schema of one collection.
func (s *Service) Collection(_ context.Context, name string) (*CollectionDetail, error) {
	st, err := s.reg.Get(name)
	if err != nil {
		return nil, err
	}
	snap := st.Snapshot()
	return &CollectionDetail{
		CollectionSummary: summarize(store.Status{Name: name, Store: st}),
		Schema:            snap.Schema.Definition(),
	}, nil
}

func summarize(st store.Status) CollectionSummary {
	sum := CollectionSummary{Name: st.Name, Available: st.Err == nil && st.Store != nil}
	if st.Err != nil {
		sum.Error = st.Err.Error()
	}
	if st.Store != nil {
		snap := st.Store.Snapshot()
		sum.Items = snap.Len()
		sum.Invalid = len(snap.Invalid())
		sum.Version = snap.Version
		sum.BuiltAt = snap.BuiltAt
	}
	return sum
}

// QueryRaw runs a raw query string such as "filter=draft eq false&top=5".
func (s *Service) QueryRaw(ctx context.Context, name, raw string) (*Page, error) {
	p, err := query.SplitParams(raw)
	if err != nil {
		s.metrics.ObserveQuery(name, metrics.OutcomeInvalid, 0)
		return nil, err
	}
	return s.Query(ctx, name, p)
}

// Query runs p against the current snapshot of name. A query without top
// gets the maximum page size.
func (s *Service) Query(_ context.Context, name string, p query.Params) (*Page, error) {
	start := time.Now()
	pg, err := s.query(name, p)
	s.metrics.ObserveQuery(name, outcome(err), time.Since(start))
	return pg, err
}

func (s *Service) query(name string, p query.Params) (*Page, error) {
	st, err := s.reg.Get(name)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Top) == "" {
		p.Top = strconv.Itoa(s.MaxPageSize())
	}
	snap := st.Snapshot()
	q, err := query.Build(p, snap.Schema, s.opts)
	if err != nil {
		return nil, err
	}
	res := snap.Query(q)
	items := res.Items
	if items == nil {
		items = []*models.Item{}
	}
	return &Page{
		Items:      items,
		TotalCount: res.Total,
		Skip:       res.Skip,
		Top:        res.Top,
		Query:      q.String(),
		Version:    snap.Version,
	}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, apperr.ErrInvalidQuery):
		return metrics.OutcomeInvalid
	case errors.Is(err, apperr.ErrUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, apperr.ErrNotFound):
		return metrics.OutcomeNotFound
	}
	return metrics.OutcomeInternalFail
}

// Get returns one served item.
func (s *Service) Get(_ context.Context, name, id string) (*models.Item, error) {
	st, err := s.reg.Get(name)
	if err != nil {
		return nil, err
	}
	return st.GetByIdentifier(id)
}

// Validate checks meta against the collection schema without storing it.
func (s *Service) Validate(_ context.Context, name string, meta models.Metadata) (models.ValidationResult, error) {
	st, err := s.reg.Get(name)
	if err != nil {
		return models.ValidationResult{}, err
	}
	return st.Validate(meta), nil
}

// Invalid lists the items excluded from queries with their errors.
func (s *Service) Invalid(_ context.Context, name string) ([]*models.Item, error) {
	st, err := s.reg.Get(name)
	if err != nil {
		return nil, err
	}
	out := st.Invalid()
	if out == nil {
		out = []*models.Item{}
	}
	return out, nil
}

// Search runs a full-text search over the served items of name.
func (s *Service) Search(_ context.Context, name, q string, limit int) ([]search.Hit, error) {
	if _, err := s.reg.Get(name); err != nil {
		return nil, err
	}
	if strings.TrimSpace(q) == "" {
		return nil, fmt.Errorf("%w: search text is empty", apperr.ErrInvalidQuery)
	}
	if s.search == nil {
		return nil, fmt.Errorf("search: %w", apperr.ErrUnavailable)
	}
	if limit <= 0 || limit > s.MaxPageSize() {
		limit = min(max(limit, search.DefaultLimit), s.MaxPageSize())
	}
	hits, err := s.search.Search(name, q, limit)
	if err != nil {
		return nil, err
	}
	if hits == nil {
		hits = []search.Hit{}
	}
	return hits, nil
}
