package photos

import (
	"context"
	"time"

	"github.com/gibbonas/MemAgent/internal/memory"
	"github.com/gibbonas/MemAgent/internal/observability"
)

const (
	// DateWindow is the half-width of the date search around the extracted
	// point in time.
	DateWindow = 14 * 24 * time.Hour

	DefaultPerQueryLimit = 5
	DefaultTotalLimit    = 8
	DefaultQueryTimeout  = 10 * time.Second
)

// SearchOptions bounds one reference search run.
type SearchOptions struct {
	QueryTimeout  time.Duration
	PerQueryLimit int
	TotalLimit    int
}

func (o *SearchOptions) fill() {
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = DefaultQueryTimeout
	}
	if o.PerQueryLimit <= 0 {
		o.PerQueryLimit = DefaultPerQueryLimit
	}
	if o.TotalLimit <= 0 {
		o.TotalLimit = DefaultTotalLimit
	}
}

// Searcher is the slice of Client the reference search needs; tests swap in
// fakes.
type Searcher interface {
	SearchByDate(ctx context.Context, start, end time.Time, max int) ([]memory.ReferencePhoto, error)
	SearchByContent(ctx context.Context, categories []string, max int) ([]memory.ReferencePhoto, error)
}

// FindReferences runs the date-window query and, when the extraction mentions
// people or pets, a content-category query. The queries run concurrently,
// each under its own timeout; a failure or timeout on one degrades only that
// query's contribution. Results merge deduplicated by media item id, capped.
// FindReferences never returns an error: an empty slice means the caller
// should proceed as if the user skipped.
func FindReferences(ctx context.Context, client Searcher, ext *memory.Extraction, opts SearchOptions) []memory.ReferencePhoto {
	opts.fill()
	log := observability.LoggerFromContext(ctx)

	type result struct {
		photos []memory.ReferencePhoto
		name   string
		err    error
	}
	results := make(chan result, 2)
	queries := 0

	if ext != nil && ext.When != nil {
		queries++
		when := *ext.When
		go func() {
			qctx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
			defer cancel()
			ph, err := client.SearchByDate(qctx, when.Add(-DateWindow), when.Add(DateWindow), opts.PerQueryLimit)
			results <- result{photos: ph, name: "date", err: err}
		}()
	}

	if ext.HasSubjects() {
		queries++
		var cats []string
		if len(ext.WhoPeople) > 0 {
			cats = append(cats, "PEOPLE")
		}
		if len(ext.WhoPets) > 0 {
			cats = append(cats, "PETS")
		}
		go func() {
			qctx, cancel := context.WithTimeout(ctx, opts.QueryTimeout)
			defer cancel()
			ph, err := client.SearchByContent(qctx, cats, opts.PerQueryLimit)
			results <- result{photos: ph, name: "content", err: err}
		}()
	}

	var merged []memory.ReferencePhoto
	seen := make(map[string]struct{})
	for i := 0; i < queries; i++ {
		res := <-results
		if res.err != nil {
			log.Warn("reference search query degraded", "query", res.name, "error", res.err)
			continue
		}
		for _, p := range res.photos {
			if _, dup := seen[p.MediaItemID]; dup {
				continue
			}
			seen[p.MediaItemID] = struct{}{}
			merged = append(merged, p)
			if len(merged) >= opts.TotalLimit {
				break
			}
		}
		if len(merged) >= opts.TotalLimit {
			break
		}
	}

	log.Info("reference search finished", "queries", queries, "results", len(merged))
	return merged
}
