package retrieval

import (
	"context"
	"errors"

	"github.com/quarry-search/quarry/pkg/filter"
)

// ErrNoDrivers is returned when a DriverInput resolves to zero providers.
var ErrNoDrivers = errors.New("no search drivers configured")

// SearchOptions control a single search call.
type SearchOptions struct {
	// Limit caps the number of results (default DefaultSearchLimit).
	Limit int

	// ReturnContent asks the driver to include document content.
	ReturnContent bool

	// ReturnMetadata asks the driver to include document metadata.
	ReturnMetadata bool

	// Filter restricts matches by metadata.
	Filter filter.Filter
}

// DefaultSearchLimit is the result cap when the caller does not set one.
const DefaultSearchLimit = 10

// SearchProvider is the storage backend contract. Remove, Clear, and Close
// are optional capabilities probed by type assertion; see Remover, Clearer,
// and CloserProvider.
type SearchProvider interface {
	// Index stores documents and returns the count accepted.
	Index(ctx context.Context, docs []Document) (int, error)

	// Search returns ranked results for the query.
	Search(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error)
}

// Remover is implemented by providers that support deletion by id.
type Remover interface {
	Remove(ctx context.Context, ids []string) (int, error)
}

// Clearer is implemented by providers that can drop their whole index.
type Clearer interface {
	Clear(ctx context.Context) error
}

// CloserProvider is implemented by providers holding releasable resources.
type CloserProvider interface {
	Close() error
}

// Reranker reorders results for a query. It may drop results but must not
// introduce new ids.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []SearchResult) ([]SearchResult, error)
}

// DriverInput names the providers an orchestrator runs over: either Single,
// or a composition of Vector and Keyword with at least one present. Single
// wins when set.
type DriverInput struct {
	Single  SearchProvider
	Vector  SearchProvider
	Keyword SearchProvider
}

// resolve flattens the input into the driver list, vector first.
func (d DriverInput) resolve() ([]SearchProvider, error) {
	if d.Single != nil {
		return []SearchProvider{d.Single}, nil
	}

	var drivers []SearchProvider
	if d.Vector != nil {
		drivers = append(drivers, d.Vector)
	}
	if d.Keyword != nil {
		drivers = append(drivers, d.Keyword)
	}
	if len(drivers) == 0 {
		return nil, ErrNoDrivers
	}
	return drivers, nil
}
