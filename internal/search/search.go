// Package search retrieves ranked web snippets for the context assembler.
package search

import (
	"context"
	"errors"
)

// Depth selects how thorough a search should be.
type Depth string

const (
	DepthBasic    Depth = "basic"
	DepthAdvanced Depth = "advanced"
)

// DefaultMaxResults is the number of snippets requested when the caller does not say.
const DefaultMaxResults = 5

// ErrNotConfigured is returned when no search provider credential is set.
var ErrNotConfigured = errors.New("search provider not configured")

// Query is one search invocation.
type Query struct {
	Text       string
	Depth      Depth
	MaxResults int
}

// Result is one ranked snippet.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher is the web search collaborator.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, error)
}

// Disabled is a Searcher for deployments without a search key. Every call fails
// with ErrNotConfigured, which the assembler treats like any other search failure.
type Disabled struct{}

// Search implements Searcher.
func (Disabled) Search(context.Context, Query) ([]Result, error) {
	return nil, ErrNotConfigured
}
