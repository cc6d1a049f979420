// Package contextblock resolves the single background block injected into a prompt.
package contextblock

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/dynamo-gateway/internal/document"
	"github.com/ashureev/dynamo-gateway/internal/metrics"
	"github.com/ashureev/dynamo-gateway/internal/search"
)

// Source identifies where a block's body came from.
type Source string

const (
	SourceNone     Source = "none"
	SourceDocument Source = "document"
	SourceSearch   Source = "search"
)

const (
	LabelDocument = "DOCUMENT"
	LabelSearch   = "DYNAMO WEB CONTEXT"
)

// Block is the precedence-resolved context for one request.
type Block struct {
	Source Source
	Label  string
	Body   string
}

// Empty reports whether the block carries no text.
func (b Block) Empty() bool {
	return b.Source == SourceNone || strings.TrimSpace(b.Body) == ""
}

// Format renders the block as a labeled section, or "" when empty.
func (b Block) Format() string {
	if b.Empty() {
		return ""
	}
	return "[" + b.Label + "]:\n" + b.Body
}

// Input is the part of a chat request the assembler looks at.
type Input struct {
	Query           string
	DocumentContext string
	UseSearch       bool
	DeepDive        bool
}

// Options tunes an Assembler. Zero values pick defaults.
type Options struct {
	Budget        int
	MaxResults    int
	SearchTimeout time.Duration
}

// Assembler chooses between document and search context. Document wins; search
// is only consulted when no document is present.
type Assembler struct {
	searcher search.Searcher
	opts     Options
	logger   *slog.Logger
}

// NewAssembler creates an Assembler. A nil searcher disables search.
func NewAssembler(searcher search.Searcher, opts Options, logger *slog.Logger) *Assembler {
	if searcher == nil {
		searcher = search.Disabled{}
	}
	if opts.Budget <= 0 {
		opts.Budget = document.DefaultBudget
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = search.DefaultMaxResults
	}
	if opts.SearchTimeout <= 0 {
		opts.SearchTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{searcher: searcher, opts: opts, logger: logger}
}

// Assemble returns at most one non-empty block. Search failures and timeouts
// degrade to an empty block.
func (a *Assembler) Assemble(ctx context.Context, in Input) Block {
	if strings.TrimSpace(in.DocumentContext) != "" {
		metrics.ContextSource.WithLabelValues(string(SourceDocument)).Inc()
		return Block{
			Source: SourceDocument,
			Label:  LabelDocument,
			Body:   document.Truncate(in.DocumentContext, a.opts.Budget),
		}
	}

	if !in.UseSearch {
		metrics.ContextSource.WithLabelValues(string(SourceNone)).Inc()
		return Block{Source: SourceNone}
	}

	depth := search.DepthBasic
	if in.DeepDive {
		depth = search.DepthAdvanced
	}

	searchCtx, cancel := context.WithTimeout(ctx, a.opts.SearchTimeout)
	defer cancel()

	results, err := a.searcher.Search(searchCtx, search.Query{
		Text:       in.Query,
		Depth:      depth,
		MaxResults: a.opts.MaxResults,
	})
	if err != nil {
		metrics.SearchDegraded.Inc()
		a.logger.Warn("Search failed, continuing without web context", "depth", depth, "error", err)
		return Block{Source: SourceNone}
	}

	body := formatResults(results)
	if body == "" {
		metrics.ContextSource.WithLabelValues(string(SourceNone)).Inc()
		return Block{Source: SourceNone}
	}
	metrics.ContextSource.WithLabelValues(string(SourceSearch)).Inc()
	return Block{
		Source: SourceSearch,
		Label:  LabelSearch,
		Body:   document.Truncate(body, a.opts.Budget),
	}
}

func formatResults(results []search.Result) string {
	var b strings.Builder
	for _, r := range results {
		if strings.TrimSpace(r.Snippet) == "" && strings.TrimSpace(r.Title) == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(r.Title)
		b.WriteString(": ")
		b.WriteString(r.Snippet)
		if r.URL != "" {
			b.WriteString(" (Source: ")
			b.WriteString(r.URL)
			b.WriteString(")")
		}
		b.WriteString("\n")
	}
	return b.String()
}
