package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/errors"
	"github.com/quarry-search/quarry/internal/output"
	"github.com/quarry-search/quarry/pkg/filter"
	"github.com/quarry-search/quarry/pkg/retrieval"
	"github.com/quarry-search/quarry/pkg/snippet"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	filterJSON string
	format     string
	metadata   bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed directory",
		Long: `Search the indexed directory with fused keyword and semantic retrieval.

Filters use a JSON object over document metadata, with operators
$eq, $ne, $gt, $gte, $lt, $lte, $in, $prefix, and $exists.

Examples:
  quarry search "authentication middleware"
  quarry search "handleRequest" --limit 5
  quarry search "retry" --filter '{"language": "go"}'
  quarry search "setup" --filter '{"path": {"$prefix": "docs/"}}' --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVar(&opts.filterJSON, "filter", "", "Metadata filter as a JSON object")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.metadata, "metadata", false, "Include document metadata in results")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, opts searchOptions) error {
	if strings.TrimSpace(query) == "" {
		return errors.New(errors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}

	out := output.New(cmd.OutOrStdout())

	root, err := os.Getwd()
	if err != nil {
		return errors.IOError("resolve working directory", err)
	}

	cfg, indexDir, err := loadProjectConfig(root)
	if err != nil {
		return err
	}
	if _, err := os.Stat(indexDir); os.IsNotExist(err) {
		return errors.IOError("no index found", nil).
			WithDetail("path", indexDir).
			WithSuggestion("run 'quarry index' first")
	}
	if cleanup := setupCommandLogging(cfg, indexDir); cleanup != nil {
		defer cleanup()
	}

	var f filter.Filter
	if opts.filterJSON != "" {
		if err := json.Unmarshal([]byte(opts.filterJSON), &f); err != nil {
			return errors.ValidationError("parse filter", err).
				WithSuggestion(`filters are JSON objects, e.g. '{"language": "go"}'`)
		}
	}

	limit := opts.limit
	if limit <= 0 {
		limit = cfg.Search.Limit
	}

	eng, err := openEngine(ctx, cfg, indexDir, nil)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	slog.Info("search", "query", query, "limit", limit)
	results, err := eng.orch.Search(ctx, query, retrieval.SearchOptions{
		Limit:          limit,
		ReturnContent:  true,
		ReturnMetadata: opts.metadata,
		Filter:         f,
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeSearchFailed, err)
	}

	attachSnippets(results, query)

	if opts.format == "json" {
		return out.ResultsJSON(results)
	}
	out.Results(results)
	return nil
}

// attachSnippets extracts a highlight-annotated snippet for each result
// that carries content.
func attachSnippets(results []retrieval.SearchResult, query string) {
	extractor := snippet.NewExtractor()
	for i := range results {
		if results[i].Content == "" {
			continue
		}
		res := extractor.Extract(results[i].Content, query)
		if res.Snippet == "" {
			continue
		}
		results[i].Meta = &retrieval.ResultMeta{
			Snippet:    res.Snippet,
			Highlights: res.Highlights,
		}
	}
}
