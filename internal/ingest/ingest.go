// Package ingest turns one source's raw feed entries into persisted
// articles.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"rsshub/internal/extract"
	"rsshub/internal/fetcher"
	"rsshub/internal/model"
	"rsshub/internal/storage"
)

// Pipeline ingests feed entries for a single source: fetch, extract,
// deduplicate, persist, and update source health.
type Pipeline struct {
	store   storage.Storage
	fetcher *fetcher.Fetcher
	log     *slog.Logger
}

// New creates a Pipeline.
func New(store storage.Storage, f *fetcher.Fetcher, log *slog.Logger) *Pipeline {
	return &Pipeline{store: store, fetcher: f, log: log}
}

// IngestSource fetches the source's feed and persists entries whose
// links are not yet stored. maxArticles <= 0 means no truncation.
// On any error the source is marked status=error with the message;
// on success it is marked active, the error cleared, and its article
// count advanced by the number of rows actually written.
func (p *Pipeline) IngestSource(ctx context.Context, src *model.Source, maxArticles int) ([]*model.Article, error) {
	entries, err := p.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		p.markError(ctx, src, err)
		return nil, err
	}

	if maxArticles > 0 && maxArticles < len(entries) {
		entries = entries[:maxArticles]
	}

	// In-run dedup: a feed occasionally repeats a link between items.
	// Link-less entries are dropped outright, since the link is the
	// identity the whole dedup chain keys on.
	candidates := make([]*model.Article, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	links := make([]string, 0, len(entries))
	for _, entry := range entries {
		article := extract.Article(entry, src)
		if article.Link == "" {
			p.log.Warn("skipping entry without link", "source_id", src.ID, "title", article.Title)
			continue
		}
		if seen[article.Link] {
			continue
		}
		seen[article.Link] = true
		candidates = append(candidates, &article)
		links = append(links, article.Link)
	}

	existing, err := p.store.FindExistingLinks(ctx, links)
	if err != nil {
		err = fmt.Errorf("find existing links: %w", err)
		p.markError(ctx, src, err)
		return nil, err
	}

	fresh := make([]*model.Article, 0, len(candidates))
	for _, a := range candidates {
		if existing[a.Link] {
			continue
		}
		fresh = append(fresh, a)
	}

	// The batch insert skips links written by a concurrent ingestion
	// since the check above, so inserted can be less than len(fresh).
	inserted, err := p.store.InsertArticles(ctx, fresh)
	if err != nil {
		err = fmt.Errorf("insert articles: %w", err)
		p.markError(ctx, src, err)
		return nil, err
	}

	src.Status = model.SourceActive
	src.ErrorMessage = ""
	src.ArticleCount += inserted
	if err := p.store.UpdateSource(ctx, src); err != nil {
		return nil, fmt.Errorf("update source: %w", err)
	}

	p.log.Info("ingested source", "source_id", src.ID, "name", src.Name,
		"entries", len(entries), "new_articles", inserted)

	// Keep only the articles that actually landed.
	result := fresh[:0]
	for _, a := range fresh {
		if a.ID != 0 {
			result = append(result, a)
		}
	}
	return result, nil
}

// ReprocessCovers re-runs cover extraction over stored articles whose
// cover is missing or the placeholder, using the retained content.
// sourceID 0 means all sources. Returns how many were updated.
func (p *Pipeline) ReprocessCovers(ctx context.Context, sourceID int64) (int, error) {
	articles, err := p.store.FindArticlesWithoutCover(ctx, sourceID)
	if err != nil {
		return 0, fmt.Errorf("list articles without cover: %w", err)
	}

	updated := 0
	for _, a := range articles {
		if a.Content == "" {
			continue
		}
		cover := extract.FirstImage(a.Content)
		if cover == "" {
			continue
		}
		if err := p.store.UpdateArticleCover(ctx, a.ID, cover); err != nil {
			return updated, fmt.Errorf("update cover for article %d: %w", a.ID, err)
		}
		updated++
	}

	p.log.Info("reprocessed covers", "source_id", sourceID,
		"scanned", len(articles), "updated", updated)
	return updated, nil
}

func (p *Pipeline) markError(ctx context.Context, src *model.Source, cause error) {
	src.Status = model.SourceError
	src.ErrorMessage = cause.Error()
	if err := p.store.UpdateSource(ctx, src); err != nil {
		p.log.Error("update source after failure", "source_id", src.ID, "error", err)
	}
}
