// Package recommend produces content-based article recommendations.
package recommend

import (
	"context"
	"log/slog"
	"sort"

	"rsshub/internal/model"
	"rsshub/internal/similarity"
	"rsshub/internal/storage"
)

// Profile and candidate-pool sizes.
const (
	profileFavorites = 10
	candidatePool    = 100
)

// Engine ranks stored articles against a term-weight profile built
// from titles. Internal errors never escape: every operation degrades
// to the hot fallback or an empty list.
type Engine struct {
	store  storage.Storage
	scorer *similarity.Scorer
	log    *slog.Logger
}

// New creates an Engine with the default scorer.
func New(store storage.Storage, log *slog.Logger) *Engine {
	return &Engine{store: store, scorer: similarity.NewScorer(), log: log}
}

// Personalized recommends articles matching the user's recent
// favorites. Users with no favorites get the hot list.
func (e *Engine) Personalized(ctx context.Context, userID int64, limit int) []model.Article {
	favorites, err := e.store.FindRecentFavorites(ctx, userID, profileFavorites)
	if err != nil {
		e.log.Error("load favorites", "user_id", userID, "error", err)
		return e.Hot(ctx, limit)
	}
	if len(favorites) == 0 {
		return e.Hot(ctx, limit)
	}

	titles := make([]string, 0, len(favorites))
	favoriteIDs := make(map[int64]bool, len(favorites))
	for _, f := range favorites {
		if f.ArticleTitle != "" {
			titles = append(titles, f.ArticleTitle)
		}
		favoriteIDs[f.ArticleID] = true
	}
	profile := e.scorer.BuildProfile(titles)

	candidates, err := e.store.FindRecentArticles(ctx, candidatePool)
	if err != nil {
		e.log.Error("load candidate pool", "error", err)
		return e.Hot(ctx, limit)
	}

	ranked := e.rank(profile, candidates, func(a *model.Article) bool {
		return favoriteIDs[a.ID]
	})
	if len(ranked) == 0 {
		return e.Hot(ctx, limit)
	}
	return top(ranked, limit)
}

// Similar recommends articles close to the target article's title.
// An unknown or title-less article yields an empty list.
func (e *Engine) Similar(ctx context.Context, articleID int64, limit int) []model.Article {
	article, err := e.store.FindArticleByID(ctx, articleID)
	if err != nil || article.Title == "" {
		if err != nil {
			e.log.Warn("similar target unavailable", "article_id", articleID, "error", err)
		}
		return nil
	}

	profile := e.scorer.TermWeights(article.Title)

	candidates, err := e.store.FindRecentArticles(ctx, candidatePool)
	if err != nil {
		e.log.Error("load candidate pool", "error", err)
		return nil
	}

	ranked := e.rank(profile, candidates, func(a *model.Article) bool {
		return a.ID == articleID
	})
	return top(ranked, limit)
}

// Hot returns the most recently published articles, the fixed
// fallback for every other ranking.
func (e *Engine) Hot(ctx context.Context, limit int) []model.Article {
	articles, err := e.store.FindRecentArticles(ctx, limit)
	if err != nil {
		e.log.Error("load hot articles", "error", err)
		return nil
	}
	return articles
}

type scored struct {
	article model.Article
	score   float64
}

func (e *Engine) rank(profile map[string]float64, candidates []model.Article, exclude func(*model.Article) bool) []model.Article {
	ranked := make([]scored, 0, len(candidates))
	for i := range candidates {
		a := candidates[i]
		if exclude(&a) {
			continue
		}
		ranked = append(ranked, scored{article: a, score: e.scorer.Similarity(profile, a.Title)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	out := make([]model.Article, len(ranked))
	for i, r := range ranked {
		out[i] = r.article
	}
	return out
}

func top(articles []model.Article, limit int) []model.Article {
	if limit > 0 && len(articles) > limit {
		return articles[:limit]
	}
	return articles
}
