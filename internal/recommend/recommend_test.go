package recommend

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"rsshub/internal/model"
	"rsshub/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestEngine(t *testing.T, store *storage.SQLite) *Engine {
	t.Helper()
	return New(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func seedArticles(t *testing.T, store *storage.SQLite, titles ...string) []*model.Article {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	articles := make([]*model.Article, len(titles))
	for i, title := range titles {
		articles[i] = &model.Article{
			SourceID:    1,
			Title:       title,
			Link:        "https://example.com/" + title,
			PublishedAt: base.Add(time.Duration(i) * time.Hour),
		}
	}
	if _, err := store.InsertArticles(context.Background(), articles); err != nil {
		t.Fatalf("seed articles: %v", err)
	}
	return articles
}

func addFavorite(t *testing.T, store *storage.SQLite, userID, articleID int64, title string) {
	t.Helper()
	fav := &model.Favorite{UserID: userID, ArticleID: articleID, ArticleTitle: title}
	if err := store.CreateFavorite(context.Background(), fav); err != nil {
		t.Fatalf("create favorite: %v", err)
	}
}

func titlesOf(articles []model.Article) []string {
	var titles []string
	for _, a := range articles {
		titles = append(titles, a.Title)
	}
	return titles
}

func TestPersonalizedRanksByProfile(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	eng := newTestEngine(t, store)

	articles := seedArticles(t, store,
		"美丽的旅游风景攻略",
		"人工智能算法研究",
		"深度学习编程实践",
	)
	// Favorite a tech article from elsewhere, so the profile leans tech.
	addFavorite(t, store, 42, 9001, "机器学习与人工智能技术")

	got := eng.Personalized(ctx, 42, 10)
	if len(got) != 3 {
		t.Fatalf("expected all candidates ranked, got %d", len(got))
	}
	// Both tech titles must outrank the travel one.
	if got[2].Title != articles[0].Title {
		t.Errorf("travel article must rank last, got order %v", titlesOf(got))
	}
}

func TestPersonalizedExcludesFavoritedArticles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	eng := newTestEngine(t, store)

	articles := seedArticles(t, store,
		"人工智能算法研究",
		"机器学习模型训练",
	)
	addFavorite(t, store, 42, articles[0].ID, articles[0].Title)

	got := eng.Personalized(ctx, 42, 10)
	for _, a := range got {
		if a.ID == articles[0].ID {
			t.Errorf("favorited article must not be recommended back: %v", titlesOf(got))
		}
	}
	if len(got) != 1 {
		t.Errorf("expected one candidate, got %v", titlesOf(got))
	}
}

func TestPersonalizedWithoutFavoritesFallsBackToHot(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	eng := newTestEngine(t, store)

	seedArticles(t, store, "oldest", "middle", "newest")

	got := eng.Personalized(ctx, 42, 2)
	want := []string{"newest", "middle"}
	if diff := cmp.Diff(want, titlesOf(got)); diff != "" {
		t.Errorf("hot fallback mismatch (-want +got):\n%s", diff)
	}
}

func TestPersonalizedHonorsLimit(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	eng := newTestEngine(t, store)

	seedArticles(t, store, "编程语言设计", "算法与数据结构", "互联网技术动态")
	addFavorite(t, store, 42, 9001, "编程算法")

	got := eng.Personalized(ctx, 42, 2)
	if diff := cmp.Diff(2, len(got)); diff != "" {
		t.Errorf("limit mismatch (-want +got):\n%s", diff)
	}
}

func TestSimilarExcludesSelf(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	eng := newTestEngine(t, store)

	articles := seedArticles(t, store,
		"人工智能算法研究进展",
		"人工智能算法最新突破",
		"美食推荐攻略",
	)

	got := eng.Similar(ctx, articles[0].ID, 10)
	if len(got) != 2 {
		t.Fatalf("expected two candidates, got %v", titlesOf(got))
	}
	for _, a := range got {
		if a.ID == articles[0].ID {
			t.Error("target article must be excluded from its own results")
		}
	}
	if got[0].Title != articles[1].Title {
		t.Errorf("closest title must rank first, got %v", titlesOf(got))
	}
}

func TestSimilarUnknownArticle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	eng := newTestEngine(t, store)

	seedArticles(t, store, "anything at all")

	if got := eng.Similar(ctx, 9999, 10); len(got) != 0 {
		t.Errorf("unknown article must yield nothing, got %v", titlesOf(got))
	}
}

func TestHotOrdersByRecency(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	eng := newTestEngine(t, store)

	seedArticles(t, store, "first", "second", "third")

	got := eng.Hot(ctx, 10)
	want := []string{"third", "second", "first"}
	if diff := cmp.Diff(want, titlesOf(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyStoreIsSafe(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	eng := newTestEngine(t, store)

	if got := eng.Hot(ctx, 10); len(got) != 0 {
		t.Errorf("expected empty hot list, got %v", titlesOf(got))
	}
	if got := eng.Personalized(ctx, 42, 10); len(got) != 0 {
		t.Errorf("expected empty recommendations, got %v", titlesOf(got))
	}
	if got := eng.Similar(ctx, 1, 10); len(got) != 0 {
		t.Errorf("expected empty similar list, got %v", titlesOf(got))
	}
}
