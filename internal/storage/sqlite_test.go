package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"rsshub/internal/model"
)

var ignoreSourceTS = cmpopts.IgnoreFields(model.Source{}, "CreatedAt", "LastFetchAt")

func newTestDB(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testArticle(sourceID int64, link string) *model.Article {
	return &model.Article{
		SourceID:    sourceID,
		Title:       "title for " + link,
		Link:        link,
		PublishedAt: time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestSourceCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	src := &model.Source{
		Name:             "Tech Digest",
		URL:              "https://tech.example.com/rss",
		Description:      "technology news",
		FrequencyMinutes: 30,
	}
	if err := s.CreateSource(ctx, src); err != nil {
		t.Fatalf("create: %v", err)
	}
	if src.ID == 0 {
		t.Fatal("expected populated ID")
	}

	got, err := s.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := *src
	want.Status = model.SourceActive
	if diff := cmp.Diff(&want, got, ignoreSourceTS); diff != "" {
		t.Errorf("source mismatch (-want +got):\n%s", diff)
	}

	byURL, err := s.GetSourceByURL(ctx, src.URL)
	if err != nil {
		t.Fatalf("get by url: %v", err)
	}
	if diff := cmp.Diff(src.ID, byURL.ID); diff != "" {
		t.Errorf("id mismatch (-want +got):\n%s", diff)
	}

	now := time.Now().UTC().Truncate(time.Second)
	src.Status = model.SourceError
	src.ErrorMessage = "boom"
	src.ArticleCount = 3
	src.LastFetchAt = &now
	if err := s.UpdateSource(ctx, src); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err = s.GetSource(ctx, src.ID)
	if err != nil {
		t.Fatalf("get after update: %v", err)
	}
	if diff := cmp.Diff(src, got, ignoreSourceTS); diff != "" {
		t.Errorf("updated source mismatch (-want +got):\n%s", diff)
	}
	if got.LastFetchAt == nil || !got.LastFetchAt.Equal(now) {
		t.Errorf("last fetch mismatch: want %v, got %v", now, got.LastFetchAt)
	}

	if err := s.DeleteSource(ctx, src.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetSource(ctx, src.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestListActiveSources(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	active := &model.Source{Name: "A", URL: "https://a.example.com", FrequencyMinutes: 60}
	if err := s.CreateSource(ctx, active); err != nil {
		t.Fatalf("create: %v", err)
	}
	broken := &model.Source{Name: "B", URL: "https://b.example.com", FrequencyMinutes: 60,
		Status: model.SourceError, ErrorMessage: "dead"}
	if err := s.CreateSource(ctx, broken); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.ListActiveSources(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		t.Errorf("expected only active source, got %+v", got)
	}

	all, err := s.ListSources(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if diff := cmp.Diff(2, len(all)); diff != "" {
		t.Errorf("source count mismatch (-want +got):\n%s", diff)
	}
}

func TestInsertArticlesSkipsDuplicateLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	first := []*model.Article{
		testArticle(1, "https://example.com/a"),
		testArticle(1, "https://example.com/b"),
	}
	n, err := s.InsertArticles(ctx, first)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if diff := cmp.Diff(2, n); diff != "" {
		t.Errorf("insert count mismatch (-want +got):\n%s", diff)
	}
	if first[0].ID == 0 || first[1].ID == 0 {
		t.Error("expected populated IDs on inserted articles")
	}

	second := []*model.Article{
		testArticle(1, "https://example.com/b"), // duplicate
		testArticle(1, "https://example.com/c"),
	}
	n, err = s.InsertArticles(ctx, second)
	if err != nil {
		t.Fatalf("insert with duplicate: %v", err)
	}
	if diff := cmp.Diff(1, n); diff != "" {
		t.Errorf("conditional insert mismatch (-want +got):\n%s", diff)
	}
}

func TestFindExistingLinks(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	if _, err := s.InsertArticles(ctx, []*model.Article{
		testArticle(1, "https://example.com/a"),
		testArticle(1, "https://example.com/b"),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.FindExistingLinks(ctx, []string{
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/missing",
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := map[string]bool{
		"https://example.com/a": true,
		"https://example.com/b": true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	empty, err := s.FindExistingLinks(ctx, nil)
	if err != nil {
		t.Fatalf("find empty: %v", err)
	}
	if diff := cmp.Diff(map[string]bool{}, empty); diff != "" {
		t.Errorf("empty query mismatch (-want +got):\n%s", diff)
	}
}

func TestFindRecentArticlesOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	older := testArticle(1, "https://example.com/old")
	older.PublishedAt = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := testArticle(1, "https://example.com/new")
	newer.PublishedAt = time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)

	if _, err := s.InsertArticles(ctx, []*model.Article{older, newer}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.FindRecentArticles(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 || got[0].Link != newer.Link {
		t.Errorf("expected newest first, got %+v", got)
	}

	limited, err := s.FindRecentArticles(ctx, 1)
	if err != nil {
		t.Fatalf("recent limited: %v", err)
	}
	if diff := cmp.Diff(1, len(limited)); diff != "" {
		t.Errorf("limit mismatch (-want +got):\n%s", diff)
	}
}

func TestFindArticleByID(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	a := testArticle(1, "https://example.com/a")
	a.Author = "Jane"
	a.Summary = "short summary"
	a.Content = "<p>body</p>"
	a.CoverImage = "https://img.example.com/a.png"
	if _, err := s.InsertArticles(ctx, []*model.Article{a}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.FindArticleByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if diff := cmp.Diff(a, got, cmpopts.IgnoreFields(model.Article{}, "CreatedAt")); diff != "" {
		t.Errorf("article mismatch (-want +got):\n%s", diff)
	}

	if _, err := s.FindArticleByID(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestArticlesWithoutCover(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	covered := testArticle(1, "https://example.com/covered")
	covered.CoverImage = "https://img.example.com/x.png"
	placeholder := testArticle(1, "https://example.com/placeholder")
	placeholder.CoverImage = "https://via.placeholder.com/300x200?text=No+Image"
	bare := testArticle(2, "https://example.com/bare")

	if _, err := s.InsertArticles(ctx, []*model.Article{covered, placeholder, bare}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := s.FindArticlesWithoutCover(ctx, 0)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if diff := cmp.Diff(2, len(got)); diff != "" {
		t.Errorf("count mismatch (-want +got):\n%s", diff)
	}

	scoped, err := s.FindArticlesWithoutCover(ctx, 2)
	if err != nil {
		t.Fatalf("find scoped: %v", err)
	}
	if len(scoped) != 1 || scoped[0].Link != bare.Link {
		t.Errorf("expected only source-2 article, got %+v", scoped)
	}

	if err := s.UpdateArticleCover(ctx, bare.ID, "https://img.example.com/new.png"); err != nil {
		t.Fatalf("update cover: %v", err)
	}
	after, err := s.FindArticleByID(ctx, bare.ID)
	if err != nil {
		t.Fatalf("find after update: %v", err)
	}
	if diff := cmp.Diff("https://img.example.com/new.png", after.CoverImage); diff != "" {
		t.Errorf("cover mismatch (-want +got):\n%s", diff)
	}
}

func TestFetchTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	task := &model.FetchTask{
		SourceID:  1,
		Status:    model.TaskRunning,
		StartedAt: time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC),
	}
	if err := s.InsertFetchTask(ctx, task); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if task.ID == 0 {
		t.Fatal("expected populated task ID")
	}

	running, err := s.ListFetchTasks(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(running) != 1 || running[0].Status != model.TaskRunning {
		t.Fatalf("expected running task visible, got %+v", running)
	}
	if running[0].EndedAt != nil {
		t.Error("running task must have nil end time")
	}

	ended := task.StartedAt.Add(2 * time.Minute)
	task.Status = model.TaskCompleted
	task.ArticlesAdded = 4
	task.EndedAt = &ended
	if err := s.UpdateFetchTask(ctx, task); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := s.ListFetchTasks(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list after update: %v", err)
	}
	if diff := cmp.Diff([]model.FetchTask{*task}, got); diff != "" {
		t.Errorf("task mismatch (-want +got):\n%s", diff)
	}
}

func TestFavorites(t *testing.T) {
	ctx := context.Background()
	s := newTestDB(t)

	for i, title := range []string{"first", "second", "third"} {
		fav := &model.Favorite{UserID: 42, ArticleID: int64(i + 1), ArticleTitle: title}
		if err := s.CreateFavorite(ctx, fav); err != nil {
			t.Fatalf("create favorite: %v", err)
		}
	}
	// Another user's favorite must not leak in.
	if err := s.CreateFavorite(ctx, &model.Favorite{UserID: 7, ArticleID: 99, ArticleTitle: "other"}); err != nil {
		t.Fatalf("create favorite: %v", err)
	}

	got, err := s.FindRecentFavorites(ctx, 42, 2)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	var titles []string
	for _, f := range got {
		titles = append(titles, f.ArticleTitle)
	}
	if diff := cmp.Diff([]string{"third", "second"}, titles); diff != "" {
		t.Errorf("most recent first (-want +got):\n%s", diff)
	}
}
