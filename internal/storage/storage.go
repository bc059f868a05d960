// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"rsshub/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Storage is the interface for all persistence operations.
type Storage interface {
	CreateSource(ctx context.Context, src *model.Source) error
	GetSource(ctx context.Context, id int64) (*model.Source, error)
	GetSourceByURL(ctx context.Context, url string) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	ListActiveSources(ctx context.Context) ([]model.Source, error)
	UpdateSource(ctx context.Context, src *model.Source) error
	DeleteSource(ctx context.Context, id int64) error

	// FindExistingLinks reports which of the given links are already stored.
	FindExistingLinks(ctx context.Context, links []string) (map[string]bool, error)
	// InsertArticles writes a batch, silently skipping links that already
	// exist, and returns how many rows were actually written. IDs of
	// inserted articles are populated.
	InsertArticles(ctx context.Context, articles []*model.Article) (int, error)
	FindArticleByID(ctx context.Context, id int64) (*model.Article, error)
	FindRecentArticles(ctx context.Context, limit int) ([]model.Article, error)
	FindArticlesWithoutCover(ctx context.Context, sourceID int64) ([]model.Article, error)
	UpdateArticleCover(ctx context.Context, id int64, coverImage string) error

	InsertFetchTask(ctx context.Context, task *model.FetchTask) error
	UpdateFetchTask(ctx context.Context, task *model.FetchTask) error
	ListFetchTasks(ctx context.Context, sourceID int64, limit int) ([]model.FetchTask, error)

	CreateFavorite(ctx context.Context, fav *model.Favorite) error
	FindRecentFavorites(ctx context.Context, userID int64, limit int) ([]model.Favorite, error)

	Close() error
}
