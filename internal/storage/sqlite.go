package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"rsshub/internal/model"
	"rsshub/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// CreateSource inserts a new source and populates its ID and CreatedAt.
func (s *SQLite) CreateSource(ctx context.Context, src *model.Source) error {
	now := time.Now().UTC().Format(timeLayout)
	if src.Status == "" {
		src.Status = model.SourceActive
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (name, url, description, frequency_minutes, status, error_message, article_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		src.Name, src.URL, src.Description, src.FrequencyMinutes, string(src.Status),
		src.ErrorMessage, src.ArticleCount, now,
	)
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	src.ID = id
	src.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// GetSource returns a single source by its ID.
func (s *SQLite) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx, selectSource+` WHERE id = ?`, id)
	return scanSource(row)
}

// GetSourceByURL returns a single source by its feed URL.
func (s *SQLite) GetSourceByURL(ctx context.Context, url string) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx, selectSource+` WHERE url = ?`, url)
	return scanSource(row)
}

// ListSources returns all configured sources.
func (s *SQLite) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, selectSource+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// ListActiveSources returns all sources with status 'active'.
func (s *SQLite) ListActiveSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, selectSource+` WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query active sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// UpdateSource persists changes to an existing source.
func (s *SQLite) UpdateSource(ctx context.Context, src *model.Source) error {
	var lastFetch *string
	if src.LastFetchAt != nil {
		v := src.LastFetchAt.UTC().Format(timeLayout)
		lastFetch = &v
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sources SET name = ?, url = ?, description = ?, frequency_minutes = ?,
		        last_fetch_at = ?, status = ?, error_message = ?, article_count = ?
		 WHERE id = ?`,
		src.Name, src.URL, src.Description, src.FrequencyMinutes,
		lastFetch, string(src.Status), src.ErrorMessage, src.ArticleCount, src.ID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return nil
}

// DeleteSource removes a source and its articles and fetch tasks.
func (s *SQLite) DeleteSource(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM articles WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete articles: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fetch_tasks WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete fetch_tasks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return tx.Commit()
}

// FindExistingLinks reports which of the given links already exist.
func (s *SQLite) FindExistingLinks(ctx context.Context, links []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(links))
	if len(links) == 0 {
		return existing, nil
	}

	// SQLite caps bound parameters, so probe in chunks.
	const chunk = 500
	for start := 0; start < len(links); start += chunk {
		end := min(start+chunk, len(links))
		part := links[start:end]

		query := `SELECT link FROM articles WHERE link IN (?` +
			strings.Repeat(",?", len(part)-1) + `)`
		args := make([]any, len(part))
		for i, l := range part {
			args[i] = l
		}

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query existing links: %w", err)
		}
		for rows.Next() {
			var link string
			if err := rows.Scan(&link); err != nil {
				_ = rows.Close()
				return nil, fmt.Errorf("scan link: %w", err)
			}
			existing[link] = true
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("iterate links: %w", err)
		}
		_ = rows.Close()
	}
	return existing, nil
}

// InsertArticles writes a batch in one transaction. Links that already
// exist are skipped via the unique index, so concurrent ingestions of
// the same source cannot produce duplicates. Returns the number of
// rows actually written.
func (s *SQLite) InsertArticles(ctx context.Context, articles []*model.Article) (int, error) {
	if len(articles) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC().Format(timeLayout)
	inserted := 0
	for _, a := range articles {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO articles
			 (source_id, title, link, author, summary, content, cover_image, published_at,
			  is_read, is_starred, read_count, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.SourceID, a.Title, a.Link, a.Author, a.Summary, a.Content, a.CoverImage,
			a.PublishedAt.UTC().Format(timeLayout),
			boolToInt(a.IsRead), boolToInt(a.IsStarred), a.ReadCount, now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert article: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		if n > 0 {
			inserted++
			if id, err := res.LastInsertId(); err == nil {
				a.ID = id
			}
			a.CreatedAt, _ = time.Parse(timeLayout, now)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// FindArticleByID returns a single article by its ID.
func (s *SQLite) FindArticleByID(ctx context.Context, id int64) (*model.Article, error) {
	row := s.db.QueryRowContext(ctx, selectArticle+` WHERE id = ?`, id)
	return scanArticle(row)
}

// FindRecentArticles returns the most recently published articles.
func (s *SQLite) FindRecentArticles(ctx context.Context, limit int) ([]model.Article, error) {
	rows, err := s.db.QueryContext(ctx,
		selectArticle+` ORDER BY published_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent articles: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanArticles(rows)
}

// FindArticlesWithoutCover returns articles whose cover image is empty
// or the placeholder, optionally restricted to one source (0 = all).
func (s *SQLite) FindArticlesWithoutCover(ctx context.Context, sourceID int64) ([]model.Article, error) {
	query := selectArticle + ` WHERE (cover_image = '' OR cover_image LIKE '%placeholder%')`
	args := []any{}
	if sourceID > 0 {
		query += ` AND source_id = ?`
		args = append(args, sourceID)
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles without cover: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanArticles(rows)
}

// UpdateArticleCover sets the cover image URL of one article.
func (s *SQLite) UpdateArticleCover(ctx context.Context, id int64, coverImage string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE articles SET cover_image = ? WHERE id = ?`, coverImage, id)
	if err != nil {
		return fmt.Errorf("update article cover: %w", err)
	}
	return nil
}

// InsertFetchTask records a new fetch attempt and populates its ID.
func (s *SQLite) InsertFetchTask(ctx context.Context, task *model.FetchTask) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO fetch_tasks (source_id, status, started_at, ended_at, articles_added, error_message)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		task.SourceID, string(task.Status), task.StartedAt.UTC().Format(timeLayout),
		formatNullableTime(task.EndedAt), task.ArticlesAdded, task.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert fetch task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	task.ID = id
	return nil
}

// UpdateFetchTask persists a task's terminal state.
func (s *SQLite) UpdateFetchTask(ctx context.Context, task *model.FetchTask) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE fetch_tasks SET status = ?, ended_at = ?, articles_added = ?, error_message = ?
		 WHERE id = ?`,
		string(task.Status), formatNullableTime(task.EndedAt),
		task.ArticlesAdded, task.ErrorMessage, task.ID,
	)
	if err != nil {
		return fmt.Errorf("update fetch task: %w", err)
	}
	return nil
}

// ListFetchTasks returns the most recent tasks, optionally restricted
// to one source (0 = all).
func (s *SQLite) ListFetchTasks(ctx context.Context, sourceID int64, limit int) ([]model.FetchTask, error) {
	query := `SELECT id, source_id, status, started_at, ended_at, articles_added, error_message
	          FROM fetch_tasks`
	args := []any{}
	if sourceID > 0 {
		query += ` WHERE source_id = ?`
		args = append(args, sourceID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query fetch tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []model.FetchTask
	for rows.Next() {
		var t model.FetchTask
		var status, started string
		var ended sql.NullString
		if err := rows.Scan(&t.ID, &t.SourceID, &status, &started, &ended, &t.ArticlesAdded, &t.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan fetch task: %w", err)
		}
		t.Status = model.TaskStatus(status)
		t.StartedAt, _ = time.Parse(timeLayout, started)
		if ended.Valid {
			v, _ := time.Parse(timeLayout, ended.String)
			t.EndedAt = &v
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CreateFavorite records a bookmarked article for a user.
func (s *SQLite) CreateFavorite(ctx context.Context, fav *model.Favorite) error {
	now := time.Now().UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO favorites (user_id, article_id, article_title, created_at)
		 VALUES (?, ?, ?, ?)`,
		fav.UserID, fav.ArticleID, fav.ArticleTitle, now,
	)
	if err != nil {
		return fmt.Errorf("insert favorite: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		fav.ID = id
	}
	fav.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// FindRecentFavorites returns the user's most recent favorites.
func (s *SQLite) FindRecentFavorites(ctx context.Context, userID int64, limit int) ([]model.Favorite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, article_id, article_title, created_at
		 FROM favorites WHERE user_id = ? ORDER BY id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query favorites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var favs []model.Favorite
	for rows.Next() {
		var f model.Favorite
		var created string
		if err := rows.Scan(&f.ID, &f.UserID, &f.ArticleID, &f.ArticleTitle, &created); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		f.CreatedAt, _ = time.Parse(timeLayout, created)
		favs = append(favs, f)
	}
	return favs, rows.Err()
}

const selectSource = `SELECT id, name, url, description, frequency_minutes, last_fetch_at,
       status, error_message, article_count, created_at FROM sources`

const selectArticle = `SELECT id, source_id, title, link, author, summary, content, cover_image,
       published_at, is_read, is_starred, read_count, created_at FROM articles`

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatNullableTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.UTC().Format(timeLayout)
	return &v
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var status string
	var lastFetch, created sql.NullString
	err := row.Scan(&src.ID, &src.Name, &src.URL, &src.Description, &src.FrequencyMinutes,
		&lastFetch, &status, &src.ErrorMessage, &src.ArticleCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.Status = model.SourceStatus(status)
	if lastFetch.Valid {
		t, _ := time.Parse(timeLayout, lastFetch.String)
		src.LastFetchAt = &t
	}
	if created.Valid {
		src.CreatedAt, _ = time.Parse(timeLayout, created.String)
	}
	return &src, nil
}

func scanSources(rows *sql.Rows) ([]model.Source, error) {
	var sources []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *src)
	}
	return sources, rows.Err()
}

func scanArticle(row scannable) (*model.Article, error) {
	var a model.Article
	var isRead, isStarred int
	var published, created string
	err := row.Scan(&a.ID, &a.SourceID, &a.Title, &a.Link, &a.Author, &a.Summary, &a.Content,
		&a.CoverImage, &published, &isRead, &isStarred, &a.ReadCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan article: %w", err)
	}
	a.IsRead = isRead == 1
	a.IsStarred = isStarred == 1
	a.PublishedAt, _ = time.Parse(timeLayout, published)
	a.CreatedAt, _ = time.Parse(timeLayout, created)
	return &a, nil
}

func scanArticles(rows *sql.Rows) ([]model.Article, error) {
	var articles []model.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, *a)
	}
	return articles, rows.Err()
}
