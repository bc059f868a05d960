// Package model defines the domain types used across the application.
package model

import "time"

// SourceStatus describes the health of a feed source.
type SourceStatus string

// Source health states.
const (
	SourceActive SourceStatus = "active"
	SourceError  SourceStatus = "error"
)

// Source represents a configured feed endpoint polled on a schedule.
// Invariant: Status == SourceError implies a non-empty ErrorMessage;
// Status == SourceActive implies ErrorMessage is cleared.
type Source struct {
	ID               int64
	Name             string
	URL              string
	Description      string
	FrequencyMinutes int
	LastFetchAt      *time.Time
	Status           SourceStatus
	ErrorMessage     string
	ArticleCount     int
	CreatedAt        time.Time
}

// Article is the normalized, persisted representation of a feed entry.
// Link is the deduplication identity: storage enforces its uniqueness.
type Article struct {
	ID          int64
	SourceID    int64
	Title       string
	Link        string
	Author      string
	Summary     string
	Content     string
	CoverImage  string
	PublishedAt time.Time
	IsRead      bool
	IsStarred   bool
	ReadCount   int
	CreatedAt   time.Time
}

// TaskStatus describes the lifecycle state of a fetch attempt.
type TaskStatus string

// Fetch task lifecycle states. A task starts as TaskRunning and is
// written to a terminal state exactly once.
const (
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// FetchTask is an audit record of one fetch attempt, scheduled or
// on-demand.
type FetchTask struct {
	ID            int64
	SourceID      int64
	Status        TaskStatus
	StartedAt     time.Time
	EndedAt       *time.Time
	ArticlesAdded int
	ErrorMessage  string
}

// Favorite links a user to a bookmarked article. The article title is
// cached so recommendation profiles can be built without joins.
type Favorite struct {
	ID           int64
	UserID       int64
	ArticleID    int64
	ArticleTitle string
	CreatedAt    time.Time
}
