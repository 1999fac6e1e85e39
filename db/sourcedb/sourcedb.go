package sourcedb

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/meghashyamc/searchsync/models"
)

// Pool is the subset of pgxpool.Pool the store needs.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

type DB interface {
	CountRecords(ctx context.Context, filter Filter) (int, error)
	IterateAll(batchSize int, publishedOnly bool) RecordIterator
	IterateModifiedSince(since time.Time, batchSize int, publishedOnly bool) RecordIterator
	CheckConnection(ctx context.Context) bool
	DistinctCategories(ctx context.Context) []string
	DistinctTags(ctx context.Context) []string
	Close()
}

// RecordIterator yields batches until an empty batch signals exhaustion.
type RecordIterator interface {
	Next(ctx context.Context) ([]models.SourceRecord, error)
}

// Filter is a conjunction of optional predicates. Tags match when a record has any of them.
type Filter struct {
	MainCategory  string
	SubCategory   string
	Tags          []string
	UpdatedFrom   *time.Time
	UpdatedTo     *time.Time
	PublishedOnly bool
}
