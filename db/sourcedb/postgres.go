package sourcedb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/meghashyamc/searchsync/apperrors"
	"github.com/meghashyamc/searchsync/config"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/models"
)

const connectionCheckTimeout = 3 * time.Second

// Nullable columns are coalesced so one incomplete row reaches the mapper instead of failing the whole scan.
const (
	createdAtColumn = `COALESCE(created_at, updated_at, 'epoch'::timestamptz)`
	updatedAtColumn = `COALESCE(updated_at, created_at, 'epoch'::timestamptz)`

	selectRecordColumns = `
	SELECT id::text, COALESCE(title, ''), COALESCE(content::text, ''), COALESCE(topic, ''), COALESCE(description, ''),
		COALESCE(main_category, ''), COALESCE(sub_category, ''), COALESCE(tags, '{}'),
		COALESCE(author_email, ''), COALESCE(view_count, 0), COALESCE(like_count, 0), COALESCE(thumbnail_url, ''),
		COALESCE(is_published, false), ` + createdAtColumn + `, ` + updatedAtColumn + `
	FROM posts`
)

type PostgresDB struct {
	pool   Pool
	logger logger.Logger
}

func New(ctx context.Context, logger logger.Logger, cfg *config.Config) (*PostgresDB, error) {
	databaseURL := cfg.GetSourceDatabaseURL()
	if databaseURL == "" {
		return nil, apperrors.New(apperrors.ErrStoreUnavailable, "sourcedb.New", "source database url is not set")
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		logger.Error("failed to parse source database url", "err", err.Error())
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "sourcedb.New", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("failed to create source database pool", "err", err.Error())
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "sourcedb.New", err)
	}

	if err := pool.Ping(ctx); err != nil {
		// The pool reconnects lazily; sync runs re-check the connection before doing work.
		logger.Warn("source database is not reachable yet", "err", err.Error())
	}

	return NewWithPool(logger, pool), nil
}

func NewWithPool(logger logger.Logger, pool Pool) *PostgresDB {
	return &PostgresDB{pool: pool, logger: logger}
}

func (p *PostgresDB) CountRecords(ctx context.Context, filter Filter) (int, error) {
	where, args := filter.clauses(1)
	query := "SELECT COUNT(*) FROM posts" + where

	var count int
	if err := p.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		p.logger.Error("failed to count source records", "err", err.Error())
		return 0, apperrors.Wrap(apperrors.ErrStoreUnavailable, "sourcedb.CountRecords", err)
	}

	return count, nil
}

func (p *PostgresDB) IterateAll(batchSize int, publishedOnly bool) RecordIterator {
	return &keysetIterator{db: p, batchSize: batchSize, publishedOnly: publishedOnly}
}

func (p *PostgresDB) IterateModifiedSince(since time.Time, batchSize int, publishedOnly bool) RecordIterator {
	return &keysetIterator{db: p, batchSize: batchSize, publishedOnly: publishedOnly, since: &since}
}

func (p *PostgresDB) CheckConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, connectionCheckTimeout)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		p.logger.Warn("source database connection check failed", "err", err.Error())
		return false
	}
	return true
}

func (p *PostgresDB) DistinctCategories(ctx context.Context) []string {
	return p.distinct(ctx, `
		SELECT DISTINCT main_category FROM posts
		WHERE main_category IS NOT NULL AND main_category <> ''
		ORDER BY main_category`)
}

func (p *PostgresDB) DistinctTags(ctx context.Context) []string {
	return p.distinct(ctx, `
		SELECT DISTINCT tag FROM posts, unnest(tags) AS tag
		WHERE tag IS NOT NULL AND tag <> ''
		ORDER BY tag`)
}

func (p *PostgresDB) distinct(ctx context.Context, query string) []string {
	values := []string{}

	rows, err := p.pool.Query(ctx, query)
	if err != nil {
		p.logger.Warn("failed to load filter options", "err", err.Error())
		return values
	}
	defer rows.Close()

	for rows.Next() {
		var value string
		if err := rows.Scan(&value); err != nil {
			p.logger.Warn("failed to scan filter option", "err", err.Error())
			return []string{}
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		p.logger.Warn("failed to read filter options", "err", err.Error())
		return []string{}
	}

	return values
}

func (p *PostgresDB) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// keysetIterator pages through posts ordered by (updated_at, id), falling back to created_at when updated_at is NULL.
type keysetIterator struct {
	db            *PostgresDB
	batchSize     int
	publishedOnly bool
	since         *time.Time

	lastUpdatedAt *time.Time
	lastID        string
	done          bool
}

func (it *keysetIterator) Next(ctx context.Context) ([]models.SourceRecord, error) {
	if it.done {
		return []models.SourceRecord{}, nil
	}

	query, args := it.query()
	rows, err := it.db.pool.Query(ctx, query, args...)
	if err != nil {
		it.db.logger.Error("failed to query source records", "err", err.Error())
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "sourcedb.Next", err)
	}
	defer rows.Close()

	records := make([]models.SourceRecord, 0, it.batchSize)
	for rows.Next() {
		var record models.SourceRecord
		var content string
		err := rows.Scan(&record.ID, &record.Title, &content, &record.Topic, &record.Description,
			&record.MainCategory, &record.SubCategory, &record.Tags, &record.AuthorEmail,
			&record.ViewCount, &record.LikeCount, &record.ThumbnailURL, &record.IsPublished,
			&record.CreatedAt, &record.UpdatedAt)
		if err != nil {
			it.db.logger.Error("failed to scan source record", "err", err.Error())
			return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "sourcedb.Next", err)
		}
		record.Content = rawContent(content)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "sourcedb.Next", err)
	}

	if len(records) < it.batchSize {
		it.done = true
	}
	if len(records) > 0 {
		last := records[len(records)-1]
		it.lastUpdatedAt = &last.UpdatedAt
		it.lastID = last.ID
	}

	return records, nil
}

func (it *keysetIterator) query() (string, []any) {
	filter := Filter{PublishedOnly: it.publishedOnly, UpdatedFrom: it.since}
	where, args := filter.clauses(1)

	if it.lastUpdatedAt != nil {
		where = appendCondition(where, fmt.Sprintf("(%s, id::text) > ($%d, $%d)", updatedAtColumn, len(args)+1, len(args)+2))
		args = append(args, *it.lastUpdatedAt, it.lastID)
	}

	args = append(args, it.batchSize)
	query := fmt.Sprintf("%s%s ORDER BY %s ASC, id::text ASC LIMIT $%d", selectRecordColumns, where, updatedAtColumn, len(args))

	return query, args
}

func (f Filter) clauses(firstArg int) (string, []any) {
	var conditions []string
	var args []any

	add := func(format string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf(format, firstArg+len(args)-1))
	}

	if f.MainCategory != "" {
		add("main_category = $%d", f.MainCategory)
	}
	if f.SubCategory != "" {
		add("sub_category = $%d", f.SubCategory)
	}
	if len(f.Tags) > 0 {
		add("tags && $%d", f.Tags)
	}
	if f.UpdatedFrom != nil {
		add(updatedAtColumn+" >= $%d", *f.UpdatedFrom)
	}
	if f.UpdatedTo != nil {
		add(updatedAtColumn+" <= $%d", *f.UpdatedTo)
	}
	if f.PublishedOnly {
		conditions = append(conditions, "is_published")
	}

	if len(conditions) == 0 {
		return "", args
	}

	return " WHERE " + strings.Join(conditions, " AND "), args
}

func appendCondition(where string, condition string) string {
	if where == "" {
		return " WHERE " + condition
	}
	return where + " AND " + condition
}

// rawContent keeps JSON content as is and wraps anything else as a JSON string.
func rawContent(content string) json.RawMessage {
	if content == "" {
		return nil
	}
	if json.Valid([]byte(content)) {
		return json.RawMessage(content)
	}

	encoded, err := json.Marshal(content)
	if err != nil {
		return nil
	}
	return encoded
}
