package searchdb

import (
	"context"

	"github.com/blevesearch/bleve/v2"
	"github.com/meghashyamc/searchsync/models"
)

type DB interface {
	EnsureIndex(name string) (IndexOutcome, error)
	DropIndex(name string) (bool, error)
	RebuildIndex(name string) error
	Upsert(ctx context.Context, doc *models.SearchDocument) error
	UpsertBatch(ctx context.Context, docs []*models.SearchDocument) error
	DeleteAll(ctx context.Context) (int, error)
	Search(ctx context.Context, request *bleve.SearchRequest) (*Result, error)
	Count(ctx context.Context) (uint64, error)
	CheckConnection(ctx context.Context) bool
	Close() error
}
