package searchdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/meghashyamc/searchsync/apperrors"
	"github.com/meghashyamc/searchsync/config"
	"github.com/meghashyamc/searchsync/logger"
	"github.com/meghashyamc/searchsync/models"
)

const IndexingBatchSize = 100

// BleveDB manages named bleve indexes under one storage directory. Document operations target the active index.
type BleveDB struct {
	storagePath string
	activeIndex string
	logger      logger.Logger

	// mu is held for writing while an index is dropped or rebuilt, so no document operation sees a half-built index.
	mu      sync.RWMutex
	indexes map[string]bleve.Index
	closed  bool
}

func New(logger logger.Logger, cfg *config.Config) (*BleveDB, error) {
	return Open(logger, cfg.GetStoragePath(), cfg.GetIndexName())
}

func Open(logger logger.Logger, storagePath string, indexName string) (*BleveDB, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		logger.Error("failed to create index storage directory", "err", err.Error(), "path", storagePath)
		return nil, fmt.Errorf("failed to create index storage directory: %w", err)
	}

	b := &BleveDB{
		storagePath: storagePath,
		activeIndex: indexName,
		logger:      logger,
		indexes:     make(map[string]bleve.Index),
	}

	outcome, err := b.EnsureIndex(indexName)
	if err != nil {
		return nil, err
	}
	logger.Info("search index ready", "index", indexName, "outcome", outcome.String())

	return b, nil
}

func (b *BleveDB) EnsureIndex(name string) (IndexOutcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.ensureIndexLocked(name)
}

func (b *BleveDB) ensureIndexLocked(name string) (IndexOutcome, error) {
	if _, ok := b.indexes[name]; ok {
		return IndexExisted, nil
	}

	indexPath := b.indexPath(name)
	index, err := bleve.Open(indexPath)
	if err == nil {
		b.indexes[name] = index
		return IndexExisted, nil
	}
	if !errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		b.logger.Error("could not open index", "index", name, "err", err.Error())
		return IndexExisted, apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.EnsureIndex", err)
	}

	indexMapping, err := createIndexMapping()
	if err != nil {
		b.logger.Error("could not build index mapping", "index", name, "err", err.Error())
		return IndexExisted, fmt.Errorf("could not build index mapping: %w", err)
	}

	index, err = bleve.New(indexPath, indexMapping)
	if err != nil {
		b.logger.Error("could not create index", "index", name, "err", err.Error())
		return IndexExisted, apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.EnsureIndex", err)
	}
	b.indexes[name] = index

	return IndexCreated, nil
}

// DropIndex reports whether an index was removed.
func (b *BleveDB) DropIndex(name string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dropIndexLocked(name)
}

func (b *BleveDB) dropIndexLocked(name string) (bool, error) {
	if index, ok := b.indexes[name]; ok {
		if err := index.Close(); err != nil {
			b.logger.Warn("could not close index before dropping it", "index", name, "err", err.Error())
		}
		delete(b.indexes, name)
	}

	indexPath := b.indexPath(name)
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		return false, nil
	}
	if err := os.RemoveAll(indexPath); err != nil {
		b.logger.Error("could not remove index", "index", name, "err", err.Error())
		return false, apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.DropIndex", err)
	}

	return true, nil
}

func (b *BleveDB) RebuildIndex(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.dropIndexLocked(name); err != nil {
		return err
	}
	if _, err := b.ensureIndexLocked(name); err != nil {
		return err
	}
	b.logger.Info("rebuilt search index", "index", name)

	return nil
}

func (b *BleveDB) Upsert(ctx context.Context, doc *models.SearchDocument) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	index, err := b.active("searchdb.Upsert")
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.Upsert", err)
	}

	if err := index.Index(doc.ID, doc); err != nil {
		b.logger.Error("could not index document", "id", doc.ID, "err", err.Error())
		return apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.Upsert", err)
	}

	return nil
}

func (b *BleveDB) UpsertBatch(ctx context.Context, docs []*models.SearchDocument) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	index, err := b.active("searchdb.UpsertBatch")
	if err != nil {
		return err
	}

	batch := index.NewBatch()
	for i, doc := range docs {
		if err := batch.Index(doc.ID, doc); err != nil {
			b.logger.Error("could not index document", "id", doc.ID, "err", err.Error())
			return apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.UpsertBatch", err)
		}

		if (i+1)%IndexingBatchSize == 0 {
			if err := b.executeBatch(ctx, index, batch); err != nil {
				return err
			}
			batch = index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		return b.executeBatch(ctx, index, batch)
	}

	return nil
}

func (b *BleveDB) executeBatch(ctx context.Context, index bleve.Index, batch *bleve.Batch) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.Batch", err)
	}
	if err := index.Batch(batch); err != nil {
		b.logger.Error("could not execute batch", "err", err.Error())
		return apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.Batch", err)
	}
	return nil
}

// DeleteAll removes every document from the active index and returns how many were removed.
func (b *BleveDB) DeleteAll(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	index, err := b.active("searchdb.DeleteAll")
	if err != nil {
		return 0, err
	}

	deleted := 0
	for {
		request := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), IndexingBatchSize, 0, false)
		result, err := index.SearchInContext(ctx, request)
		if err != nil {
			b.logger.Error("could not list documents for deletion", "err", err.Error())
			return deleted, apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.DeleteAll", err)
		}
		if len(result.Hits) == 0 {
			return deleted, nil
		}

		batch := index.NewBatch()
		for _, hit := range result.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.executeBatch(ctx, index, batch); err != nil {
			return deleted, err
		}
		deleted += len(result.Hits)
	}
}

func (b *BleveDB) Search(ctx context.Context, request *bleve.SearchRequest) (*Result, error) {
	if err := request.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrQuery, "searchdb.Search", err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	index, err := b.active("searchdb.Search")
	if err != nil {
		return nil, err
	}

	searchResult, err := index.SearchInContext(ctx, request)
	if err != nil {
		b.logger.Error("search failed", "err", err.Error())
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.Search", fmt.Errorf("search timed out: %w", err))
		}
		return nil, apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.Search", err)
	}

	result := &Result{
		Total:    searchResult.Total,
		MaxScore: searchResult.MaxScore,
		Took:     searchResult.Took,
		Hits:     make([]Hit, len(searchResult.Hits)),
		Facets:   make(map[string][]FacetTerm, len(searchResult.Facets)),
		Partial:  searchResult.Status != nil && searchResult.Status.Failed > 0,
	}

	for i, hit := range searchResult.Hits {
		result.Hits[i] = Hit{
			ID:        hit.ID,
			Score:     hit.Score,
			Fields:    hit.Fields,
			Fragments: hit.Fragments,
		}
	}

	for name, facet := range searchResult.Facets {
		terms := []FacetTerm{}
		if facet.Terms != nil {
			for _, term := range facet.Terms.Terms() {
				terms = append(terms, FacetTerm{Term: term.Term, Count: term.Count})
			}
		}
		result.Facets[name] = terms
	}

	return result, nil
}

func (b *BleveDB) Count(ctx context.Context) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	index, err := b.active("searchdb.Count")
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.Count", err)
	}

	count, err := index.DocCount()
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrEngineUnavailable, "searchdb.Count", err)
	}

	return count, nil
}

func (b *BleveDB) CheckConnection(ctx context.Context) bool {
	if _, err := b.Count(ctx); err != nil {
		b.logger.Warn("search index connection check failed", "err", err.Error())
		return false
	}
	return true
}

func (b *BleveDB) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var closeErr error
	for name, index := range b.indexes {
		if err := index.Close(); err != nil {
			b.logger.Error("could not close search index", "index", name, "err", err.Error())
			closeErr = errors.Join(closeErr, err)
		}
		delete(b.indexes, name)
	}
	b.closed = true

	return closeErr
}

func (b *BleveDB) active(op string) (bleve.Index, error) {
	if b.closed {
		return nil, apperrors.New(apperrors.ErrEngineUnavailable, op, "search index store is closed")
	}
	index, ok := b.indexes[b.activeIndex]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrNotFound, op, "index %s is not open", b.activeIndex)
	}
	return index, nil
}

func (b *BleveDB) indexPath(name string) string {
	return filepath.Join(b.storagePath, name)
}
