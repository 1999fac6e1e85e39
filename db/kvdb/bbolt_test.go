package kvdb

import (
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/meghashyamc/searchsync/logger"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, assert *require.Assertions) *BoltDB {
	db, err := Open(logger.Discard(), filepath.Join(t.TempDir(), "kv", "meta.db"))
	assert.NoError(err, "could not open kv database")
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSetGetDelete(t *testing.T) {
	assert := require.New(t)
	db := newTestDB(t, assert)

	assert.NoError(db.Set(SyncBucket, "key", "value"))
	value, err := db.Get(SyncBucket, "key")
	assert.NoError(err)
	assert.Equal("value", value)

	_, err = db.Get(SyncRunsBucket, "key")
	assert.True(errors.Is(err, ErrNotFound), "buckets should be independent")

	assert.NoError(db.Delete(SyncBucket, "key"))
	_, err = db.Get(SyncBucket, "key")
	assert.True(errors.Is(err, ErrNotFound))

	assert.NoError(db.Delete(SyncBucket, "never-set"), "deleting an absent key is a no-op")
}

func TestInvalidKeyAndBucket(t *testing.T) {
	assert := require.New(t)
	db := newTestDB(t, assert)

	assert.True(errors.Is(db.Set(SyncBucket, "", "v"), ErrInvalidKey))
	_, err := db.Get(SyncBucket, "")
	assert.True(errors.Is(err, ErrInvalidKey))
	assert.True(errors.Is(db.Set("unknown", "k", "v"), ErrBucketMissing))
}

func TestSetWithTTL(t *testing.T) {
	assert := require.New(t)
	db := newTestDB(t, assert)

	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	db.now = func() time.Time { return now }

	assert.NoError(db.SetWithTTL(SyncBucket, "last", "v", time.Hour))

	value, err := db.Get(SyncBucket, "last")
	assert.NoError(err)
	assert.Equal("v", value)

	now = now.Add(time.Hour)
	_, err = db.Get(SyncBucket, "last")
	assert.True(errors.Is(err, ErrNotFound), "expired entries read as missing")

	count := 0
	assert.NoError(db.ForEach(SyncBucket, func(string, string) error {
		count++
		return nil
	}))
	assert.Zero(count, "expired entries are skipped when iterating")
}

func TestUpdateIsAtomic(t *testing.T) {
	assert := require.New(t)
	db := newTestDB(t, assert)

	increment := func(current string, found bool) (string, error) {
		if !found {
			return "1", nil
		}
		n, err := strconv.Atoi(current)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n + 1), nil
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Update(PopularityBucket, "django", increment)
			assert.NoError(err)
		}()
	}
	wg.Wait()

	value, err := db.Get(PopularityBucket, "django")
	assert.NoError(err)
	assert.Equal("20", value)
}

func TestUpdateErrorLeavesValueUntouched(t *testing.T) {
	assert := require.New(t)
	db := newTestDB(t, assert)

	assert.NoError(db.Set(PopularityBucket, "k", "keep"))
	_, err := db.Update(PopularityBucket, "k", func(string, bool) (string, error) {
		return "", errors.New("boom")
	})
	assert.Error(err)

	value, err := db.Get(PopularityBucket, "k")
	assert.NoError(err)
	assert.Equal("keep", value)
}

func TestForEach(t *testing.T) {
	assert := require.New(t)
	db := newTestDB(t, assert)

	assert.NoError(db.Set(SyncRunsBucket, "a", "1"))
	assert.NoError(db.Set(SyncRunsBucket, "b", "2"))

	seen := map[string]string{}
	assert.NoError(db.ForEach(SyncRunsBucket, func(key string, value string) error {
		seen[key] = value
		return nil
	}))
	assert.Equal(map[string]string{"a": "1", "b": "2"}, seen)
}
