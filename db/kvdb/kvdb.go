package kvdb

import "time"

const (
	SyncBucket       = "sync"
	SyncRunsBucket   = "sync_runs"
	PopularityBucket = "popularity"
)

var buckets = []string{SyncBucket, SyncRunsBucket, PopularityBucket}

type DB interface {
	Set(bucket string, key string, value string) error
	SetWithTTL(bucket string, key string, value string, ttl time.Duration) error
	Get(bucket string, key string) (string, error)
	Delete(bucket string, key string) error
	Update(bucket string, key string, fn UpdateFunc) (string, error)
	ForEach(bucket string, fn func(key string, value string) error) error
	Close() error
}

// UpdateFunc receives the current value (found is false when the key is absent or expired) and returns the value to store.
type UpdateFunc func(current string, found bool) (string, error)
