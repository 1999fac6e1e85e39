package kvdb

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/meghashyamc/searchsync/config"
	"github.com/meghashyamc/searchsync/logger"
	bolt "go.etcd.io/bbolt"
)

type BoltDB struct {
	store  *bolt.DB
	logger logger.Logger
	now    func() time.Time
}

func New(logger logger.Logger, cfg *config.Config) (*BoltDB, error) {
	return Open(logger, cfg.GetKVDBPath())
}

func Open(logger logger.Logger, kvDBPath string) (*BoltDB, error) {
	if err := os.MkdirAll(filepath.Dir(kvDBPath), 0755); err != nil {
		logger.Error("failed to create key-value database directory", "err", err.Error(), "path", kvDBPath)
		return nil, fmt.Errorf("failed to create key-value database directory: %w", err)
	}

	store, err := bolt.Open(kvDBPath, 0600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		logger.Error("failed to open database", "err", err.Error(), "path", kvDBPath)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	boltDB := &BoltDB{
		store:  store,
		logger: logger,
		now:    time.Now,
	}

	if err := boltDB.initBuckets(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return boltDB, nil
}

func (b *BoltDB) initBuckets() error {
	return b.store.Update(func(tx *bolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				b.logger.Error("failed to create bucket", "bucket", bucket, "err", err.Error())
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
}

func (b *BoltDB) Set(bucket string, key string, value string) error {
	return b.put(bucket, key, entry{Value: value})
}

func (b *BoltDB) SetWithTTL(bucket string, key string, value string, ttl time.Duration) error {
	expiresAt := b.now().UTC().Add(ttl)
	return b.put(bucket, key, entry{Value: value, ExpiresAt: &expiresAt})
}

func (b *BoltDB) put(bucket string, key string, e entry) error {
	if err := b.validateKey(key); err != nil {
		return err
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode value for key %s: %w", key, err)
	}

	return b.store.Update(func(tx *bolt.Tx) error {
		bkt, err := b.bucket(tx, bucket)
		if err != nil {
			return err
		}

		if err := bkt.Put([]byte(key), data); err != nil {
			b.logger.Error("failed to set key", "bucket", bucket, "key", key, "err", err.Error())
			return fmt.Errorf("failed to set key %s: %w", key, err)
		}

		return nil
	})
}

func (b *BoltDB) Get(bucket string, key string) (string, error) {
	if err := b.validateKey(key); err != nil {
		return "", err
	}

	var value string
	err := b.store.View(func(tx *bolt.Tx) error {
		bkt, err := b.bucket(tx, bucket)
		if err != nil {
			return err
		}

		e, found, err := b.decode(bkt.Get([]byte(key)))
		if err != nil {
			return err
		}
		if !found {
			return &NotFoundError{Bucket: bucket, Key: key}
		}

		value = e.Value
		return nil
	})
	if err != nil {
		return "", err
	}

	return value, nil
}

// Update runs fn inside a single write transaction so concurrent read-modify-write cycles on a key never interleave.
func (b *BoltDB) Update(bucket string, key string, fn UpdateFunc) (string, error) {
	if err := b.validateKey(key); err != nil {
		return "", err
	}

	var updated string
	err := b.store.Update(func(tx *bolt.Tx) error {
		bkt, err := b.bucket(tx, bucket)
		if err != nil {
			return err
		}

		current, found, err := b.decode(bkt.Get([]byte(key)))
		if err != nil {
			return err
		}

		updated, err = fn(current.Value, found)
		if err != nil {
			return err
		}

		data, err := json.Marshal(entry{Value: updated})
		if err != nil {
			return fmt.Errorf("failed to encode value for key %s: %w", key, err)
		}

		return bkt.Put([]byte(key), data)
	})
	if err != nil {
		b.logger.Error("failed to update key", "bucket", bucket, "key", key, "err", err.Error())
		return "", err
	}

	return updated, nil
}

// ForEach visits every unexpired key in the bucket.
func (b *BoltDB) ForEach(bucket string, fn func(key string, value string) error) error {
	return b.store.View(func(tx *bolt.Tx) error {
		bkt, err := b.bucket(tx, bucket)
		if err != nil {
			return err
		}

		return bkt.ForEach(func(k, v []byte) error {
			e, found, err := b.decode(v)
			if err != nil {
				return err
			}
			if !found {
				return nil
			}
			return fn(string(k), e.Value)
		})
	})
}

func (b *BoltDB) Delete(bucket string, key string) error {
	if err := b.validateKey(key); err != nil {
		return err
	}

	return b.store.Update(func(tx *bolt.Tx) error {
		bkt, err := b.bucket(tx, bucket)
		if err != nil {
			return err
		}

		if err := bkt.Delete([]byte(key)); err != nil {
			b.logger.Error("failed to delete key", "bucket", bucket, "key", key, "err", err.Error())
			return fmt.Errorf("failed to delete key %s: %w", key, err)
		}

		return nil
	})
}

func (b *BoltDB) Close() error {
	if b.store != nil {
		return b.store.Close()
	}
	return nil
}

func (b *BoltDB) validateKey(key string) error {
	if key == "" {
		b.logger.Error("key cannot be empty", "key", key)
		return &InvalidKeyError{
			Key:    key,
			Reason: "key cannot be empty",
		}
	}
	return nil
}

func (b *BoltDB) bucket(tx *bolt.Tx, name string) (*bolt.Bucket, error) {
	bkt := tx.Bucket([]byte(name))
	if bkt == nil {
		b.logger.Error("bucket not found", "bucket", name)
		return nil, fmt.Errorf("%w: %s", ErrBucketMissing, name)
	}
	return bkt, nil
}

func (b *BoltDB) decode(raw []byte) (entry, bool, error) {
	if raw == nil {
		return entry{}, false, nil
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return entry{}, false, fmt.Errorf("failed to decode stored value: %w", err)
	}
	if e.expired(b.now().UTC()) {
		return entry{}, false, nil
	}

	return e, true, nil
}
