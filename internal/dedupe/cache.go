package dedupe

import (
	"encoding/binary"
	"path"
	"sync"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var seenBucket = []byte("seen")

// Cache is a persistent seen-key store used to suppress duplicate webhook
// deliveries. Keys survive process restarts so a redelivery after a crash is
// still caught. Entries expire after the TTL.
type Cache struct {
	db  *bolt.DB
	ttl time.Duration

	closeOnce sync.Once
	done      chan struct{}
}

// Open creates or opens the cache database under workdir. A background
// goroutine prunes expired keys once a minute.
func Open(workdir string, ttl time.Duration) (*Cache, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	db, err := bolt.Open(path.Join(workdir, "dedupe.db"), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open dedupe store")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(seenBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init dedupe bucket")
	}
	c := &Cache{db: db, ttl: ttl, done: make(chan struct{})}
	go c.pruneLoop()
	return c, nil
}

// CheckAndMark reports whether key was already seen within the TTL and marks
// it in the same transaction, so concurrent callers cannot both pass. An
// empty key is never a duplicate.
func (c *Cache) CheckAndMark(key string) bool {
	if key == "" {
		return false
	}
	seen := false
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(seenBucket)
		if v := b.Get([]byte(key)); v != nil {
			at := time.Unix(int64(binary.BigEndian.Uint64(v)), 0)
			if time.Since(at) < c.ttl {
				seen = true
				return nil
			}
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(time.Now().Unix()))
		return b.Put([]byte(key), buf[:])
	})
	if err != nil {
		// fail open, a duplicate row is preferable to a lost message
		zap.L().Warn("dedupe: store error", zap.Error(err))
		return false
	}
	return seen
}

func (c *Cache) pruneLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.prune()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) prune() {
	cutoff := time.Now().Add(-c.ttl).Unix()
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(seenBucket)
		cur := b.Cursor()
		for k, v := cur.First(); k != nil; k, v = cur.Next() {
			if int64(binary.BigEndian.Uint64(v)) < cutoff {
				if err := cur.Delete(); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		zap.L().Warn("dedupe: prune failed", zap.Error(err))
	}
}

// Close stops the prune loop and closes the database. Safe to call twice.
func (c *Cache) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.db.Close()
	})
	return err
}
