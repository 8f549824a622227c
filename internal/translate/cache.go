package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

const DefaultTTL = 7 * 24 * time.Hour

// Cache stores translations keyed by backend and language pair.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// Entry is the cached payload.
type Entry struct {
	Text     string    `json:"text"`
	Backend  string    `json:"backend"`
	StoredAt time.Time `json:"stored_at"`
}

// OpenCache opens a badger store at dir, or an in-memory store when dir is empty.
func OpenCache(dir string, ttl time.Duration) (*Cache, error) {
	opts := badger.DefaultOptions(strings.TrimSpace(dir)).WithLogger(nil)
	if strings.TrimSpace(dir) == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open translation cache: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// GenerateKey hashes the parts that make a translation unique.
func GenerateKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "tr:" + hex.EncodeToString(h.Sum(nil))
}

func (c *Cache) Get(key string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	var entry Entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return Entry{}, false
	}
	return entry, true
}

func (c *Cache) Set(key string, entry Entry) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry([]byte(key), raw).WithTTL(c.ttl))
	})
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	err := c.db.Close()
	if errors.Is(err, badger.ErrDBClosed) {
		return nil
	}
	return err
}
