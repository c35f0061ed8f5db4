// SPDX-License-Identifier: MIT

package metacache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/reelfeed/reelfeed/internal/feed/model"
	"github.com/reelfeed/reelfeed/internal/log"
)

const badgerKeyPrefix = "meta:"

// BadgerCache is the on-disk metadata cache. It survives restarts, so a
// daemon coming back up resolves known items without hitting the catalog.
type BadgerCache struct {
	db *badger.DB
}

// OpenBadgerCache opens (or creates) the cache at path.
func OpenBadgerCache(path string) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerCache{db: db}, nil
}

func (c *BadgerCache) Get(_ context.Context, id string) (*model.DisplayMetadata, bool) {
	key := []byte(badgerKeyPrefix + id)
	var out model.DisplayMetadata
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			logger := log.WithComponent("metacache")
			logger.Warn().Err(err).Str(log.FieldIdentifier, id).Msg("badger read failed")
		}
		return nil, false
	}
	return &out, true
}

func (c *BadgerCache) Set(_ context.Context, id string, meta *model.DisplayMetadata, ttl time.Duration) {
	if meta == nil || ttl <= 0 {
		return
	}
	key := []byte(badgerKeyPrefix + id)
	buf, err := json.Marshal(meta)
	if err != nil {
		return
	}
	err = c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, buf).WithTTL(ttl)
		return txn.SetEntry(e)
	})
	if err != nil {
		logger := log.WithComponent("metacache")
		logger.Warn().Err(err).Str(log.FieldIdentifier, id).Msg("badger write failed")
	}
}

func (c *BadgerCache) Close() error { return c.db.Close() }

var _ Cache = (*BadgerCache)(nil)
