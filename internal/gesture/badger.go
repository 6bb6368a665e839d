package gesture

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var badgerKeyPrefix = []byte("gesture/")

// BadgerPersister stores one key per gesture in a BadgerDB
type BadgerPersister struct {
	db *badger.DB
}

// OpenBadgerPersister opens (or creates) a BadgerDB at path
func OpenBadgerPersister(path string) (*BadgerPersister, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerPersister{db: db}, nil
}

// Close closes the underlying database
func (p *BadgerPersister) Close() error {
	return p.db.Close()
}

func badgerKey(id string) []byte {
	return append(append([]byte{}, badgerKeyPrefix...), id...)
}

// Load reads every gesture key
func (p *BadgerPersister) Load(_ context.Context) (map[string]Record, error) {
	records := map[string]Record{}
	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerKeyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := string(item.Key()[len(badgerKeyPrefix):])
			err := item.Value(func(val []byte) error {
				var r Record
				if err := json.Unmarshal(val, &r); err != nil {
					return fmt.Errorf("decode gesture %s: %w", id, err)
				}
				records[id] = r
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Save replaces the stored collection in a single transaction
func (p *BadgerPersister) Save(_ context.Context, records map[string]Record) error {
	return p.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerKeyPrefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var stale [][]byte
		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if _, keep := records[string(key[len(badgerKeyPrefix):])]; !keep {
				stale = append(stale, key)
			}
		}
		it.Close()

		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete gesture: %w", err)
			}
		}
		for id, r := range records {
			val, err := json.Marshal(r)
			if err != nil {
				return fmt.Errorf("encode gesture %s: %w", id, err)
			}
			if err := txn.Set(badgerKey(id), val); err != nil {
				return fmt.Errorf("set gesture %s: %w", id, err)
			}
		}
		return nil
	})
}
