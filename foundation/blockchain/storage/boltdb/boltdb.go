// Package boltdb implements the ability to read and write blocks to a bolt
// key/value file keyed by block number.
package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/boltdb/bolt"
)

// blocksBucket holds every block keyed by its big endian number so a cursor
// walks them in chain order.
var blocksBucket = []byte("blocks")

// ErrNotFound is returned when the requested block is not stored.
var ErrNotFound = errors.New("block not found")

// Bolt represents the serialization implementation for reading and storing
// blocks in a bolt database file. This implements the database.Serializer
// interface.
type Bolt struct {
	db *bolt.DB
}

// New opens or creates the bolt file at the specified path.
func New(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt file %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(blocksBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Bolt{db: db}, nil
}

// Close releases the bolt file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// Write stores the block under its number.
func (b *Bolt) Write(block database.Block) error {
	data, err := json.Marshal(block)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(blocksBucket).Put(key(block.Header.Index), data)
	})
}

// GetBlock returns the block stored under the specified number.
func (b *Bolt) GetBlock(num uint64) (database.Block, error) {
	var block database.Block

	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(blocksBucket).Get(key(num))
		if data == nil {
			return fmt.Errorf("%w: %d", ErrNotFound, num)
		}

		return json.Unmarshal(data, &block)
	})

	return block, err
}

// ForEach returns an iterator to walk through all the blocks
// starting with block number 1.
func (b *Bolt) ForEach() database.Iterator {
	return &boltIterator{storage: b}
}

// Reset drops every stored block.
func (b *Bolt) Reset() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(blocksBucket); err != nil {
			return err
		}

		_, err := tx.CreateBucket(blocksBucket)
		return err
	})
}

func key(num uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, num)
	return k
}

// =============================================================================

// boltIterator walks the stored blocks by number. This implements the
// database Iterator interface.
type boltIterator struct {
	storage *Bolt
	current uint64
	eoc     bool
}

// Next retrieves the next block.
func (bi *boltIterator) Next() (database.Block, error) {
	if bi.eoc {
		return database.Block{}, errors.New("end of chain")
	}

	bi.current++
	block, err := bi.storage.GetBlock(bi.current)
	if errors.Is(err, ErrNotFound) {
		bi.eoc = true
	}

	return block, err
}

// Done returns the end of chain value.
func (bi *boltIterator) Done() bool {
	return bi.eoc
}
