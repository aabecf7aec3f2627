// Package storage selects the block serializer used by the database.
package storage

import (
	"fmt"

	"github.com/ardanlabs/qchain/foundation/blockchain/database"
	"github.com/ardanlabs/qchain/foundation/blockchain/storage/boltdb"
	"github.com/ardanlabs/qchain/foundation/blockchain/storage/disk"
	"github.com/ardanlabs/qchain/foundation/blockchain/storage/memory"
)

// Set of supported storage kinds.
const (
	Memory = "memory" // Nothing survives a restart.
	Disk   = "disk"   // One JSON file per block under a folder.
	Bolt   = "bolt"   // A single bolt database file.
)

// Open constructs the serializer for the kind of storage. The path is
// ignored for memory storage.
func Open(kind string, path string) (database.Serializer, error) {
	switch kind {
	case Memory:
		return memory.New(), nil
	case Disk:
		return disk.New(path)
	case Bolt:
		return boltdb.New(path)
	}

	return nil, fmt.Errorf("unknown storage %q", kind)
}
