// Package oracle provides the memory hard hash function used for proof of
// work. A dataset is derived once from a seed, which is expensive, and then
// every hash performs a sequence of pseudo random reads into that dataset,
// which is cheap relative to construction but costly to accelerate.
package oracle

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/blake2b"
)

// itemSize is the size in bytes of a single dataset item.
const itemSize = blake2b.Size

// salt binds derived keys to this use of Argon2.
var salt = []byte("qchain/oracle/dataset/v1")

// Upper bounds on the dataset and the Argon2id pass. The genesis file is
// input, so a node refuses to start rather than allocate without limit.
const (
	MaxItems       = 1 << 24 // 1 GiB of items.
	MaxArgonMemory = 4 << 20 // 4 GiB in KiB.
)

// Config represents the parameters for building a dataset. All nodes on a
// network must use the same values or they will disagree on every hash.
type Config struct {
	Items        uint32 `json:"items" yaml:"items"`                 // Number of 64 byte items in the dataset.
	Rounds       uint32 `json:"rounds" yaml:"rounds"`               // Number of dataset reads per hash.
	ArgonTime    uint32 `json:"argon_time" yaml:"argon_time"`       // Argon2id passes over memory.
	ArgonMemory  uint32 `json:"argon_memory" yaml:"argon_memory"`   // Argon2id memory in KiB.
	ArgonThreads uint8  `json:"argon_threads" yaml:"argon_threads"` // Argon2id parallelism.
}

// DefaultConfig returns the production parameters, a 64 MiB dataset built
// from a 64 MiB Argon2id pass.
func DefaultConfig() Config {
	return Config{
		Items:        1 << 20,
		Rounds:       64,
		ArgonTime:    1,
		ArgonMemory:  64 * 1024,
		ArgonThreads: 4,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Items < 2 {
		return errors.New("dataset requires at least 2 items")
	}
	if c.Items > MaxItems {
		return fmt.Errorf("dataset items %d exceed the maximum of %d", c.Items, MaxItems)
	}
	if c.Rounds == 0 {
		return errors.New("rounds must be greater than zero")
	}
	if c.ArgonTime == 0 {
		return errors.New("argon time must be greater than zero")
	}
	if c.ArgonThreads == 0 {
		return errors.New("argon threads must be greater than zero")
	}
	if c.ArgonMemory < 8*uint32(c.ArgonThreads) {
		return fmt.Errorf("argon memory must be at least %d KiB", 8*uint32(c.ArgonThreads))
	}
	if c.ArgonMemory > MaxArgonMemory {
		return fmt.Errorf("argon memory %d KiB exceeds the maximum of %d KiB", c.ArgonMemory, MaxArgonMemory)
	}

	return nil
}

// =============================================================================

// Dataset is the seed derived handle used to compute hashes. It is read only
// after construction and safe for concurrent use.
type Dataset struct {
	items  []byte
	count  uint64
	rounds uint32
	key    [blake2b.Size256]byte
}

// New builds a dataset for the specified seed.
func New(seed []byte, cfg Config) (*Dataset, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("oracle config: %w", err)
	}

	key := argon2.IDKey(seed, salt, cfg.ArgonTime, cfg.ArgonMemory, cfg.ArgonThreads, itemSize)

	d := Dataset{
		items:  make([]byte, int(cfg.Items)*itemSize),
		count:  uint64(cfg.Items),
		rounds: cfg.Rounds,
		key:    blake2b.Sum256(key),
	}

	// Every item depends on the previous item and on an earlier item chosen
	// by the previous item's content, so the dataset has to be built in order.
	first := blake2b.Sum512(key)
	copy(d.items[:itemSize], first[:])

	buf := make([]byte, 2*itemSize)
	for i := uint64(1); i < d.count; i++ {
		prev := d.item(i - 1)
		ref := d.item(binary.LittleEndian.Uint64(prev[:8]) % i)

		copy(buf[:itemSize], prev)
		copy(buf[itemSize:], ref)

		sum := blake2b.Sum512(buf)
		copy(d.items[i*itemSize:(i+1)*itemSize], sum[:])
	}

	return &d, nil
}

// Hash computes the 32 byte digest of the input.
func (d *Dataset) Hash(input []byte) [32]byte {
	seedInput := make([]byte, len(d.key)+len(input))
	copy(seedInput, d.key[:])
	copy(seedInput[len(d.key):], input)

	mix := blake2b.Sum512(seedInput)

	buf := make([]byte, 2*itemSize)
	for r := uint32(0); r < d.rounds; r++ {
		word := (r % (itemSize / 8)) * 8
		idx := binary.LittleEndian.Uint64(mix[word:word+8]) % d.count

		copy(buf[:itemSize], mix[:])
		copy(buf[itemSize:], d.item(idx))

		mix = blake2b.Sum512(buf)
	}

	return blake2b.Sum256(mix[:])
}

// item returns the dataset item at the specified index.
func (d *Dataset) item(i uint64) []byte {
	return d.items[i*itemSize : (i+1)*itemSize]
}
