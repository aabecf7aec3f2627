// Package pow implements the proof of work search used to mine blocks. The
// search is a sequential nonce scan against a target derived from the block
// difficulty and can be cancelled through a context.
package pow

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
)

// ErrNonceExhausted is returned when every 64 bit nonce was tried without
// finding a digest that satisfies the target.
var ErrNonceExhausted = errors.New("nonce space exhausted")

// batchSize is the number of nonce attempts performed between checks of the
// cancellation signal.
const batchSize = 1024

// HashLength is the size of a digest produced by a Hasher.
const HashLength = 32

// =============================================================================

// Hasher represents the behavior of the hash oracle used to compute a digest
// for a header. Implementations must not retain the input slice.
type Hasher interface {
	Hash(input []byte) [HashLength]byte
}

// Result represents a solved proof of work.
type Result struct {
	Nonce    uint64
	Digest   [HashLength]byte
	Attempts uint64
}

// Outcome is what a search running on its own goroutine reports back.
type Outcome struct {
	Result
	Err error
}

// =============================================================================

// Target constructs the 32 byte big endian threshold for the specified
// difficulty. A digest is valid when it does not exceed this value.
func Target(difficulty uint32) [HashLength]byte {
	var target [HashLength]byte
	for i := range target {
		target[i] = 0xff
	}

	zeroBytes := int(min(difficulty/8, HashLength))
	for i := 0; i < zeroBytes; i++ {
		target[i] = 0
	}

	if zeroBytes < HashLength {
		target[zeroBytes] = 0xff >> (difficulty % 8)
	}

	return target
}

// IsSolved compares the digest against the target as unsigned big endian
// integers. A digest equal to the target is a solution.
func IsSolved(digest [HashLength]byte, target [HashLength]byte) bool {
	return bytes.Compare(digest[:], target[:]) <= 0
}

// Input returns the bytes hashed for the specified header and nonce. The
// nonce is appended in little endian order.
func Input(header []byte, nonce uint64) []byte {
	input := make([]byte, len(header)+8)
	copy(input, header)
	binary.LittleEndian.PutUint64(input[len(header):], nonce)

	return input
}

// Search scans nonces starting at zero until the digest of the header and
// nonce satisfies the difficulty target. The context is checked every batch
// of attempts so the search can be cancelled.
func Search(ctx context.Context, hasher Hasher, header []byte, difficulty uint32) (Result, error) {
	target := Target(difficulty)

	input := make([]byte, len(header)+8)
	copy(input, header)
	nonceBytes := input[len(header):]

	var attempts uint64
	for nonce := uint64(0); ; nonce++ {
		if attempts%batchSize == 0 {
			if err := ctx.Err(); err != nil {
				return Result{Attempts: attempts}, err
			}
		}
		attempts++

		binary.LittleEndian.PutUint64(nonceBytes, nonce)
		digest := hasher.Hash(input)

		if IsSolved(digest, target) {
			return Result{Nonce: nonce, Digest: digest, Attempts: attempts}, nil
		}

		if nonce == math.MaxUint64 {
			return Result{Attempts: attempts}, ErrNonceExhausted
		}
	}
}

// Run performs the search on a dedicated goroutine and reports the outcome
// on the returned channel. The channel is buffered so the goroutine can
// always complete even if nobody is waiting on the result.
func Run(ctx context.Context, hasher Hasher, header []byte, difficulty uint32) <-chan Outcome {
	ch := make(chan Outcome, 1)

	go func() {
		result, err := Search(ctx, hasher, header, difficulty)
		ch <- Outcome{Result: result, Err: err}
	}()

	return ch
}
