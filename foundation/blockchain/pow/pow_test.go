package pow_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/qchain/foundation/blockchain/pow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sha256Hasher struct{}

func (sha256Hasher) Hash(input []byte) [pow.HashLength]byte {
	return sha256.Sum256(input)
}

// scriptedHasher returns a digest one above the target until the hit nonce
// is reached, then returns the target itself.
type scriptedHasher struct {
	target [pow.HashLength]byte
	hit    uint64
}

func (h scriptedHasher) Hash(input []byte) [pow.HashLength]byte {
	nonce := binary.LittleEndian.Uint64(input[len(input)-8:])
	if nonce == h.hit {
		return h.target
	}

	var above [pow.HashLength]byte
	for i := range above {
		above[i] = 0xff
	}
	return above
}

func repeat(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

// =============================================================================

func Test_Target(t *testing.T) {
	tt := []struct {
		name       string
		difficulty uint32
		exp        []byte
	}{
		{"zero", 0, repeat(0xff, 32)},
		{"one-bit", 1, append([]byte{0x7f}, repeat(0xff, 31)...)},
		{"four", 4, append([]byte{0x0f}, repeat(0xff, 31)...)},
		{"eight", 8, append([]byte{0x00}, repeat(0xff, 31)...)},
		{"twelve", 12, append([]byte{0x00, 0x0f}, repeat(0xff, 30)...)},
		{"max-bits", 255, append(repeat(0x00, 31), 0x01)},
		{"all-bits", 256, repeat(0x00, 32)},
		{"beyond", 300, repeat(0x00, 32)},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			target := pow.Target(tst.difficulty)
			assert.Equal(t, tst.exp, target[:])
		})
	}
}

func Test_IsSolvedBoundary(t *testing.T) {
	target := pow.Target(12)

	assert.True(t, pow.IsSolved(target, target), "a digest equal to the target is a hit")

	below := target
	below[1] = 0x0e
	assert.True(t, pow.IsSolved(below, target))

	above := target
	above[1] = 0x10
	assert.False(t, pow.IsSolved(above, target))
}

func Test_SearchAcceptsEquality(t *testing.T) {
	h := scriptedHasher{target: pow.Target(12), hit: 3}

	res, err := pow.Search(context.Background(), h, []byte("header"), 12)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), res.Nonce)
	assert.Equal(t, uint64(4), res.Attempts)
	assert.Equal(t, pow.Target(12), res.Digest)
}

func Test_SearchDeterminism(t *testing.T) {
	header := []byte("index:1|prev:0000|txs:[a->b:10]")

	first, err := pow.Search(context.Background(), sha256Hasher{}, header, 10)
	require.NoError(t, err)

	second, err := pow.Search(context.Background(), sha256Hasher{}, header, 10)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.True(t, pow.IsSolved(first.Digest, pow.Target(10)))
	assert.Equal(t, sha256.Sum256(pow.Input(header, first.Nonce)), first.Digest)
}

func Test_SearchCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Difficulty 256 requires an all zero digest which sha256 will not produce.
	_, err := pow.Search(ctx, sha256Hasher{}, []byte("header"), 256)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func Test_RunReportsOnChannel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	ch := pow.Run(ctx, sha256Hasher{}, []byte("header"), 256)
	cancel()

	select {
	case out := <-ch:
		assert.ErrorIs(t, out.Err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("search did not stop after cancellation")
	}

	out := <-pow.Run(context.Background(), sha256Hasher{}, []byte("header"), 4)
	require.NoError(t, out.Err)
	assert.LessOrEqual(t, out.Digest[0], byte(0x0f))
}
