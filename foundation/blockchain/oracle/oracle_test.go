package oracle_test

import (
	"testing"

	"github.com/ardanlabs/qchain/foundation/blockchain/oracle"
	"github.com/ardanlabs/qchain/foundation/blockchain/pow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() oracle.Config {
	return oracle.Config{
		Items:        1024,
		Rounds:       8,
		ArgonTime:    1,
		ArgonMemory:  64,
		ArgonThreads: 1,
	}
}

func Test_Deterministic(t *testing.T) {
	d1, err := oracle.New([]byte("seed"), testConfig())
	require.NoError(t, err)

	d2, err := oracle.New([]byte("seed"), testConfig())
	require.NoError(t, err)

	input := []byte("block header bytes")
	assert.Equal(t, d1.Hash(input), d2.Hash(input), "same seed and input must produce the same digest")
	assert.Equal(t, d1.Hash(input), d1.Hash(input), "repeated hashing must be stable")
}

func Test_SeedAndInputSensitivity(t *testing.T) {
	d1, err := oracle.New([]byte("seed-one"), testConfig())
	require.NoError(t, err)

	d2, err := oracle.New([]byte("seed-two"), testConfig())
	require.NoError(t, err)

	input := []byte("block header bytes")
	assert.NotEqual(t, d1.Hash(input), d2.Hash(input))
	assert.NotEqual(t, d1.Hash(input), d1.Hash([]byte("block header bytez")))
}

func Test_ParametersAreConsensus(t *testing.T) {
	cfg := testConfig()
	d1, err := oracle.New([]byte("seed"), cfg)
	require.NoError(t, err)

	cfg.Rounds = 9
	d2, err := oracle.New([]byte("seed"), cfg)
	require.NoError(t, err)

	assert.NotEqual(t, d1.Hash([]byte("x")), d2.Hash([]byte("x")))
}

func Test_InvalidConfig(t *testing.T) {
	tt := []struct {
		name string
		cfg  oracle.Config
	}{
		{"items", oracle.Config{Items: 1, Rounds: 1, ArgonTime: 1, ArgonMemory: 64, ArgonThreads: 1}},
		{"rounds", oracle.Config{Items: 16, Rounds: 0, ArgonTime: 1, ArgonMemory: 64, ArgonThreads: 1}},
		{"time", oracle.Config{Items: 16, Rounds: 1, ArgonTime: 0, ArgonMemory: 64, ArgonThreads: 1}},
		{"threads", oracle.Config{Items: 16, Rounds: 1, ArgonTime: 1, ArgonMemory: 64, ArgonThreads: 0}},
		{"memory", oracle.Config{Items: 16, Rounds: 1, ArgonTime: 1, ArgonMemory: 4, ArgonThreads: 1}},
		{"items too large", oracle.Config{Items: oracle.MaxItems + 1, Rounds: 1, ArgonTime: 1, ArgonMemory: 64, ArgonThreads: 1}},
		{"items overflow", oracle.Config{Items: ^uint32(0), Rounds: 1, ArgonTime: 1, ArgonMemory: 64, ArgonThreads: 1}},
		{"memory too large", oracle.Config{Items: 16, Rounds: 1, ArgonTime: 1, ArgonMemory: oracle.MaxArgonMemory + 1, ArgonThreads: 1}},
	}

	for _, tst := range tt {
		t.Run(tst.name, func(t *testing.T) {
			_, err := oracle.New([]byte("seed"), tst.cfg)
			assert.Error(t, err)
		})
	}
}

func Test_MinesWithSearch(t *testing.T) {
	d, err := oracle.New([]byte("seed"), testConfig())
	require.NoError(t, err)

	var hasher pow.Hasher = d

	res, err := pow.Search(t.Context(), hasher, []byte("header"), 8)
	require.NoError(t, err)
	assert.Equal(t, byte(0), res.Digest[0])
	assert.Equal(t, d.Hash(pow.Input([]byte("header"), res.Nonce)), res.Digest)
}
