package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/ardanlabs/qchain/foundation/blockchain/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		kind string
		path string
	}{
		{storage.Memory, ""},
		{storage.Disk, filepath.Join(dir, "blocks")},
		{storage.Bolt, filepath.Join(dir, "blocks.db")},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			s, err := storage.Open(tt.kind, tt.path)
			require.NoError(t, err)
			_, err = s.GetBlock(1)
			assert.Error(t, err)
			require.NoError(t, s.Close())
		})
	}

	_, err := storage.Open("tape", dir)
	assert.Error(t, err)
}
