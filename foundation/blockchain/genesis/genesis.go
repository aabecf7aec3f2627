// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ardanlabs/qchain/foundation/blockchain/oracle"
	"github.com/ardanlabs/qchain/foundation/blockchain/signature"
	"gopkg.in/yaml.v3"
)

// DefaultDifficulty is the number of leading zero bits required by the
// default genesis.
const DefaultDifficulty = 4

// Genesis represents the genesis file.
type Genesis struct {
	Date       time.Time         `json:"date" yaml:"date"`
	ChainID    uint16            `json:"chain_id" yaml:"chain_id"`                       // The chain id represents an unique id for this running instance.
	Difficulty uint32            `json:"difficulty" yaml:"difficulty"`                   // Leading zero bits required of every block hash.
	Algorithm  string            `json:"signature_algorithm" yaml:"signature_algorithm"` // Signature algorithm every transaction must use.
	OracleSeed string            `json:"oracle_seed" yaml:"oracle_seed"`                 // Seed for the proof of work hash dataset.
	Oracle     oracle.Config     `json:"oracle" yaml:"oracle"`                           // Parameters for the proof of work hash dataset.
	Balances   map[string]string `json:"balances" yaml:"balances"`                       // Starting balances as decimal amounts.
}

// Default returns the genesis used when no file is provided.
func Default() Genesis {
	return Genesis{
		Date:       time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:    1,
		Difficulty: DefaultDifficulty,
		Algorithm:  signature.Dilithium2,
		OracleSeed: "qchain-genesis-seed",
		Oracle:     oracle.DefaultConfig(),
		Balances:   map[string]string{},
	}
}

// =============================================================================

// Load opens and consumes the genesis file. Files ending in .yaml or .yml are
// decoded as YAML, anything else as JSON.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &genesis)
	default:
		err = json.Unmarshal(content, &genesis)
	}
	if err != nil {
		return Genesis{}, fmt.Errorf("decoding genesis %s: %w", path, err)
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the genesis values can be used to start a chain.
func (g Genesis) Validate() error {
	if g.Difficulty > 255 {
		return fmt.Errorf("genesis difficulty %d out of range", g.Difficulty)
	}

	if !signature.Supported(g.Algorithm) {
		return fmt.Errorf("genesis: %w: %q", signature.ErrAlgorithmUnsupported, g.Algorithm)
	}

	if err := g.Oracle.Validate(); err != nil {
		return fmt.Errorf("genesis oracle: %w", err)
	}

	return nil
}
