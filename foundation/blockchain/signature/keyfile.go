package signature

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// KeyExtension is the file extension used for key files.
const KeyExtension = ".key"

// keyFile represents what is written to disk for a signer.
type keyFile struct {
	Algorithm  string        `json:"algorithm"`
	PublicKey  hexutil.Bytes `json:"public_key"`
	PrivateKey hexutil.Bytes `json:"private_key"`
}

// Load reads a key file from disk and constructs the signer.
func Load(path string) (*Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("decoding key file %s: %w", path, err)
	}

	return FromKeys(kf.Algorithm, kf.PublicKey, kf.PrivateKey)
}

// Save writes the key pair to disk readable only by the owner.
func (s *Signer) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	kf := keyFile{
		Algorithm:  s.algorithm,
		PublicKey:  s.publicKey,
		PrivateKey: s.privateKey,
	}

	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}
