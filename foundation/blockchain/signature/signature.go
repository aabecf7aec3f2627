// Package signature provides the signing capability for the blockchain. A
// signer is constructed from an algorithm name and exposes sign and verify
// over an asymmetric key pair without callers knowing the algorithm details.
package signature

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrAlgorithmUnsupported is returned when an algorithm name is not known.
var ErrAlgorithmUnsupported = errors.New("algorithm unsupported")

// Set of supported signature algorithms.
const (
	Dilithium2 = "Dilithium2"
	Dilithium3 = "Dilithium3"
	Ed25519    = "Ed25519"
	Secp256k1  = "Secp256k1"
)

// scheme represents the behavior each algorithm implementation provides.
type scheme interface {
	generate() (publicKey []byte, privateKey []byte, err error)
	sign(privateKey []byte, msg []byte) ([]byte, error)
	verify(publicKey []byte, msg []byte, sig []byte) bool
}

var schemes = map[string]scheme{
	Dilithium2: dilithium2{},
	Dilithium3: dilithium3{},
	Ed25519:    ed25519Scheme{},
	Secp256k1:  secp256k1{},
}

// Algorithms returns the names of the supported algorithms.
func Algorithms() []string {
	names := make([]string, 0, len(schemes))
	for name := range schemes {
		names = append(names, name)
	}
	slices.Sort(names)

	return names
}

// Supported reports whether the algorithm name is known.
func Supported(algorithm string) bool {
	_, exists := schemes[algorithm]
	return exists
}

func lookup(algorithm string) (scheme, error) {
	s, exists := schemes[algorithm]
	if !exists {
		return nil, fmt.Errorf("%w: %q", ErrAlgorithmUnsupported, algorithm)
	}

	return s, nil
}

// =============================================================================

// Signer holds a key pair for one algorithm.
type Signer struct {
	algorithm  string
	scheme     scheme
	publicKey  []byte
	privateKey []byte
}

// New constructs a signer with a freshly generated key pair.
func New(algorithm string) (*Signer, error) {
	s, err := lookup(algorithm)
	if err != nil {
		return nil, err
	}

	pub, priv, err := s.generate()
	if err != nil {
		return nil, fmt.Errorf("generate %s key: %w", algorithm, err)
	}

	signer := Signer{
		algorithm:  algorithm,
		scheme:     s,
		publicKey:  pub,
		privateKey: priv,
	}

	return &signer, nil
}

// FromKeys constructs a signer from an existing key pair. The pair is
// checked by signing and verifying a probe message.
func FromKeys(algorithm string, publicKey []byte, privateKey []byte) (*Signer, error) {
	s, err := lookup(algorithm)
	if err != nil {
		return nil, err
	}

	probe := []byte("qchain key pair probe")
	sig, err := s.sign(privateKey, probe)
	if err != nil {
		return nil, fmt.Errorf("invalid %s private key: %w", algorithm, err)
	}

	if !s.verify(publicKey, probe, sig) {
		return nil, fmt.Errorf("%s public key does not match private key", algorithm)
	}

	signer := Signer{
		algorithm:  algorithm,
		scheme:     s,
		publicKey:  slices.Clone(publicKey),
		privateKey: slices.Clone(privateKey),
	}

	return &signer, nil
}

// Algorithm returns the name of the algorithm for this signer.
func (s *Signer) Algorithm() string {
	return s.algorithm
}

// PublicKey returns a copy of the public key.
func (s *Signer) PublicKey() []byte {
	return slices.Clone(s.publicKey)
}

// Fingerprint returns the identity string for this signer's public key.
func (s *Signer) Fingerprint() string {
	return Fingerprint(s.publicKey)
}

// Sign produces a signature for the message.
func (s *Signer) Sign(msg []byte) ([]byte, error) {
	return s.scheme.sign(s.privateKey, msg)
}

// =============================================================================

// Verify checks the signature of the message under the public key for the
// specified algorithm.
func Verify(algorithm string, msg []byte, sig []byte, publicKey []byte) (bool, error) {
	s, err := lookup(algorithm)
	if err != nil {
		return false, err
	}

	return s.verify(publicKey, msg, sig), nil
}

// Fingerprint derives the identity string for a public key. The key is
// hashed with Keccak256 and the last 20 bytes are rendered as a checksummed
// hex address, the same way Ethereum derives account addresses.
func Fingerprint(publicKey []byte) string {
	return common.BytesToAddress(crypto.Keccak256(publicKey)[12:]).Hex()
}

// IsFingerprint validates the string is formatted as a fingerprint.
func IsFingerprint(s string) bool {
	return common.IsHexAddress(s) && len(s) == 2+2*common.AddressLength
}
