package signature

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"github.com/cloudflare/circl/sign/dilithium/mode2"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"github.com/ethereum/go-ethereum/crypto"
)

// dilithium2 implements the NIST level 2 Dilithium post-quantum scheme.
type dilithium2 struct{}

func (dilithium2) generate() ([]byte, []byte, error) {
	pk, sk, err := mode2.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	return pk.Bytes(), sk.Bytes(), nil
}

func (dilithium2) sign(privateKey []byte, msg []byte) ([]byte, error) {
	var sk mode2.PrivateKey
	if err := sk.UnmarshalBinary(privateKey); err != nil {
		return nil, err
	}

	sig := make([]byte, mode2.SignatureSize)
	mode2.SignTo(&sk, msg, sig)

	return sig, nil
}

func (dilithium2) verify(publicKey []byte, msg []byte, sig []byte) bool {
	if len(sig) != mode2.SignatureSize {
		return false
	}

	var pk mode2.PublicKey
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return false
	}

	return mode2.Verify(&pk, msg, sig)
}

// =============================================================================

// dilithium3 implements the NIST level 3 Dilithium post-quantum scheme.
type dilithium3 struct{}

func (dilithium3) generate() ([]byte, []byte, error) {
	pk, sk, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	return pk.Bytes(), sk.Bytes(), nil
}

func (dilithium3) sign(privateKey []byte, msg []byte) ([]byte, error) {
	var sk mode3.PrivateKey
	if err := sk.UnmarshalBinary(privateKey); err != nil {
		return nil, err
	}

	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(&sk, msg, sig)

	return sig, nil
}

func (dilithium3) verify(publicKey []byte, msg []byte, sig []byte) bool {
	if len(sig) != mode3.SignatureSize {
		return false
	}

	var pk mode3.PublicKey
	if err := pk.UnmarshalBinary(publicKey); err != nil {
		return false
	}

	return mode3.Verify(&pk, msg, sig)
}

// =============================================================================

// ed25519Scheme implements classic Ed25519 signatures.
type ed25519Scheme struct{}

func (ed25519Scheme) generate() ([]byte, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, err
	}

	return pub, priv, nil
}

func (ed25519Scheme) sign(privateKey []byte, msg []byte) ([]byte, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid ed25519 private key length")
	}

	return ed25519.Sign(privateKey, msg), nil
}

func (ed25519Scheme) verify(publicKey []byte, msg []byte, sig []byte) bool {
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}

	return ed25519.Verify(publicKey, msg, sig)
}

// =============================================================================

// secp256k1 implements Ethereum style ECDSA signatures over the Keccak256
// hash of the message.
type secp256k1 struct{}

func (secp256k1) generate() ([]byte, []byte, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, err
	}

	return crypto.FromECDSAPub(&key.PublicKey), crypto.FromECDSA(key), nil
}

func (secp256k1) sign(privateKey []byte, msg []byte) ([]byte, error) {
	key, err := crypto.ToECDSA(privateKey)
	if err != nil {
		return nil, err
	}

	return crypto.Sign(crypto.Keccak256(msg), key)
}

func (secp256k1) verify(publicKey []byte, msg []byte, sig []byte) bool {
	if len(sig) != crypto.SignatureLength {
		return false
	}

	// Drop the recovery id, VerifySignature expects the 64 byte [R|S] form.
	return crypto.VerifySignature(publicKey, crypto.Keccak256(msg), sig[:crypto.RecoveryIDOffset])
}
