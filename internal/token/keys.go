package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a signature scheme carried in the token header.
type Algorithm string

const (
	AlgorithmES256 Algorithm = "ES256"
	AlgorithmRS256 Algorithm = "RS256"
)

const rsaKeyBits = 3072

// ParseAlgorithm accepts es256/rs256 in any case.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(strings.ToUpper(strings.TrimSpace(name))) {
	case AlgorithmES256:
		return AlgorithmES256, nil
	case AlgorithmRS256:
		return AlgorithmRS256, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, name)
	}
}

// KeyPair is a signing key with its public half and derived key id.
// Private may be nil for verify-only deployments.
type KeyPair struct {
	Algorithm Algorithm
	Private   crypto.Signer
	Public    crypto.PublicKey
	KeyID     string
}

// GenerateKeyPair creates a fresh key for alg.
func GenerateKeyPair(alg Algorithm) (*KeyPair, error) {
	var signer crypto.Signer
	var err error
	switch alg {
	case AlgorithmES256:
		signer, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case AlgorithmRS256:
		signer, err = rsa.GenerateKey(rand.Reader, rsaKeyBits)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("generating %s key: %w", alg, err)
	}
	return NewKeyPair(signer)
}

// NewKeyPair wraps an existing private key.
func NewKeyPair(private crypto.Signer) (*KeyPair, error) {
	if private == nil {
		return nil, ErrMissingPrivateKey
	}
	kp, err := NewPublicKeyPair(private.Public())
	if err != nil {
		return nil, err
	}
	kp.Private = private
	return kp, nil
}

// NewPublicKeyPair builds a verify-only key pair.
func NewPublicKeyPair(public crypto.PublicKey) (*KeyPair, error) {
	alg, err := algorithmFor(public)
	if err != nil {
		return nil, err
	}
	kid, err := KeyID(public)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Algorithm: alg, Public: public, KeyID: kid}, nil
}

// CanSign reports whether the pair holds a private key.
func (k *KeyPair) CanSign() bool {
	return k != nil && k.Private != nil
}

// PublicPEM returns the PKIX public key in PEM form.
func (k *KeyPair) PublicPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k.Public)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// PrivatePEM returns the PKCS#8 private key in PEM form.
func (k *KeyPair) PrivatePEM() ([]byte, error) {
	if !k.CanSign() {
		return nil, ErrMissingPrivateKey
	}
	der, err := x509.MarshalPKCS8PrivateKey(k.Private)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// KeyID fingerprints a public key: the first 16 bytes of the blake3 hash of
// its PKIX encoding, hex encoded.
func KeyID(public crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(public)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	sum := blake3.Sum256(der)
	return hex.EncodeToString(sum[:16]), nil
}

// ParsePrivateKeyPEM accepts PKCS#8, SEC1 EC and PKCS#1 RSA keys.
func ParsePrivateKeyPEM(data []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found in private key")
	}

	var key any
	var err error
	switch block.Type {
	case "PRIVATE KEY":
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		key, err = x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported private key PEM type %q", block.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAlgorithm, key)
	}
	if _, err := algorithmFor(signer.Public()); err != nil {
		return nil, err
	}
	return signer, nil
}

// ParsePublicKeyPEM accepts a PKIX public key.
func ParsePublicKeyPEM(data []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("unsupported public key PEM type %q", block.Type)
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	if _, err := algorithmFor(key); err != nil {
		return nil, err
	}
	return key, nil
}

func algorithmFor(public crypto.PublicKey) (Algorithm, error) {
	switch key := public.(type) {
	case *ecdsa.PublicKey:
		if key.Curve != elliptic.P256() {
			return "", fmt.Errorf("%w: ecdsa curve %s", ErrUnsupportedAlgorithm, key.Curve.Params().Name)
		}
		return AlgorithmES256, nil
	case *rsa.PublicKey:
		return AlgorithmRS256, nil
	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedAlgorithm, public)
	}
}

func signDigest(alg Algorithm, private crypto.Signer, message []byte) ([]byte, error) {
	keyAlg, err := algorithmFor(private.Public())
	if err != nil {
		return nil, err
	}
	if keyAlg != alg {
		return nil, fmt.Errorf("%w: key is %s, requested %s", ErrKeyMismatch, keyAlg, alg)
	}

	digest := sha256.Sum256(message)
	switch key := private.(type) {
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(rand.Reader, key, digest[:])
	case *rsa.PrivateKey:
		return rsa.SignPKCS1v15(nil, key, crypto.SHA256, digest[:])
	default:
		// Opaque signers (HSM, KMS) go through the crypto.Signer interface.
		return private.Sign(rand.Reader, digest[:], crypto.SHA256)
	}
}

func verifyDigest(alg Algorithm, public crypto.PublicKey, message, signature []byte) bool {
	keyAlg, err := algorithmFor(public)
	if err != nil || keyAlg != alg {
		return false
	}

	digest := sha256.Sum256(message)
	switch key := public.(type) {
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(key, digest[:], signature)
	case *rsa.PublicKey:
		return rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], signature) == nil
	default:
		return false
	}
}

// KeyInfo is the public description of a key, as served for key discovery.
type KeyInfo struct {
	KeyID        string    `json:"kid"`
	Algorithm    Algorithm `json:"alg"`
	PublicKeyPEM string    `json:"public_key_pem"`
}

func (k *KeyPair) Info() (KeyInfo, error) {
	pemBytes, err := k.PublicPEM()
	if err != nil {
		return KeyInfo{}, err
	}
	return KeyInfo{KeyID: k.KeyID, Algorithm: k.Algorithm, PublicKeyPEM: string(pemBytes)}, nil
}
