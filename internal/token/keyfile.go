package token

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
	"filippo.io/age/armor"
)

// KeyFiles locates key material on disk. AgeIdentityPath is optional; when
// set, the private key file is stored age-encrypted to that identity.
type KeyFiles struct {
	PrivatePath     string
	PublicPath      string
	AgeIdentityPath string
}

// LoadKeyPair reads a signing key pair. The public key file is optional and,
// when present, must match the private key.
func LoadKeyPair(files KeyFiles) (*KeyPair, error) {
	if files.PrivatePath == "" {
		return nil, ErrMissingPrivateKey
	}

	raw, err := os.ReadFile(files.PrivatePath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	if isAgeEncrypted(raw) {
		raw, err = decryptWithIdentity(raw, files.AgeIdentityPath)
		if err != nil {
			return nil, err
		}
	}

	signer, err := ParsePrivateKeyPEM(raw)
	if err != nil {
		return nil, err
	}
	kp, err := NewKeyPair(signer)
	if err != nil {
		return nil, err
	}

	if files.PublicPath != "" {
		pubRaw, err := os.ReadFile(files.PublicPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading public key: %w", err)
		}
		if err == nil {
			public, err := ParsePublicKeyPEM(pubRaw)
			if err != nil {
				return nil, err
			}
			kid, err := KeyID(public)
			if err != nil {
				return nil, err
			}
			if kid != kp.KeyID {
				return nil, fmt.Errorf("%w: public key %s does not match private key %s", ErrKeyMismatch, kid, kp.KeyID)
			}
		}
	}

	return kp, nil
}

// LoadPublicKeyPair reads a verify-only key pair from a PEM file.
func LoadPublicKeyPair(path string) (*KeyPair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	public, err := ParsePublicKeyPEM(raw)
	if err != nil {
		return nil, err
	}
	return NewPublicKeyPair(public)
}

// SaveKeyPair writes the key pair to disk. The private key file is written
// 0600 and encrypted when an age identity is configured.
func SaveKeyPair(files KeyFiles, kp *KeyPair) error {
	privatePEM, err := kp.PrivatePEM()
	if err != nil {
		return err
	}
	if files.AgeIdentityPath != "" {
		privatePEM, err = encryptForIdentity(privatePEM, files.AgeIdentityPath)
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(files.PrivatePath), 0o700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(files.PrivatePath, privatePEM, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}

	if files.PublicPath == "" {
		return nil
	}
	publicPEM, err := kp.PublicPEM()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(files.PublicPath), 0o755); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.WriteFile(files.PublicPath, publicPEM, 0o644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// LoadOrGenerateKeyPair loads the key pair, or generates and saves one when
// the private key file does not exist yet. It reports whether a key was
// generated. An existing but unreadable key is an error.
func LoadOrGenerateKeyPair(files KeyFiles, alg Algorithm) (*KeyPair, bool, error) {
	kp, err := LoadKeyPair(files)
	if err == nil {
		return kp, false, nil
	}
	if _, statErr := os.Stat(files.PrivatePath); statErr == nil || !errors.Is(statErr, os.ErrNotExist) {
		return nil, false, err
	}

	kp, err = GenerateKeyPair(alg)
	if err != nil {
		return nil, false, err
	}
	if err := SaveKeyPair(files, kp); err != nil {
		return nil, false, err
	}
	return kp, true, nil
}

func isAgeEncrypted(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return bytes.HasPrefix(trimmed, []byte(armor.Header)) ||
		bytes.HasPrefix(trimmed, []byte("age-encryption.org/"))
}

func loadIdentities(path string) ([]age.Identity, error) {
	if path == "" {
		return nil, errors.New("private key is age-encrypted but no identity is configured")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening age identity: %w", err)
	}
	defer f.Close()

	identities, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return identities, nil
}

func decryptWithIdentity(ciphertext []byte, identityPath string) ([]byte, error) {
	identities, err := loadIdentities(identityPath)
	if err != nil {
		return nil, err
	}

	var src io.Reader = bytes.NewReader(ciphertext)
	if bytes.HasPrefix(bytes.TrimSpace(ciphertext), []byte(armor.Header)) {
		src = armor.NewReader(bytes.NewReader(bytes.TrimSpace(ciphertext)))
	}

	reader, err := age.Decrypt(src, identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted private key: %w", err)
	}
	return plaintext, nil
}

func encryptForIdentity(plaintext []byte, identityPath string) ([]byte, error) {
	identities, err := loadIdentities(identityPath)
	if err != nil {
		return nil, err
	}

	recipients := make([]age.Recipient, 0, len(identities))
	for _, identity := range identities {
		x25519, ok := identity.(*age.X25519Identity)
		if !ok {
			return nil, fmt.Errorf("unsupported age identity type %T", identity)
		}
		recipients = append(recipients, x25519.Recipient())
	}

	var out bytes.Buffer
	armored := armor.NewWriter(&out)
	writer, err := age.Encrypt(armored, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("encrypting private key: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	if err := armored.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age armor: %w", err)
	}
	return out.Bytes(), nil
}
