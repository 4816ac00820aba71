package token

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/trustmark/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the signing key pair.
var Module = fx.Module("token",
	fx.Provide(ProvideKeyPair),
)

// VerifyOnlyModule provides a key pair holding only the public key.
var VerifyOnlyModule = fx.Module("token.verify",
	fx.Provide(ProvidePublicKeyPair),
)

func ProvideKeyPair(cfg config.Config, log *zap.Logger) (*KeyPair, error) {
	log = log.Named("token.keys")
	files := KeyFiles{
		PrivatePath:     cfg.Signing.PrivateKeyPath,
		PublicPath:      cfg.Signing.PublicKeyPath,
		AgeIdentityPath: cfg.Signing.AgeIdentityPath,
	}
	if files.PrivatePath == "" {
		return nil, fmt.Errorf("SIGNING_PRIVATE_KEY_PATH is required: %w", ErrMissingPrivateKey)
	}

	var (
		kp        *KeyPair
		generated bool
		err       error
	)
	if cfg.Signing.Autogenerate && !cfg.IsProduction() {
		alg, algErr := ParseAlgorithm(cfg.Signing.Algorithm)
		if algErr != nil {
			return nil, algErr
		}
		kp, generated, err = LoadOrGenerateKeyPair(files, alg)
	} else {
		kp, err = LoadKeyPair(files)
	}
	if err != nil {
		return nil, err
	}

	if generated {
		log.Warn("generated a new signing key; do not use autogenerated keys in production",
			zap.String("path", files.PrivatePath),
			zap.String("key_id", kp.KeyID),
		)
	}
	if want, err := ParseAlgorithm(cfg.Signing.Algorithm); err == nil && want != kp.Algorithm {
		log.Warn("configured signing algorithm differs from key type",
			zap.String("configured", string(want)),
			zap.String("key", string(kp.Algorithm)),
		)
	}
	log.Info("signing key loaded", zap.String("key_id", kp.KeyID), zap.String("algorithm", string(kp.Algorithm)))
	return kp, nil
}

func ProvidePublicKeyPair(cfg config.Config, log *zap.Logger) (*KeyPair, error) {
	path := cfg.Signing.PublicKeyPath
	if path == "" {
		return nil, errors.New("SIGNING_PUBLIC_KEY_PATH is required")
	}
	kp, err := LoadPublicKeyPair(path)
	if err != nil {
		return nil, err
	}
	log.Named("token.keys").Info("verification key loaded", zap.String("key_id", kp.KeyID), zap.String("algorithm", string(kp.Algorithm)))
	return kp, nil
}
