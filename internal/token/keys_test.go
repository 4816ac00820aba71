package token

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
	"filippo.io/age/armor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAlgorithm(t *testing.T) {
	alg, err := ParseAlgorithm("es256")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmES256, alg)

	alg, err = ParseAlgorithm(" RS256 ")
	require.NoError(t, err)
	assert.Equal(t, AlgorithmRS256, alg)

	_, err = ParseAlgorithm("HS256")
	assert.ErrorIs(t, err, ErrUnsupportedAlgorithm)
}

func TestKeyPairPEMRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmES256, AlgorithmRS256} {
		t.Run(string(alg), func(t *testing.T) {
			kp := mustKeys(t, alg)

			privatePEM, err := kp.PrivatePEM()
			require.NoError(t, err)
			signer, err := ParsePrivateKeyPEM(privatePEM)
			require.NoError(t, err)
			reloaded, err := NewKeyPair(signer)
			require.NoError(t, err)
			assert.Equal(t, kp.KeyID, reloaded.KeyID)
			assert.Equal(t, alg, reloaded.Algorithm)

			publicPEM, err := kp.PublicPEM()
			require.NoError(t, err)
			public, err := ParsePublicKeyPEM(publicPEM)
			require.NoError(t, err)
			verifyOnly, err := NewPublicKeyPair(public)
			require.NoError(t, err)
			assert.Equal(t, kp.KeyID, verifyOnly.KeyID)
			assert.False(t, verifyOnly.CanSign())
		})
	}
}

func TestKeyIDDiffersPerKey(t *testing.T) {
	a := mustKeys(t, AlgorithmES256)
	b := mustKeys(t, AlgorithmES256)
	assert.NotEqual(t, a.KeyID, b.KeyID)
	assert.Len(t, a.KeyID, 32)
}

func TestLoadOrGenerateKeyPair(t *testing.T) {
	dir := t.TempDir()
	files := KeyFiles{
		PrivatePath: filepath.Join(dir, "keys", "signing.pem"),
		PublicPath:  filepath.Join(dir, "keys", "signing.pub.pem"),
	}

	kp, generated, err := LoadOrGenerateKeyPair(files, AlgorithmES256)
	require.NoError(t, err)
	assert.True(t, generated)

	info, err := os.Stat(files.PrivatePath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	again, generated, err := LoadOrGenerateKeyPair(files, AlgorithmES256)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, kp.KeyID, again.KeyID)

	public, err := LoadPublicKeyPair(files.PublicPath)
	require.NoError(t, err)
	assert.Equal(t, kp.KeyID, public.KeyID)
}

func TestLoadOrGenerateRefusesCorruptKey(t *testing.T) {
	dir := t.TempDir()
	files := KeyFiles{PrivatePath: filepath.Join(dir, "signing.pem")}
	require.NoError(t, os.WriteFile(files.PrivatePath, []byte("garbage"), 0o600))

	_, _, err := LoadOrGenerateKeyPair(files, AlgorithmES256)
	assert.Error(t, err)
}

func TestLoadKeyPairRejectsMismatchedPublicKey(t *testing.T) {
	dir := t.TempDir()
	files := KeyFiles{
		PrivatePath: filepath.Join(dir, "signing.pem"),
		PublicPath:  filepath.Join(dir, "signing.pub.pem"),
	}
	require.NoError(t, SaveKeyPair(files, mustKeys(t, AlgorithmES256)))

	otherPEM, err := mustKeys(t, AlgorithmES256).PublicPEM()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(files.PublicPath, otherPEM, 0o644))

	_, err = LoadKeyPair(files)
	assert.ErrorIs(t, err, ErrKeyMismatch)
}

func TestAgeEncryptedPrivateKey(t *testing.T) {
	dir := t.TempDir()
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	identityPath := filepath.Join(dir, "identity.txt")
	require.NoError(t, os.WriteFile(identityPath, []byte("# test identity\n"+identity.String()+"\n"), 0o600))

	files := KeyFiles{
		PrivatePath:     filepath.Join(dir, "signing.pem.age"),
		AgeIdentityPath: identityPath,
	}
	kp := mustKeys(t, AlgorithmRS256)
	require.NoError(t, SaveKeyPair(files, kp))

	onDisk, err := os.ReadFile(files.PrivatePath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(onDisk), armor.Header))
	assert.NotContains(t, string(onDisk), "PRIVATE KEY-----\n")

	loaded, err := LoadKeyPair(files)
	require.NoError(t, err)
	assert.Equal(t, kp.KeyID, loaded.KeyID)

	_, err = LoadKeyPair(KeyFiles{PrivatePath: files.PrivatePath})
	assert.Error(t, err)
}
