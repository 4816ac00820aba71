package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/smallbiznis/trustmark/internal/token"
	verificationdomain "github.com/smallbiznis/trustmark/internal/verification/domain"
)

func runKeygen(args []string, stdout io.Writer) error {
	fs := newFlagSet("keygen")
	alg := fs.String("alg", "es256", "signing algorithm: es256 or rs256")
	privatePath := fs.String("private", "", "write the private key PEM here (required)")
	publicPath := fs.String("public", "", "write the public key PEM here")
	ageIdentity := fs.String("age-identity", "", "encrypt the private key to this age identity file")
	force := fs.Bool("force", false, "overwrite an existing private key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *privatePath == "" {
		return errors.New("--private is required")
	}
	if !*force {
		if _, err := os.Stat(*privatePath); err == nil {
			return fmt.Errorf("%s exists; pass --force to overwrite", *privatePath)
		}
	}

	algorithm, err := token.ParseAlgorithm(*alg)
	if err != nil {
		return err
	}
	kp, err := token.GenerateKeyPair(algorithm)
	if err != nil {
		return err
	}
	files := token.KeyFiles{PrivatePath: *privatePath, PublicPath: *publicPath, AgeIdentityPath: *ageIdentity}
	if err := token.SaveKeyPair(files, kp); err != nil {
		return err
	}

	info, err := kp.Info()
	if err != nil {
		return err
	}
	return writeJSON(stdout, info)
}

type signOutput struct {
	Token           string     `json:"token"`
	VerificationURL string     `json:"verification_url,omitempty"`
	KeyID           string     `json:"key_id"`
	Algorithm       string     `json:"algorithm"`
	Fingerprint     string     `json:"fingerprint"`
	Compression     string     `json:"compression"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
}

func runSign(args []string, stdout io.Writer) error {
	fs := newFlagSet("sign")
	privatePath := fs.String("private", "", "private key PEM (required)")
	ageIdentity := fs.String("age-identity", "", "age identity for an encrypted private key")
	id := fs.String("id", "", "product id (required)")
	name := fs.String("name", "", "product name (required)")
	batch := fs.String("batch", "", "batch identifier")
	metadata := fs.String("metadata", "", "metadata as a JSON object")
	expires := fs.Duration("expires", 0, "token lifetime, 0 for no expiry")
	compression := fs.String("compression", "none", "wire compression: none, snappy or zstd")
	baseURL := fs.String("base-url", "", "verification base url; prints the QR url when set")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *privatePath == "" {
		return errors.New("--private is required")
	}
	if *expires < 0 {
		return errors.New("--expires must not be negative")
	}

	kp, err := token.LoadKeyPair(token.KeyFiles{PrivatePath: *privatePath, AgeIdentityPath: *ageIdentity})
	if err != nil {
		return err
	}
	comp, err := token.ParseCompression(*compression)
	if err != nil {
		return err
	}

	payload := token.Payload{ID: *id, Name: *name, Batch: strings.TrimSpace(*batch)}
	if strings.TrimSpace(*metadata) != "" {
		if err := json.Unmarshal([]byte(*metadata), &payload.Metadata); err != nil {
			return fmt.Errorf("--metadata: %w", err)
		}
	}

	tok, err := token.Sign(payload, kp, token.SignOptions{
		ExpiresIn:   *expires,
		Now:         time.Now(),
		Compression: comp,
	})
	if err != nil {
		return err
	}

	out := signOutput{
		Token:       tok.Raw,
		KeyID:       tok.KeyID,
		Algorithm:   string(tok.Algorithm),
		Fingerprint: tok.Fingerprint(),
		Compression: tok.Compression.String(),
		ExpiresAt:   tok.ExpiresAtTime(),
	}
	if *baseURL != "" {
		out.VerificationURL, err = token.VerificationURL(*baseURL, tok.Raw)
		if err != nil {
			return err
		}
	}
	return writeJSON(stdout, out)
}

type verifyOutput struct {
	Valid   bool           `json:"valid"`
	Reason  string         `json:"reason,omitempty"`
	KeyID   string         `json:"key_id,omitempty"`
	Payload *token.Payload `json:"payload,omitempty"`
}

func runVerify(args []string, stdout io.Writer) error {
	fs := newFlagSet("verify")
	publicPath := fs.String("public", "", "public key PEM (required)")
	at := fs.String("at", "", "check expiry at this RFC3339 time instead of now")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *publicPath == "" {
		return errors.New("--public is required")
	}
	raw, err := tokenArg(fs.Args())
	if err != nil {
		return err
	}

	now := time.Now()
	if *at != "" {
		now, err = time.Parse(time.RFC3339, *at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
	}

	kp, err := token.LoadPublicKeyPair(*publicPath)
	if err != nil {
		return err
	}

	tok, verr := token.VerifyAt(raw, kp.Public, now)
	out := verifyOutput{Valid: verr == nil}
	if tok != nil {
		out.KeyID = tok.KeyID
		if verr == nil {
			out.Payload = &tok.Payload
		}
	}
	if verr != nil {
		out.Reason = verificationdomain.ReasonFor(verr)
	}
	if err := writeJSON(stdout, out); err != nil {
		return err
	}
	if !out.Valid {
		return &exitError{code: 2}
	}
	return nil
}

type inspectOutput struct {
	Version     uint8         `json:"version"`
	Algorithm   string        `json:"algorithm"`
	KeyID       string        `json:"key_id"`
	Compression string        `json:"compression"`
	Fingerprint string        `json:"fingerprint"`
	IssuedAt    time.Time     `json:"issued_at"`
	ExpiresAt   *time.Time    `json:"expires_at,omitempty"`
	Expired     bool          `json:"expired"`
	Payload     token.Payload `json:"payload"`
}

func runInspect(args []string, stdout io.Writer) error {
	fs := newFlagSet("inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}
	raw, err := tokenArg(fs.Args())
	if err != nil {
		return err
	}

	tok, err := token.Parse(raw)
	if err != nil {
		return err
	}
	return writeJSON(stdout, inspectOutput{
		Version:     tok.Version,
		Algorithm:   string(tok.Algorithm),
		KeyID:       tok.KeyID,
		Compression: tok.Compression.String(),
		Fingerprint: tok.Fingerprint(),
		IssuedAt:    tok.IssuedAtTime(),
		ExpiresAt:   tok.ExpiresAtTime(),
		Expired:     tok.Expired(time.Now()),
		Payload:     tok.Payload,
	})
}

// tokenArg takes the token from the single positional argument, or from
// stdin when the argument is "-".
func tokenArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.New("expected exactly one token argument")
	}
	if args[0] != "-" {
		return args[0], nil
	}
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
