// Package keys implements the Ed25519 primitives shared by every signed
// structure in this module: event records, bundle attestations,
// verification reports, governance policy documents, and transparency log
// checkpoints. Every signature in this system is produced the same way —
// over the UTF-8 bytes of a hex digest string, never over raw struct
// bytes — so producer and verifier can never disagree about what was
// actually signed.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
)

// keyIDBytes is the number of leading digest bytes kept in a keyId (32
// hex chars), short enough to stay readable in logs and file names while
// remaining collision-safe for the key populations this module handles.
const keyIDBytes = 16

const publicKeyPEMType = "PUBLIC KEY"

// ErrInvalidSignature is not returned by this package: VerifyDigest
// reports a failed check as false. It is exported for callers that want
// to turn that false into an error distinct from "malformed input".
var ErrInvalidSignature = errors.New("keys: signature verification failed")

// KeyPair is an Ed25519 keypair plus its derived key ID.
type KeyPair struct {
	KeyID      string
	PublicKey  ed25519.PublicKey
	PrivateKey ed25519.PrivateKey
}

// Generate creates a fresh Ed25519 keypair with its key ID derived from
// the DER-encoded public key.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("keys: generate: %w", err)
	}
	id, err := KeyID(pub)
	if err != nil {
		return nil, err
	}
	return &KeyPair{KeyID: id, PublicKey: pub, PrivateKey: priv}, nil
}

// KeyID derives a stable identifier for a public key: the lowercase hex
// of the first 16 bytes of the SHA-256 digest of its DER (PKIX) encoding.
// Using the DER form rather than the raw 32 bytes means a keyId is
// self-describing about the key algorithm.
func KeyID(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("keys: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("keys: marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:keyIDBytes]), nil
}

// SignDigest signs the UTF-8 bytes of a hex digest string, returning the
// signature as lowercase hex.
func SignDigest(priv ed25519.PrivateKey, digestHex string) (string, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("keys: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	sig := ed25519.Sign(priv, []byte(digestHex))
	return hex.EncodeToString(sig), nil
}

// VerifyDigest checks a hex signature over the UTF-8 bytes of a hex
// digest string.
func VerifyDigest(pub ed25519.PublicKey, digestHex string, sigHex string) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, []byte(digestHex), sig)
}

// ParsePublicKeyHex decodes a hex-encoded raw 32-byte Ed25519 public key.
func ParsePublicKeyHex(s string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("keys: decode public key hex: %w", err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("keys: public key must decode to %d bytes, got %d", ed25519.PublicKeySize, len(b))
	}
	return ed25519.PublicKey(b), nil
}

// EncodePublicKeyPEM renders a public key as a PEM "PUBLIC KEY" block
// over its DER (PKIX) encoding, the form carried in keys/public_keys.json.
func EncodePublicKeyPEM(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("keys: public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("keys: marshal public key: %w", err)
	}
	block := &pem.Block{Type: publicKeyPEMType, Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ParsePublicKeyPEM decodes a PEM "PUBLIC KEY" block into an Ed25519
// public key, the inverse of EncodePublicKeyPEM. keyId derivation
// (KeyID) operates on the same DER bytes this function decodes from.
func ParsePublicKeyPEM(s string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(s))
	if block == nil {
		return nil, fmt.Errorf("keys: no PEM block found in public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("keys: parse PEM public key: %w", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("keys: PEM public key is not Ed25519")
	}
	if len(edPub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("keys: public key must decode to %d bytes, got %d", ed25519.PublicKeySize, len(edPub))
	}
	return edPub, nil
}

// TrustedKeySet maps a keyId to its known-good public key, as loaded from
// the trusted-governance-root / pricing-signer / time-authority
// environment variables (JSON object of keyId -> hex public key).
type TrustedKeySet map[string]ed25519.PublicKey

// ParseTrustedKeySetJSON parses the `{"<keyId>": "<hexPublicKey>", ...}`
// form used by this module's environment-variable configuration.
func ParseTrustedKeySetJSON(raw map[string]string) (TrustedKeySet, error) {
	out := make(TrustedKeySet, len(raw))
	for keyID, hexKey := range raw {
		pub, err := ParsePublicKeyHex(hexKey)
		if err != nil {
			return nil, fmt.Errorf("keys: trusted key %q: %w", keyID, err)
		}
		gotID, err := KeyID(pub)
		if err != nil {
			return nil, err
		}
		if gotID != keyID {
			return nil, fmt.Errorf("keys: trusted key entry %q does not match derived key ID %q", keyID, gotID)
		}
		out[keyID] = pub
	}
	return out, nil
}

// Lookup returns the public key for keyID, and whether it was found.
func (t TrustedKeySet) Lookup(keyID string) (ed25519.PublicKey, bool) {
	pub, ok := t[keyID]
	return pub, ok
}
