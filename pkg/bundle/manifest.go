// Package bundle implements the proof-bundle builder and its on-disk
// file formats: a manifest-rooted file set with an attached head
// attestation and an optional signed verification report, for each of
// the five bundle kinds (Job, Month, FinancePack, Invoice, ClosePack).
// The manifest/attestation/report "compute a hash over the struct minus
// its own hash field, then sign" shape is used consistently throughout.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ledgerspine/spine/pkg/canonjson"
	"github.com/ledgerspine/spine/pkg/keys"
)

// Sentinel errors every Verify* function in this package wraps its
// returned error with, letting pkg/verify map a failure to the closed
// error-code set from spec §7 without string matching.
var (
	ErrHashMismatch     = errors.New("bundle: hash mismatch")
	ErrSignerUntrusted  = errors.New("bundle: signer untrusted")
	ErrSignatureInvalid = errors.New("bundle: signature invalid")
	ErrBindingMismatch  = errors.New("bundle: binding mismatch")
)

// Kind is the bundle schema kind recorded in manifest.json's "kind"
// field, e.g. "JobProofBundle.v1".
type Kind string

const (
	KindJobProofBundleV1     Kind = "JobProofBundle.v1"
	KindMonthProofBundleV1   Kind = "MonthProofBundle.v1"
	KindFinancePackBundleV1  Kind = "FinancePackBundle.v1"
	KindInvoiceBundleV1      Kind = "InvoiceBundle.v1"
	KindClosePackBundleV1    Kind = "ClosePackBundle.v1"
)

const ManifestSchemaVersion = "1.0"

// ManifestFile is one entry in manifest.files[].
type ManifestFile struct {
	Name   string `json:"name"`
	SHA256 string `json:"sha256"`
	Bytes  int64  `json:"bytes"`
}

// EmbeddedBinding records the manifest hash of a sub-bundle embedded under
// a fixed path prefix (e.g. FinancePack wrapping a Month bundle under
// "payload/month_proof_bundle/"). The outer manifest's binding block lets
// a verifier confirm the embedded files it sees were not swapped for a
// different sub-bundle after the fact.
type EmbeddedBinding struct {
	Prefix       string `json:"prefix"`
	Kind         Kind   `json:"kind"`
	ManifestHash string `json:"manifestHash"`
}

// Manifest is the root index of a bundle: every file it contains, each
// file's hash and size, and a hash over the manifest itself.
type Manifest struct {
	SchemaVersion    string            `json:"schemaVersion"`
	Kind             Kind              `json:"kind"`
	TenantID         string            `json:"tenantId"`
	Scope            string            `json:"scope"`
	GeneratedAt      time.Time         `json:"generatedAt"`
	Files            []ManifestFile    `json:"files"`
	EmbeddedBindings []EmbeddedBinding `json:"embeddedBindings,omitempty"`
	ManifestHash     string            `json:"manifestHash"`
}

func (m Manifest) unsigned() Manifest {
	cp := m
	cp.ManifestHash = ""
	return cp
}

// BuildManifest computes the files[] index (sorted by name, ascending
// byte order) and the manifest hash for a file set.
func BuildManifest(kind Kind, tenantID, scope string, generatedAt time.Time, files map[string][]byte) (*Manifest, error) {
	return BuildManifestWithBindings(kind, tenantID, scope, generatedAt, files, nil)
}

// BuildManifestWithBindings is BuildManifest plus the embedded-sub-bundle
// binding block recorded by the wrapping bundle kinds (FinancePack,
// Invoice, ClosePack).
func BuildManifestWithBindings(kind Kind, tenantID, scope string, generatedAt time.Time, files map[string][]byte, bindings []EmbeddedBinding) (*Manifest, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]ManifestFile, 0, len(names))
	for _, name := range names {
		data := files[name]
		sum := sha256.Sum256(data)
		entries = append(entries, ManifestFile{
			Name:   name,
			SHA256: hex.EncodeToString(sum[:]),
			Bytes:  int64(len(data)),
		})
	}

	sortedBindings := append([]EmbeddedBinding(nil), bindings...)
	sort.Slice(sortedBindings, func(i, j int) bool { return sortedBindings[i].Prefix < sortedBindings[j].Prefix })

	m := &Manifest{
		SchemaVersion:    ManifestSchemaVersion,
		Kind:             kind,
		TenantID:         tenantID,
		Scope:            scope,
		GeneratedAt:      generatedAt.UTC(),
		Files:            entries,
		EmbeddedBindings: sortedBindings,
	}
	hash, _, err := canonjson.MarshalHash(m.unsigned())
	if err != nil {
		return nil, fmt.Errorf("bundle: hash manifest: %w", err)
	}
	m.ManifestHash = hash
	return m, nil
}

// VerifyManifestHash recomputes the manifest hash and compares it to the
// stored one.
func VerifyManifestHash(m *Manifest) error {
	want, _, err := canonjson.MarshalHash(m.unsigned())
	if err != nil {
		return fmt.Errorf("bundle: hash manifest: %w", err)
	}
	if want != m.ManifestHash {
		return fmt.Errorf("%w: manifest hash: recomputed %q, stored %q", ErrHashMismatch, want, m.ManifestHash)
	}
	return nil
}

// HeadAttestation is a short signed record binding a signer to a
// manifest hash at a time.
type HeadAttestation struct {
	ManifestHash    string    `json:"manifestHash"`
	AttestedAt      time.Time `json:"attestedAt"`
	SignerKeyID     string    `json:"signerKeyId"`
	Signature       string    `json:"signature"`
	AttestationHash string    `json:"attestationHash"`
}

func (a HeadAttestation) hashable() any {
	return struct {
		ManifestHash string    `json:"manifestHash"`
		AttestedAt   time.Time `json:"attestedAt"`
		SignerKeyID  string    `json:"signerKeyId"`
	}{a.ManifestHash, a.AttestedAt, a.SignerKeyID}
}

// SignHeadAttestation builds and signs a head attestation over
// manifestHash.
func SignHeadAttestation(manifestHash string, attestedAt time.Time, signer *keys.KeyPair) (*HeadAttestation, error) {
	a := &HeadAttestation{ManifestHash: manifestHash, AttestedAt: attestedAt.UTC(), SignerKeyID: signer.KeyID}
	hash, _, err := canonjson.MarshalHash(a.hashable())
	if err != nil {
		return nil, fmt.Errorf("bundle: hash attestation: %w", err)
	}
	sig, err := keys.SignDigest(signer.PrivateKey, hash)
	if err != nil {
		return nil, fmt.Errorf("bundle: sign attestation: %w", err)
	}
	a.AttestationHash = hash
	a.Signature = sig
	return a, nil
}

// VerifyHeadAttestation recomputes attestationHash, verifies the
// signature against trusted, and checks it binds to manifestHash.
func VerifyHeadAttestation(a *HeadAttestation, manifestHash string, trusted keys.TrustedKeySet) error {
	wantHash, _, err := canonjson.MarshalHash(a.hashable())
	if err != nil {
		return fmt.Errorf("bundle: hash attestation: %w", err)
	}
	if wantHash != a.AttestationHash {
		return fmt.Errorf("%w: attestation hash: recomputed %q, stored %q", ErrHashMismatch, wantHash, a.AttestationHash)
	}
	pub, ok := trusted.Lookup(a.SignerKeyID)
	if !ok {
		return fmt.Errorf("%w: attestation signer %q", ErrSignerUntrusted, a.SignerKeyID)
	}
	if !keys.VerifyDigest(pub, a.AttestationHash, a.Signature) {
		return fmt.Errorf("%w: attestation signature", ErrSignatureInvalid)
	}
	if a.ManifestHash != manifestHash {
		return fmt.Errorf("%w: attestation binds %q, bundle manifest is %q", ErrBindingMismatch, a.ManifestHash, manifestHash)
	}
	return nil
}
