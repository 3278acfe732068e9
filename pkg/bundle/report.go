package bundle

import (
	"fmt"
	"time"

	"github.com/ledgerspine/spine/pkg/canonjson"
	"github.com/ledgerspine/spine/pkg/keys"
)

// WarningCode is a closed, tool-emitted warning tag carried in a
// verification report (e.g. an unrecognized tool version).
type WarningCode string

// ToolInfo identifies the tool that produced a verification report.
type ToolInfo struct {
	Version string `json:"version,omitempty"`
	Commit  string `json:"commit,omitempty"`
}

// AttestationRef is the subset of a head attestation a verification
// report binds to.
type AttestationRef struct {
	AttestationHash string `json:"attestationHash"`
}

// VerificationReport is a producer-side replay summary, itself signed
// and bound to both the manifest and the head attestation it accompanies.
type VerificationReport struct {
	ManifestHash          string           `json:"manifestHash"`
	BundleHeadAttestation AttestationRef   `json:"bundleHeadAttestation"`
	Tool                  ToolInfo         `json:"tool"`
	Warnings              []WarningCode    `json:"warnings"`
	ReportHash            string           `json:"reportHash"`
	SignerKeyID           string           `json:"signerKeyId"`
	Signature             string           `json:"signature"`
	SignedAt              time.Time        `json:"signedAt"`
}

func (r VerificationReport) hashable() any {
	return struct {
		ManifestHash          string         `json:"manifestHash"`
		BundleHeadAttestation AttestationRef `json:"bundleHeadAttestation"`
		Tool                  ToolInfo       `json:"tool"`
		Warnings              []WarningCode  `json:"warnings"`
	}{r.ManifestHash, r.BundleHeadAttestation, r.Tool, r.Warnings}
}

// SignVerificationReport builds and signs a verification report.
func SignVerificationReport(manifestHash, attestationHash string, tool ToolInfo, warnings []WarningCode, signedAt time.Time, signer *keys.KeyPair) (*VerificationReport, error) {
	r := &VerificationReport{
		ManifestHash:          manifestHash,
		BundleHeadAttestation: AttestationRef{AttestationHash: attestationHash},
		Tool:                  tool,
		Warnings:              warnings,
		SignerKeyID:           signer.KeyID,
		SignedAt:              signedAt.UTC(),
	}
	hash, _, err := canonjson.MarshalHash(r.hashable())
	if err != nil {
		return nil, fmt.Errorf("bundle: hash verification report: %w", err)
	}
	sig, err := keys.SignDigest(signer.PrivateKey, hash)
	if err != nil {
		return nil, fmt.Errorf("bundle: sign verification report: %w", err)
	}
	r.ReportHash = hash
	r.Signature = sig
	return r, nil
}

// VerifyVerificationReport recomputes reportHash, verifies the
// signature, and checks the report binds to manifestHash and
// attestationHash.
func VerifyVerificationReport(r *VerificationReport, manifestHash, attestationHash string, trusted keys.TrustedKeySet) error {
	wantHash, _, err := canonjson.MarshalHash(r.hashable())
	if err != nil {
		return fmt.Errorf("bundle: hash verification report: %w", err)
	}
	if wantHash != r.ReportHash {
		return fmt.Errorf("%w: report hash: recomputed %q, stored %q", ErrHashMismatch, wantHash, r.ReportHash)
	}
	pub, ok := trusted.Lookup(r.SignerKeyID)
	if !ok {
		return fmt.Errorf("%w: report signer %q", ErrSignerUntrusted, r.SignerKeyID)
	}
	if !keys.VerifyDigest(pub, r.ReportHash, r.Signature) {
		return fmt.Errorf("%w: report signature", ErrSignatureInvalid)
	}
	if r.ManifestHash != manifestHash {
		return fmt.Errorf("%w: report binds manifest %q, bundle manifest is %q", ErrBindingMismatch, r.ManifestHash, manifestHash)
	}
	if r.BundleHeadAttestation.AttestationHash != attestationHash {
		return fmt.Errorf("%w: report binds attestation %q, attestation is %q", ErrBindingMismatch, r.BundleHeadAttestation.AttestationHash, attestationHash)
	}
	return nil
}
