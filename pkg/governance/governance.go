// Package governance implements the governance policy document (v2) and
// the revocation list that the offline verifier consults: which keys may
// sign a bundle's head attestation or verification report, for which
// bundle kinds, under what scope, and whether a key has since been
// revoked. Both documents are themselves signed artifacts — a policy
// signed by a trusted governance root, a revocation list signed by a
// trusted issuer — following the same signer-quorum shape used
// throughout this module for authority proofs.
package governance

import (
	"fmt"
	"time"

	"github.com/ledgerspine/spine/pkg/canonjson"
	"github.com/ledgerspine/spine/pkg/keys"
)

// BundleKind enumerates the five proof bundle kinds this module builds
// and governs signer admission for.
type BundleKind string

const (
	BundleJob         BundleKind = "Job"
	BundleMonth       BundleKind = "Month"
	BundleFinancePack BundleKind = "FinancePack"
	BundleInvoice     BundleKind = "Invoice"
	BundleClosePack   BundleKind = "ClosePack"
)

// SignerRule is the admission rule for a single (bundle kind, signer
// role) pair.
type SignerRule struct {
	AllowedKeyIDs   []string `json:"allowedKeyIds"`
	AllowedScopes   []string `json:"allowedScopes,omitempty"`
	RequireGoverned bool     `json:"requireGoverned,omitempty"`
	RequiredPurpose string   `json:"requiredPurpose,omitempty"`
}

func (r SignerRule) allowsKeyID(keyID string) bool {
	for _, id := range r.AllowedKeyIDs {
		if id == keyID {
			return true
		}
	}
	return false
}

func (r SignerRule) allowsScope(scope string) bool {
	if len(r.AllowedScopes) == 0 {
		return true
	}
	for _, s := range r.AllowedScopes {
		if s == scope {
			return true
		}
	}
	return false
}

// SignerContext describes the signer attempting to produce a head
// attestation or verification report, for admission checking.
type SignerContext struct {
	KeyID    string
	Scope    string
	Governed bool
	Purpose  string
}

// PolicyV2 is the governance policy document: for each bundle kind, who
// may sign its head attestation and who may sign its verification
// report. The document is itself signed by a trusted governance root
// key, recorded by GovernanceRootKeyID.
type PolicyV2 struct {
	Version                      string                      `json:"version"`
	IssuedAt                     time.Time                   `json:"issuedAt"`
	GovernanceRootKeyID          string                      `json:"governanceRootKeyId"`
	BundleHeadAttestationSigners map[BundleKind]SignerRule   `json:"bundleHeadAttestationSigners"`
	VerificationReportSigners    map[BundleKind]SignerRule   `json:"verificationReportSigners"`
	PolicyHash                   string                      `json:"policyHash"`
	Signature                    string                      `json:"signature"`
}

// PolicyVersion is the current governance document schema version.
const PolicyVersion = "2"

func (p *PolicyV2) unsigned() PolicyV2 {
	cp := *p
	cp.PolicyHash = ""
	cp.Signature = ""
	return cp
}

// Sign computes the policy hash and signs it with the governance root
// keypair, whose key ID must match GovernanceRootKeyID.
func (p *PolicyV2) Sign(root *keys.KeyPair) error {
	if root.KeyID != p.GovernanceRootKeyID {
		return fmt.Errorf("governance: signer key ID %q does not match declared governance root %q", root.KeyID, p.GovernanceRootKeyID)
	}
	hash, _, err := canonjson.MarshalHash(p.unsigned())
	if err != nil {
		return fmt.Errorf("governance: hash policy: %w", err)
	}
	sig, err := keys.SignDigest(root.PrivateKey, hash)
	if err != nil {
		return fmt.Errorf("governance: sign policy: %w", err)
	}
	p.PolicyHash = hash
	p.Signature = sig
	return nil
}

// Verify checks the policy's signature against a trusted governance root
// key set, and that PolicyHash matches the recomputed hash.
func (p *PolicyV2) Verify(trustedRoots keys.TrustedKeySet) error {
	wantHash, _, err := canonjson.MarshalHash(p.unsigned())
	if err != nil {
		return fmt.Errorf("governance: hash policy: %w", err)
	}
	if wantHash != p.PolicyHash {
		return fmt.Errorf("governance: policy hash mismatch: recomputed %q, stored %q", wantHash, p.PolicyHash)
	}
	pub, ok := trustedRoots.Lookup(p.GovernanceRootKeyID)
	if !ok {
		return fmt.Errorf("governance: governance root key %q is not trusted", p.GovernanceRootKeyID)
	}
	if !keys.VerifyDigest(pub, p.PolicyHash, p.Signature) {
		return fmt.Errorf("governance: policy signature does not verify")
	}
	return nil
}

// AdmitHeadAttestationSigner checks whether ctx may sign kind's head
// attestation under this policy.
func (p *PolicyV2) AdmitHeadAttestationSigner(kind BundleKind, ctx SignerContext) error {
	return admit(p.BundleHeadAttestationSigners, "head attestation", kind, ctx)
}

// AdmitVerificationReportSigner checks whether ctx may sign kind's
// verification report under this policy.
func (p *PolicyV2) AdmitVerificationReportSigner(kind BundleKind, ctx SignerContext) error {
	return admit(p.VerificationReportSigners, "verification report", kind, ctx)
}

func admit(rules map[BundleKind]SignerRule, role string, kind BundleKind, ctx SignerContext) error {
	rule, ok := rules[kind]
	if !ok {
		return fmt.Errorf("governance: no %s signer rule defined for bundle kind %q", role, kind)
	}
	if !rule.allowsKeyID(ctx.KeyID) {
		return fmt.Errorf("governance: key %q is not an allowed %s signer for %q", ctx.KeyID, role, kind)
	}
	if !rule.allowsScope(ctx.Scope) {
		return fmt.Errorf("governance: scope %q is not allowed for %s signer %q on %q", ctx.Scope, role, ctx.KeyID, kind)
	}
	if rule.RequireGoverned && !ctx.Governed {
		return fmt.Errorf("governance: %s signer %q must be server-governed for %q", role, ctx.KeyID, kind)
	}
	if rule.RequiredPurpose != "" && ctx.Purpose != rule.RequiredPurpose {
		return fmt.Errorf("governance: %s signer %q must have purpose %q, got %q", role, ctx.KeyID, rule.RequiredPurpose, ctx.Purpose)
	}
	return nil
}

// TimeProof is a time-authority-signed timestamp, carried once per
// bundle. In strict verification with a policy present, a signer listed
// in the revocation list passes only when a verified time proof's
// Timestamp falls before that key's RevokedAt; otherwise the signer is
// reported as REVOKED_WITHOUT_TIMEPROOF.
type TimeProof struct {
	Timestamp       time.Time `json:"timestamp"`
	TimeAuthorityID string    `json:"timeAuthorityId"`
	Signature       string    `json:"signature"`
}

func (t TimeProof) unsigned() TimeProof {
	cp := t
	cp.Signature = ""
	return cp
}

// SignTimeProof builds and signs a time proof with a time-authority
// keypair, whose key ID becomes TimeAuthorityID.
func SignTimeProof(timestamp time.Time, authority *keys.KeyPair) (*TimeProof, error) {
	t := &TimeProof{Timestamp: timestamp.UTC(), TimeAuthorityID: authority.KeyID}
	hash, _, err := canonjson.MarshalHash(t.unsigned())
	if err != nil {
		return nil, fmt.Errorf("governance: hash time proof: %w", err)
	}
	sig, err := keys.SignDigest(authority.PrivateKey, hash)
	if err != nil {
		return nil, fmt.Errorf("governance: sign time proof: %w", err)
	}
	t.Signature = sig
	return t, nil
}

// Verify checks a time proof's signature against a trusted
// time-authority key set.
func (t TimeProof) Verify(trustedAuthorities keys.TrustedKeySet) error {
	hash, _, err := canonjson.MarshalHash(t.unsigned())
	if err != nil {
		return fmt.Errorf("governance: hash time proof: %w", err)
	}
	pub, ok := trustedAuthorities.Lookup(t.TimeAuthorityID)
	if !ok {
		return fmt.Errorf("governance: time authority %q is not trusted", t.TimeAuthorityID)
	}
	if !keys.VerifyDigest(pub, hash, t.Signature) {
		return fmt.Errorf("governance: time proof signature does not verify")
	}
	return nil
}

// RevocationEntry revokes a single key as of a time, optionally scoped to
// a tenant or bundle kind. Time-authority evidence for when a revocation
// took effect lives at the bundle level (attestation/timestamp_proof.json),
// not per entry: every entry in one revocation list shares that single
// proof.
type RevocationEntry struct {
	KeyID     string    `json:"keyId"`
	RevokedAt time.Time `json:"revokedAt"`
	Reason    string    `json:"reason,omitempty"`
	Scope     string    `json:"scope,omitempty"`
}

// RevocationList is a signed, versioned list of revoked keys.
type RevocationList struct {
	Version  string             `json:"version"`
	IssuedAt time.Time          `json:"issuedAt"`
	IssuerID string             `json:"issuerId"`
	Entries  []RevocationEntry  `json:"entries"`
	ListHash string             `json:"listHash"`
	Signature string            `json:"signature"`
}

func (r *RevocationList) unsigned() RevocationList {
	cp := *r
	cp.ListHash = ""
	cp.Signature = ""
	return cp
}

// Sign computes the list hash and signs it with the issuer keypair.
func (r *RevocationList) Sign(issuer *keys.KeyPair) error {
	if issuer.KeyID != r.IssuerID {
		return fmt.Errorf("governance: signer key ID %q does not match declared issuer %q", issuer.KeyID, r.IssuerID)
	}
	hash, _, err := canonjson.MarshalHash(r.unsigned())
	if err != nil {
		return fmt.Errorf("governance: hash revocation list: %w", err)
	}
	sig, err := keys.SignDigest(issuer.PrivateKey, hash)
	if err != nil {
		return fmt.Errorf("governance: sign revocation list: %w", err)
	}
	r.ListHash = hash
	r.Signature = sig
	return nil
}

// Verify checks the revocation list's own signature against a trusted
// issuer key set.
func (r *RevocationList) Verify(trustedIssuers keys.TrustedKeySet) error {
	wantHash, _, err := canonjson.MarshalHash(r.unsigned())
	if err != nil {
		return fmt.Errorf("governance: hash revocation list: %w", err)
	}
	if wantHash != r.ListHash {
		return fmt.Errorf("governance: revocation list hash mismatch")
	}
	pub, ok := trustedIssuers.Lookup(r.IssuerID)
	if !ok {
		return fmt.Errorf("governance: revocation list issuer %q is not trusted", r.IssuerID)
	}
	if !keys.VerifyDigest(pub, r.ListHash, r.Signature) {
		return fmt.Errorf("governance: revocation list signature does not verify")
	}
	return nil
}

// IsRevoked reports whether keyID is revoked in this list, and whether
// timeProof (the bundle's single time-authority evidence, or nil if
// absent) is present at all. It does not verify timeProof's signature;
// use IsRevokedVerified for that.
func (r *RevocationList) IsRevoked(keyID string, timeProof *TimeProof) (revoked bool, hasTimeProof bool) {
	for _, e := range r.Entries {
		if e.KeyID != keyID {
			continue
		}
		return true, timeProof != nil
	}
	return false, false
}

// IsRevokedVerified is the strict counterpart of IsRevoked: it also
// requires timeProof to verify against trustedAuthorities, downgrading to
// "no time proof" if it does not.
func (r *RevocationList) IsRevokedVerified(keyID string, timeProof *TimeProof, trustedAuthorities keys.TrustedKeySet) (revoked bool, hasTimeProof bool) {
	for _, e := range r.Entries {
		if e.KeyID != keyID {
			continue
		}
		if timeProof == nil {
			return true, false
		}
		if err := timeProof.Verify(trustedAuthorities); err != nil {
			return true, false
		}
		return true, true
	}
	return false, false
}
