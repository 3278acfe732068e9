package governance

import (
	"testing"
	"time"

	"github.com/ledgerspine/spine/pkg/canonjson"
	"github.com/ledgerspine/spine/pkg/keys"
)

func mustKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate: %v", err)
	}
	return kp
}

func TestPolicySignAndVerify(t *testing.T) {
	root := mustKeyPair(t)
	signerKey := mustKeyPair(t)
	policy := &PolicyV2{
		Version:             PolicyVersion,
		IssuedAt:            time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		GovernanceRootKeyID: root.KeyID,
		BundleHeadAttestationSigners: map[BundleKind]SignerRule{
			BundleJob: {AllowedKeyIDs: []string{signerKey.KeyID}, RequireGoverned: true, RequiredPurpose: "server"},
		},
		VerificationReportSigners: map[BundleKind]SignerRule{
			BundleJob: {AllowedKeyIDs: []string{signerKey.KeyID}},
		},
	}
	if err := policy.Sign(root); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	trusted := keys.TrustedKeySet{root.KeyID: root.PublicKey}
	if err := policy.Verify(trusted); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	ctx := SignerContext{KeyID: signerKey.KeyID, Governed: true, Purpose: "server"}
	if err := policy.AdmitHeadAttestationSigner(BundleJob, ctx); err != nil {
		t.Fatalf("AdmitHeadAttestationSigner: %v", err)
	}
	if err := policy.AdmitHeadAttestationSigner(BundleMonth, ctx); err == nil {
		t.Fatal("expected admission failure for bundle kind with no rule")
	}
}

func TestPolicyVerifyRejectsTamperedHash(t *testing.T) {
	root := mustKeyPair(t)
	policy := &PolicyV2{Version: PolicyVersion, GovernanceRootKeyID: root.KeyID}
	if err := policy.Sign(root); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	policy.BundleHeadAttestationSigners = map[BundleKind]SignerRule{BundleJob: {}}
	trusted := keys.TrustedKeySet{root.KeyID: root.PublicKey}
	if err := policy.Verify(trusted); err == nil {
		t.Fatal("expected verification to fail after tampering")
	}
}

func TestAdmitRejectsDisallowedScope(t *testing.T) {
	root := mustKeyPair(t)
	signerKey := mustKeyPair(t)
	policy := &PolicyV2{
		Version:             PolicyVersion,
		GovernanceRootKeyID: root.KeyID,
		BundleHeadAttestationSigners: map[BundleKind]SignerRule{
			BundleInvoice: {AllowedKeyIDs: []string{signerKey.KeyID}, AllowedScopes: []string{"prod"}},
		},
	}
	ctx := SignerContext{KeyID: signerKey.KeyID, Scope: "staging"}
	if err := policy.AdmitHeadAttestationSigner(BundleInvoice, ctx); err == nil {
		t.Fatal("expected scope rejection")
	}
}

func TestRevocationListWithoutTimeProof(t *testing.T) {
	issuer := mustKeyPair(t)
	target := mustKeyPair(t)
	list := &RevocationList{
		Version:  "1",
		IssuedAt: time.Now().UTC(),
		IssuerID: issuer.KeyID,
		Entries:  []RevocationEntry{{KeyID: target.KeyID, RevokedAt: time.Now().UTC()}},
	}
	if err := list.Sign(issuer); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	trusted := keys.TrustedKeySet{issuer.KeyID: issuer.PublicKey}
	if err := list.Verify(trusted); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	revoked, hasProof := list.IsRevoked(target.KeyID, nil)
	if !revoked || hasProof {
		t.Fatalf("expected revoked=true, hasTimeProof=false, got %v/%v", revoked, hasProof)
	}
}

func TestRevocationListWithTimeProof(t *testing.T) {
	issuer := mustKeyPair(t)
	authority := mustKeyPair(t)
	target := mustKeyPair(t)
	tp := TimeProof{Timestamp: time.Now().UTC(), TimeAuthorityID: authority.KeyID}
	hash, _, err := canonjson.MarshalHash(tp.unsigned())
	if err != nil {
		t.Fatalf("hash time proof: %v", err)
	}
	sig, err := keys.SignDigest(authority.PrivateKey, hash)
	if err != nil {
		t.Fatalf("SignDigest: %v", err)
	}
	tp.Signature = sig

	list := &RevocationList{
		Version:  "1",
		IssuerID: issuer.KeyID,
		Entries:  []RevocationEntry{{KeyID: target.KeyID, RevokedAt: time.Now().UTC().Add(-time.Hour)}},
	}
	if err := list.Sign(issuer); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	trustedAuthorities := keys.TrustedKeySet{authority.KeyID: authority.PublicKey}
	revoked, hasProof := list.IsRevokedVerified(target.KeyID, &tp, trustedAuthorities)
	if !revoked || !hasProof {
		t.Fatalf("expected revoked=true, hasTimeProof=true, got %v/%v", revoked, hasProof)
	}
}

